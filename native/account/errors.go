package account

import "custody/native/common"

// Every failure the account core can produce, with its stable code. The codes
// are load-bearing: prior client integrations match on the literal strings.
var (
	// Preconditions.
	ErrNullOwner          = common.NewFault(common.KindPrecondition, "null-owner")
	ErrGuardianRequired   = common.NewFault(common.KindPrecondition, "guardian-required")
	ErrBackupShouldBeNull = common.NewFault(common.KindPrecondition, "backup-should-be-null")
	ErrNullSigner         = common.NewFault(common.KindPrecondition, "null-signer")
	ErrAlreadyInitialized = common.NewFault(common.KindPrecondition, "already-initialized")

	// Authorization.
	ErrInvalidOwnerSig    = common.NewFault(common.KindAuthorization, "invalid-owner-sig")
	ErrInvalidGuardianSig = common.NewFault(common.KindAuthorization, "invalid-guardian-sig")
	ErrOnlySelf           = common.NewFault(common.KindAuthorization, "only-self")
	ErrInvalidCaller      = common.NewFault(common.KindAuthorization, "invalid-caller")
	ErrForbiddenCall      = common.NewFault(common.KindAuthorization, "forbidden-call")
	ErrNoMulticallToSelf  = common.NewFault(common.KindAuthorization, "no-multicall-to-self")

	// Replay protection.
	ErrDuplicatedNonce  = common.NewFault(common.KindReplay, "duplicated-nonce")
	ErrInvalidTimestamp = common.NewFault(common.KindReplay, "invalid-timestamp")

	// Escape state conflicts.
	ErrInvalidEscape        = common.NewFault(common.KindStateConflict, "invalid-escape")
	ErrCannotOverrideEscape = common.NewFault(common.KindStateConflict, "cannot-override-escape")

	// Rate limiting.
	ErrMaxEscapeAttempts = common.NewFault(common.KindRateLimit, "max-escape-attempts")
	ErrMaxFeeExceeded    = common.NewFault(common.KindRateLimit, "max-fee-exceeded")

	// Encoding.
	ErrInvalidSignatureLength = common.NewFault(common.KindEncoding, "invalid-signature-length")
	ErrInvalidSignatureFormat = common.NewFault(common.KindEncoding, "invalid-signature-format")
	ErrInvalidCalldata        = common.NewFault(common.KindEncoding, "invalid-calldata")
)
