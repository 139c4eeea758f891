package account

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"custody/core/types"
	"custody/crypto"
)

var (
	changeOwnerTag = ethcrypto.Keccak256([]byte("custody.change-owner.v1"))
	executeTag     = ethcrypto.Keccak256([]byte("custody.execute.v1"))
)

// ChangeOwnerDigest is the message an incoming owner key must sign to prove
// possession before a rotation is accepted. Binding the account address and
// the outgoing key prevents replaying the proof across accounts or rotations.
func ChangeOwnerDigest(account [20]byte, currentOwner []byte) []byte {
	return ethcrypto.Keccak256(changeOwnerTag, account[:], currentOwner)
}

// splitSignature separates the combined signature into the owner scalar pair
// and the optional guardian scalar pair. Two scalars means owner only, four
// means owner followed by guardian; any other shape is malformed.
func splitSignature(scalars []*big.Int) (owner, guardian []*big.Int, err error) {
	switch len(scalars) {
	case 2:
		return scalars, nil, nil
	case 4:
		return scalars[:2], scalars[2:], nil
	default:
		return nil, nil, ErrInvalidSignatureLength
	}
}

func verifyOwner(st *State, hash []byte, part []*big.Int) error {
	if len(part) != 2 {
		return ErrInvalidSignatureLength
	}
	if !crypto.VerifyScalars(hash, st.Owner, part[0], part[1]) {
		return ErrInvalidOwnerSig
	}
	return nil
}

// verifyGuardian accepts either the guardian or the backup guardian key; the
// two are interchangeable for authorization.
func verifyGuardian(st *State, hash []byte, part []*big.Int) error {
	if len(part) != 2 {
		return ErrInvalidSignatureLength
	}
	if crypto.VerifyScalars(hash, st.Guardian, part[0], part[1]) {
		return nil
	}
	if !crypto.IsNullKey(st.GuardianBackup) &&
		crypto.VerifyScalars(hash, st.GuardianBackup, part[0], part[1]) {
		return nil
	}
	return ErrInvalidGuardianSig
}

// escapeCallKind classifies a call against the fast-path escape selectors.
type escapeCallKind uint8

const (
	escapeCallNone escapeCallKind = iota
	escapeCallTriggerOwner
	escapeCallEscapeOwner
	escapeCallTriggerGuardian
	escapeCallEscapeGuardian
)

func classifyEscapeCall(sel types.Selector) escapeCallKind {
	switch sel {
	case SelectorTriggerEscapeOwner:
		return escapeCallTriggerOwner
	case SelectorEscapeOwner:
		return escapeCallEscapeOwner
	case SelectorTriggerEscapeGuardian:
		return escapeCallTriggerGuardian
	case SelectorEscapeGuardian:
		return escapeCallEscapeGuardian
	default:
		return escapeCallNone
	}
}

// firstCalldataKey extracts the leading calldata field as a signer key.
func firstCalldataKey(call types.Call) ([]byte, error) {
	if len(call.Calldata) < 1 {
		return nil, ErrInvalidCalldata
	}
	return call.Calldata[0], nil
}

// checkEscapePreconditions runs the per-call sanity checks the policy demands
// before any signature is even considered. They mirror the engine's own
// checks; running them here keeps a forged single-party signature from
// probing state it could never change.
func (e *Engine) checkEscapePreconditions(st *State, kind escapeCallKind, call types.Call) error {
	if crypto.IsNullKey(st.Guardian) {
		return ErrGuardianRequired
	}
	switch kind {
	case escapeCallTriggerOwner:
		newOwner, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		if crypto.IsNullKey(newOwner) {
			return ErrNullOwner
		}
	case escapeCallEscapeOwner:
		if st.Escape.Type != EscapeTypeOwner || crypto.IsNullKey(st.Escape.NewSigner) {
			return ErrInvalidEscape
		}
	case escapeCallTriggerGuardian:
		newGuardian, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		if crypto.IsNullKey(newGuardian) && !crypto.IsNullKey(st.GuardianBackup) {
			return ErrBackupShouldBeNull
		}
	case escapeCallEscapeGuardian:
		if st.Escape.Type != EscapeTypeGuardian {
			return ErrInvalidEscape
		}
		if crypto.IsNullKey(st.Escape.NewSigner) && !crypto.IsNullKey(st.GuardianBackup) {
			return ErrBackupShouldBeNull
		}
	}
	return nil
}

// validateSignature applies the combined signature policy to a requested
// batch.
//
// Fast path: exactly one call targeting the account with an escape selector.
// Authorization is asymmetric and single-party: the guardian alone authorises
// owner recovery, the owner alone authorises guardian recovery. The
// per-selector precondition checks run before the signature is accepted.
//
// General path: everything else requires both parties, and a multicall batch
// may never target the account itself.
func (e *Engine) validateSignature(st *State, hash []byte, scalars []*big.Int, calls []types.Call) error {
	for _, call := range calls {
		if call.To == e.address && call.Selector == SelectorExecuteAfterUpgrade {
			return ErrForbiddenCall
		}
	}
	if len(calls) == 1 && calls[0].To == e.address {
		if kind := classifyEscapeCall(calls[0].Selector); kind != escapeCallNone {
			if err := e.checkEscapePreconditions(st, kind, calls[0]); err != nil {
				return err
			}
			if len(scalars) != 2 {
				return ErrInvalidSignatureLength
			}
			switch kind {
			case escapeCallTriggerOwner, escapeCallEscapeOwner:
				return verifyGuardian(st, hash, scalars)
			default:
				return verifyOwner(st, hash, scalars)
			}
		}
	}
	if len(calls) > 1 {
		for _, call := range calls {
			if call.To == e.address {
				return ErrNoMulticallToSelf
			}
		}
	}
	ownerPart, guardianPart, err := splitSignature(scalars)
	if err != nil {
		return err
	}
	if err := verifyOwner(st, hash, ownerPart); err != nil {
		return err
	}
	if crypto.IsNullKey(st.Guardian) {
		// Without a guardian the account is single-party; a trailing
		// guardian signature is a shape error, not an auth failure.
		if guardianPart != nil {
			return ErrInvalidSignatureLength
		}
		return nil
	}
	if guardianPart == nil {
		return ErrInvalidSignatureLength
	}
	return verifyGuardian(st, hash, guardianPart)
}

// ExecuteMessageHash computes the digest a direct execution batch is signed
// over. Mixing the account address and the full batch into the digest keeps a
// captured signature from authorising any other batch or account.
func (e *Engine) ExecuteMessageHash(calls []types.Call) ([32]byte, error) {
	var hash [32]byte
	encoded, err := rlp.EncodeToBytes(calls)
	if err != nil {
		return hash, err
	}
	copy(hash[:], ethcrypto.Keccak256(executeTag, e.address[:], encoded))
	return hash, nil
}

// ValidateSignature checks a combined signature over an arbitrary message
// hash for the given batch shape without executing anything.
func (e *Engine) ValidateSignature(hash []byte, scalars []*big.Int, calls []types.Call) error {
	st, err := e.load()
	if err != nil {
		return err
	}
	return e.validateSignature(st, hash, scalars, calls)
}

// Execute validates the combined signature over the supplied transaction hash
// and delegates the batch to the multicall executor.
func (e *Engine) Execute(hash []byte, scalars []*big.Int, calls []types.Call) ([][]byte, error) {
	st, err := e.load()
	if err != nil {
		return nil, err
	}
	if err := e.validateSignature(st, hash, scalars, calls); err != nil {
		return nil, err
	}
	if e.executor == nil {
		return nil, errNilExecutor
	}
	return e.executor.Execute(calls)
}
