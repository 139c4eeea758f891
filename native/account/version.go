package account

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"custody/crypto"
)

const (
	AccountName    = "custody-account"
	AccountVersion = "0.2.0"
)

// CapabilityID identifies one independently-versioned interface surface.
type CapabilityID [32]byte

// NewCapabilityID derives a capability identifier from its name.
func NewCapabilityID(name string) CapabilityID {
	var id CapabilityID
	copy(id[:], ethcrypto.Keccak256([]byte(name)))
	return id
}

// The capability surfaces the account answers for. Legacy validation is the
// pre-magic-value signature query older integrations still probe for.
var (
	CapabilityIntrospection    = NewCapabilityID("custody.introspection.v1")
	CapabilityAccount          = NewCapabilityID("custody.account.v1")
	CapabilityOutsideExecution = NewCapabilityID("custody.outside-execution.v1")
	CapabilityLegacyValidation = NewCapabilityID("custody.is-valid-signature.v0")
)

// Name returns the account implementation name.
func (e *Engine) Name() string { return AccountName }

// Version returns the account implementation version.
func (e *Engine) Version() string { return AccountVersion }

// SupportsInterface answers the capability probe.
func (e *Engine) SupportsInterface(id CapabilityID) bool {
	switch id {
	case CapabilityIntrospection, CapabilityAccount, CapabilityOutsideExecution, CapabilityLegacyValidation:
		return true
	default:
		return false
	}
}

// IsValidSignature is the standardized signature-validation query: it checks
// the combined owner/guardian signature over an arbitrary hash and returns
// the accept magic on success, the zero value on rejection. It is a query,
// not an operation — no error surface beyond state access failures.
func (e *Engine) IsValidSignature(hash []byte, scalars []*big.Int) ([4]byte, error) {
	st, err := e.load()
	if err != nil {
		return [4]byte{}, err
	}
	ownerPart, guardianPart, err := splitSignature(scalars)
	if err != nil {
		return [4]byte{}, nil
	}
	if verifyOwner(st, hash, ownerPart) != nil {
		return [4]byte{}, nil
	}
	if crypto.IsNullKey(st.Guardian) {
		if guardianPart != nil {
			return [4]byte{}, nil
		}
		return ValidSignatureMagic, nil
	}
	if guardianPart == nil {
		return [4]byte{}, nil
	}
	if verifyGuardian(st, hash, guardianPart) != nil {
		return [4]byte{}, nil
	}
	return ValidSignatureMagic, nil
}
