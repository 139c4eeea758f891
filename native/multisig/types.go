package multisig

import (
	"math/big"

	"custody/native/common"
)

const (
	Name    = "custody-multisig"
	Version = "0.1.0"
)

var (
	ErrInvalidThreshold   = common.NewFault(common.KindPrecondition, "invalid-threshold")
	ErrNullSigner         = common.NewFault(common.KindPrecondition, "null-signer")
	ErrAlreadySigner      = common.NewFault(common.KindPrecondition, "already-a-signer")
	ErrNotSigner          = common.NewFault(common.KindPrecondition, "not-a-signer")
	ErrAlreadyInitialized = common.NewFault(common.KindPrecondition, "already-initialized")
	ErrOnlySelf           = common.NewFault(common.KindAuthorization, "only-self")
	ErrInvalidSignature   = common.NewFault(common.KindAuthorization, "invalid-multisig-signature")
	ErrDuplicatedSigner   = common.NewFault(common.KindAuthorization, "duplicated-signer")
)

// State is the signer-set record of one multisig account. Signers keep their
// insertion order; the list never contains duplicates or null keys, and
// 1 <= Threshold <= len(Signers) holds after every successful operation.
type State struct {
	Threshold uint32
	Signers   [][]byte
}

func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{Threshold: s.Threshold, Signers: make([][]byte, len(s.Signers))}
	for i, signer := range s.Signers {
		out.Signers[i] = append([]byte(nil), signer...)
	}
	return out
}

// SignerSignature carries one signer's scalar pair within a multisig
// authorization. The signer key is declared explicitly so each signature is
// matched against exactly one registered signer.
type SignerSignature struct {
	Signer []byte
	R, S   *big.Int
}
