package types

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Selector identifies an account operation. It is the keccak256 digest of the
// operation name, matching how call targets are addressed on the wire.
type Selector [32]byte

// NewSelector derives the selector for an operation name.
func NewSelector(name string) Selector {
	var sel Selector
	copy(sel[:], ethcrypto.Keccak256([]byte(name)))
	return sel
}

// Call is a single entry of a multicall batch: a target contract address, the
// operation selector, and the raw calldata fields.
type Call struct {
	To       [20]byte
	Selector Selector
	Calldata [][]byte
}

// OutsideExecution is a pre-signed action a third party may submit on the
// account's behalf. Caller pins the permitted submitter (or the wildcard
// sentinel), the window bounds when it may execute, and Nonce guards replay.
type OutsideExecution struct {
	Caller        [20]byte
	Nonce         [32]byte
	ExecuteAfter  uint64
	ExecuteBefore uint64
	Calls         []Call
}
