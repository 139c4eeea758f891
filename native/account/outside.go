package account

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"custody/core/events"
	"custody/core/types"
)

var outsideExecutionTag = ethcrypto.Keccak256([]byte("custody.outside-execution.v1"))

// OutsideExecutionMessageHash computes the domain-separated digest the
// account signs over an outside-execution payload. The account address is
// mixed in so a payload signed for one account can never authorise another.
func (e *Engine) OutsideExecutionMessageHash(payload *types.OutsideExecution) ([32]byte, error) {
	var hash [32]byte
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return hash, err
	}
	copy(hash[:], ethcrypto.Keccak256(outsideExecutionTag, e.address[:], encoded))
	return hash, nil
}

// ExecuteFromOutside runs a pre-signed batch submitted by a third party.
// caller is the actual submitter. The nonce is marked consumed before the
// batch executes, so a reentrant resubmission of the same payload inside the
// batch fails the replay check.
func (e *Engine) ExecuteFromOutside(caller [20]byte, payload *types.OutsideExecution, scalars []*big.Int) ([][]byte, error) {
	if payload == nil {
		return nil, ErrInvalidCalldata
	}
	if e.state == nil {
		return nil, errNilState
	}
	if payload.Caller != AnyCaller && caller != payload.Caller {
		return nil, ErrInvalidCaller
	}
	now := e.now()
	if now <= 0 || uint64(now) <= payload.ExecuteAfter || uint64(now) >= payload.ExecuteBefore {
		return nil, ErrInvalidTimestamp
	}
	consumed, err := e.state.OutsideNonceConsumed(e.address, payload.Nonce)
	if err != nil {
		return nil, err
	}
	if consumed {
		return nil, ErrDuplicatedNonce
	}
	hash, err := e.OutsideExecutionMessageHash(payload)
	if err != nil {
		return nil, err
	}
	st, err := e.load()
	if err != nil {
		return nil, err
	}
	if err := e.validateSignature(st, hash[:], scalars, payload.Calls); err != nil {
		return nil, err
	}
	if e.executor == nil {
		return nil, errNilExecutor
	}
	if err := e.state.OutsideNonceMark(e.address, payload.Nonce); err != nil {
		return nil, err
	}
	results, err := e.executor.Execute(payload.Calls)
	if err != nil {
		return nil, err
	}
	e.emit(events.OutsideExecuted{Account: e.address, Hash: hash, Nonce: payload.Nonce})
	return results, nil
}

// IsOutsideNonceConsumed exposes the replay guard's view of a nonce.
func (e *Engine) IsOutsideNonceConsumed(nonce [32]byte) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return e.state.OutsideNonceConsumed(e.address, nonce)
}
