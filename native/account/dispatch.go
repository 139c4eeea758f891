package account

import (
	"math/big"

	"custody/core/types"
)

// SelfExecutor is a minimal multicall executor that routes calls targeting
// the account back into the engine's own operations. Calls to other contracts
// are out of scope for it; embedders with a real call runner wrap or replace
// it.
//
// The outer invocation's fee declaration and outside flag are threaded into
// every dispatched operation so rate limiting sees the right context.
type SelfExecutor struct {
	engine  *Engine
	maxFee  *big.Int
	outside bool
}

// NewSelfExecutor builds an executor for direct (validated) invocations.
func NewSelfExecutor(engine *Engine, maxFee *big.Int) *SelfExecutor {
	return &SelfExecutor{engine: engine, maxFee: maxFee}
}

// NewOutsideSelfExecutor builds an executor for outside-execution batches.
// Dispatched escape operations will not consume attempt counters.
func NewOutsideSelfExecutor(engine *Engine) *SelfExecutor {
	return &SelfExecutor{engine: engine, outside: true}
}

func (x *SelfExecutor) invocation() Invocation {
	inv := SelfInvocation(x.engine.address)
	inv.MaxFee = x.maxFee
	inv.Outside = x.outside
	return inv
}

func scalarArg(call types.Call, idx int) (*big.Int, error) {
	if len(call.Calldata) <= idx {
		return nil, ErrInvalidCalldata
	}
	return new(big.Int).SetBytes(call.Calldata[idx]), nil
}

// Execute dispatches each call in order and aborts the batch on the first
// failure.
func (x *SelfExecutor) Execute(calls []types.Call) ([][]byte, error) {
	results := make([][]byte, 0, len(calls))
	for _, call := range calls {
		if call.To != x.engine.address {
			return nil, ErrForbiddenCall
		}
		if err := x.dispatch(call); err != nil {
			return nil, err
		}
		results = append(results, nil)
	}
	return results, nil
}

func (x *SelfExecutor) dispatch(call types.Call) error {
	inv := x.invocation()
	switch call.Selector {
	case SelectorTriggerEscapeOwner:
		newOwner, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		return x.engine.TriggerEscapeOwner(inv, newOwner)
	case SelectorTriggerEscapeGuardian:
		newGuardian, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		return x.engine.TriggerEscapeGuardian(inv, newGuardian)
	case SelectorEscapeOwner:
		return x.engine.EscapeOwner(inv)
	case SelectorEscapeGuardian:
		return x.engine.EscapeGuardian(inv)
	case SelectorCancelEscape:
		return x.engine.CancelEscape(inv)
	case SelectorChangeOwner:
		newOwner, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		r, err := scalarArg(call, 1)
		if err != nil {
			return err
		}
		s, err := scalarArg(call, 2)
		if err != nil {
			return err
		}
		return x.engine.ChangeOwner(inv, newOwner, r, s)
	case SelectorChangeGuardian:
		newGuardian, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		return x.engine.ChangeGuardian(inv, newGuardian)
	case SelectorChangeGuardianBackup:
		newBackup, err := firstCalldataKey(call)
		if err != nil {
			return err
		}
		return x.engine.ChangeGuardianBackup(inv, newBackup)
	default:
		return ErrForbiddenCall
	}
}
