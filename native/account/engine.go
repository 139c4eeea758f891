package account

import (
	"errors"
	"math/big"
	"time"

	"custody/core/events"
	"custody/core/types"
	"custody/crypto"
)

var (
	errNilState    = errors.New("account engine: state not configured")
	errNilExecutor = errors.New("account engine: executor not configured")
	errNotFound    = errors.New("account engine: account not initialised")
)

// accountState is the persistence surface the engine depends on. The concrete
// implementation lives in core/state; tests provide in-memory mocks.
type accountState interface {
	AccountGet(addr [20]byte) (*State, bool, error)
	AccountPut(addr [20]byte, st *State) error
	OutsideNonceConsumed(addr [20]byte, nonce [32]byte) (bool, error)
	OutsideNonceMark(addr [20]byte, nonce [32]byte) error
}

// Executor runs a validated multicall batch. It aborts the whole batch on the
// first failing call; partial results are never returned.
type Executor interface {
	Execute(calls []types.Call) ([][]byte, error)
}

// Engine implements the security core of a single self-custodial account: the
// escape state machine, the combined signature policy, outside-execution
// replay protection, and the view surface. Persistence, event delivery, time
// and call execution are all injected.
type Engine struct {
	address  [20]byte
	state    accountState
	emitter  events.Emitter
	executor Executor
	nowFn    func() int64
}

// NewEngine creates an account engine bound to the given account address,
// with a no-op emitter and the wall clock. Production wiring replaces the
// clock with the chain-supplied time source.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		address: address,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Address returns the account address this engine operates on.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state accountState) { e.state = state }

// SetExecutor configures the multicall executor batches are delegated to.
func (e *Engine) SetExecutor(exec Executor) { e.executor = exec }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Nil restores the
// default Unix clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) load() (*State, error) {
	if e.state == nil {
		return nil, errNilState
	}
	st, ok, err := e.state.AccountGet(e.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotFound
	}
	return st.Clone(), nil
}

func (e *Engine) store(st *State) error {
	if e.state == nil {
		return errNilState
	}
	return e.state.AccountPut(e.address, st)
}

func (e *Engine) requireSelf(inv Invocation) error {
	if inv.Caller != e.address {
		return ErrOnlySelf
	}
	return nil
}

// Initialize creates the account record. The owner key is mandatory; a null
// guardian disables the social-recovery features until one is configured.
func (e *Engine) Initialize(owner, guardian []byte) error {
	if e.state == nil {
		return errNilState
	}
	if crypto.IsNullKey(owner) {
		return ErrNullOwner
	}
	if _, ok, err := e.state.AccountGet(e.address); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	st := &State{Owner: append([]byte(nil), owner...)}
	if !crypto.IsNullKey(guardian) {
		st.Guardian = append([]byte(nil), guardian...)
	}
	return e.store(st)
}

// --- Views ---

func (e *Engine) GetOwner() ([]byte, error) {
	st, err := e.load()
	if err != nil {
		return nil, err
	}
	return st.Owner, nil
}

func (e *Engine) GetGuardian() ([]byte, error) {
	st, err := e.load()
	if err != nil {
		return nil, err
	}
	return st.Guardian, nil
}

func (e *Engine) GetGuardianBackup() ([]byte, error) {
	st, err := e.load()
	if err != nil {
		return nil, err
	}
	return st.GuardianBackup, nil
}

func (e *Engine) GetEscape() (Escape, error) {
	st, err := e.load()
	if err != nil {
		return Escape{}, err
	}
	return st.Escape, nil
}

// GetEscapeAndStatus returns the pending escape together with its status at
// the current time. Status is always derived, never read from storage.
func (e *Engine) GetEscapeAndStatus() (Escape, EscapeStatus, error) {
	st, err := e.load()
	if err != nil {
		return Escape{}, EscapeStatusNone, err
	}
	return st.Escape, StatusAt(st.Escape.ReadyAt, e.now()), nil
}

func (e *Engine) GetOwnerEscapeAttempts() (uint32, error) {
	st, err := e.load()
	if err != nil {
		return 0, err
	}
	return st.OwnerEscapeAttempts, nil
}

func (e *Engine) GetGuardianEscapeAttempts() (uint32, error) {
	st, err := e.load()
	if err != nil {
		return 0, err
	}
	return st.GuardianEscapeAttempts, nil
}

// --- Configuration changes ---

// resetEscape clears any pending escape and both attempt counters. It reports
// whether a cancellation should be notified: cleanup of an already-expired
// escape is silent.
func resetEscape(st *State, now int64) bool {
	status := StatusAt(st.Escape.ReadyAt, now)
	st.Escape = Escape{}
	st.OwnerEscapeAttempts = 0
	st.GuardianEscapeAttempts = 0
	return status == EscapeStatusNotReady || status == EscapeStatusReady
}

// ChangeOwner rotates the owner key. The new owner must prove possession by
// signing over the account address and the outgoing owner key; without this
// an account could be locked onto a key nobody holds.
func (e *Engine) ChangeOwner(inv Invocation, newOwner []byte, r, s *big.Int) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if crypto.IsNullKey(newOwner) {
		return ErrNullOwner
	}
	digest := ChangeOwnerDigest(e.address, st.Owner)
	if !crypto.VerifyScalars(digest, newOwner, r, s) {
		return ErrInvalidOwnerSig
	}
	notify := resetEscape(st, e.now())
	st.Owner = append([]byte(nil), newOwner...)
	if err := e.store(st); err != nil {
		return err
	}
	if notify {
		e.emit(events.EscapeCanceled{Account: e.address})
	}
	e.emit(events.OwnerChanged{Account: e.address, NewOwner: st.Owner})
	return nil
}

// ChangeGuardian replaces or removes the guardian. Removing it requires the
// backup to be null first, preserving the backup-implies-guardian invariant.
func (e *Engine) ChangeGuardian(inv Invocation, newGuardian []byte) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if crypto.IsNullKey(newGuardian) && !crypto.IsNullKey(st.GuardianBackup) {
		return ErrBackupShouldBeNull
	}
	notify := resetEscape(st, e.now())
	if crypto.IsNullKey(newGuardian) {
		st.Guardian = nil
	} else {
		st.Guardian = append([]byte(nil), newGuardian...)
	}
	if err := e.store(st); err != nil {
		return err
	}
	if notify {
		e.emit(events.EscapeCanceled{Account: e.address})
	}
	e.emit(events.GuardianChanged{Account: e.address, NewGuardian: st.Guardian})
	return nil
}

// ChangeGuardianBackup sets or clears the secondary guardian key. A backup
// only makes sense alongside a primary guardian.
func (e *Engine) ChangeGuardianBackup(inv Invocation, newBackup []byte) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if crypto.IsNullKey(st.Guardian) {
		return ErrGuardianRequired
	}
	notify := resetEscape(st, e.now())
	if crypto.IsNullKey(newBackup) {
		st.GuardianBackup = nil
	} else {
		st.GuardianBackup = append([]byte(nil), newBackup...)
	}
	if err := e.store(st); err != nil {
		return err
	}
	if notify {
		e.emit(events.EscapeCanceled{Account: e.address})
	}
	e.emit(events.GuardianBackupChanged{Account: e.address, NewBackup: st.GuardianBackup})
	return nil
}

// --- Escape lifecycle ---

// consumeOwnerAttempt enforces the rate limit on the owner-driven recovery
// path (guardian escapes). Outside-execution invocations do not consume
// attempts; their submission is guarded off-chain.
func consumeOwnerAttempt(st *State, inv Invocation) error {
	if inv.Outside {
		return nil
	}
	if st.OwnerEscapeAttempts >= MaxEscapeAttempts {
		return ErrMaxEscapeAttempts
	}
	if inv.MaxFee != nil && inv.MaxFee.Cmp(MaxEscapeFee) > 0 {
		return ErrMaxFeeExceeded
	}
	st.OwnerEscapeAttempts++
	return nil
}

// consumeGuardianAttempt mirrors consumeOwnerAttempt for the guardian-driven
// recovery path (owner escapes). The counter names are deliberately
// cross-wired: each counter tracks attempts spent against the other party's
// recovery budget.
func consumeGuardianAttempt(st *State, inv Invocation) error {
	if inv.Outside {
		return nil
	}
	if st.GuardianEscapeAttempts >= MaxEscapeAttempts {
		return ErrMaxEscapeAttempts
	}
	if inv.MaxFee != nil && inv.MaxFee.Cmp(MaxEscapeFee) > 0 {
		return ErrMaxFeeExceeded
	}
	st.GuardianEscapeAttempts++
	return nil
}

// TriggerEscapeOwner starts the guardian-driven replacement of a lost owner
// key. A live guardian escape cannot be overridden; guardian escapes win
// ties.
func (e *Engine) TriggerEscapeOwner(inv Invocation, newOwner []byte) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if crypto.IsNullKey(st.Guardian) {
		return ErrGuardianRequired
	}
	if crypto.IsNullKey(newOwner) {
		return ErrNullOwner
	}
	now := e.now()
	if st.Escape.Type == EscapeTypeGuardian {
		status := StatusAt(st.Escape.ReadyAt, now)
		if status == EscapeStatusNotReady || status == EscapeStatusReady {
			return ErrCannotOverrideEscape
		}
	}
	if err := consumeGuardianAttempt(st, inv); err != nil {
		return err
	}
	st.Escape = Escape{
		ReadyAt:   now + SecurityPeriod,
		Type:      EscapeTypeOwner,
		NewSigner: append([]byte(nil), newOwner...),
	}
	if err := e.store(st); err != nil {
		return err
	}
	e.emit(events.EscapeOwnerTriggered{Account: e.address, ReadyAt: st.Escape.ReadyAt, NewOwner: st.Escape.NewSigner})
	return nil
}

// TriggerEscapeGuardian starts the owner-driven replacement of the guardian.
// A null new guardian disables it, which requires the backup to be null. An
// in-progress owner escape is always overridden.
func (e *Engine) TriggerEscapeGuardian(inv Invocation, newGuardian []byte) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if crypto.IsNullKey(st.Guardian) {
		return ErrGuardianRequired
	}
	if crypto.IsNullKey(newGuardian) && !crypto.IsNullKey(st.GuardianBackup) {
		return ErrBackupShouldBeNull
	}
	if err := consumeOwnerAttempt(st, inv); err != nil {
		return err
	}
	nw := []byte(nil)
	if !crypto.IsNullKey(newGuardian) {
		nw = append([]byte(nil), newGuardian...)
	}
	st.Escape = Escape{
		ReadyAt:   e.now() + SecurityPeriod,
		Type:      EscapeTypeGuardian,
		NewSigner: nw,
	}
	if err := e.store(st); err != nil {
		return err
	}
	e.emit(events.EscapeGuardianTriggered{Account: e.address, ReadyAt: st.Escape.ReadyAt, NewGuardian: st.Escape.NewSigner})
	return nil
}

// EscapeOwner completes a ready owner escape, installing the pending key.
func (e *Engine) EscapeOwner(inv Invocation) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if err := consumeGuardianAttempt(st, inv); err != nil {
		return err
	}
	if StatusAt(st.Escape.ReadyAt, e.now()) != EscapeStatusReady {
		return ErrInvalidEscape
	}
	if st.Escape.Type != EscapeTypeOwner {
		return ErrInvalidEscape
	}
	// Defensive re-check: records migrated across versions could carry a
	// null pending signer.
	if crypto.IsNullKey(st.Escape.NewSigner) {
		return ErrNullOwner
	}
	newOwner := append([]byte(nil), st.Escape.NewSigner...)
	st.Owner = newOwner
	st.Escape = Escape{}
	st.OwnerEscapeAttempts = 0
	st.GuardianEscapeAttempts = 0
	if err := e.store(st); err != nil {
		return err
	}
	e.emit(events.OwnerEscaped{Account: e.address, NewOwner: newOwner})
	return nil
}

// EscapeGuardian completes a ready guardian escape. A null pending signer
// disables the guardian, which is only permitted while no backup is set.
func (e *Engine) EscapeGuardian(inv Invocation) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if err := consumeOwnerAttempt(st, inv); err != nil {
		return err
	}
	if StatusAt(st.Escape.ReadyAt, e.now()) != EscapeStatusReady {
		return ErrInvalidEscape
	}
	if st.Escape.Type != EscapeTypeGuardian {
		return ErrInvalidEscape
	}
	if crypto.IsNullKey(st.Escape.NewSigner) && !crypto.IsNullKey(st.GuardianBackup) {
		return ErrBackupShouldBeNull
	}
	newGuardian := []byte(nil)
	if !crypto.IsNullKey(st.Escape.NewSigner) {
		newGuardian = append([]byte(nil), st.Escape.NewSigner...)
	}
	st.Guardian = newGuardian
	st.Escape = Escape{}
	st.OwnerEscapeAttempts = 0
	st.GuardianEscapeAttempts = 0
	if err := e.store(st); err != nil {
		return err
	}
	e.emit(events.GuardianEscaped{Account: e.address, NewGuardian: newGuardian})
	return nil
}

// CancelEscape aborts the pending escape. Clearing an escape that already
// expired succeeds but is not reported as a cancellation.
func (e *Engine) CancelEscape(inv Invocation) error {
	if err := e.requireSelf(inv); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	status := StatusAt(st.Escape.ReadyAt, e.now())
	if status == EscapeStatusNone {
		return ErrInvalidEscape
	}
	notify := status != EscapeStatusExpired
	st.Escape = Escape{}
	st.OwnerEscapeAttempts = 0
	st.GuardianEscapeAttempts = 0
	if err := e.store(st); err != nil {
		return err
	}
	if notify {
		e.emit(events.EscapeCanceled{Account: e.address})
	}
	return nil
}
