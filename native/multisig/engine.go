package multisig

import (
	"errors"

	"custody/core/events"
	"custody/crypto"
	"custody/native/account"
)

var (
	errNilState = errors.New("multisig engine: state not configured")
	errNotFound = errors.New("multisig engine: account not initialised")
)

// CapabilityMultisig identifies the threshold-account interface surface.
var CapabilityMultisig = account.NewCapabilityID("custody.multisig.v1")

// multisigState is the persistence surface the engine depends on.
type multisigState interface {
	MultisigGet(addr [20]byte) (*State, bool, error)
	MultisigPut(addr [20]byte, st *State) error
}

// Engine maintains the ordered signer set and threshold of one multisig
// account. It is independent of the escape machinery: a threshold account has
// no guardian and no recovery delay.
type Engine struct {
	address [20]byte
	state   multisigState
	emitter events.Emitter
}

// NewEngine creates a multisig engine bound to the given account address.
func NewEngine(address [20]byte) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// Address returns the account address this engine operates on.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state multisigState) { e.state = state }

// SetEmitter configures the event emitter. Nil restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) load() (*State, error) {
	if e.state == nil {
		return nil, errNilState
	}
	st, ok, err := e.state.MultisigGet(e.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotFound
	}
	return st.Clone(), nil
}

func (e *Engine) requireSelf(caller [20]byte) error {
	if caller != e.address {
		return ErrOnlySelf
	}
	return nil
}

func validThreshold(threshold uint32, signerCount int) bool {
	return threshold >= 1 && int(threshold) <= signerCount
}

func signerIndex(signers [][]byte, key []byte) int {
	for i, signer := range signers {
		if crypto.KeysEqual(signer, key) {
			return i
		}
	}
	return -1
}

// Initialize creates the signer set. All signers must be nonzero and
// pairwise distinct, and the threshold must fit the set.
func (e *Engine) Initialize(threshold uint32, signers [][]byte) error {
	if e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.MultisigGet(e.address); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if !validThreshold(threshold, len(signers)) {
		return ErrInvalidThreshold
	}
	st := &State{Threshold: threshold}
	for _, signer := range signers {
		if crypto.IsNullKey(signer) {
			return ErrNullSigner
		}
		if signerIndex(st.Signers, signer) >= 0 {
			return ErrAlreadySigner
		}
		st.Signers = append(st.Signers, append([]byte(nil), signer...))
	}
	if err := e.state.MultisigPut(e.address, st); err != nil {
		return err
	}
	for _, signer := range st.Signers {
		e.emit(events.SignerAdded{Account: e.address, Signer: signer})
	}
	e.emit(events.ThresholdChanged{Account: e.address, Threshold: threshold})
	return nil
}

// AddSigners appends new signers and re-validates the threshold against the
// grown set.
func (e *Engine) AddSigners(caller [20]byte, newThreshold uint32, additions [][]byte) error {
	if err := e.requireSelf(caller); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	for _, signer := range additions {
		if crypto.IsNullKey(signer) {
			return ErrNullSigner
		}
		if signerIndex(st.Signers, signer) >= 0 {
			return ErrAlreadySigner
		}
		st.Signers = append(st.Signers, append([]byte(nil), signer...))
	}
	if !validThreshold(newThreshold, len(st.Signers)) {
		return ErrInvalidThreshold
	}
	st.Threshold = newThreshold
	if err := e.state.MultisigPut(e.address, st); err != nil {
		return err
	}
	for _, signer := range additions {
		e.emit(events.SignerAdded{Account: e.address, Signer: signer})
	}
	e.emit(events.ThresholdChanged{Account: e.address, Threshold: newThreshold})
	return nil
}

// RemoveSigners drops existing signers and re-validates the threshold against
// the shrunk set. Removing an unknown signer fails the whole operation.
func (e *Engine) RemoveSigners(caller [20]byte, newThreshold uint32, removals [][]byte) error {
	if err := e.requireSelf(caller); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	for _, signer := range removals {
		idx := signerIndex(st.Signers, signer)
		if idx < 0 {
			return ErrNotSigner
		}
		st.Signers = append(st.Signers[:idx], st.Signers[idx+1:]...)
	}
	if !validThreshold(newThreshold, len(st.Signers)) {
		return ErrInvalidThreshold
	}
	st.Threshold = newThreshold
	if err := e.state.MultisigPut(e.address, st); err != nil {
		return err
	}
	for _, signer := range removals {
		e.emit(events.SignerRemoved{Account: e.address, Signer: signer})
	}
	e.emit(events.ThresholdChanged{Account: e.address, Threshold: newThreshold})
	return nil
}

// ChangeThreshold adjusts the threshold over the unchanged signer set.
func (e *Engine) ChangeThreshold(caller [20]byte, newThreshold uint32) error {
	if err := e.requireSelf(caller); err != nil {
		return err
	}
	st, err := e.load()
	if err != nil {
		return err
	}
	if !validThreshold(newThreshold, len(st.Signers)) {
		return ErrInvalidThreshold
	}
	st.Threshold = newThreshold
	if err := e.state.MultisigPut(e.address, st); err != nil {
		return err
	}
	e.emit(events.ThresholdChanged{Account: e.address, Threshold: newThreshold})
	return nil
}

// --- Views ---

func (e *Engine) GetSigners() ([][]byte, error) {
	st, err := e.load()
	if err != nil {
		return nil, err
	}
	return st.Signers, nil
}

func (e *Engine) GetThreshold() (uint32, error) {
	st, err := e.load()
	if err != nil {
		return 0, err
	}
	return st.Threshold, nil
}

func (e *Engine) IsSigner(key []byte) (bool, error) {
	st, err := e.load()
	if err != nil {
		return false, err
	}
	return signerIndex(st.Signers, key) >= 0, nil
}

// Name returns the multisig implementation name.
func (e *Engine) Name() string { return Name }

// Version returns the multisig implementation version.
func (e *Engine) Version() string { return Version }

// SupportsInterface answers the capability probe.
func (e *Engine) SupportsInterface(id account.CapabilityID) bool {
	switch id {
	case account.CapabilityIntrospection, CapabilityMultisig:
		return true
	default:
		return false
	}
}

// ValidateSignatures authorises a message hash: it demands at least threshold
// entries, each a valid signature by a distinct registered signer. A signer
// appearing twice invalidates the whole set.
func (e *Engine) ValidateSignatures(hash []byte, sigs []SignerSignature) error {
	st, err := e.load()
	if err != nil {
		return err
	}
	if len(sigs) < int(st.Threshold) {
		return ErrInvalidSignature
	}
	seen := make(map[string]struct{}, len(sigs))
	for _, sig := range sigs {
		if signerIndex(st.Signers, sig.Signer) < 0 {
			return ErrNotSigner
		}
		if _, dup := seen[string(sig.Signer)]; dup {
			return ErrDuplicatedSigner
		}
		seen[string(sig.Signer)] = struct{}{}
		if !crypto.VerifyScalars(hash, sig.Signer, sig.R, sig.S) {
			return ErrInvalidSignature
		}
	}
	return nil
}
