package multisig

import (
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"custody/crypto"
	"custody/native/common"
)

type mockState struct {
	records map[[20]byte]*State
}

func newMockState() *mockState {
	return &mockState{records: make(map[[20]byte]*State)}
}

func (m *mockState) MultisigGet(addr [20]byte) (*State, bool, error) {
	st, ok := m.records[addr]
	if !ok {
		return nil, false, nil
	}
	return st.Clone(), true, nil
}

func (m *mockState) MultisigPut(addr [20]byte, st *State) error {
	m.records[addr] = st.Clone()
	return nil
}

var testAddress = [20]byte{0x0a, 0x0b}

func newTestEngine(t *testing.T) (*Engine, *mockState) {
	t.Helper()
	state := newMockState()
	engine := NewEngine(testAddress)
	engine.SetState(state)
	return engine, state
}

func newSigner(t *testing.T) ([]byte, *crypto.PrivateKey) {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.PubKey().Compressed(), priv
}

// checkInvariant asserts the threshold invariant on every stored record.
func checkInvariant(t *testing.T, state *mockState) {
	t.Helper()
	for addr, st := range state.records {
		if st.Threshold < 1 || int(st.Threshold) > len(st.Signers) {
			t.Fatalf("record %x violates threshold invariant: %d signers, threshold %d", addr, len(st.Signers), st.Threshold)
		}
		seen := make(map[string]struct{})
		for _, signer := range st.Signers {
			if crypto.IsNullKey(signer) {
				t.Fatalf("record %x holds null signer", addr)
			}
			if _, dup := seen[string(signer)]; dup {
				t.Fatalf("record %x holds duplicate signer", addr)
			}
			seen[string(signer)] = struct{}{}
		}
	}
}

func TestInitialize(t *testing.T) {
	engine, state := newTestEngine(t)
	a, _ := newSigner(t)
	b, _ := newSigner(t)

	if err := engine.Initialize(2, [][]byte{a, b}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	checkInvariant(t, state)

	signers, err := engine.GetSigners()
	if err != nil {
		t.Fatalf("get signers: %v", err)
	}
	if len(signers) != 2 || !crypto.KeysEqual(signers[0], a) || !crypto.KeysEqual(signers[1], b) {
		t.Fatalf("signer order not preserved")
	}
	threshold, _ := engine.GetThreshold()
	if threshold != 2 {
		t.Fatalf("threshold = %d, want 2", threshold)
	}
	if ok, _ := engine.IsSigner(a); !ok {
		t.Fatalf("a should be a signer")
	}
	if ok, _ := engine.IsSigner([]byte{0x01}); ok {
		t.Fatalf("unknown key must not be a signer")
	}
	if err := engine.Initialize(1, [][]byte{a}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already-initialized, got %v", err)
	}
}

func TestInitializeRejectsBadSets(t *testing.T) {
	a, _ := newSigner(t)
	b, _ := newSigner(t)

	cases := []struct {
		name      string
		threshold uint32
		signers   [][]byte
		want      error
	}{
		{"threshold above count", 3, [][]byte{a, b}, ErrInvalidThreshold},
		{"zero threshold", 0, [][]byte{a}, ErrInvalidThreshold},
		{"empty set", 1, nil, ErrInvalidThreshold},
		{"null signer", 1, [][]byte{a, nil}, ErrNullSigner},
		{"duplicate signer", 1, [][]byte{a, a}, ErrAlreadySigner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, state := newTestEngine(t)
			if err := engine.Initialize(tc.threshold, tc.signers); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(state.records) != 0 {
				t.Fatalf("failed initialize must not persist state")
			}
		})
	}
}

func TestAddSigners(t *testing.T) {
	engine, state := newTestEngine(t)
	a, _ := newSigner(t)
	c, _ := newSigner(t)

	if err := engine.Initialize(1, [][]byte{a}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.AddSigners(testAddress, 2, [][]byte{c}); err != nil {
		t.Fatalf("add signers: %v", err)
	}
	checkInvariant(t, state)

	signers, _ := engine.GetSigners()
	if len(signers) != 2 || !crypto.KeysEqual(signers[1], c) {
		t.Fatalf("addition not appended in order")
	}
	threshold, _ := engine.GetThreshold()
	if threshold != 2 {
		t.Fatalf("threshold = %d, want 2", threshold)
	}

	if err := engine.AddSigners(testAddress, 2, [][]byte{c}); !errors.Is(err, ErrAlreadySigner) {
		t.Fatalf("expected already-a-signer, got %v", err)
	}
	if err := engine.AddSigners(testAddress, 5, [][]byte{}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected invalid-threshold, got %v", err)
	}
	if err := engine.AddSigners([20]byte{0xff}, 2, [][]byte{c}); !errors.Is(err, ErrOnlySelf) {
		t.Fatalf("expected only-self, got %v", err)
	}
	checkInvariant(t, state)
}

func TestRemoveSigners(t *testing.T) {
	engine, state := newTestEngine(t)
	a, _ := newSigner(t)
	b, _ := newSigner(t)
	c, _ := newSigner(t)

	if err := engine.Initialize(2, [][]byte{a, b, c}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.RemoveSigners(testAddress, 1, [][]byte{b}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	checkInvariant(t, state)
	signers, _ := engine.GetSigners()
	if len(signers) != 2 || !crypto.KeysEqual(signers[0], a) || !crypto.KeysEqual(signers[1], c) {
		t.Fatalf("removal broke ordering")
	}

	if err := engine.RemoveSigners(testAddress, 1, [][]byte{b}); !errors.Is(err, ErrNotSigner) {
		t.Fatalf("expected not-a-signer, got %v", err)
	}
	// Removing down to a set smaller than the threshold is rejected whole.
	if err := engine.RemoveSigners(testAddress, 2, [][]byte{a, c}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected invalid-threshold, got %v", err)
	}
	signers, _ = engine.GetSigners()
	if len(signers) != 2 {
		t.Fatalf("failed removal must leave state unchanged")
	}
}

func TestChangeThreshold(t *testing.T) {
	engine, state := newTestEngine(t)
	a, _ := newSigner(t)
	b, _ := newSigner(t)

	if err := engine.Initialize(1, [][]byte{a, b}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.ChangeThreshold(testAddress, 2); err != nil {
		t.Fatalf("change threshold: %v", err)
	}
	threshold, _ := engine.GetThreshold()
	if threshold != 2 {
		t.Fatalf("threshold = %d, want 2", threshold)
	}
	err := engine.ChangeThreshold(testAddress, 3)
	if !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected invalid-threshold, got %v", err)
	}
	if !common.IsKind(err, common.KindPrecondition) {
		t.Fatalf("expected precondition kind")
	}
	checkInvariant(t, state)
}

func TestValidateSignatures(t *testing.T) {
	engine, _ := newTestEngine(t)
	a, aPriv := newSigner(t)
	b, bPriv := newSigner(t)
	c, _ := newSigner(t)

	if err := engine.Initialize(2, [][]byte{a, b, c}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	hash := ethcrypto.Keccak256([]byte("multisig-tx"))
	sign := func(key []byte, priv *crypto.PrivateKey) SignerSignature {
		r, s, err := crypto.SignScalars(priv, hash)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return SignerSignature{Signer: key, R: r, S: s}
	}

	// Two distinct valid signatures meet the threshold.
	if err := engine.ValidateSignatures(hash, []SignerSignature{sign(a, aPriv), sign(b, bPriv)}); err != nil {
		t.Fatalf("valid set: %v", err)
	}

	// Below threshold.
	if err := engine.ValidateSignatures(hash, []SignerSignature{sign(a, aPriv)}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid-multisig-signature, got %v", err)
	}

	// The same signer may not be counted twice.
	if err := engine.ValidateSignatures(hash, []SignerSignature{sign(a, aPriv), sign(a, aPriv)}); !errors.Is(err, ErrDuplicatedSigner) {
		t.Fatalf("expected duplicated-signer, got %v", err)
	}

	// Unregistered signer.
	stranger, strangerPriv := newSigner(t)
	if err := engine.ValidateSignatures(hash, []SignerSignature{sign(a, aPriv), sign(stranger, strangerPriv)}); !errors.Is(err, ErrNotSigner) {
		t.Fatalf("expected not-a-signer, got %v", err)
	}

	// A signature by one signer declared as another fails verification.
	if err := engine.ValidateSignatures(hash, []SignerSignature{sign(a, aPriv), sign(c, bPriv)}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid-multisig-signature, got %v", err)
	}
}

func TestIdentity(t *testing.T) {
	engine, _ := newTestEngine(t)
	if engine.Name() != Name || engine.Version() != Version {
		t.Fatalf("unexpected identity %q %q", engine.Name(), engine.Version())
	}
	if !engine.SupportsInterface(CapabilityMultisig) {
		t.Fatalf("multisig capability should be supported")
	}
}
