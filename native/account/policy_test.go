package account

import (
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"custody/core/types"
	"custody/crypto"
)

func signHash(t *testing.T, priv *crypto.PrivateKey, hash []byte) []*big.Int {
	t.Helper()
	r, s, err := crypto.SignScalars(priv, hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return []*big.Int{r, s}
}

func testHash(seed string) []byte {
	return ethcrypto.Keccak256([]byte(seed))
}

func externalCall() types.Call {
	return types.Call{To: [20]byte{0xbb}, Selector: types.NewSelector("transfer")}
}

func selfCall(sel types.Selector, calldata ...[]byte) types.Call {
	return types.Call{To: testAddress, Selector: sel, Calldata: calldata}
}

func TestSignatureSplitting(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, _ := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("tx-1")
	ownerSig := signHash(t, ownerPriv, hash)
	for _, n := range []int{0, 1, 3, 5, 6} {
		scalars := make([]*big.Int, n)
		for i := range scalars {
			scalars[i] = big.NewInt(int64(i + 1))
		}
		err := engine.ValidateSignature(hash, scalars, []types.Call{externalCall()})
		if !errors.Is(err, ErrInvalidSignatureLength) {
			t.Fatalf("length %d: expected invalid-signature-length, got %v", n, err)
		}
	}
	// Two scalars alone are insufficient while a guardian is configured.
	if err := engine.ValidateSignature(hash, ownerSig, []types.Call{externalCall()}); !errors.Is(err, ErrInvalidSignatureLength) {
		t.Fatalf("expected invalid-signature-length for missing guardian part, got %v", err)
	}
}

func TestGeneralPathRequiresBothParties(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("tx-2")
	ownerSig := signHash(t, ownerPriv, hash)
	guardianSig := signHash(t, guardianPriv, hash)
	combined := append(append([]*big.Int{}, ownerSig...), guardianSig...)

	if err := engine.ValidateSignature(hash, combined, []types.Call{externalCall()}); err != nil {
		t.Fatalf("combined signature should validate: %v", err)
	}

	// Owner and guardian swapped.
	swapped := append(append([]*big.Int{}, guardianSig...), ownerSig...)
	if err := engine.ValidateSignature(hash, swapped, []types.Call{externalCall()}); !errors.Is(err, ErrInvalidOwnerSig) {
		t.Fatalf("expected invalid-owner-sig, got %v", err)
	}

	// Guardian part signed by a third party.
	_, strangerPriv := newKey(t)
	forged := append(append([]*big.Int{}, ownerSig...), signHash(t, strangerPriv, hash)...)
	if err := engine.ValidateSignature(hash, forged, []types.Call{externalCall()}); !errors.Is(err, ErrInvalidGuardianSig) {
		t.Fatalf("expected invalid-guardian-sig, got %v", err)
	}
}

func TestBackupGuardianInterchangeable(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, _ := newKey(t)
	backup, backupPriv := newKey(t)
	initAccount(t, engine, owner, guardian)
	if err := engine.ChangeGuardianBackup(selfInv(), backup); err != nil {
		t.Fatalf("set backup: %v", err)
	}

	hash := testHash("tx-3")
	combined := append(signHash(t, ownerPriv, hash), signHash(t, backupPriv, hash)...)
	if err := engine.ValidateSignature(hash, combined, []types.Call{externalCall()}); err != nil {
		t.Fatalf("backup guardian signature should validate: %v", err)
	}
}

func TestNoGuardianSingleParty(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	initAccount(t, engine, owner, nil)

	hash := testHash("tx-4")
	ownerSig := signHash(t, ownerPriv, hash)
	if err := engine.ValidateSignature(hash, ownerSig, []types.Call{externalCall()}); err != nil {
		t.Fatalf("owner-only signature should validate without guardian: %v", err)
	}
	// A trailing guardian part is a shape error when no guardian exists.
	fourScalars := append(append([]*big.Int{}, ownerSig...), ownerSig...)
	if err := engine.ValidateSignature(hash, fourScalars, []types.Call{externalCall()}); !errors.Is(err, ErrInvalidSignatureLength) {
		t.Fatalf("expected invalid-signature-length, got %v", err)
	}
}

func TestFastPathAsymmetricAuthorization(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	newOwner, _ := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("tx-5")
	ownerSig := signHash(t, ownerPriv, hash)
	guardianSig := signHash(t, guardianPriv, hash)

	triggerOwner := selfCall(SelectorTriggerEscapeOwner, newOwner)
	// Owner recovery is authorised by the guardian alone.
	if err := engine.ValidateSignature(hash, guardianSig, []types.Call{triggerOwner}); err != nil {
		t.Fatalf("guardian signature should authorise owner escape: %v", err)
	}
	if err := engine.ValidateSignature(hash, ownerSig, []types.Call{triggerOwner}); !errors.Is(err, ErrInvalidGuardianSig) {
		t.Fatalf("owner signature must not authorise owner escape, got %v", err)
	}

	triggerGuardian := selfCall(SelectorTriggerEscapeGuardian, newOwner)
	// Guardian recovery is authorised by the owner alone.
	if err := engine.ValidateSignature(hash, ownerSig, []types.Call{triggerGuardian}); err != nil {
		t.Fatalf("owner signature should authorise guardian escape: %v", err)
	}
	if err := engine.ValidateSignature(hash, guardianSig, []types.Call{triggerGuardian}); !errors.Is(err, ErrInvalidOwnerSig) {
		t.Fatalf("guardian signature must not authorise guardian escape, got %v", err)
	}
}

func TestFastPathPreconditionsBeforeSignature(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, _ := newKey(t)
	guardian, guardianPriv := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("tx-6")
	guardianSig := signHash(t, guardianPriv, hash)

	// Null new owner fails before the (valid) signature is considered.
	nullTrigger := selfCall(SelectorTriggerEscapeOwner, []byte{})
	if err := engine.ValidateSignature(hash, guardianSig, []types.Call{nullTrigger}); !errors.Is(err, ErrNullOwner) {
		t.Fatalf("expected null-owner, got %v", err)
	}

	// escape_owner with no pending owner escape fails the sanity check.
	escapeCall := selfCall(SelectorEscapeOwner)
	if err := engine.ValidateSignature(hash, guardianSig, []types.Call{escapeCall}); !errors.Is(err, ErrInvalidEscape) {
		t.Fatalf("expected invalid-escape, got %v", err)
	}
}

func TestForbiddenUpgradeHook(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("tx-7")
	combined := append(signHash(t, ownerPriv, hash), signHash(t, guardianPriv, hash)...)
	hook := selfCall(SelectorExecuteAfterUpgrade)
	if err := engine.ValidateSignature(hash, combined, []types.Call{hook}); !errors.Is(err, ErrForbiddenCall) {
		t.Fatalf("expected forbidden-call, got %v", err)
	}
	// Also rejected when buried inside a batch.
	batch := []types.Call{externalCall(), hook}
	if err := engine.ValidateSignature(hash, combined, batch); !errors.Is(err, ErrForbiddenCall) {
		t.Fatalf("expected forbidden-call in batch, got %v", err)
	}
}

func TestMulticallMayNotTargetSelf(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	newOwner, _ := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("tx-8")
	combined := append(signHash(t, ownerPriv, hash), signHash(t, guardianPriv, hash)...)
	batch := []types.Call{externalCall(), selfCall(SelectorTriggerEscapeOwner, newOwner)}
	if err := engine.ValidateSignature(hash, combined, batch); !errors.Is(err, ErrNoMulticallToSelf) {
		t.Fatalf("expected no-multicall-to-self, got %v", err)
	}
}

func TestSingleSelfCallGeneralPath(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	otherGuardian, _ := newKey(t)
	initAccount(t, engine, owner, guardian)

	// A self-call outside the fast-path selectors needs both parties.
	hash := testHash("tx-9")
	call := selfCall(SelectorChangeGuardian, otherGuardian)
	guardianSig := signHash(t, guardianPriv, hash)
	if err := engine.ValidateSignature(hash, guardianSig, []types.Call{call}); !errors.Is(err, ErrInvalidOwnerSig) {
		t.Fatalf("expected invalid-owner-sig, got %v", err)
	}
	combined := append(signHash(t, ownerPriv, hash), guardianSig...)
	if err := engine.ValidateSignature(hash, combined, []types.Call{call}); err != nil {
		t.Fatalf("both-party signature should validate: %v", err)
	}
}

// TestExecuteDigestBindsBatch pins the direct-execution digest to the batch
// and the account: a signature made for one batch must be worthless for any
// other.
func TestExecuteDigestBindsBatch(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	initAccount(t, engine, owner, guardian)
	executor := &recordingExecutor{}
	engine.SetExecutor(executor)

	batch := []types.Call{externalCall()}
	hash, err := engine.ExecuteMessageHash(batch)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	combined := append(signHash(t, ownerPriv, hash[:]), signHash(t, guardianPriv, hash[:])...)
	if _, err := engine.Execute(hash[:], combined, batch); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// The same signature over a different batch's digest must fail.
	other := []types.Call{{To: [20]byte{0xdd}, Selector: types.NewSelector("transfer")}}
	otherHash, err := engine.ExecuteMessageHash(other)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if otherHash == hash {
		t.Fatalf("digest must cover the batch contents")
	}
	if _, err := engine.Execute(otherHash[:], combined, other); !errors.Is(err, ErrInvalidOwnerSig) {
		t.Fatalf("expected invalid-owner-sig for replayed signature, got %v", err)
	}
	if len(executor.batches) != 1 {
		t.Fatalf("rejected batch must not execute")
	}

	// And the digest is account-bound.
	foreign, err := NewEngine([20]byte{0x99}).ExecuteMessageHash(batch)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if foreign == hash {
		t.Fatalf("digest must bind the account address")
	}
}

func TestIsValidSignatureQuery(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner, ownerPriv := newKey(t)
	guardian, guardianPriv := newKey(t)
	initAccount(t, engine, owner, guardian)

	hash := testHash("query")
	combined := append(signHash(t, ownerPriv, hash), signHash(t, guardianPriv, hash)...)
	magic, err := engine.IsValidSignature(hash, combined)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if magic != ValidSignatureMagic {
		t.Fatalf("expected magic value, got %x", magic)
	}

	// Rejections answer with the zero value, never an error.
	magic, err = engine.IsValidSignature(hash, signHash(t, ownerPriv, hash))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if magic != [4]byte{} {
		t.Fatalf("expected zero value for incomplete signature, got %x", magic)
	}
}

func TestCapabilityProbe(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	for _, id := range []CapabilityID{
		CapabilityIntrospection,
		CapabilityAccount,
		CapabilityOutsideExecution,
		CapabilityLegacyValidation,
	} {
		if !engine.SupportsInterface(id) {
			t.Fatalf("capability %x should be supported", id)
		}
	}
	if engine.SupportsInterface(NewCapabilityID("custody.unknown.v9")) {
		t.Fatalf("unknown capability must not be supported")
	}
	if engine.Name() != AccountName || engine.Version() != AccountVersion {
		t.Fatalf("unexpected identity %q %q", engine.Name(), engine.Version())
	}
}
