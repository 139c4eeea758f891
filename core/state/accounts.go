package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"custody/native/account"
)

// storedEscape is the durable form of a pending escape. RLP has no signed
// integers, so the ready timestamp travels as a big.Int like every other
// stored timestamp in this package.
type storedEscape struct {
	ReadyAt   *big.Int
	Type      uint8
	NewSigner []byte
}

func (s *storedEscape) toEscape() (account.Escape, error) {
	out := account.Escape{Type: account.EscapeType(s.Type)}
	if !out.Type.Valid() {
		return account.Escape{}, fmt.Errorf("state: corrupt escape type %d", s.Type)
	}
	if s.ReadyAt != nil {
		if !s.ReadyAt.IsInt64() {
			return account.Escape{}, fmt.Errorf("state: escape timestamp overflow")
		}
		out.ReadyAt = s.ReadyAt.Int64()
	}
	if len(s.NewSigner) > 0 {
		out.NewSigner = append([]byte(nil), s.NewSigner...)
	}
	if (out.ReadyAt == 0) != (out.Type == account.EscapeTypeNone) {
		return account.Escape{}, fmt.Errorf("state: inconsistent escape record")
	}
	return out, nil
}

// AccountGet loads the full account record. The owner field doubles as the
// existence marker: an account with no stored owner was never initialised.
func (m *Manager) AccountGet(addr [20]byte) (*account.State, bool, error) {
	owner, err := m.loadBytes(fieldKey(ownerPrefix, addr))
	if err != nil {
		return nil, false, err
	}
	if len(owner) == 0 {
		return nil, false, nil
	}
	st := &account.State{Owner: owner}
	if st.Guardian, err = m.loadBytes(fieldKey(guardianPrefix, addr)); err != nil {
		return nil, false, err
	}
	if st.GuardianBackup, err = m.loadBytes(fieldKey(guardianBackupPrefix, addr)); err != nil {
		return nil, false, err
	}
	escData, err := m.loadBytes(fieldKey(escapePrefix, addr))
	if err != nil {
		return nil, false, err
	}
	if len(escData) > 0 {
		stored := new(storedEscape)
		if err := rlp.DecodeBytes(escData, stored); err != nil {
			return nil, false, fmt.Errorf("state: corrupt escape record: %w", err)
		}
		if st.Escape, err = stored.toEscape(); err != nil {
			return nil, false, err
		}
	}
	ownerAttempts, err := m.loadUint64(fieldKey(ownerAttemptsPrefix, addr))
	if err != nil {
		return nil, false, err
	}
	guardianAttempts, err := m.loadUint64(fieldKey(guardianAttemptsPrefix, addr))
	if err != nil {
		return nil, false, err
	}
	st.OwnerEscapeAttempts = uint32(ownerAttempts)
	st.GuardianEscapeAttempts = uint32(guardianAttempts)
	return st, true, nil
}

// AccountPut stores the full account record field by field.
func (m *Manager) AccountPut(addr [20]byte, st *account.State) error {
	if st == nil || len(st.Owner) == 0 {
		return fmt.Errorf("state: refusing to store account without owner")
	}
	if err := m.db.Put(fieldKey(ownerPrefix, addr), st.Owner); err != nil {
		return err
	}
	if err := m.db.Put(fieldKey(guardianPrefix, addr), st.Guardian); err != nil {
		return err
	}
	if err := m.db.Put(fieldKey(guardianBackupPrefix, addr), st.GuardianBackup); err != nil {
		return err
	}
	stored := &storedEscape{
		ReadyAt:   big.NewInt(st.Escape.ReadyAt),
		Type:      uint8(st.Escape.Type),
		NewSigner: st.Escape.NewSigner,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	if err := m.db.Put(fieldKey(escapePrefix, addr), encoded); err != nil {
		return err
	}
	if err := m.writeUint64(fieldKey(ownerAttemptsPrefix, addr), uint64(st.OwnerEscapeAttempts)); err != nil {
		return err
	}
	return m.writeUint64(fieldKey(guardianAttemptsPrefix, addr), uint64(st.GuardianEscapeAttempts))
}

// OutsideNonceConsumed reports whether a nonce was already spent.
func (m *Manager) OutsideNonceConsumed(addr [20]byte, nonce [32]byte) (bool, error) {
	return m.db.Has(nonceKey(addr, nonce))
}

// OutsideNonceMark spends a nonce. The set only ever grows.
func (m *Manager) OutsideNonceMark(addr [20]byte, nonce [32]byte) error {
	return m.db.Put(nonceKey(addr, nonce), []byte{1})
}
