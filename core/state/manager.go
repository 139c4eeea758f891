package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"custody/storage"
)

// Manager persists account and multisig records field by field over a
// key-value backend. Keys are keccak-hashed prefix+address tuples; values are
// RLP. The manager performs no authorization of its own: the engines are its
// only callers.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	ownerPrefix            = []byte("account/owner:")
	guardianPrefix         = []byte("account/guardian:")
	guardianBackupPrefix   = []byte("account/guardian-backup:")
	escapePrefix           = []byte("account/escape:")
	ownerAttemptsPrefix    = []byte("account/owner-attempts:")
	guardianAttemptsPrefix = []byte("account/guardian-attempts:")
	outsideNoncePrefix     = []byte("account/outside-nonce:")
	multisigPrefix         = []byte("multisig/config:")
)

func fieldKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(addr))
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func nonceKey(addr [20]byte, nonce [32]byte) []byte {
	buf := make([]byte, len(outsideNoncePrefix)+len(addr)+len(nonce))
	copy(buf, outsideNoncePrefix)
	copy(buf[len(outsideNoncePrefix):], addr[:])
	copy(buf[len(outsideNoncePrefix)+len(addr):], nonce[:])
	return ethcrypto.Keccak256(buf)
}

// loadBytes returns the raw value for a key, or nil when absent.
func (m *Manager) loadBytes(key []byte) ([]byte, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) loadUint64(key []byte) (uint64, error) {
	data, err := m.loadBytes(key)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var out uint64
	if err := rlp.DecodeBytes(data, &out); err != nil {
		return 0, fmt.Errorf("state: corrupt counter record: %w", err)
	}
	return out, nil
}

func (m *Manager) writeUint64(key []byte, value uint64) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}
