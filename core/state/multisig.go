package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"custody/native/multisig"
)

// storedMultisig keeps the signer list as an explicit ordered sequence;
// membership is positional, never an implicit set.
type storedMultisig struct {
	Threshold uint32
	Signers   [][]byte
}

// MultisigGet loads the signer-set record for a multisig account.
func (m *Manager) MultisigGet(addr [20]byte) (*multisig.State, bool, error) {
	data, err := m.loadBytes(fieldKey(multisigPrefix, addr))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	stored := new(storedMultisig)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: corrupt multisig record: %w", err)
	}
	if stored.Threshold < 1 || int(stored.Threshold) > len(stored.Signers) {
		return nil, false, fmt.Errorf("state: multisig record violates threshold invariant")
	}
	st := &multisig.State{Threshold: stored.Threshold, Signers: stored.Signers}
	return st, true, nil
}

// MultisigPut stores the signer-set record.
func (m *Manager) MultisigPut(addr [20]byte, st *multisig.State) error {
	if st == nil || st.Threshold < 1 || int(st.Threshold) > len(st.Signers) {
		return fmt.Errorf("state: refusing to store multisig record violating threshold invariant")
	}
	encoded, err := rlp.EncodeToBytes(&storedMultisig{Threshold: st.Threshold, Signers: st.Signers})
	if err != nil {
		return err
	}
	return m.db.Put(fieldKey(multisigPrefix, addr), encoded)
}
