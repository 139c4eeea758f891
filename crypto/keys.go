package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable prefix of a bech32 account address.
type AddressPrefix string

const CustodyPrefix AddressPrefix = "cust"

// PublicKeySize is the length of a compressed secp256k1 public key. Account
// signer keys are stored in this form; the empty slice is the null key.
const PublicKeySize = 33

// Address represents a 20-byte account address with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	buf := make([]byte, 20)
	copy(buf, b)
	return Address{prefix: prefix, bytes: buf}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Compressed returns the 33-byte compressed encoding, the canonical stored
// form of a signer key.
func (k *PublicKey) Compressed() []byte {
	return crypto.CompressPubkey(k.PublicKey)
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(CustodyPrefix, addrBytes)
}

// ParsePublicKey decodes a compressed public key as stored in account state.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	key, err := crypto.DecompressPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return &PublicKey{key}, nil
}

// IsNullKey reports whether the stored key bytes denote the null (absent)
// signer. All-zero payloads are treated as null for defensive parity with
// zero-initialised storage.
func IsNullKey(key []byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}

// KeysEqual compares two stored keys byte for byte.
func KeysEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// --- Two-scalar signatures ---

// SignScalars signs a 32-byte digest and returns the (r, s) scalar pair.
func SignScalars(key *PrivateKey, hash []byte) (*big.Int, *big.Int, error) {
	sig, err := crypto.Sign(hash, key.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	return r, s, nil
}

// VerifyScalars checks an (r, s) signature over hash against a stored
// compressed public key. Malformed keys or scalars simply fail verification.
func VerifyScalars(hash []byte, key []byte, r, s *big.Int) bool {
	if len(key) != PublicKeySize || r == nil || s == nil {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || r.BitLen() > 256 || s.BitLen() > 256 {
		return false
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return crypto.VerifySignature(key, hash, sig)
}
