package model

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key identifies every record, wallet and custody account in the ledger.
type Key [32]byte

// NullKey is the zero identity. A keeper set to NullKey is revoked.
var NullKey Key

var (
	NativeMint        = Derive("native_mint")
	WrappedNativeMint = Derive("wrapped_native_mint")
)

func (k Key) IsZero() bool {
	return k == NullKey
}

func (k Key) Bytes() []byte {
	return k[:]
}

func (k Key) String() string {
	return hexutil.Encode(k[:])
}

// Less orders keys by their raw bytes.
func (k Key) Less(other Key) bool {
	return bytes.Compare(k[:], other[:]) < 0
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hexutil.Decode(s)
	if err != nil {
		return k, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("invalid key %q: want %d bytes, got %d", s, len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// Derive maps a domain tag and seeds to a keyless identity. Nothing can sign
// for a derived key; the ledger alone moves balances it owns.
func Derive(tag string, seeds ...[]byte) Key {
	parts := make([][]byte, 0, len(seeds)+1)
	parts = append(parts, []byte(tag))
	for _, seed := range seeds {
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(seed)))
		parts = append(parts, l[:], seed)
	}
	var k Key
	copy(k[:], crypto.Keccak256(parts...))
	return k
}

// NamedKey derives a stable identity from a human-readable name.
func NamedKey(name string) Key {
	return Derive("named", []byte(name))
}

func U64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
