// Package identity defines the account/liquidator/vault identifiers shared
// across the health cache, the liquidation engine, and the trigger executor.
package identity

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix distinguishes the network an address was minted on.
type AddressPrefix string

const (
	// MainPrefix identifies production risk-engine accounts.
	MainPrefix AddressPrefix = "mrg"
	// VaultPrefix identifies insurance-vault and group-authority accounts.
	VaultPrefix AddressPrefix = "mrgvault"
)

// Address is a 20-byte account identifier with a human-readable prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress builds an Address from exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("identity: address must be 20 bytes, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress builds an Address and panics on invalid input.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromPublicKey derives the canonical account Address for a secp256k1 public
// key, taking the low 20 bytes of its Keccak-256 digest the same way the
// signing key derives its address.
func FromPublicKey(prefix AddressPrefix, pub *ecdsa.PublicKey) Address {
	ethAddr := ethcrypto.PubkeyToAddress(*pub)
	addr, _ := NewAddress(prefix, ethAddr.Bytes())
	return addr
}

func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
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

// ParseAddress decodes the bech32 string produced by Address.String back
// into an Address, used by the trigger executor's admin API to accept
// addresses from URL path segments.
func ParseAddress(s string) (Address, error) {
	prefix, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("identity: decode address: %w", err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("identity: decode address bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), raw)
}

// Bytes returns a defensive copy of the raw 20-byte identifier.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix reports the address's network prefix.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// IsZero reports whether a carries no bytes (the unset value).
func (a Address) IsZero() bool { return len(a.bytes) == 0 }

// Equal compares two addresses by prefix and byte content.
func (a Address) Equal(other Address) bool {
	if a.prefix != other.prefix || len(a.bytes) != len(other.bytes) {
		return false
	}
	for i := range a.bytes {
		if a.bytes[i] != other.bytes[i] {
			return false
		}
	}
	return true
}
