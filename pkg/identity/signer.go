package identity

import (
	"crypto/ecdsa"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a signature fails to verify against
// the expected address.
var ErrInvalidSignature = errors.New("identity: signature does not match address")

// Signer wraps a secp256k1 private key used to authorize off-chain submitted
// trigger executions and liquidation transactions.
type Signer struct {
	key     *ecdsa.PrivateKey
	address Address
	prefix  AddressPrefix
}

// NewSigner constructs a Signer from a raw private key, deriving its
// canonical Address under prefix.
func NewSigner(prefix AddressPrefix, key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: FromPublicKey(prefix, &key.PublicKey), prefix: prefix}
}

// GenerateSigner creates a new random Signer, for tests and local tooling.
func GenerateSigner(prefix AddressPrefix) (*Signer, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewSigner(prefix, key), nil
}

// Address returns the signer's derived account identifier.
func (s *Signer) Address() Address { return s.address }

// Sign produces a recoverable secp256k1 signature over the 32-byte digest.
func (s *Signer) Sign(digest [32]byte) ([]byte, error) {
	return ethcrypto.Sign(digest[:], s.key)
}

// Verify recovers the signer address from sig over digest and checks it
// matches expected.
func Verify(expected Address, digest [32]byte, sig []byte) error {
	pub, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return err
	}
	recovered := FromPublicKey(expected.Prefix(), pub)
	if !recovered.Equal(expected) {
		return ErrInvalidSignature
	}
	return nil
}
