package identity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/identity"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr, err := identity.NewAddress(identity.MainPrefix, raw)
	require.NoError(t, err)
	require.Equal(t, raw, addr.Bytes())
	require.NotEmpty(t, addr.String())
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	_, err := identity.NewAddress(identity.MainPrefix, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestParseAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i * 3)
	}
	addr := identity.MustNewAddress(identity.MainPrefix, raw)

	parsed, err := identity.ParseAddress(addr.String())
	require.NoError(t, err)
	require.True(t, addr.Equal(parsed))
	require.Equal(t, identity.MainPrefix, parsed.Prefix())
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	_, err := identity.ParseAddress("not-a-bech32-address")
	require.Error(t, err)
}

func TestSignerSignAndVerify(t *testing.T) {
	signer, err := identity.GenerateSigner(identity.MainPrefix)
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("liquidation-event-digest-bytes!"))

	sig, err := signer.Sign(digest)
	require.NoError(t, err)
	require.NoError(t, identity.Verify(signer.Address(), digest, sig))
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	signer, err := identity.GenerateSigner(identity.MainPrefix)
	require.NoError(t, err)
	other, err := identity.GenerateSigner(identity.MainPrefix)
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("another-digest-for-testing-only"))
	sig, err := signer.Sign(digest)
	require.NoError(t, err)

	require.ErrorIs(t, identity.Verify(other.Address(), digest, sig), identity.ErrInvalidSignature)
}
