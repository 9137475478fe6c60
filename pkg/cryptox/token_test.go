package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	a := FingerprintToken("access-token-a")
	b := FingerprintToken("access-token-b")

	require.Len(t, a, 12)
	require.Equal(t, a, FingerprintToken("access-token-a"), "fingerprints should be deterministic")
	require.NotEqual(t, a, b)
	require.Empty(t, FingerprintToken(""))
}

func TestSealOpen(t *testing.T) {
	t.Parallel()

	plaintext := []byte(`{"access_token":"abc","refresh_token":"def"}`)

	sealed, err := Seal("correct horse", plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "access_token")

	t.Run("round trip", func(t *testing.T) {
		opened, err := Open("correct horse", sealed)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := Open("battery staple", sealed)
		require.Error(t, err)
	})

	t.Run("tampered header", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[3] ^= 0xff
		_, err := Open("correct horse", tampered)
		require.Error(t, err)
	})

	t.Run("unique salt and nonce", func(t *testing.T) {
		again, err := Seal("correct horse", plaintext)
		require.NoError(t, err)
		require.NotEqual(t, sealed, again)
	})
}

func TestSealErrors(t *testing.T) {
	t.Parallel()

	_, err := Seal("", []byte("x"))
	require.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = Open("", []byte("x"))
	require.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = Open("pw", []byte{sealVersion, 1, 2})
	require.ErrorIs(t, err, ErrSealedTooShort)
}
