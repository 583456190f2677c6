package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSAOAEPRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sessionKey := make([]byte, 16)
	_, err = rand.Read(sessionKey)
	require.NoError(t, err)

	ct, err := RSAOAEPEncrypt(rand.Reader, &key.PublicKey, sessionKey)
	require.NoError(t, err)

	got, err := RSAOAEPDecrypt(key, ct)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, got)
}

func TestRSAOAEPDecryptWrongKey(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ct, err := RSAOAEPEncrypt(rand.Reader, &key.PublicKey, []byte("0123456789abcdef"))
	require.NoError(t, err)

	_, err = RSAOAEPDecrypt(other, ct)
	require.Error(t, err)
}

func TestRSAPSSRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	msg := []byte("serialized license request")

	sig, err := RSAPSSSign(rand.Reader, key, msg)
	require.NoError(t, err)
	require.NoError(t, RSAPSSVerify(&key.PublicKey, msg, sig))

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 1
	require.Error(t, RSAPSSVerify(&key.PublicKey, tampered, sig))
}
