package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECPointRoundTrip(t *testing.T) {
	t.Parallel()

	p, err := GenerateECPoint(rand.Reader)
	require.NoError(t, err)

	raw := p.Bytes()
	require.Len(t, raw, 64)

	q, err := ParseECPoint(raw)
	require.NoError(t, err)
	assert.Zero(t, p.X.Cmp(q.X))
	assert.Zero(t, p.Y.Cmp(q.Y))
}

func TestParseECPointRejectsOffCurve(t *testing.T) {
	t.Parallel()

	p, err := GenerateECPoint(rand.Reader)
	require.NoError(t, err)
	raw := p.Bytes()
	raw[63] ^= 1

	_, err = ParseECPoint(raw)
	require.ErrorIs(t, err, ErrNotOnCurve)

	_, err = ParseECPoint(raw[:32])
	require.Error(t, err)
}

func TestElGamalRoundTrip(t *testing.T) {
	t.Parallel()

	recipient, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub := ECPoint{X: recipient.PublicKey.X, Y: recipient.PublicKey.Y}

	msg, err := GenerateECPoint(rand.Reader)
	require.NoError(t, err)

	ct, err := ElGamalEncrypt(rand.Reader, pub, msg)
	require.NoError(t, err)
	require.Len(t, ct, 128)

	got, err := ElGamalDecrypt(recipient.D, ct)
	require.NoError(t, err)
	assert.Zero(t, msg.X.Cmp(got.X))
	assert.Zero(t, msg.Y.Cmp(got.Y))
}

func TestElGamalDecryptWrongKey(t *testing.T) {
	t.Parallel()

	recipient, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	msg, err := GenerateECPoint(rand.Reader)
	require.NoError(t, err)
	ct, err := ElGamalEncrypt(
		rand.Reader,
		ECPoint{X: recipient.PublicKey.X, Y: recipient.PublicKey.Y},
		msg,
	)
	require.NoError(t, err)

	got, err := ElGamalDecrypt(other.D, ct)
	require.NoError(t, err)
	assert.NotZero(t, msg.X.Cmp(got.X))
}

func TestECDSARawSignatureRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub := ECPoint{X: key.PublicKey.X, Y: key.PublicKey.Y}
	msg := []byte("<LA xmlns=\"...\">challenge</LA>")

	sig, err := ECDSASignP256(rand.Reader, key, msg)
	require.NoError(t, err)
	require.Len(t, sig, 64)
	require.NoError(t, ECDSAVerifyP256(pub, msg, sig))

	// Any bit flip in the signed bytes must fail verification.
	tampered := append([]byte(nil), msg...)
	tampered[3] ^= 0x20
	require.ErrorIs(t, ECDSAVerifyP256(pub, tampered, sig), ErrBadSignature)

	sig[10] ^= 1
	require.ErrorIs(t, ECDSAVerifyP256(pub, msg, sig), ErrBadSignature)
}
