package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ErrNotOnCurve reports a point that fails the P-256 curve equation.
var ErrNotOnCurve = errors.New("cryptoutils: point not on curve")

// ErrBadSignature reports a failed ECDSA verification.
var ErrBadSignature = errors.New("cryptoutils: invalid ecdsa signature")

// ECPoint is an affine P-256 point in the raw 64-byte X‖Y encoding used by
// device certificates and key transport.
type ECPoint struct {
	X, Y *big.Int
}

// ParseECPoint decodes a raw 64-byte X‖Y point and checks it lies on P-256.
func ParseECPoint(raw []byte) (ECPoint, error) {
	if len(raw) != 64 {
		return ECPoint{}, fmt.Errorf("cryptoutils: point length %d", len(raw))
	}
	p := ECPoint{
		X: new(big.Int).SetBytes(raw[:32]),
		Y: new(big.Int).SetBytes(raw[32:]),
	}
	if !elliptic.P256().IsOnCurve(p.X, p.Y) {
		return ECPoint{}, ErrNotOnCurve
	}

	return p, nil
}

// Bytes returns the raw 64-byte X‖Y encoding.
func (p ECPoint) Bytes() []byte {
	out := make([]byte, 64)
	p.X.FillBytes(out[:32])
	p.Y.FillBytes(out[32:])

	return out
}

// PublicKey converts the point to an ECDSA public key on P-256.
func (p ECPoint) PublicKey() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: p.X, Y: p.Y}
}

// GenerateECPoint returns a uniformly random P-256 point. The discrete log is
// discarded; callers use the coordinates as ephemeral key material.
func GenerateECPoint(rand io.Reader) (ECPoint, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand)
	if err != nil {
		return ECPoint{}, fmt.Errorf("generate point: %w", err)
	}

	return ECPoint{X: key.PublicKey.X, Y: key.PublicKey.Y}, nil
}

// ElGamalEncrypt encrypts the message point to pub. The ciphertext is the
// 128-byte concatenation of the two points (k·G, M + k·pub).
func ElGamalEncrypt(rand io.Reader, pub, msg ECPoint) ([]byte, error) {
	curve := elliptic.P256()
	k, err := ecdsa.GenerateKey(curve, rand)
	if err != nil {
		return nil, fmt.Errorf("elgamal encrypt: %w", err)
	}
	c1 := ECPoint{X: k.PublicKey.X, Y: k.PublicKey.Y}
	sx, sy := curve.ScalarMult(pub.X, pub.Y, k.D.Bytes())
	c2x, c2y := curve.Add(msg.X, msg.Y, sx, sy)

	out := make([]byte, 0, 128)
	out = append(out, c1.Bytes()...)
	out = append(out, ECPoint{X: c2x, Y: c2y}.Bytes()...)

	return out, nil
}

// ElGamalDecrypt recovers the message point M = C2 - priv·C1 from a 128-byte
// ciphertext.
func ElGamalDecrypt(priv *big.Int, ct []byte) (ECPoint, error) {
	if len(ct) != 128 {
		return ECPoint{}, fmt.Errorf("cryptoutils: elgamal ciphertext length %d", len(ct))
	}
	c1, err := ParseECPoint(ct[:64])
	if err != nil {
		return ECPoint{}, fmt.Errorf("elgamal c1: %w", err)
	}
	c2, err := ParseECPoint(ct[64:])
	if err != nil {
		return ECPoint{}, fmt.Errorf("elgamal c2: %w", err)
	}

	curve := elliptic.P256()
	sx, sy := curve.ScalarMult(c1.X, c1.Y, priv.Bytes())
	// Subtract the shared point by adding its negation.
	negY := new(big.Int).Sub(curve.Params().P, sy)
	mx, my := curve.Add(c2.X, c2.Y, sx, negY)

	return ECPoint{X: mx, Y: my}, nil
}

// ECDSASignP256 signs SHA-256(msg) and returns the raw 64-byte R‖S encoding.
func ECDSASignP256(rand io.Reader, priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])

	return out, nil
}

// ECDSAVerifyP256 verifies a raw 64-byte R‖S signature over SHA-256(msg).
func ECDSAVerifyP256(pub ECPoint, msg, sig []byte) error {
	if len(sig) != 64 {
		return fmt.Errorf("cryptoutils: signature length %d: %w", len(sig), ErrBadSignature)
	}
	digest := sha256.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if !ecdsa.Verify(pub.PublicKey(), digest[:], r, s) {
		return ErrBadSignature
	}

	return nil
}
