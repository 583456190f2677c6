// Package playready implements the PlayReady variant of the license engine:
// SOAP/XML challenges signed with the device's ECDSA key, ElGamal key
// transport to the license server, and XMR response processing with AES-CMAC
// integrity, including the scalable-license key ladder.
package playready

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cdmlab/go_cdm/pkg/bcert"
)

// ErrBadKeyMaterial reports unusable device key bytes.
var ErrBadKeyMaterial = errors.New("playready: invalid device key material")

// Device is an immutable provisioned identity: the ECDSA signing and
// encryption keys plus the group certificate chain presented in challenges.
type Device struct {
	SigningKey    *ecdsa.PrivateKey
	EncryptionKey *ecdsa.PrivateKey
	Certificate   []byte

	chain *bcert.Chain
}

// NewDevice builds a device from raw credentials: two ECC private keys and
// the serialized certificate chain.
func NewDevice(signingKey, encryptionKey, certificate []byte) (*Device, error) {
	sign, err := ParseECCKey(signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	enc, err := ParseECCKey(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	chain, err := bcert.ParseChain(certificate)
	if err != nil {
		return nil, err
	}

	return &Device{
		SigningKey:    sign,
		EncryptionKey: enc,
		Certificate:   append([]byte(nil), certificate...),
		chain:         chain,
	}, nil
}

// ParseECCKey builds a P-256 private key from raw bytes: either the 32-byte
// scalar alone or a 96-byte blob with the public point appended.
func ParseECCKey(raw []byte) (*ecdsa.PrivateKey, error) {
	if len(raw) != 32 && len(raw) != 96 {
		return nil, fmt.Errorf("%w: length %d", ErrBadKeyMaterial, len(raw))
	}
	d := new(big.Int).SetBytes(raw[:32])
	curve := elliptic.P256()
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("%w: scalar out of range", ErrBadKeyMaterial)
	}

	key := &ecdsa.PrivateKey{D: d}
	key.PublicKey.Curve = curve
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())

	return key, nil
}

// Chain returns the parsed certificate chain.
func (d *Device) Chain() *bcert.Chain {
	return d.chain
}

// SecurityLevel reports the leaf certificate's security level, or zero when
// the leaf carries no basic attribute.
func (d *Device) SecurityLevel() uint32 {
	if basic := d.chain.Leaf().Basic; basic != nil {
		return basic.SecurityLevel
	}

	return 0
}

// VerifyCertificate checks the device chain against the trusted root.
func (d *Device) VerifyCertificate(now time.Time) error {
	return d.chain.Verify(rootIssuerKey, now)
}
