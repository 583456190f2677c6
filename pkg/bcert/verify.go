package bcert

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
)

// signature type 1 is ECDSA P-256 over SHA-256.
const signatureTypeECDSAP256 = 1

var (
	// ErrUntrusted reports a chain whose root is not signed by the trusted
	// issuer key.
	ErrUntrusted = errors.New("bcert: chain root not signed by trusted issuer")
	// ErrBrokenLink reports a certificate whose signing key is not vouched
	// for by its issuer.
	ErrBrokenLink = errors.New("bcert: issuer does not carry signing key")
	// ErrExpired reports an expired certificate.
	ErrExpired = errors.New("bcert: certificate expired")
)

// Verify checks the chain bottom-up: every certificate's ECDSA signature
// over its signed prefix, the linkage of each signing key to the issuer's
// key list, the trusted root issuer key at the top, and certificate expiry
// against now.
//
// TODO: decide whether intermediate security levels must dominate the leaf's
// and enforce it here once the expected rule is pinned down.
func (c *Chain) Verify(rootIssuerKey []byte, now time.Time) error {
	if len(c.Certs) == 0 || len(c.Certs) > MaxChainCerts {
		return ErrChainLength
	}

	for i := range c.Certs {
		cert := &c.Certs[i]
		sig := cert.Signature
		if sig == nil {
			return fmt.Errorf("certificate %d: %w: no signature attribute", i, ErrMalformed)
		}
		if sig.Type != signatureTypeECDSAP256 {
			return fmt.Errorf("certificate %d: %w: signature type %d", i, ErrMalformed, sig.Type)
		}

		signer, err := cryptoutils.ParseECPoint(sig.SigningKey)
		if err != nil {
			return fmt.Errorf("certificate %d signing key: %w", i, err)
		}
		if err := cryptoutils.ECDSAVerifyP256(signer, cert.SignedBytes(), sig.Signature); err != nil {
			return fmt.Errorf("certificate %d: %w", i, err)
		}

		if cert.Basic != nil && cert.Basic.ExpirationDate != 0 {
			expiry := time.Unix(int64(cert.Basic.ExpirationDate), 0)
			if now.After(expiry) {
				return fmt.Errorf("certificate %d: %w (since %s)", i, ErrExpired, expiry.UTC())
			}
		}

		if i+1 < len(c.Certs) {
			if err := issuerCarriesKey(&c.Certs[i+1], sig.SigningKey); err != nil {
				return fmt.Errorf("certificate %d: %w", i, err)
			}

			continue
		}
		// Topmost certificate must be signed by the trusted root.
		if !bytes.Equal(sig.SigningKey, rootIssuerKey) {
			return ErrUntrusted
		}
	}

	return nil
}

func issuerCarriesKey(issuer *Certificate, signingKey []byte) error {
	if issuer.Key == nil {
		return ErrBrokenLink
	}
	for _, entry := range issuer.Key.Keys {
		if bytes.Equal(entry.Key, signingKey) {
			return nil
		}
	}

	return ErrBrokenLink
}
