package cryptoutils

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // protocol-mandated digest
	"fmt"
	"io"
)

// RSAOAEPEncrypt encrypts msg with RSA-OAEP over SHA-1, the padding used for
// session-key transport.
func RSAOAEPEncrypt(rand io.Reader, pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	out, err := rsa.EncryptOAEP(sha1.New(), rand, pub, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("oaep encrypt: %w", err)
	}

	return out, nil
}

// RSAOAEPDecrypt decrypts an RSA-OAEP-SHA1 ciphertext.
func RSAOAEPDecrypt(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	out, err := rsa.DecryptOAEP(sha1.New(), nil, priv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("oaep decrypt: %w", err)
	}

	return out, nil
}

// RSAPSSSign signs msg with RSA-PSS over SHA-1, salt length equal to the
// digest size. The message is hashed here; callers pass the raw bytes, never
// a pre-computed digest.
func RSAPSSSign(rand io.Reader, priv *rsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha1.Sum(msg) //nolint:gosec // protocol-mandated digest
	sig, err := rsa.SignPSS(rand, priv, crypto.SHA1, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("pss sign: %w", err)
	}

	return sig, nil
}

// RSAPSSVerify verifies an RSA-PSS-SHA1 signature over the raw msg bytes.
func RSAPSSVerify(pub *rsa.PublicKey, msg, sig []byte) error {
	digest := sha1.Sum(msg) //nolint:gosec // protocol-mandated digest
	if err := rsa.VerifyPSS(pub, crypto.SHA1, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	}); err != nil {
		return fmt.Errorf("pss verify: %w", err)
	}

	return nil
}
