package cryptoutils

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/chmike/cmac-go"
)

// ErrMACMismatch reports a failed MAC or HMAC comparison.
var ErrMACMismatch = errors.New("cryptoutils: mac mismatch")

// AESCMAC computes the AES-CMAC of msg under key.
func AESCMAC(key, msg []byte) ([]byte, error) {
	h, err := cmac.New(aes.NewCipher, key)
	if err != nil {
		return nil, fmt.Errorf("cmac: %w", err)
	}
	if _, err := h.Write(msg); err != nil {
		return nil, fmt.Errorf("cmac: %w", err)
	}

	return h.Sum(nil), nil
}

// VerifyAESCMAC recomputes the CMAC of msg and compares it against want in
// constant time.
func VerifyAESCMAC(key, msg, want []byte) error {
	got, err := AESCMAC(key, msg)
	if err != nil {
		return err
	}
	if !hmac.Equal(got, want) {
		return ErrMACMismatch
	}

	return nil
}

// HMACSHA256 computes the HMAC-SHA256 of msg under key.
func HMACSHA256(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)

	return h.Sum(nil)
}

// VerifyHMACSHA256 compares the HMAC-SHA256 of msg against want in constant
// time.
func VerifyHMACSHA256(key, msg, want []byte) error {
	if !hmac.Equal(HMACSHA256(key, msg), want) {
		return ErrMACMismatch
	}

	return nil
}
