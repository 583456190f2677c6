// Package cryptoutils provides the symmetric and asymmetric primitives shared
// by the license protocol variants: AES modes with PKCS#7 padding, AES-CMAC
// and the counter-mode key derivation built on it, HMAC-SHA256 verification,
// P-256 ElGamal key transport, raw-concatenated ECDSA signatures, and RSA
// OAEP/PSS facades. Functions return copies of derived material and never log
// inputs.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrPadding reports invalid PKCS#7 padding after decryption.
	ErrPadding = errors.New("cryptoutils: invalid pkcs7 padding")
	// ErrBlockSize reports ciphertext or IV of the wrong length.
	ErrBlockSize = errors.New("cryptoutils: input not block aligned")
)

// Pkcs7Pad pads data to the AES block size. Always appends at least one byte.
func Pkcs7Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}

	return out
}

// Pkcs7Unpad strips and validates PKCS#7 padding.
func Pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, ErrPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrPadding
		}
	}

	return data[:len(data)-n], nil
}

// AESCBCEncrypt encrypts data under key/iv with PKCS#7 padding.
func AESCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cbc encrypt: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cbc encrypt iv: %w", ErrBlockSize)
	}
	padded := Pkcs7Pad(data)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return out, nil
}

// AESCBCDecrypt decrypts data under key/iv and strips PKCS#7 padding.
func AESCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cbc decrypt: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cbc decrypt iv: %w", ErrBlockSize)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cbc decrypt: %w", ErrBlockSize)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	return Pkcs7Unpad(out)
}

// AESECBEncrypt encrypts block-aligned data in ECB mode. Only used for the
// single-block steps of the scalable key ladder; no padding is applied.
func AESECBEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecb encrypt: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ecb encrypt: %w", ErrBlockSize)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}

	return out, nil
}

// AESECBDecrypt decrypts block-aligned data in ECB mode without padding.
func AESECBDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecb decrypt: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ecb decrypt: %w", ErrBlockSize)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}

	return out, nil
}
