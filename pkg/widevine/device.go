package widevine

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// DeviceType selects the request-identifier format a device emits.
type DeviceType int

const (
	// DeviceAndroid builds request identifiers from random bytes and the
	// session request counter.
	DeviceAndroid DeviceType = iota
	// DeviceChrome builds fully random request identifiers.
	DeviceChrome
)

// ErrBadPrivateKey reports unusable device key material.
var ErrBadPrivateKey = errors.New("widevine: invalid device private key")

// Device is an immutable provisioned identity: the RSA signing key and the
// serialized client identification blob the license service expects.
type Device struct {
	Type       DeviceType
	PrivateKey *rsa.PrivateKey
	ClientID   []byte
}

// NewDevice builds a device from raw credentials. keyData accepts PKCS#1 or
// PKCS#8 private keys, PEM-wrapped or bare DER.
func NewDevice(typ DeviceType, keyData, clientID []byte) (*Device, error) {
	key, err := parsePrivateKey(keyData)
	if err != nil {
		return nil, err
	}
	if len(clientID) == 0 {
		return nil, errors.New("widevine: empty client id")
	}

	return &Device{
		Type:       typ,
		PrivateKey: key,
		ClientID:   append([]byte(nil), clientID...),
	}, nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPrivateKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrBadPrivateKey)
	}

	return key, nil
}

// requestID builds the per-request identifier. Android devices use 4 random
// bytes, 4 zero bytes and the little-endian request counter; Chrome uses 16
// random bytes.
func (d *Device) requestID(rand io.Reader, counter uint64) ([]byte, error) {
	id := make([]byte, 16)
	switch d.Type {
	case DeviceChrome:
		if _, err := io.ReadFull(rand, id); err != nil {
			return nil, fmt.Errorf("widevine: request id: %w", err)
		}
	default:
		if _, err := io.ReadFull(rand, id[:4]); err != nil {
			return nil, fmt.Errorf("widevine: request id: %w", err)
		}
		binary.LittleEndian.PutUint64(id[8:], counter)
	}

	return id, nil
}
