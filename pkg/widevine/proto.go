// Package widevine implements the Widevine variant of the license engine:
// hand-encoded protocol messages, RSA-PSS signed challenges, OAEP session
// key transport, CMAC counter-mode key derivation, HMAC response integrity
// and AES-CBC key containers, plus privacy-mode client id encryption against
// a verified service certificate.
package widevine

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/cdmlab/go_cdm/pkg/wire"
)

// MessageType tags a SignedMessage envelope.
type MessageType int

const (
	MessageLicenseRequest            MessageType = 1
	MessageLicense                   MessageType = 2
	MessageErrorResponse             MessageType = 3
	MessageServiceCertificateRequest MessageType = 4
	MessageServiceCertificate        MessageType = 5
)

// Key container types as carried in license responses.
const (
	keyTypeSigning         = 1
	keyTypeContent         = 2
	keyTypeKeyControl      = 3
	keyTypeOperatorSession = 4
	keyTypeEntitlement     = 5
)

// License request constants.
const (
	requestTypeNew     = 1
	protocolVersion21  = 21
	licenseTypeDefault = LicenseStreaming
)

// LicenseType selects the license duration class requested.
type LicenseType int

const (
	LicenseStreaming LicenseType = 1
	LicenseOffline   LicenseType = 2
	LicenseAutomatic LicenseType = 3
)

// ErrMalformed reports undecodable message bytes.
var ErrMalformed = errors.New("widevine: malformed message")

// SignedMessage is the outer envelope of every exchange.
type SignedMessage struct {
	Type                 MessageType
	Msg                  []byte
	Signature            []byte
	SessionKey           []byte
	OemCryptoCoreMessage []byte
}

// Marshal serializes the envelope with fields in ascending order.
func (m *SignedMessage) Marshal() []byte {
	var out []byte
	out = wire.AppendInt(out, 1, int64(m.Type))
	if m.Msg != nil {
		out = wire.AppendBytes(out, 2, m.Msg)
	}
	if m.Signature != nil {
		out = wire.AppendBytes(out, 3, m.Signature)
	}
	if m.SessionKey != nil {
		out = wire.AppendBytes(out, 4, m.SessionKey)
	}
	if m.OemCryptoCoreMessage != nil {
		out = wire.AppendBytes(out, 9, m.OemCryptoCoreMessage)
	}

	return out
}

// UnmarshalSignedMessage decodes an envelope, skipping unknown fields.
func UnmarshalSignedMessage(raw []byte) (*SignedMessage, error) {
	var m SignedMessage
	off := 0
	for off < len(raw) {
		field, wt, next, err := wire.Tag(raw, off)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch {
		case field == 1 && wt == wire.TypeVarint:
			var v uint64
			v, off, err = wire.Varint(raw, next)
			m.Type = MessageType(v)
		case field == 2 && wt == wire.TypeBytes:
			m.Msg, off, err = wire.Bytes(raw, next)
		case field == 3 && wt == wire.TypeBytes:
			m.Signature, off, err = wire.Bytes(raw, next)
		case field == 4 && wt == wire.TypeBytes:
			m.SessionKey, off, err = wire.Bytes(raw, next)
		case field == 9 && wt == wire.TypeBytes:
			m.OemCryptoCoreMessage, off, err = wire.Bytes(raw, next)
		default:
			off, err = wire.Skip(raw, next, wt)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, field, err)
		}
	}

	return &m, nil
}

// KeyContainer is one encrypted key entry of a license.
type KeyContainer struct {
	ID   []byte
	IV   []byte
	Key  []byte
	Type int
}

// LicenseIdentification ties a license back to the request that asked for
// it.
type LicenseIdentification struct {
	RequestID []byte
	SessionID []byte
}

// License is the decoded license message body.
type License struct {
	ID   LicenseIdentification
	Keys []KeyContainer
}

// UnmarshalLicense decodes a license body, skipping policy and every other
// field the key path does not need.
func UnmarshalLicense(raw []byte) (*License, error) {
	var lic License
	off := 0
	for off < len(raw) {
		field, wt, next, err := wire.Tag(raw, off)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch {
		case field == 1 && wt == wire.TypeBytes:
			var body []byte
			body, off, err = wire.Bytes(raw, next)
			if err == nil {
				err = unmarshalLicenseID(body, &lic.ID)
			}
		case field == 3 && wt == wire.TypeBytes:
			var body []byte
			body, off, err = wire.Bytes(raw, next)
			if err == nil {
				var kc KeyContainer
				if kc, err = unmarshalKeyContainer(body); err == nil {
					lic.Keys = append(lic.Keys, kc)
				}
			}
		default:
			off, err = wire.Skip(raw, next, wt)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, field, err)
		}
	}

	return &lic, nil
}

func unmarshalLicenseID(raw []byte, id *LicenseIdentification) error {
	off := 0
	for off < len(raw) {
		field, wt, next, err := wire.Tag(raw, off)
		if err != nil {
			return err
		}
		switch {
		case field == 1 && wt == wire.TypeBytes:
			id.RequestID, off, err = wire.Bytes(raw, next)
		case field == 2 && wt == wire.TypeBytes:
			id.SessionID, off, err = wire.Bytes(raw, next)
		default:
			off, err = wire.Skip(raw, next, wt)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func unmarshalKeyContainer(raw []byte) (KeyContainer, error) {
	var kc KeyContainer
	off := 0
	for off < len(raw) {
		field, wt, next, err := wire.Tag(raw, off)
		if err != nil {
			return kc, err
		}
		switch {
		case field == 1 && wt == wire.TypeBytes:
			kc.ID, off, err = wire.Bytes(raw, next)
		case field == 2 && wt == wire.TypeBytes:
			kc.IV, off, err = wire.Bytes(raw, next)
		case field == 3 && wt == wire.TypeBytes:
			kc.Key, off, err = wire.Bytes(raw, next)
		case field == 4 && wt == wire.TypeVarint:
			var v uint64
			v, off, err = wire.Varint(raw, next)
			kc.Type = int(v)
		default:
			off, err = wire.Skip(raw, next, wt)
		}
		if err != nil {
			return kc, err
		}
	}

	return kc, nil
}

// DrmCertificate is a service certificate: the provider's identity and the
// RSA key privacy mode encrypts client identification to.
type DrmCertificate struct {
	SerialNumber []byte
	PublicKey    *rsa.PublicKey
	ProviderID   string
}

// Marshal serializes the certificate; the public key travels as PKCS#1 DER.
func (c *DrmCertificate) Marshal() []byte {
	var out []byte
	out = wire.AppendBytes(out, 2, c.SerialNumber)
	out = wire.AppendBytes(out, 4, x509.MarshalPKCS1PublicKey(c.PublicKey))
	out = wire.AppendString(out, 7, c.ProviderID)

	return out
}

// UnmarshalDrmCertificate decodes a certificate body.
func UnmarshalDrmCertificate(raw []byte) (*DrmCertificate, error) {
	var c DrmCertificate
	off := 0
	for off < len(raw) {
		field, wt, next, err := wire.Tag(raw, off)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch {
		case field == 2 && wt == wire.TypeBytes:
			c.SerialNumber, off, err = wire.Bytes(raw, next)
		case field == 4 && wt == wire.TypeBytes:
			var der []byte
			der, off, err = wire.Bytes(raw, next)
			if err == nil {
				c.PublicKey, err = x509.ParsePKCS1PublicKey(der)
			}
		case field == 7 && wt == wire.TypeBytes:
			var s []byte
			s, off, err = wire.Bytes(raw, next)
			c.ProviderID = string(s)
		default:
			off, err = wire.Skip(raw, next, wt)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, field, err)
		}
	}
	if c.PublicKey == nil {
		return nil, fmt.Errorf("%w: certificate has no public key", ErrMalformed)
	}

	return &c, nil
}

// SignedDrmCertificate pairs a certificate with the root signature over it.
type SignedDrmCertificate struct {
	DrmCertificate []byte
	Signature      []byte
}

// Marshal serializes the signed certificate.
func (s *SignedDrmCertificate) Marshal() []byte {
	var out []byte
	out = wire.AppendBytes(out, 1, s.DrmCertificate)
	out = wire.AppendBytes(out, 2, s.Signature)

	return out
}

// UnmarshalSignedDrmCertificate decodes a signed certificate wrapper.
func UnmarshalSignedDrmCertificate(raw []byte) (*SignedDrmCertificate, error) {
	var s SignedDrmCertificate
	off := 0
	for off < len(raw) {
		field, wt, next, err := wire.Tag(raw, off)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch {
		case field == 1 && wt == wire.TypeBytes:
			s.DrmCertificate, off, err = wire.Bytes(raw, next)
		case field == 2 && wt == wire.TypeBytes:
			s.Signature, off, err = wire.Bytes(raw, next)
		default:
			off, err = wire.Skip(raw, next, wt)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, field, err)
		}
	}
	if s.DrmCertificate == nil || s.Signature == nil {
		return nil, fmt.Errorf("%w: incomplete signed certificate", ErrMalformed)
	}

	return &s, nil
}

// encryptedClientID is the privacy-mode client identification block.
type encryptedClientID struct {
	ProviderID          string
	ServiceCertSerial   []byte
	EncryptedClientID   []byte
	EncryptedClientIDIV []byte
	EncryptedPrivacyKey []byte
}

func (e *encryptedClientID) marshal() []byte {
	var out []byte
	out = wire.AppendString(out, 1, e.ProviderID)
	out = wire.AppendBytes(out, 2, e.ServiceCertSerial)
	out = wire.AppendBytes(out, 3, e.EncryptedClientID)
	out = wire.AppendBytes(out, 4, e.EncryptedClientIDIV)
	out = wire.AppendBytes(out, 5, e.EncryptedPrivacyKey)

	return out
}

// licenseRequest carries the fields of an outgoing request. Marshal emits
// fields in ascending field-number order so identical inputs serialize
// identically; the signature and the derivation contexts depend on that.
type licenseRequest struct {
	ClientID          []byte // field 1, plain mode
	PsshData          []byte
	LicenseType       LicenseType
	RequestID         []byte
	RequestTime       int64
	KeyControlNonce   uint32
	EncryptedClientID []byte // field 8, privacy mode
}

func (r *licenseRequest) marshal() []byte {
	var out []byte
	if r.ClientID != nil {
		out = wire.AppendBytes(out, 1, r.ClientID)
	}

	// content_id.widevine_pssh_data
	var pssh []byte
	pssh = wire.AppendBytes(pssh, 1, r.PsshData)
	pssh = wire.AppendInt(pssh, 2, int64(r.LicenseType))
	pssh = wire.AppendBytes(pssh, 3, r.RequestID)
	var contentID []byte
	contentID = wire.AppendBytes(contentID, 1, pssh)
	out = wire.AppendBytes(out, 2, contentID)

	out = wire.AppendInt(out, 3, requestTypeNew)
	out = wire.AppendInt(out, 4, r.RequestTime)
	out = wire.AppendInt(out, 6, protocolVersion21)
	out = wire.AppendUint(out, 7, uint64(r.KeyControlNonce))
	if r.EncryptedClientID != nil {
		out = wire.AppendBytes(out, 8, r.EncryptedClientID)
	}

	return out
}
