// Package bcert parses PlayReady binary certificate chains: the CHAI chain
// wrapper, CERT entries, and the tag-length-value attributes inside each
// certificate. Attributes consumed by chain verification and challenge
// construction are decoded eagerly; every other tag is kept as an opaque
// span so unknown attributes never fail a parse.
package bcert

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	chainMagic = "CHAI"
	certMagic  = "CERT"

	// MaxChainCerts bounds a chain: leaf plus at most five issuers.
	MaxChainCerts = 6

	attrHeaderLen = 8
)

// Attribute tags decoded eagerly.
const (
	TagBasic     = 0x0001
	TagKey       = 0x0006
	TagSignature = 0x0008
)

// Key usages referenced during verification.
const (
	KeyUsageSign       = 1
	KeyUsageEncryptKey = 2
)

// Certificate types seen in device chains.
const (
	CertTypePC     = 1
	CertTypeDevice = 2
	CertTypeIssuer = 4
)

var (
	// ErrMalformed reports structurally invalid chain bytes.
	ErrMalformed = errors.New("bcert: malformed certificate chain")
	// ErrChainLength reports an empty or oversized chain.
	ErrChainLength = errors.New("bcert: invalid chain length")
)

// BasicInfo is the mandatory certificate attribute.
type BasicInfo struct {
	CertID          [16]byte
	SecurityLevel   uint32
	Flags           uint32
	Type            uint32
	PublicKeyDigest [32]byte
	ExpirationDate  uint32
	ClientID        [16]byte
}

// KeyEntry is one public key carried by a certificate, with its declared
// usages.
type KeyEntry struct {
	Type   uint16
	Flags  uint32
	Key    []byte
	Usages []uint32
}

// HasUsage reports whether the entry declares the given usage.
func (k KeyEntry) HasUsage(usage uint32) bool {
	for _, u := range k.Usages {
		if u == usage {
			return true
		}
	}

	return false
}

// KeyInfo lists the certificate's public keys.
type KeyInfo struct {
	Keys []KeyEntry
}

// SignatureInfo carries the certificate signature and the issuer key that
// produced it.
type SignatureInfo struct {
	Type       uint16
	Signature  []byte
	SigningKey []byte
}

// RawAttribute preserves an attribute this package does not interpret.
type RawAttribute struct {
	Flags uint16
	Tag   uint16
	Data  []byte
}

// Certificate is one parsed chain entry. Raw aliases the chain buffer;
// SignedLength marks the prefix covered by the signature.
type Certificate struct {
	Raw          []byte
	SignedLength int

	Basic     *BasicInfo
	Key       *KeyInfo
	Signature *SignatureInfo
	Extra     []RawAttribute
}

// SignedBytes returns the certificate prefix the signature covers.
func (c *Certificate) SignedBytes() []byte {
	return c.Raw[:c.SignedLength]
}

// Chain is a parsed certificate chain, leaf certificate first.
type Chain struct {
	Version uint32
	Flags   uint32
	Certs   []Certificate
	Raw     []byte
}

// Leaf returns the device (leaf) certificate.
func (c *Chain) Leaf() *Certificate {
	return &c.Certs[0]
}

// ParseChain decodes a binary certificate chain.
func ParseChain(raw []byte) (*Chain, error) {
	s := cryptobyte.String(raw)

	var magic []byte
	var version, totalLen, flags, count uint32
	if !s.ReadBytes(&magic, 4) || string(magic) != chainMagic {
		return nil, fmt.Errorf("%w: missing chain magic", ErrMalformed)
	}
	if !s.ReadUint32(&version) || !s.ReadUint32(&totalLen) ||
		!s.ReadUint32(&flags) || !s.ReadUint32(&count) {
		return nil, fmt.Errorf("%w: truncated chain header", ErrMalformed)
	}
	if uint64(totalLen) != uint64(len(raw)) {
		return nil, fmt.Errorf("%w: chain length %d, have %d", ErrMalformed, totalLen, len(raw))
	}
	if count == 0 || count > MaxChainCerts {
		return nil, fmt.Errorf("%w: %d certificates", ErrChainLength, count)
	}

	chain := &Chain{Version: version, Flags: flags, Raw: raw}
	off := len(raw) - len(s)
	for i := uint32(0); i < count; i++ {
		cert, size, err := parseCertificate(raw[off:])
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		chain.Certs = append(chain.Certs, *cert)
		off += size
	}
	if off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(raw)-off)
	}

	return chain, nil
}

func parseCertificate(raw []byte) (*Certificate, int, error) {
	s := cryptobyte.String(raw)

	var magic []byte
	var version, totalLen, signedLen uint32
	if !s.ReadBytes(&magic, 4) || string(magic) != certMagic {
		return nil, 0, fmt.Errorf("%w: missing cert magic", ErrMalformed)
	}
	if !s.ReadUint32(&version) || !s.ReadUint32(&totalLen) || !s.ReadUint32(&signedLen) {
		return nil, 0, fmt.Errorf("%w: truncated cert header", ErrMalformed)
	}
	// totalLen counts the 16-byte header itself; anything smaller cannot
	// hold a certificate.
	if totalLen < 16 || uint64(totalLen) > uint64(len(raw)) || signedLen > totalLen {
		return nil, 0, fmt.Errorf("%w: cert length %d/%d", ErrMalformed, signedLen, totalLen)
	}

	cert := &Certificate{
		Raw:          raw[:totalLen],
		SignedLength: int(signedLen),
	}

	body := cryptobyte.String(raw[16:totalLen])
	for !body.Empty() {
		var flags, tag uint16
		var length uint32
		if !body.ReadUint16(&flags) || !body.ReadUint16(&tag) || !body.ReadUint32(&length) {
			return nil, 0, fmt.Errorf("%w: truncated attribute header", ErrMalformed)
		}
		if length < attrHeaderLen {
			return nil, 0, fmt.Errorf("%w: attribute length %d", ErrMalformed, length)
		}
		var data []byte
		if !body.ReadBytes(&data, int(length)-attrHeaderLen) {
			return nil, 0, fmt.Errorf("%w: truncated attribute %#04x", ErrMalformed, tag)
		}

		switch tag {
		case TagBasic:
			info, err := parseBasicInfo(data)
			if err != nil {
				return nil, 0, err
			}
			cert.Basic = info
		case TagKey:
			info, err := parseKeyInfo(data)
			if err != nil {
				return nil, 0, err
			}
			cert.Key = info
		case TagSignature:
			info, err := parseSignatureInfo(data)
			if err != nil {
				return nil, 0, err
			}
			cert.Signature = info
		default:
			cert.Extra = append(cert.Extra, RawAttribute{Flags: flags, Tag: tag, Data: data})
		}
	}

	return cert, int(totalLen), nil
}

func parseBasicInfo(data []byte) (*BasicInfo, error) {
	s := cryptobyte.String(data)
	var info BasicInfo
	var certID, digest, clientID []byte
	if !s.ReadBytes(&certID, 16) ||
		!s.ReadUint32(&info.SecurityLevel) ||
		!s.ReadUint32(&info.Flags) ||
		!s.ReadUint32(&info.Type) ||
		!s.ReadBytes(&digest, 32) ||
		!s.ReadUint32(&info.ExpirationDate) ||
		!s.ReadBytes(&clientID, 16) {
		return nil, fmt.Errorf("%w: basic info", ErrMalformed)
	}
	copy(info.CertID[:], certID)
	copy(info.PublicKeyDigest[:], digest)
	copy(info.ClientID[:], clientID)

	return &info, nil
}

func parseKeyInfo(data []byte) (*KeyInfo, error) {
	s := cryptobyte.String(data)
	var count uint32
	if !s.ReadUint32(&count) {
		return nil, fmt.Errorf("%w: key info", ErrMalformed)
	}

	info := &KeyInfo{}
	for i := uint32(0); i < count; i++ {
		var entry KeyEntry
		var bits uint16
		if !s.ReadUint16(&entry.Type) || !s.ReadUint16(&bits) || !s.ReadUint32(&entry.Flags) {
			return nil, fmt.Errorf("%w: key entry %d", ErrMalformed, i)
		}
		if bits%8 != 0 {
			return nil, fmt.Errorf("%w: key entry %d width %d bits", ErrMalformed, i, bits)
		}
		if !s.ReadBytes(&entry.Key, int(bits)/8) {
			return nil, fmt.Errorf("%w: key entry %d", ErrMalformed, i)
		}
		var usages uint32
		if !s.ReadUint32(&usages) {
			return nil, fmt.Errorf("%w: key entry %d usages", ErrMalformed, i)
		}
		for j := uint32(0); j < usages; j++ {
			var u uint32
			if !s.ReadUint32(&u) {
				return nil, fmt.Errorf("%w: key entry %d usage %d", ErrMalformed, i, j)
			}
			entry.Usages = append(entry.Usages, u)
		}
		info.Keys = append(info.Keys, entry)
	}

	return info, nil
}

func parseSignatureInfo(data []byte) (*SignatureInfo, error) {
	s := cryptobyte.String(data)
	var info SignatureInfo
	var sigLen uint16
	if !s.ReadUint16(&info.Type) || !s.ReadUint16(&sigLen) {
		return nil, fmt.Errorf("%w: signature info", ErrMalformed)
	}
	if !s.ReadBytes(&info.Signature, int(sigLen)) {
		return nil, fmt.Errorf("%w: signature", ErrMalformed)
	}
	var keyBits uint32
	if !s.ReadUint32(&keyBits) || keyBits%8 != 0 {
		return nil, fmt.Errorf("%w: signing key width", ErrMalformed)
	}
	if !s.ReadBytes(&info.SigningKey, int(keyBits)/8) {
		return nil, fmt.Errorf("%w: signing key", ErrMalformed)
	}

	return &info, nil
}
