package xmr

import (
	"fmt"
	"time"

	"golang.org/x/crypto/cryptobyte"
)

// ContentKeyObject is one encrypted content key entry.
type ContentKeyObject struct {
	KeyID        [16]byte // GUID byte order, as carried on the wire
	KeyType      uint16
	CipherType   uint16
	EncryptedKey []byte
}

// SignatureObject is the license CMAC.
type SignatureObject struct {
	Type uint16
	Data []byte
}

// AuxKey is one auxiliary key ladder entry of a scalable license.
type AuxKey struct {
	Location uint32
	Key      [16]byte
}

// OutputProtection carries the minimum output protection levels the license
// demands.
type OutputProtection struct {
	CompressedDigitalVideo   uint16
	UncompressedDigitalVideo uint16
	AnalogVideo              uint16
	CompressedDigitalAudio   uint16
	UncompressedDigitalAudio uint16
}

// ContentKeys decodes every content-key object in the license.
func (l *License) ContentKeys() ([]ContentKeyObject, error) {
	var out []ContentKeyObject
	for _, obj := range l.Find(TypeContentKey) {
		s := cryptobyte.String(obj.Data)
		var ck ContentKeyObject
		var kid []byte
		var keyLen uint16
		if !s.ReadBytes(&kid, 16) ||
			!s.ReadUint16(&ck.KeyType) ||
			!s.ReadUint16(&ck.CipherType) ||
			!s.ReadUint16(&keyLen) ||
			!s.ReadBytes(&ck.EncryptedKey, int(keyLen)) {
			return nil, fmt.Errorf("%w: content key object", ErrMalformed)
		}
		copy(ck.KeyID[:], kid)
		out = append(out, ck)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: content key", ErrMissingObject)
	}

	return out, nil
}

// Signature decodes the signature object.
func (l *License) Signature() (*SignatureObject, error) {
	obj, err := l.findOne(TypeSignature)
	if err != nil {
		return nil, err
	}
	s := cryptobyte.String(obj.Data)
	var sig SignatureObject
	var length uint16
	if !s.ReadUint16(&sig.Type) || !s.ReadUint16(&length) ||
		!s.ReadBytes(&sig.Data, int(length)) {
		return nil, fmt.Errorf("%w: signature object", ErrMalformed)
	}

	return &sig, nil
}

// SignedBytes returns the license prefix covered by the signature: everything
// before the signature object itself.
func (l *License) SignedBytes() ([]byte, error) {
	sig, err := l.Signature()
	if err != nil {
		return nil, err
	}
	// Signature object: 8-byte TLV header plus type and length fields.
	tail := len(sig.Data) + objHeaderLen + 4
	if tail > len(l.raw) {
		return nil, fmt.Errorf("%w: signature longer than license", ErrMalformed)
	}

	return l.raw[:len(l.raw)-tail], nil
}

// ECCDeviceKey returns the raw public point the license's keys are bound to.
func (l *License) ECCDeviceKey() ([]byte, error) {
	obj, err := l.findOne(TypeECCDeviceKey)
	if err != nil {
		return nil, err
	}
	s := cryptobyte.String(obj.Data)
	var curve, length uint16
	var key []byte
	if !s.ReadUint16(&curve) || !s.ReadUint16(&length) || !s.ReadBytes(&key, int(length)) {
		return nil, fmt.Errorf("%w: ecc device key object", ErrMalformed)
	}

	return key, nil
}

// AuxKeys decodes the auxiliary key entries of a scalable license. Returns
// nil when the license carries none.
func (l *License) AuxKeys() ([]AuxKey, error) {
	objs := l.Find(TypeAuxKeys)
	if len(objs) == 0 {
		return nil, nil
	}
	s := cryptobyte.String(objs[0].Data)
	var count uint16
	if !s.ReadUint16(&count) {
		return nil, fmt.Errorf("%w: aux key object", ErrMalformed)
	}
	out := make([]AuxKey, 0, count)
	for i := uint16(0); i < count; i++ {
		var ak AuxKey
		var key []byte
		if !s.ReadUint32(&ak.Location) || !s.ReadBytes(&key, 16) {
			return nil, fmt.Errorf("%w: aux key entry %d", ErrMalformed, i)
		}
		copy(ak.Key[:], key)
		out = append(out, ak)
	}

	return out, nil
}

// Expiration returns the license validity window when present.
func (l *License) Expiration() (begin, end time.Time, ok bool) {
	objs := l.Find(TypeExpiration)
	if len(objs) == 0 {
		return time.Time{}, time.Time{}, false
	}
	s := cryptobyte.String(objs[0].Data)
	var b, e uint32
	if !s.ReadUint32(&b) || !s.ReadUint32(&e) {
		return time.Time{}, time.Time{}, false
	}

	return time.Unix(int64(b), 0), time.Unix(int64(e), 0), true
}

// IssueDate returns the license issue time when present.
func (l *License) IssueDate() (time.Time, bool) {
	objs := l.Find(TypeIssueDate)
	if len(objs) == 0 {
		return time.Time{}, false
	}
	s := cryptobyte.String(objs[0].Data)
	var v uint32
	if !s.ReadUint32(&v) {
		return time.Time{}, false
	}

	return time.Unix(int64(v), 0), true
}

// SecurityLevel returns the minimum security level the license demands.
func (l *License) SecurityLevel() (uint16, bool) {
	objs := l.Find(TypeSecurityLevel)
	if len(objs) == 0 {
		return 0, false
	}
	s := cryptobyte.String(objs[0].Data)
	var v uint16
	if !s.ReadUint16(&v) {
		return 0, false
	}

	return v, true
}

// OutputProtectionLevels returns the output protection object when present.
func (l *License) OutputProtectionLevels() (*OutputProtection, bool) {
	objs := l.Find(TypeOutputProtection)
	if len(objs) == 0 {
		return nil, false
	}
	s := cryptobyte.String(objs[0].Data)
	var op OutputProtection
	if !s.ReadUint16(&op.CompressedDigitalVideo) ||
		!s.ReadUint16(&op.UncompressedDigitalVideo) ||
		!s.ReadUint16(&op.AnalogVideo) ||
		!s.ReadUint16(&op.CompressedDigitalAudio) ||
		!s.ReadUint16(&op.UncompressedDigitalAudio) {
		return nil, false
	}

	return &op, true
}
