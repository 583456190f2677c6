// Package pssh parses and serializes protection-system-specific header boxes
// and extracts content key identifiers from the system payloads carried
// inside them: the Widevine pssh-data message and the PlayReady Header
// Object with its embedded WRM header XML.
package pssh

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/cdmlab/go_cdm/pkg/wire"
)

// System identifies the DRM system a box belongs to.
type System int

const (
	SystemUnknown System = iota
	SystemWidevine
	SystemPlayReady
	SystemFairPlay
	SystemClearKey
)

var (
	// WidevineSystemID is the registered Widevine protection system id.
	WidevineSystemID = [16]byte{
		0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce,
		0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed,
	}
	// PlayReadySystemID is the registered PlayReady protection system id.
	PlayReadySystemID = [16]byte{
		0x9a, 0x04, 0xf0, 0x79, 0x98, 0x40, 0x42, 0x86,
		0xab, 0x92, 0xe6, 0x5b, 0xe0, 0x88, 0x5f, 0x95,
	}
	// FairPlaySystemID is the registered FairPlay Streaming system id.
	FairPlaySystemID = [16]byte{
		0x94, 0xce, 0x86, 0xfb, 0x07, 0xff, 0x4f, 0x43,
		0xad, 0xb8, 0x93, 0xd2, 0xfa, 0x96, 0x8c, 0xa2,
	}
	// ClearKeySystemID is the W3C common-encryption clear key system id.
	ClearKeySystemID = [16]byte{
		0x10, 0x77, 0xef, 0xec, 0xc0, 0xb2, 0x4d, 0x02,
		0xac, 0xe3, 0x3c, 0x1e, 0x52, 0xe2, 0xfb, 0x4b,
	}
)

func (s System) String() string {
	switch s {
	case SystemWidevine:
		return "widevine"
	case SystemPlayReady:
		return "playready"
	case SystemFairPlay:
		return "fairplay"
	case SystemClearKey:
		return "clearkey"
	default:
		return "unknown"
	}
}

var (
	// ErrNotPSSH reports a buffer that is not a pssh box.
	ErrNotPSSH = errors.New("pssh: not a pssh box")
	// ErrMalformed reports a structurally invalid box.
	ErrMalformed = errors.New("pssh: malformed box")
	// ErrWrongSystem reports a payload extraction against the wrong system.
	ErrWrongSystem = errors.New("pssh: wrong protection system")
)

const boxType = "pssh"

// Box is a parsed protection-system header box. Version 1 boxes carry key
// identifiers directly; version 0 boxes only carry them inside the
// system-specific payload.
type Box struct {
	Version  uint8
	Flags    uint32 // 24 bits on the wire
	SystemID [16]byte
	KeyIDs   [][16]byte // version 1 only
	Data     []byte
}

// Parse decodes a single pssh box from raw. Trailing bytes after the box are
// rejected.
func Parse(raw []byte) (*Box, error) {
	s := cryptobyte.String(raw)

	var size uint32
	var typ []byte
	if !s.ReadUint32(&size) || !s.ReadBytes(&typ, 4) {
		return nil, ErrNotPSSH
	}
	if string(typ) != boxType {
		return nil, fmt.Errorf("%w: box type %q", ErrNotPSSH, typ)
	}
	if uint64(size) != uint64(len(raw)) {
		return nil, fmt.Errorf("%w: declared size %d, have %d bytes", ErrMalformed, size, len(raw))
	}

	var b Box
	var verFlags uint32
	if !s.ReadUint32(&verFlags) {
		return nil, ErrMalformed
	}
	b.Version = uint8(verFlags >> 24)
	b.Flags = verFlags & 0xffffff
	if b.Version > 1 {
		return nil, fmt.Errorf("%w: version %d", ErrMalformed, b.Version)
	}

	var sysID []byte
	if !s.ReadBytes(&sysID, 16) {
		return nil, ErrMalformed
	}
	copy(b.SystemID[:], sysID)

	if b.Version == 1 {
		var count uint32
		if !s.ReadUint32(&count) {
			return nil, ErrMalformed
		}
		if uint64(count)*16 > uint64(len(s)) {
			return nil, fmt.Errorf("%w: kid count %d", ErrMalformed, count)
		}
		b.KeyIDs = make([][16]byte, count)
		for i := range b.KeyIDs {
			var kid []byte
			if !s.ReadBytes(&kid, 16) {
				return nil, ErrMalformed
			}
			copy(b.KeyIDs[i][:], kid)
		}
	}

	var dataLen uint32
	if !s.ReadUint32(&dataLen) {
		return nil, ErrMalformed
	}
	var data []byte
	if !s.ReadBytes(&data, int(dataLen)) || !s.Empty() {
		return nil, fmt.Errorf("%w: data length %d", ErrMalformed, dataLen)
	}
	b.Data = data

	return &b, nil
}

// ParseBase64 decodes a base64 pssh box, the form manifests carry it in.
func ParseBase64(s string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pssh: base64: %w", err)
	}

	return Parse(raw)
}

// Encode serializes the box. Version is forced to 1 when key identifiers are
// present.
func (b *Box) Encode() []byte {
	version := b.Version
	if len(b.KeyIDs) > 0 {
		version = 1
	}

	size := 4 + 4 + 4 + 16 + 4 + len(b.Data)
	if version == 1 {
		size += 4 + 16*len(b.KeyIDs)
	}

	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(size))
	out = append(out, boxType...)
	out = binary.BigEndian.AppendUint32(out, uint32(version)<<24|b.Flags&0xffffff)
	out = append(out, b.SystemID[:]...)
	if version == 1 {
		out = binary.BigEndian.AppendUint32(out, uint32(len(b.KeyIDs)))
		for _, kid := range b.KeyIDs {
			out = append(out, kid[:]...)
		}
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(b.Data)))

	return append(out, b.Data...)
}

// System maps the box system id onto the known registry.
func (b *Box) System() System {
	switch b.SystemID {
	case WidevineSystemID:
		return SystemWidevine
	case PlayReadySystemID:
		return SystemPlayReady
	case FairPlaySystemID:
		return SystemFairPlay
	case ClearKeySystemID:
		return SystemClearKey
	default:
		return SystemUnknown
	}
}

// WidevineKeyIDs returns the content key identifiers. Box-level identifiers
// (version 1) take precedence; otherwise the pssh-data payload is decoded
// and its key_ids fields collected, skipping every other field.
func (b *Box) WidevineKeyIDs() ([][16]byte, error) {
	if b.System() != SystemWidevine {
		return nil, ErrWrongSystem
	}
	if len(b.KeyIDs) > 0 {
		return append([][16]byte(nil), b.KeyIDs...), nil
	}

	const fieldKeyIDs = 2

	var kids [][16]byte
	off := 0
	for off < len(b.Data) {
		field, wt, next, err := wire.Tag(b.Data, off)
		if err != nil {
			return nil, fmt.Errorf("pssh: widevine data: %w", err)
		}
		if field == fieldKeyIDs && wt == wire.TypeBytes {
			var kid []byte
			kid, off, err = wire.Bytes(b.Data, next)
			if err != nil {
				return nil, fmt.Errorf("pssh: widevine kid: %w", err)
			}
			var k [16]byte
			copy(k[:], kid)
			kids = append(kids, k)

			continue
		}
		off, err = wire.Skip(b.Data, next, wt)
		if err != nil {
			return nil, fmt.Errorf("pssh: widevine data: %w", err)
		}
	}

	return kids, nil
}
