// Package xmr parses PlayReady XMR license containers: a fixed header
// followed by a tree of tag-length-value objects. An object whose flags set
// the container bit nests child objects; leaves carry payloads. Only the
// object types the response processor and policy inspection consume are
// decoded; unknown leaves are kept opaque.
package xmr

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Object types consumed by this package.
const (
	TypeOuterContainer       = 0x0001
	TypeGlobalPolicy         = 0x0002
	TypePlaybackPolicy       = 0x0004
	TypeOutputProtection     = 0x0005
	TypeKeyMaterialContainer = 0x0009
	TypeContentKey           = 0x000a
	TypeSignature            = 0x000b
	TypeExpiration           = 0x0012
	TypeIssueDate            = 0x0013
	TypeECCDeviceKey         = 0x002a
	TypeSecurityLevel        = 0x0034
	TypeAuxKeys              = 0x0051
)

// Content-key cipher types.
const (
	CipherRSA1024            = 1
	CipherChainedLicense     = 2
	CipherECC256             = 3
	CipherECC256WithKZ       = 4
	CipherECC256ViaSymmetric = 6
)

// Content-key usage types.
const (
	KeyTypeInvalid   = 0
	KeyTypeAES128CTR = 1
	KeyTypeRC4       = 2
	KeyTypeAES128ECB = 3
	KeyTypeCocktail  = 4
	KeyTypeAES128CBC = 5
)

const (
	flagContainer = 0x0002

	headerLen    = 24 // magic, version, rights id
	objHeaderLen = 8
)

var (
	// ErrMalformed reports structurally invalid license bytes.
	ErrMalformed = errors.New("xmr: malformed license")
	// ErrMissingObject reports a required object absent from the license.
	ErrMissingObject = errors.New("xmr: required object missing")
)

var magic = []byte{'X', 'M', 'R', 0x00}

// Object is one node of the license tree. Containers carry Children; leaves
// carry Data aliasing the license buffer.
type Object struct {
	Flags    uint16
	Type     uint16
	Data     []byte
	Children []Object
}

// License is a parsed XMR container.
type License struct {
	Version  uint32
	RightsID [16]byte
	Objects  []Object

	raw []byte
}

// Parse decodes an XMR license.
func Parse(raw []byte) (*License, error) {
	s := cryptobyte.String(raw)

	var m []byte
	if !s.ReadBytes(&m, 4) || string(m) != string(magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}

	lic := &License{raw: raw}
	var rightsID []byte
	if !s.ReadUint32(&lic.Version) || !s.ReadBytes(&rightsID, 16) {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	copy(lic.RightsID[:], rightsID)

	objects, err := parseObjects(raw[headerLen:], 0)
	if err != nil {
		return nil, err
	}
	lic.Objects = objects

	return lic, nil
}

const maxDepth = 8

func parseObjects(data []byte, depth int) ([]Object, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: object nesting too deep", ErrMalformed)
	}

	var objects []Object
	off := 0
	for off < len(data) {
		if off+objHeaderLen > len(data) {
			return nil, fmt.Errorf("%w: truncated object header", ErrMalformed)
		}
		s := cryptobyte.String(data[off:])
		var flags, typ uint16
		var length uint32
		_ = s.ReadUint16(&flags)
		_ = s.ReadUint16(&typ)
		_ = s.ReadUint32(&length)
		if length < objHeaderLen || int(length) > len(data)-off {
			return nil, fmt.Errorf("%w: object %#04x length %d", ErrMalformed, typ, length)
		}

		body := data[off+objHeaderLen : off+int(length)]
		obj := Object{Flags: flags, Type: typ}
		if flags&flagContainer != 0 {
			children, err := parseObjects(body, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Children = children
		} else {
			obj.Data = body
		}
		objects = append(objects, obj)
		off += int(length)
	}

	return objects, nil
}

// Find returns every object of the given type, walking containers
// depth-first.
func (l *License) Find(typ uint16) []*Object {
	var out []*Object
	var walk func(objs []Object)
	walk = func(objs []Object) {
		for i := range objs {
			if objs[i].Type == typ {
				out = append(out, &objs[i])
			}
			walk(objs[i].Children)
		}
	}
	walk(l.Objects)

	return out
}

func (l *License) findOne(typ uint16) (*Object, error) {
	objs := l.Find(typ)
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: type %#04x", ErrMissingObject, typ)
	}

	return objs[0], nil
}
