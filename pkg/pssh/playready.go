package pssh

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode/utf16"
)

// PlayReady Header Object record types.
const (
	recordWRMHeader         = 1
	recordEmbeddedLicense   = 2
	recordLicenseAcqHeaders = 3
)

// WRMKeyID is one key identifier declared by a WRM header, with the
// encryption algorithm and optional verification checksum the header binds
// to it.
type WRMKeyID struct {
	ID       [16]byte
	AlgID    string
	Checksum []byte
}

// WRMHeader is the rights-management header embedded in a PlayReady Header
// Object. XML keeps the exact UTF-8 decoding of the header; challenges embed
// it verbatim.
type WRMHeader struct {
	XML     string
	Version string
	KeyIDs  []WRMKeyID
	LAURL   string
}

// PlayReadyHeader extracts and parses the WRM header record from the
// PlayReady Header Object in the box payload.
func (b *Box) PlayReadyHeader() (*WRMHeader, error) {
	if b.System() != SystemPlayReady {
		return nil, ErrWrongSystem
	}
	raw, err := playReadyRecord(b.Data, recordWRMHeader)
	if err != nil {
		return nil, err
	}

	return ParseWRMHeader(raw)
}

// playReadyRecord walks the little-endian Header Object record table and
// returns the first record of the wanted type.
func playReadyRecord(data []byte, want uint16) ([]byte, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: playready object too short", ErrMalformed)
	}
	total := binary.LittleEndian.Uint32(data[0:4])
	if uint64(total) != uint64(len(data)) {
		return nil, fmt.Errorf("%w: playready object size %d, have %d", ErrMalformed, total, len(data))
	}
	count := binary.LittleEndian.Uint16(data[4:6])

	off := 6
	for i := 0; i < int(count); i++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("%w: playready record %d", ErrMalformed, i)
		}
		typ := binary.LittleEndian.Uint16(data[off : off+2])
		length := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		off += 4
		if off+length > len(data) {
			return nil, fmt.Errorf("%w: playready record %d length %d", ErrMalformed, i, length)
		}
		if typ == want {
			return data[off : off+length], nil
		}
		off += length
	}

	return nil, fmt.Errorf("%w: no record of type %d", ErrMalformed, want)
}

// ParseWRMHeader decodes a UTF-16LE WRM header document and collects the key
// identifiers, license acquisition URL and per-KID checksums across header
// versions 4.0 through 4.3.
func ParseWRMHeader(raw []byte) (*WRMHeader, error) {
	text, err := decodeUTF16LE(raw)
	if err != nil {
		return nil, err
	}

	h := &WRMHeader{XML: text}
	dec := xml.NewDecoder(strings.NewReader(text))

	// Header-level ALGID (4.0/4.1) applies to KIDs that carry none.
	var headerAlgID string
	var headerChecksum string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "WRMHEADER":
			for _, a := range start.Attr {
				if a.Name.Local == "version" {
					h.Version = a.Value
				}
			}
		case "ALGID":
			var v string
			if err := dec.DecodeElement(&v, &start); err == nil {
				headerAlgID = strings.TrimSpace(v)
			}
		case "CHECKSUM":
			var v string
			if err := dec.DecodeElement(&v, &start); err == nil {
				headerChecksum = strings.TrimSpace(v)
			}
		case "LA_URL":
			var v string
			if err := dec.DecodeElement(&v, &start); err == nil {
				h.LAURL = strings.TrimSpace(v)
			}
		case "KID":
			kid, err := parseKIDElement(dec, start)
			if err != nil {
				return nil, err
			}
			h.KeyIDs = append(h.KeyIDs, kid)
		}
	}

	for i := range h.KeyIDs {
		if h.KeyIDs[i].AlgID == "" {
			h.KeyIDs[i].AlgID = headerAlgID
		}
		if h.KeyIDs[i].Checksum == nil && headerChecksum != "" {
			if sum, err := base64.StdEncoding.DecodeString(headerChecksum); err == nil {
				h.KeyIDs[i].Checksum = sum
			}
		}
	}
	if len(h.KeyIDs) == 0 {
		return nil, fmt.Errorf("%w: wrm header has no kid", ErrMalformed)
	}

	return h, nil
}

// parseKIDElement handles both framings: 4.0 puts the base64 GUID in element
// text, 4.1+ in a VALUE attribute.
func parseKIDElement(dec *xml.Decoder, start xml.StartElement) (WRMKeyID, error) {
	var kid WRMKeyID
	var value string

	for _, a := range start.Attr {
		switch a.Name.Local {
		case "VALUE":
			value = a.Value
		case "ALGID":
			kid.AlgID = a.Value
		case "CHECKSUM":
			if sum, err := base64.StdEncoding.DecodeString(a.Value); err == nil {
				kid.Checksum = sum
			}
		}
	}
	if value == "" {
		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return kid, fmt.Errorf("%w: kid element: %v", ErrMalformed, err)
		}
		value = strings.TrimSpace(text)
	} else if err := dec.Skip(); err != nil {
		return kid, fmt.Errorf("%w: kid element: %v", ErrMalformed, err)
	}

	guid, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(guid) != 16 {
		return kid, fmt.Errorf("%w: kid value %q", ErrMalformed, value)
	}
	kid.ID = guidToKeyID([16]byte(guid))

	return kid, nil
}

// guidToKeyID converts the GUID mixed-endian layout used inside WRM headers
// to the big-endian key identifier used everywhere else: the first three
// components are byte-swapped, the rest passes through.
func guidToKeyID(g [16]byte) [16]byte {
	return [16]byte{
		g[3], g[2], g[1], g[0],
		g[5], g[4],
		g[7], g[6],
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15],
	}
}

// KeyIDToGUID is the inverse of the WRM header byte-order conversion.
func KeyIDToGUID(kid [16]byte) [16]byte {
	return guidToKeyID(kid) // the swap is an involution
}

func decodeUTF16LE(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("%w: odd utf-16 length %d", ErrMalformed, len(raw))
	}
	u := make([]uint16, len(raw)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	// Strip a BOM if present.
	if len(u) > 0 && u[0] == 0xfeff {
		u = u[1:]
	}

	return string(utf16.Decode(u)), nil
}

// EncodeWRMHeader builds a PlayReady Header Object holding the given UTF-8
// WRM header XML as its single record. Used by tests and tooling to
// construct synthetic boxes.
func EncodeWRMHeader(xmlText string) []byte {
	u := utf16.Encode([]rune(xmlText))
	record := make([]byte, 2*len(u))
	for i, v := range u {
		binary.LittleEndian.PutUint16(record[2*i:], v)
	}

	total := 4 + 2 + 4 + len(record)
	out := make([]byte, 0, total)
	out = binary.LittleEndian.AppendUint32(out, uint32(total))
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint16(out, recordWRMHeader)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(record)))

	return append(out, record...)
}
