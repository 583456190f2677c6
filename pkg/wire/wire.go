// Package wire implements the length-delimited binary message encoding used
// by Widevine license exchanges: base-128 varints, field tags, and
// length-delimited payloads. Decoding tolerates unknown fields so that newer
// server messages remain parseable.
package wire

import (
	"errors"
	"fmt"
)

// Type identifies the low three bits of a field tag.
type Type uint8

const (
	TypeVarint  Type = 0
	TypeFixed64 Type = 1
	TypeBytes   Type = 2
	TypeFixed32 Type = 5
)

const (
	// MaxVarintLen is the longest encoding of a 64-bit varint.
	MaxVarintLen = 10

	maxFieldNumber = 1<<29 - 1
)

var (
	// ErrTruncated reports input that ends mid-value.
	ErrTruncated = errors.New("wire: truncated input")
	// ErrOverflow reports a varint wider than 64 bits.
	ErrOverflow = errors.New("wire: varint overflows 64 bits")
	// ErrBadTag reports a malformed or unsupported field tag.
	ErrBadTag = errors.New("wire: invalid field tag")
)

// AppendVarint appends v in base-128 little-endian-group encoding.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}

	return append(dst, byte(v))
}

// Varint decodes a varint at off and returns the value and the offset of the
// first byte after it.
func Varint(buf []byte, off int) (uint64, int, error) {
	var v uint64
	for i := 0; ; i++ {
		if off+i >= len(buf) {
			return 0, 0, ErrTruncated
		}
		if i == MaxVarintLen {
			return 0, 0, ErrOverflow
		}
		b := buf[off+i]
		if i == MaxVarintLen-1 && b > 1 {
			return 0, 0, ErrOverflow
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, off + i + 1, nil
		}
	}
}

// AppendTag appends the tag for the given field number and wire type.
func AppendTag(dst []byte, field int, wt Type) []byte {
	return AppendVarint(dst, uint64(field)<<3|uint64(wt))
}

// Tag decodes a field tag at off.
func Tag(buf []byte, off int) (int, Type, int, error) {
	v, next, err := Varint(buf, off)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("wire: tag at %d: %w", off, err)
	}
	field := int(v >> 3)
	if field == 0 || field > maxFieldNumber {
		return 0, 0, 0, fmt.Errorf("%w: field number %d", ErrBadTag, field)
	}
	wt := Type(v & 0x7)
	switch wt {
	case TypeVarint, TypeFixed64, TypeBytes, TypeFixed32:
		return field, wt, next, nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: wire type %d", ErrBadTag, wt)
	}
}

// AppendBytes appends a length-delimited field: tag, length, payload.
func AppendBytes(dst []byte, field int, v []byte) []byte {
	dst = AppendTag(dst, field, TypeBytes)
	dst = AppendVarint(dst, uint64(len(v)))

	return append(dst, v...)
}

// AppendString appends a length-delimited string field.
func AppendString(dst []byte, field int, v string) []byte {
	dst = AppendTag(dst, field, TypeBytes)
	dst = AppendVarint(dst, uint64(len(v)))

	return append(dst, v...)
}

// AppendUint appends a varint field.
func AppendUint(dst []byte, field int, v uint64) []byte {
	dst = AppendTag(dst, field, TypeVarint)

	return AppendVarint(dst, v)
}

// AppendInt appends a signed varint field using two's-complement widening,
// matching how non-zigzag int32/int64 fields travel on the wire.
func AppendInt(dst []byte, field int, v int64) []byte {
	return AppendUint(dst, field, uint64(v))
}

// Bytes decodes a length-delimited payload at off. The returned slice aliases
// buf.
func Bytes(buf []byte, off int) ([]byte, int, error) {
	n, next, err := Varint(buf, off)
	if err != nil {
		return nil, 0, err
	}
	if n > uint64(len(buf)-next) {
		return nil, 0, fmt.Errorf("wire: length %d at %d: %w", n, off, ErrTruncated)
	}

	return buf[next : next+int(n)], next + int(n), nil
}

// Skip advances past the value of a field with the given wire type. Used to
// ignore unknown fields without failing the decode.
func Skip(buf []byte, off int, wt Type) (int, error) {
	switch wt {
	case TypeVarint:
		_, next, err := Varint(buf, off)

		return next, err
	case TypeFixed64:
		if off+8 > len(buf) {
			return 0, ErrTruncated
		}

		return off + 8, nil
	case TypeBytes:
		_, next, err := Bytes(buf, off)

		return next, err
	case TypeFixed32:
		if off+4 > len(buf) {
			return 0, ErrTruncated
		}

		return off + 4, nil
	default:
		return 0, fmt.Errorf("%w: wire type %d", ErrBadTag, wt)
	}
}
