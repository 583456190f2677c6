// Package cdm holds the variant-independent pieces of the license engine:
// session bookkeeping with derivation contexts, the recovered content-key
// model, and the client interface both protocol variants implement.
package cdm

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// KeyRole classifies a recovered key by its declared purpose.
type KeyRole uint8

const (
	RoleUnknown KeyRole = iota
	RoleSigning
	RoleContent
	RoleKeyControl
	RoleOperatorSession
	RoleEntitlement
)

func (r KeyRole) String() string {
	switch r {
	case RoleSigning:
		return "signing"
	case RoleContent:
		return "content"
	case RoleKeyControl:
		return "key-control"
	case RoleOperatorSession:
		return "operator-session"
	case RoleEntitlement:
		return "entitlement"
	default:
		return "unknown"
	}
}

// ContentKey is one key recovered from a license response.
type ContentKey struct {
	ID   [16]byte
	Key  []byte
	Role KeyRole
}

// String renders the key as kid:key in lowercase hex, the interchange form
// used by downstream decryption tools.
func (k ContentKey) String() string {
	return fmt.Sprintf("%s:%s", hex.EncodeToString(k.ID[:]), hex.EncodeToString(k.Key))
}

// UUID returns the key identifier as a canonical UUID.
func (k ContentKey) UUID() uuid.UUID {
	return uuid.UUID(k.ID)
}

// NormalizeKeyID maps the loosely-typed key identifiers found in license
// responses onto 16 bytes:
//
//   - empty: all zeros
//   - decimal ASCII text: the value as a 16-byte big-endian integer
//   - shorter than 16: left bytes kept, zero-padded on the right
//   - exactly 16: unchanged
//   - longer than 16: truncated to the first 16 bytes
func NormalizeKeyID(raw []byte) [16]byte {
	var out [16]byte

	if len(raw) == 0 {
		return out
	}
	if n, ok := decimalKeyID(raw); ok {
		n.FillBytes(out[:])

		return out
	}
	copy(out[:], raw)

	return out
}

func decimalKeyID(raw []byte) (*big.Int, bool) {
	if len(raw) >= 16 {
		return nil, false
	}
	for _, b := range raw {
		if b < '0' || b > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(string(raw), 10)
	if !ok || n.BitLen() > 128 {
		return nil, false
	}

	return n, true
}
