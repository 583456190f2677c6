package xmr

import (
	"encoding/binary"

	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
)

// Builder helpers produce serialized licenses. License services are the
// usual producers; here they back test fixtures and local tooling.

// AppendObject appends one TLV object.
func AppendObject(dst []byte, flags, typ uint16, data []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, flags)
	dst = binary.BigEndian.AppendUint16(dst, typ)
	dst = binary.BigEndian.AppendUint32(dst, uint32(objHeaderLen+len(data)))

	return append(dst, data...)
}

// AppendContainer appends a container object wrapping the given body.
func AppendContainer(dst []byte, typ uint16, body []byte) []byte {
	return AppendObject(dst, flagContainer, typ, body)
}

// EncodeContentKey serializes a content-key object payload.
func EncodeContentKey(ck ContentKeyObject) []byte {
	var out []byte
	out = append(out, ck.KeyID[:]...)
	out = binary.BigEndian.AppendUint16(out, ck.KeyType)
	out = binary.BigEndian.AppendUint16(out, ck.CipherType)
	out = binary.BigEndian.AppendUint16(out, uint16(len(ck.EncryptedKey)))

	return append(out, ck.EncryptedKey...)
}

// EncodeECCDeviceKey serializes an ECC device key object payload.
func EncodeECCDeviceKey(point []byte) []byte {
	var out []byte
	out = binary.BigEndian.AppendUint16(out, 1) // P-256
	out = binary.BigEndian.AppendUint16(out, uint16(len(point)))

	return append(out, point...)
}

// EncodeAuxKeys serializes an auxiliary-key object payload.
func EncodeAuxKeys(keys []AuxKey) []byte {
	var out []byte
	out = binary.BigEndian.AppendUint16(out, uint16(len(keys)))
	for _, k := range keys {
		out = binary.BigEndian.AppendUint32(out, k.Location)
		out = append(out, k.Key[:]...)
	}

	return out
}

// BuildLicense assembles a signed license: header, then an outer container
// holding body with a CMAC signature object as its last child. The CMAC,
// keyed by integrityKey, covers everything before the signature object.
func BuildLicense(version uint32, rightsID [16]byte, body []byte, integrityKey []byte) ([]byte, error) {
	// 8-byte TLV header, type, length, 16-byte CMAC.
	const sigObjLen = objHeaderLen + 4 + 16

	var out []byte
	out = append(out, magic...)
	out = binary.BigEndian.AppendUint32(out, version)
	out = append(out, rightsID[:]...)
	out = binary.BigEndian.AppendUint16(out, flagContainer)
	out = binary.BigEndian.AppendUint16(out, TypeOuterContainer)
	out = binary.BigEndian.AppendUint32(out, uint32(objHeaderLen+len(body)+sigObjLen))
	out = append(out, body...)

	mac, err := cryptoutils.AESCMAC(integrityKey, out)
	if err != nil {
		return nil, err
	}

	var sigData []byte
	sigData = binary.BigEndian.AppendUint16(sigData, 1) // AES-CMAC
	sigData = binary.BigEndian.AppendUint16(sigData, uint16(len(mac)))
	sigData = append(sigData, mac...)

	return AppendObject(out, 0, TypeSignature, sigData), nil
}
