package bcert

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
)

// signatureAttrLen is the fixed size of an ECDSA P-256 signature attribute:
// 8-byte header, type, length, 64-byte signature, key width, 64-byte key.
const signatureAttrLen = attrHeaderLen + 2 + 2 + 64 + 4 + 64

// BuildCertificate serializes a certificate from its attributes and signs it
// with issuer. Used when deriving a session leaf certificate from a group
// certificate, and by tests constructing synthetic chains.
func BuildCertificate(
	rand io.Reader,
	basic *BasicInfo,
	keys *KeyInfo,
	extra []RawAttribute,
	issuer *ecdsa.PrivateKey,
) ([]byte, error) {
	var attrs []byte
	attrs = appendAttribute(attrs, TagBasic, encodeBasicInfo(basic))
	if keys != nil {
		attrs = appendAttribute(attrs, TagKey, encodeKeyInfo(keys))
	}
	for _, a := range extra {
		attrs = appendAttribute(attrs, a.Tag, a.Data)
	}

	signedLen := 16 + len(attrs)
	totalLen := signedLen + signatureAttrLen

	out := make([]byte, 0, totalLen)
	out = append(out, certMagic...)
	out = binary.BigEndian.AppendUint32(out, 1)
	out = binary.BigEndian.AppendUint32(out, uint32(totalLen))
	out = binary.BigEndian.AppendUint32(out, uint32(signedLen))
	out = append(out, attrs...)

	sig, err := cryptoutils.ECDSASignP256(rand, issuer, out)
	if err != nil {
		return nil, fmt.Errorf("bcert: sign certificate: %w", err)
	}
	signingKey := cryptoutils.ECPoint{X: issuer.PublicKey.X, Y: issuer.PublicKey.Y}.Bytes()

	var sigData []byte
	sigData = binary.BigEndian.AppendUint16(sigData, signatureTypeECDSAP256)
	sigData = binary.BigEndian.AppendUint16(sigData, uint16(len(sig)))
	sigData = append(sigData, sig...)
	sigData = binary.BigEndian.AppendUint32(sigData, uint32(len(signingKey)*8))
	sigData = append(sigData, signingKey...)

	return appendAttribute(out, TagSignature, sigData), nil
}

// BuildChain wraps already-serialized certificates, leaf first, in a chain
// header.
func BuildChain(certs ...[]byte) []byte {
	total := 20
	for _, c := range certs {
		total += len(c)
	}

	out := make([]byte, 0, total)
	out = append(out, chainMagic...)
	out = binary.BigEndian.AppendUint32(out, 1)
	out = binary.BigEndian.AppendUint32(out, uint32(total))
	out = binary.BigEndian.AppendUint32(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(certs)))
	for _, c := range certs {
		out = append(out, c...)
	}

	return out
}

func appendAttribute(dst []byte, tag uint16, data []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, 0)
	dst = binary.BigEndian.AppendUint16(dst, tag)
	dst = binary.BigEndian.AppendUint32(dst, uint32(attrHeaderLen+len(data)))

	return append(dst, data...)
}

func encodeBasicInfo(info *BasicInfo) []byte {
	var out []byte
	out = append(out, info.CertID[:]...)
	out = binary.BigEndian.AppendUint32(out, info.SecurityLevel)
	out = binary.BigEndian.AppendUint32(out, info.Flags)
	out = binary.BigEndian.AppendUint32(out, info.Type)
	out = append(out, info.PublicKeyDigest[:]...)
	out = binary.BigEndian.AppendUint32(out, info.ExpirationDate)

	return append(out, info.ClientID[:]...)
}

func encodeKeyInfo(info *KeyInfo) []byte {
	var out []byte
	out = binary.BigEndian.AppendUint32(out, uint32(len(info.Keys)))
	for _, k := range info.Keys {
		out = binary.BigEndian.AppendUint16(out, k.Type)
		out = binary.BigEndian.AppendUint16(out, uint16(len(k.Key)*8))
		out = binary.BigEndian.AppendUint32(out, k.Flags)
		out = append(out, k.Key...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(k.Usages)))
		for _, u := range k.Usages {
			out = binary.BigEndian.AppendUint32(out, u)
		}
	}

	return out
}
