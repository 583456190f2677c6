package playready

import (
	"fmt"

	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
	"github.com/cdmlab/go_cdm/pkg/xmr"
)

// Scalable (ECC-256-via-symmetric) entries carry a two-level key: a 144-byte
// embedded root license (128 ElGamal bytes plus one trailing block) followed
// by the doubly-encrypted 32-byte leaf. The ladder walks root to leaf:
//
//	rgbKey       = rootContentKey XOR magic constant
//	ckPrime      = AES-ECB(rootContentKey, rgbKey)
//	uplinkXKey   = AES-ECB(ckPrime, auxKey)
//	secondaryKey = AES-ECB(rootContentKey, root trailing block)
//	leaf         = AES-ECB-decrypt(secondaryKey, AES-ECB-decrypt(uplinkXKey, leaf))
//
// The leaf halves are the integrity and content keys.
const (
	scalableRootLen = 144
	scalableLeafLen = 32
)

func (c *CDM) decryptScalable(encrypted []byte, aux []xmr.AuxKey) (integrity, content []byte, err error) {
	if len(encrypted) != scalableRootLen+scalableLeafLen {
		return nil, nil, fmt.Errorf("playready: scalable entry length %d", len(encrypted))
	}
	if len(aux) == 0 {
		return nil, nil, fmt.Errorf("playready: scalable license without auxiliary keys")
	}

	rootPoint, err := cryptoutils.ElGamalDecrypt(c.device.EncryptionKey.D, encrypted[:128])
	if err != nil {
		return nil, nil, err
	}
	x := make([]byte, 32)
	rootPoint.X.FillBytes(x)
	rootContentKey := x[16:]

	rgbKey := make([]byte, 16)
	for i := range rgbKey {
		rgbKey[i] = rootContentKey[i] ^ magicConstantZero[i]
	}
	ckPrime, err := cryptoutils.AESECBEncrypt(rootContentKey, rgbKey)
	if err != nil {
		return nil, nil, err
	}
	uplinkXKey, err := cryptoutils.AESECBEncrypt(ckPrime, aux[0].Key[:])
	if err != nil {
		return nil, nil, err
	}
	secondaryKey, err := cryptoutils.AESECBEncrypt(rootContentKey, encrypted[128:scalableRootLen])
	if err != nil {
		return nil, nil, err
	}

	leaf, err := cryptoutils.AESECBDecrypt(uplinkXKey, encrypted[scalableRootLen:])
	if err != nil {
		return nil, nil, err
	}
	leaf, err = cryptoutils.AESECBDecrypt(secondaryKey, leaf)
	if err != nil {
		return nil, nil, err
	}

	return leaf[:16], leaf[16:], nil
}
