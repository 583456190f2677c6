package xmr

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
)

var (
	testRightsID     = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	testIntegrityKey = bytes.Repeat([]byte{0x5a}, 16)
)

func buildTestLicense(t *testing.T) []byte {
	t.Helper()

	ck := ContentKeyObject{
		KeyID:        [16]byte{0xaa},
		KeyType:      KeyTypeAES128CTR,
		CipherType:   CipherECC256,
		EncryptedKey: bytes.Repeat([]byte{0xcc}, 128),
	}

	var keyMaterial []byte
	keyMaterial = AppendObject(keyMaterial, 0, TypeContentKey, EncodeContentKey(ck))
	keyMaterial = AppendObject(
		keyMaterial, 0, TypeECCDeviceKey,
		EncodeECCDeviceKey(bytes.Repeat([]byte{0xdd}, 64)),
	)

	var policy []byte
	policy = AppendObject(policy, 0, TypeExpiration, []byte{
		0, 0, 0, 100, // begin
		0, 0, 1, 0, // end
	})
	policy = AppendObject(policy, 0, TypeIssueDate, []byte{0, 0, 0, 50})
	policy = AppendObject(policy, 0, TypeSecurityLevel, []byte{0x07, 0xd0})
	// An object type nothing here decodes; must parse as an opaque leaf.
	policy = AppendObject(policy, 0, 0x7fee, []byte{1, 2, 3})

	var body []byte
	body = AppendContainer(body, TypeGlobalPolicy, policy)
	body = AppendContainer(body, TypeKeyMaterialContainer, keyMaterial)

	raw, err := BuildLicense(3, testRightsID, body, testIntegrityKey)
	require.NoError(t, err)

	return raw
}

func TestParseLicense(t *testing.T) {
	t.Parallel()

	lic, err := Parse(buildTestLicense(t))
	require.NoError(t, err)

	assert.Equal(t, uint32(3), lic.Version)
	assert.Equal(t, testRightsID, lic.RightsID)
	require.Len(t, lic.Objects, 2) // outer container + signature

	keys, err := lic.ContentKeys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, [16]byte{0xaa}, keys[0].KeyID)
	assert.Equal(t, uint16(KeyTypeAES128CTR), keys[0].KeyType)
	assert.Equal(t, uint16(CipherECC256), keys[0].CipherType)
	assert.Len(t, keys[0].EncryptedKey, 128)

	devKey, err := lic.ECCDeviceKey()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xdd}, 64), devKey)

	// Unknown leaf survives as opaque data.
	unknown := lic.Find(0x7fee)
	require.Len(t, unknown, 1)
	assert.Equal(t, []byte{1, 2, 3}, unknown[0].Data)
}

func TestLicensePolicy(t *testing.T) {
	t.Parallel()

	lic, err := Parse(buildTestLicense(t))
	require.NoError(t, err)

	begin, end, ok := lic.Expiration()
	require.True(t, ok)
	assert.Equal(t, time.Unix(100, 0), begin)
	assert.Equal(t, time.Unix(256, 0), end)

	issued, ok := lic.IssueDate()
	require.True(t, ok)
	assert.Equal(t, time.Unix(50, 0), issued)

	level, ok := lic.SecurityLevel()
	require.True(t, ok)
	assert.Equal(t, uint16(2000), level)

	_, ok = lic.OutputProtectionLevels()
	assert.False(t, ok)
}

func TestSignatureCoversPrefix(t *testing.T) {
	t.Parallel()

	raw := buildTestLicense(t)
	lic, err := Parse(raw)
	require.NoError(t, err)

	sig, err := lic.Signature()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), sig.Type)
	require.Len(t, sig.Data, 16)

	signed, err := lic.SignedBytes()
	require.NoError(t, err)
	require.NoError(t, cryptoutils.VerifyAESCMAC(testIntegrityKey, signed, sig.Data))

	// Any change to the signed region must break the CMAC.
	tampered := append([]byte(nil), signed...)
	tampered[headerLen+2] ^= 1
	err = cryptoutils.VerifyAESCMAC(testIntegrityKey, tampered, sig.Data)
	require.ErrorIs(t, err, cryptoutils.ErrMACMismatch)
}

func TestAuxKeys(t *testing.T) {
	t.Parallel()

	aux := []AuxKey{
		{Location: 0x80000000, Key: [16]byte{1}},
		{Location: 0x80000001, Key: [16]byte{2}},
	}
	var body []byte
	body = AppendObject(body, 0, TypeAuxKeys, EncodeAuxKeys(aux))
	ck := ContentKeyObject{CipherType: CipherECC256ViaSymmetric, EncryptedKey: make([]byte, 144)}
	body = AppendObject(body, 0, TypeContentKey, EncodeContentKey(ck))

	raw, err := BuildLicense(3, testRightsID, body, testIntegrityKey)
	require.NoError(t, err)
	lic, err := Parse(raw)
	require.NoError(t, err)

	got, err := lic.AuxKeys()
	require.NoError(t, err)
	assert.Equal(t, aux, got)

	// Absent aux keys are not an error.
	other, err := Parse(buildTestLicense(t))
	require.NoError(t, err)
	none, err := other.AuxKeys()
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	raw := buildTestLicense(t)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "BadMagic", mutate: func(b []byte) []byte { b[0] = 'Y'; return b }},
		{name: "TruncatedHeader", mutate: func(b []byte) []byte { return b[:10] }},
		{name: "TruncatedObject", mutate: func(b []byte) []byte { return b[:len(b)-5] }},
		{
			name: "ObjectLengthOverrun",
			mutate: func(b []byte) []byte {
				// Inflate the outer container length field.
				b[headerLen+4] = 0x7f
				return b
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tc.mutate(append([]byte(nil), raw...)))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMissingObjects(t *testing.T) {
	t.Parallel()

	raw, err := BuildLicense(3, testRightsID, nil, testIntegrityKey)
	require.NoError(t, err)
	lic, err := Parse(raw)
	require.NoError(t, err)

	_, err = lic.ContentKeys()
	require.ErrorIs(t, err, ErrMissingObject)
	_, err = lic.ECCDeviceKey()
	require.ErrorIs(t, err, ErrMissingObject)
}
