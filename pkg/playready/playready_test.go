package playready

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdmlab/go_cdm/pkg/bcert"
	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
	"github.com/cdmlab/go_cdm/pkg/pssh"
	"github.com/cdmlab/go_cdm/pkg/xmr"
)

func rawScalar(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	out := make([]byte, 32)
	key.D.FillBytes(out)

	return out
}

func pubPoint(key *ecdsa.PrivateKey) cryptoutils.ECPoint {
	return cryptoutils.ECPoint{X: key.PublicKey.X, Y: key.PublicKey.Y}
}

// testDevice provisions a device with a two-certificate chain rooted at a
// throwaway issuer.
func testDevice(t *testing.T) *Device {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	groupKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	groupCert, err := bcert.BuildCertificate(
		rand.Reader,
		&bcert.BasicInfo{SecurityLevel: 2000, Type: bcert.CertTypeIssuer},
		&bcert.KeyInfo{Keys: []bcert.KeyEntry{
			{Type: 1, Key: pubPoint(groupKey).Bytes(), Usages: []uint32{bcert.KeyUsageSign}},
		}},
		nil,
		rootKey,
	)
	require.NoError(t, err)

	leafCert, err := bcert.BuildCertificate(
		rand.Reader,
		&bcert.BasicInfo{SecurityLevel: 2000, Type: bcert.CertTypeDevice},
		&bcert.KeyInfo{Keys: []bcert.KeyEntry{
			{Type: 1, Key: pubPoint(signKey).Bytes(), Usages: []uint32{bcert.KeyUsageSign}},
			{Type: 1, Key: pubPoint(encKey).Bytes(), Usages: []uint32{bcert.KeyUsageEncryptKey}},
		}},
		nil,
		groupKey,
	)
	require.NoError(t, err)

	dev, err := NewDevice(
		rawScalar(t, signKey),
		rawScalar(t, encKey),
		bcert.BuildChain(leafCert, groupCert),
	)
	require.NoError(t, err)

	return dev
}

const testWRM = `<WRMHEADER xmlns="http://schemas.microsoft.com/DRM/2007/03/PlayReadyHeader" version="4.2.0.0">` +
	`<DATA><PROTECTINFO><KIDS><KID ALGID="AESCTR" VALUE="AQIDBAUGBwgJCgsMDQ4PEA=="></KID></KIDS></PROTECTINFO>` +
	`<LA_URL>https://license.example.com/rightsmanager.asmx</LA_URL></DATA></WRMHEADER>`

func testBox(t *testing.T) *pssh.Box {
	t.Helper()

	box := &pssh.Box{SystemID: pssh.PlayReadySystemID, Data: pssh.EncodeWRMHeader(testWRM)}
	parsed, err := pssh.Parse(box.Encode())
	require.NoError(t, err)

	return parsed
}

// challengeFields is the subset of the SOAP challenge a server reads.
type challengeFields struct {
	Nonce       []byte
	KeyData     []byte
	CipherValue []byte
	PublicKey   []byte
	Signature   []byte
}

func parseChallenge(t *testing.T, challenge []byte) challengeFields {
	t.Helper()

	var f challengeFields
	dec := xml.NewDecoder(strings.NewReader(string(challenge)))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var dst *[]byte
		switch start.Name.Local {
		case "LicenseNonce":
			dst = &f.Nonce
		case "KeyData":
			dst = &f.KeyData
		case "CipherValue":
			dst = &f.CipherValue
		case "PublicKey":
			dst = &f.PublicKey
		case "SignatureValue":
			dst = &f.Signature
		default:
			continue
		}
		var text string
		require.NoError(t, dec.DecodeElement(&text, &start))
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		require.NoError(t, err)
		*dst = raw
	}

	return f
}

// fakeLicenseServer issues XMR licenses bound to the challenge nonce.
type fakeLicenseServer struct {
	t         *testing.T
	serverKey *ecdsa.PrivateKey
	devicePub cryptoutils.ECPoint
}

func newFakeServer(t *testing.T, dev *Device) *fakeLicenseServer {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return &fakeLicenseServer{
		t:         t,
		serverKey: key,
		devicePub: pubPoint(dev.EncryptionKey),
	}
}

// respond issues one license with a plain ECC-256 content key and returns
// the SOAP response plus the clear content key.
func (s *fakeLicenseServer) respond(challenge []byte, kid [16]byte) (response, contentKey []byte) {
	f := parseChallenge(s.t, challenge)
	require.Len(s.t, f.Nonce, 16)

	// The client data must decrypt under the session point's X halves.
	sessionPoint, err := cryptoutils.ElGamalDecrypt(s.serverKey.D, f.KeyData)
	require.NoError(s.t, err)
	x := make([]byte, 32)
	sessionPoint.X.FillBytes(x)
	clientData, err := cryptoutils.AESCBCDecrypt(x[16:], f.CipherValue[:16], f.CipherValue[16:])
	require.NoError(s.t, err)
	require.Contains(s.t, string(clientData), "CertificateChain")

	// Content key material: a random curve point, X halves as ci ‖ ck.
	keyPoint, err := cryptoutils.GenerateECPoint(rand.Reader)
	require.NoError(s.t, err)
	kx := make([]byte, 32)
	keyPoint.X.FillBytes(kx)
	integrityKey, clearKey := kx[:16], kx[16:]

	encrypted, err := cryptoutils.ElGamalEncrypt(rand.Reader, s.devicePub, keyPoint)
	require.NoError(s.t, err)

	var body []byte
	body = xmr.AppendObject(body, 0, xmr.TypeECCDeviceKey,
		xmr.EncodeECCDeviceKey(s.devicePub.Bytes()))
	body = xmr.AppendObject(body, 0, xmr.TypeContentKey, xmr.EncodeContentKey(xmr.ContentKeyObject{
		KeyID:        pssh.KeyIDToGUID(kid),
		KeyType:      xmr.KeyTypeAES128CTR,
		CipherType:   xmr.CipherECC256,
		EncryptedKey: encrypted,
	}))

	var rightsID [16]byte
	copy(rightsID[:], f.Nonce)
	lic, err := xmr.BuildLicense(3, rightsID, body, integrityKey)
	require.NoError(s.t, err)

	return soapResponse(lic), clearKey
}

func soapResponse(licenses ...[]byte) []byte {
	var sb strings.Builder
	sb.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`)
	sb.WriteString(`<AcquireLicenseResponse xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols">`)
	sb.WriteString(`<AcquireLicenseResult><Response><LicenseResponse><Licenses>`)
	for _, lic := range licenses {
		sb.WriteString("<License>")
		sb.WriteString(base64.StdEncoding.EncodeToString(lic))
		sb.WriteString("</License>")
	}
	sb.WriteString(`</Licenses></LicenseResponse></Response></AcquireLicenseResult>`)
	sb.WriteString(`</AcquireLicenseResponse></soap:Body></soap:Envelope>`)

	return []byte(sb.String())
}

func testCDM(t *testing.T, dev *Device, server *fakeLicenseServer) *CDM {
	t.Helper()

	client, err := NewCDM(dev, WithLicenseServerKey(pubPoint(server.serverKey).Bytes()))
	require.NoError(t, err)

	return client
}

func TestEndToEndExchange(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	server := newFakeServer(t, dev)
	client := testCDM(t, dev, server)
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	challenge, err := client.BuildChallenge(session, testBox(t))
	require.NoError(t, err)

	// Challenge carries the content header and a verifiable signature.
	assert.Contains(t, string(challenge), "<ContentHeader>"+testWRM)
	f := parseChallenge(t, challenge)
	assert.Equal(t, pubPoint(dev.SigningKey).Bytes(), f.PublicKey)

	kid := [16]byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05, 0x08, 0x07, 9, 10, 11, 12, 13, 14, 15, 16}
	response, clearKey := server.respond(challenge, kid)

	keys, err := client.ProcessResponse(session, response)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, kid, keys[0].ID)
	assert.Equal(t, clearKey, keys[0].Key)
	assert.Equal(t, cdm.RoleContent, keys[0].Role)

	// Context consumed: replaying the response fails.
	_, err = client.ProcessResponse(session, response)
	require.ErrorIs(t, err, cdm.ErrContextNotFound)
}

func TestProcessResponseRejectsTampering(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	server := newFakeServer(t, dev)
	client := testCDM(t, dev, server)
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	challenge, err := client.BuildChallenge(session, testBox(t))
	require.NoError(t, err)

	// Flip a bit in the trailing CMAC of the issued license.
	response, _ := server.respond(challenge, [16]byte{1})
	var envelope struct {
		Licenses []string `xml:"Body>AcquireLicenseResponse>AcquireLicenseResult>Response>LicenseResponse>Licenses>License"`
	}
	require.NoError(t, xml.Unmarshal(response, &envelope))
	raw, err := base64.StdEncoding.DecodeString(envelope.Licenses[0])
	require.NoError(t, err)
	raw[len(raw)-1] ^= 1

	_, err = client.ProcessResponse(session, soapResponse(raw))
	require.ErrorIs(t, err, cdm.ErrIntegrity)
}

func TestProcessResponseKeyMismatch(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	otherDev := testDevice(t)
	// The server answers dev's challenge but binds the license to the other
	// device's encryption key.
	server := newFakeServer(t, otherDev)
	client := testCDM(t, dev, server)
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	challenge, err := client.BuildChallenge(session, testBox(t))
	require.NoError(t, err)
	response, _ := server.respond(challenge, [16]byte{1})

	_, err = client.ProcessResponse(session, response)
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestProcessResponseServerFault(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	server := newFakeServer(t, dev)
	client := testCDM(t, dev, server)
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	fault := []byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body><soap:Fault><faultcode>soap:Server</faultcode>` +
		`<faultstring>device revoked</faultstring></soap:Fault></soap:Body></soap:Envelope>`)

	_, err = client.ProcessResponse(session, fault)
	require.ErrorIs(t, err, cdm.ErrServerFault)
	assert.Contains(t, err.Error(), "device revoked")
}

func TestProcessResponseUnsupportedCipher(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	server := newFakeServer(t, dev)
	client := testCDM(t, dev, server)
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	challenge, err := client.BuildChallenge(session, testBox(t))
	require.NoError(t, err)
	f := parseChallenge(t, challenge)

	var body []byte
	body = xmr.AppendObject(body, 0, xmr.TypeContentKey, xmr.EncodeContentKey(xmr.ContentKeyObject{
		KeyID:        [16]byte{1},
		CipherType:   xmr.CipherRSA1024,
		EncryptedKey: make([]byte, 128),
	}))
	var rightsID [16]byte
	copy(rightsID[:], f.Nonce)
	lic, err := xmr.BuildLicense(3, rightsID, body, make([]byte, 16))
	require.NoError(t, err)

	_, err = client.ProcessResponse(session, soapResponse(lic))
	require.ErrorIs(t, err, cdm.ErrNoKeys)
	require.ErrorIs(t, err, cdm.ErrUnsupportedKeyEntry)
}

func TestDeviceHelpers(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	assert.Equal(t, uint32(2000), dev.SecurityLevel())
	require.NotNil(t, dev.Chain())
	assert.Len(t, dev.Chain().Certs, 2)

	// The synthetic chain is not rooted at the production issuer.
	require.Error(t, dev.VerifyCertificate(time.Now()))

	_, err := ParseECCKey(make([]byte, 5))
	require.ErrorIs(t, err, ErrBadKeyMaterial)
}

// TestScalableLicense walks the symmetric key ladder end to end: the server
// derives the uplink and secondary keys forward, the client inverts them.
func TestScalableLicense(t *testing.T) {
	t.Parallel()

	dev := testDevice(t)
	server := newFakeServer(t, dev)
	client := testCDM(t, dev, server)
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	challenge, err := client.BuildChallenge(session, testBox(t))
	require.NoError(t, err)
	f := parseChallenge(t, challenge)

	rootPoint, err := cryptoutils.GenerateECPoint(rand.Reader)
	require.NoError(t, err)
	rx := make([]byte, 32)
	rootPoint.X.FillBytes(rx)
	rootCK := rx[16:]

	rootEnc, err := cryptoutils.ElGamalEncrypt(rand.Reader, pubPoint(dev.EncryptionKey), rootPoint)
	require.NoError(t, err)

	trailing := make([]byte, 16)
	_, err = rand.Read(trailing)
	require.NoError(t, err)
	var auxKey xmr.AuxKey
	_, err = rand.Read(auxKey.Key[:])
	require.NoError(t, err)

	rgbKey := make([]byte, 16)
	for i := range rgbKey {
		rgbKey[i] = rootCK[i] ^ magicConstantZero[i]
	}
	ckPrime, err := cryptoutils.AESECBEncrypt(rootCK, rgbKey)
	require.NoError(t, err)
	uplinkXKey, err := cryptoutils.AESECBEncrypt(ckPrime, auxKey.Key[:])
	require.NoError(t, err)
	secondaryKey, err := cryptoutils.AESECBEncrypt(rootCK, trailing)
	require.NoError(t, err)

	leafClear := make([]byte, 32)
	_, err = rand.Read(leafClear)
	require.NoError(t, err)
	leafEnc, err := cryptoutils.AESECBEncrypt(secondaryKey, leafClear)
	require.NoError(t, err)
	leafEnc, err = cryptoutils.AESECBEncrypt(uplinkXKey, leafEnc)
	require.NoError(t, err)

	encrypted := append(append(append([]byte(nil), rootEnc...), trailing...), leafEnc...)

	kid := [16]byte{0xAA, 1, 2, 3}
	var body []byte
	body = xmr.AppendObject(body, 0, xmr.TypeECCDeviceKey,
		xmr.EncodeECCDeviceKey(pubPoint(dev.EncryptionKey).Bytes()))
	body = xmr.AppendObject(body, 0, xmr.TypeAuxKeys, xmr.EncodeAuxKeys([]xmr.AuxKey{auxKey}))
	body = xmr.AppendObject(body, 0, xmr.TypeContentKey, xmr.EncodeContentKey(xmr.ContentKeyObject{
		KeyID:        pssh.KeyIDToGUID(kid),
		KeyType:      xmr.KeyTypeAES128CTR,
		CipherType:   xmr.CipherECC256ViaSymmetric,
		EncryptedKey: encrypted,
	}))

	var rightsID [16]byte
	copy(rightsID[:], f.Nonce)
	lic, err := xmr.BuildLicense(3, rightsID, body, leafClear[:16])
	require.NoError(t, err)

	keys, err := client.ProcessResponse(session, soapResponse(lic))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, kid, keys[0].ID)
	assert.Equal(t, leafClear[16:], keys[0].Key)
}
