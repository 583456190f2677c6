package playready

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
	"github.com/cdmlab/go_cdm/pkg/pssh"
)

// ErrWrongSystem reports content metadata for a different DRM system.
var ErrWrongSystem = errors.New("playready: content is not playready protected")

const clientVersion = "10.0.16384.10011"

// CDM builds challenges and processes responses for one device.
type CDM struct {
	device    *Device
	rand      io.Reader
	now       func() time.Time
	serverKey cryptoutils.ECPoint
}

var _ cdm.Client = (*CDM)(nil)

// Option adjusts CDM construction.
type Option func(*CDM) error

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) Option {
	return func(c *CDM) error {
		c.rand = r

		return nil
	}
}

// WithClock overrides the client-time source.
func WithClock(now func() time.Time) Option {
	return func(c *CDM) error {
		c.now = now

		return nil
	}
}

// WithLicenseServerKey replaces the built-in license server public key
// (raw 64-byte X ‖ Y). Lab and test servers run their own key pairs.
func WithLicenseServerKey(raw []byte) Option {
	return func(c *CDM) error {
		p, err := cryptoutils.ParseECPoint(raw)
		if err != nil {
			return fmt.Errorf("playready: server key: %w", err)
		}
		c.serverKey = p

		return nil
	}
}

// NewCDM returns a client for the given device.
func NewCDM(device *Device, opts ...Option) (*CDM, error) {
	serverKey, err := cryptoutils.ParseECPoint(wmrmServerKey)
	if err != nil {
		return nil, err
	}
	c := &CDM{
		device:    device,
		rand:      rand.Reader,
		now:       time.Now,
		serverKey: serverKey,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BuildChallenge assembles the signed SOAP license acquisition request for
// the given content and records the nonce-keyed derivation context.
func (c *CDM) BuildChallenge(session *cdm.Session, content *pssh.Box) ([]byte, error) {
	header, err := content.PlayReadyHeader()
	if err != nil {
		if errors.Is(err, pssh.ErrWrongSystem) {
			return nil, ErrWrongSystem
		}

		return nil, err
	}

	session.NextRequest()

	nonce := make([]byte, 16)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("playready: nonce: %w", err)
	}

	// The ephemeral session point yields the AES material protecting the
	// client data, and travels ElGamal-encrypted to the license server.
	sessionPoint, err := cryptoutils.GenerateECPoint(c.rand)
	if err != nil {
		return nil, err
	}
	x := make([]byte, 32)
	sessionPoint.X.FillBytes(x)
	aesIV, aesKey := x[:16], x[16:]

	keyData, err := cryptoutils.ElGamalEncrypt(c.rand, c.serverKey, sessionPoint)
	if err != nil {
		return nil, err
	}

	clientData := fmt.Sprintf(
		`<Data><CertificateChains><CertificateChain>%s</CertificateChain></CertificateChains>`+
			`<Features><Feature Name="AESCBC">""</Feature><REE><AESCBCS></AESCBCS></REE></Features></Data>`,
		base64.StdEncoding.EncodeToString(c.device.Certificate),
	)
	cipherValue, err := cryptoutils.AESCBCEncrypt(aesKey, aesIV, []byte(clientData))
	if err != nil {
		return nil, err
	}
	// The IV rides in front of the ciphertext.
	cipherBlob := append(append([]byte(nil), aesIV...), cipherValue...)

	la := fmt.Sprintf(
		`<LA xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols" Id="SignedData" xml:space="preserve">`+
			`<Version>1</Version>`+
			`<ContentHeader>%s</ContentHeader>`+
			`<CLIENTINFO><CLIENTVERSION>%s</CLIENTVERSION></CLIENTINFO>`+
			`<LicenseNonce>%s</LicenseNonce>`+
			`<ClientTime>%d</ClientTime>`+
			`<EncryptedData xmlns="http://www.w3.org/2001/04/xmlenc#" Type="http://www.w3.org/2001/04/xmlenc#Element">`+
			`<EncryptionMethod Algorithm="http://www.w3.org/2001/04/xmlenc#aes128-cbc"></EncryptionMethod>`+
			`<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">`+
			`<EncryptedKey xmlns="http://www.w3.org/2001/04/xmlenc#">`+
			`<EncryptionMethod Algorithm="http://schemas.microsoft.com/DRM/2007/03/protocols#ecc256"></EncryptionMethod>`+
			`<KeyData>%s</KeyData>`+
			`</EncryptedKey>`+
			`</KeyInfo>`+
			`<CipherData><CipherValue>%s</CipherValue></CipherData>`+
			`</EncryptedData>`+
			`</LA>`,
		header.XML,
		clientVersion,
		base64.StdEncoding.EncodeToString(nonce),
		c.now().Unix(),
		base64.StdEncoding.EncodeToString(keyData),
		base64.StdEncoding.EncodeToString(cipherBlob),
	)

	laDigest := sha256.Sum256([]byte(la))
	signedInfo := fmt.Sprintf(
		`<SignedInfo xmlns="http://www.w3.org/2000/09/xmldsig#">`+
			`<CanonicalizationMethod Algorithm="http://www.w3.org/TR/2001/REC-xml-c14n-20010315"></CanonicalizationMethod>`+
			`<SignatureMethod Algorithm="http://schemas.microsoft.com/DRM/2007/03/protocols#ecdsa-sha256"></SignatureMethod>`+
			`<Reference URI="#SignedData">`+
			`<DigestMethod Algorithm="http://schemas.microsoft.com/DRM/2007/03/protocols#sha256"></DigestMethod>`+
			`<DigestValue>%s</DigestValue>`+
			`</Reference>`+
			`</SignedInfo>`,
		base64.StdEncoding.EncodeToString(laDigest[:]),
	)

	signature, err := cryptoutils.ECDSASignP256(c.rand, c.device.SigningKey, []byte(signedInfo))
	if err != nil {
		return nil, err
	}
	signingPub := cryptoutils.ECPoint{
		X: c.device.SigningKey.PublicKey.X,
		Y: c.device.SigningKey.PublicKey.Y,
	}

	envelope := fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" `+
			`xmlns:xsd="http://www.w3.org/2001/XMLSchema" `+
			`xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">`+
			`<soap:Body>`+
			`<AcquireLicense xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols">`+
			`<challenge>`+
			`<Challenge xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols/messages">`+
			`%s`+
			`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">`+
			`%s`+
			`<SignatureValue>%s</SignatureValue>`+
			`<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">`+
			`<KeyValue><ECCKeyValue><PublicKey>%s</PublicKey></ECCKeyValue></KeyValue>`+
			`</KeyInfo>`+
			`</Signature>`+
			`</Challenge>`+
			`</challenge>`+
			`</AcquireLicense>`+
			`</soap:Body>`+
			`</soap:Envelope>`,
		la,
		signedInfo,
		base64.StdEncoding.EncodeToString(signature),
		base64.StdEncoding.EncodeToString(signingPub.Bytes()),
	)

	ctx := cdm.DerivationContext{
		Enc:  append(append([]byte(nil), aesKey...), aesIV...),
		Auth: laDigest[:],
	}
	if err := session.RegisterContext(nonce, ctx); err != nil {
		return nil, err
	}

	return []byte(envelope), nil
}
