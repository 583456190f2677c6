package widevine

import (
	"crypto/aes"
	"fmt"
	"io"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
)

// SetServiceCertificate verifies a service certificate received from the
// license service and caches it in the session for privacy-mode challenges.
// Both framings are accepted: a SignedMessage of type SERVICE_CERTIFICATE
// wrapping a SignedDrmCertificate, or a bare SignedDrmCertificate.
func SetServiceCertificate(session *cdm.Session, raw []byte) (*DrmCertificate, error) {
	candidate := raw
	if sm, err := UnmarshalSignedMessage(raw); err == nil &&
		sm.Type == MessageServiceCertificate && sm.Msg != nil {
		candidate = sm.Msg
	}

	sdc, err := UnmarshalSignedDrmCertificate(candidate)
	if err != nil {
		return nil, err
	}
	if err := cryptoutils.RSAPSSVerify(rootPublicKey, sdc.DrmCertificate, sdc.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedCertificate, err)
	}

	cert, err := UnmarshalDrmCertificate(sdc.DrmCertificate)
	if err != nil {
		return nil, err
	}
	session.SetServiceCertificate(sdc.DrmCertificate)

	return cert, nil
}

// SetProductionServiceCertificate installs the hardcoded certificate of the
// production license service, skipping the certificate round trip.
func SetProductionServiceCertificate(session *cdm.Session) {
	session.SetServiceCertificate(productionCert.Marshal())
}

// SetStagingServiceCertificate installs the hardcoded certificate of the
// staging license service.
func SetStagingServiceCertificate(session *cdm.Session) {
	session.SetServiceCertificate(stagingCert.Marshal())
}

// encryptClientID wraps the device client id for privacy mode: a random AES
// key and IV encrypt the blob, and the key travels under the service
// certificate's RSA key.
func (c *CDM) encryptClientID(session *cdm.Session) ([]byte, error) {
	certBytes := session.ServiceCertificate()
	if certBytes == nil {
		return nil, ErrNoServiceCertificate
	}
	cert, err := UnmarshalDrmCertificate(certBytes)
	if err != nil {
		return nil, err
	}

	key := make([]byte, aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, key); err != nil {
		return nil, fmt.Errorf("widevine: privacy key: %w", err)
	}
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, fmt.Errorf("widevine: privacy iv: %w", err)
	}

	encrypted, err := cryptoutils.AESCBCEncrypt(key, iv, c.device.ClientID)
	if err != nil {
		return nil, err
	}
	wrappedKey, err := cryptoutils.RSAOAEPEncrypt(c.rand, cert.PublicKey, key)
	if err != nil {
		return nil, err
	}

	block := encryptedClientID{
		ProviderID:          cert.ProviderID,
		ServiceCertSerial:   cert.SerialNumber,
		EncryptedClientID:   encrypted,
		EncryptedClientIDIV: iv,
		EncryptedPrivacyKey: wrappedKey,
	}

	return block.marshal(), nil
}
