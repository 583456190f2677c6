package widevine

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
	"github.com/cdmlab/go_cdm/pkg/wire"
)

func TestPrivacyModeChallenge(t *testing.T) {
	t.Parallel()

	dev := testDevice(t, DeviceAndroid)
	client := NewCDM(dev, WithPrivacyMode())
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	// Install a synthetic service certificate whose private key the test
	// holds, standing in for the license service.
	serviceKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert := DrmCertificate{
		SerialNumber: []byte{1, 2, 3},
		PublicKey:    &serviceKey.PublicKey,
		ProviderID:   "license.example.com",
	}
	session.SetServiceCertificate(cert.Marshal())

	challenge, err := client.BuildChallenge(session, testBox(t))
	require.NoError(t, err)

	sm, err := UnmarshalSignedMessage(challenge)
	require.NoError(t, err)

	// Plain client id (field 1) must be absent; the encrypted block
	// (field 8) must decrypt back to the device client id.
	assert.NotContains(t, string(sm.Msg), "test client id blob")
	block := fieldBytes(t, sm.Msg, 8)

	providerID := fieldBytes(t, block, 1)
	assert.Equal(t, "license.example.com", string(providerID))
	encryptedID := fieldBytes(t, block, 3)
	iv := fieldBytes(t, block, 4)
	wrappedKey := fieldBytes(t, block, 5)

	key, err := cryptoutils.RSAOAEPDecrypt(serviceKey, wrappedKey)
	require.NoError(t, err)
	clientID, err := cryptoutils.AESCBCDecrypt(key, iv, encryptedID)
	require.NoError(t, err)
	assert.Equal(t, dev.ClientID, clientID)
}

func TestPrivacyModeRequiresCertificate(t *testing.T) {
	t.Parallel()

	dev := testDevice(t, DeviceAndroid)
	client := NewCDM(dev, WithPrivacyMode())
	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	_, err = client.BuildChallenge(session, testBox(t))
	require.ErrorIs(t, err, ErrNoServiceCertificate)
}

func TestKnownServiceCertificates(t *testing.T) {
	t.Parallel()

	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	SetProductionServiceCertificate(session)
	cert, err := UnmarshalDrmCertificate(session.ServiceCertificate())
	require.NoError(t, err)
	assert.Equal(t, "license.widevine.com", cert.ProviderID)
	assert.Len(t, cert.SerialNumber, 16)
	assert.Equal(t, 2048, cert.PublicKey.N.BitLen())

	SetStagingServiceCertificate(session)
	cert, err = UnmarshalDrmCertificate(session.ServiceCertificate())
	require.NoError(t, err)
	assert.Equal(t, "staging.google.com", cert.ProviderID)
}

func TestSetServiceCertificateRejectsUnsigned(t *testing.T) {
	t.Parallel()

	session, err := cdm.NewManager().Open()
	require.NoError(t, err)

	// A certificate signed by an arbitrary key must not verify against the
	// embedded root.
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert := DrmCertificate{
		SerialNumber: []byte{9},
		PublicKey:    &rogue.PublicKey,
		ProviderID:   "rogue.example.com",
	}
	certBytes := cert.Marshal()
	sig, err := cryptoutils.RSAPSSSign(rand.Reader, rogue, certBytes)
	require.NoError(t, err)

	sdc := SignedDrmCertificate{DrmCertificate: certBytes, Signature: sig}
	_, err = SetServiceCertificate(session, sdc.Marshal())
	require.ErrorIs(t, err, ErrUntrustedCertificate)

	// The same wrapped in a SignedMessage envelope fails identically.
	envelope := SignedMessage{Type: MessageServiceCertificate, Msg: sdc.Marshal()}
	_, err = SetServiceCertificate(session, envelope.Marshal())
	require.ErrorIs(t, err, ErrUntrustedCertificate)

	assert.Nil(t, session.ServiceCertificate())

	// Garbage is a parse error, not a signature error.
	_, err = SetServiceCertificate(session, wire.AppendTag(nil, 1, wire.TypeBytes))
	require.Error(t, err)
}
