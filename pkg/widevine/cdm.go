package widevine

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
	"github.com/cdmlab/go_cdm/pkg/pssh"
)

var (
	// ErrWrongSystem reports content metadata for a different DRM system.
	ErrWrongSystem = errors.New("widevine: content is not widevine protected")
	// ErrNoServiceCertificate reports a privacy-mode challenge without a
	// cached service certificate.
	ErrNoServiceCertificate = errors.New("widevine: privacy mode needs a service certificate")
	// ErrUntrustedCertificate reports a service certificate that fails root
	// verification.
	ErrUntrustedCertificate = errors.New("widevine: service certificate not signed by root")
	// ErrBadSessionKey reports a session key of the wrong size after
	// unwrapping.
	ErrBadSessionKey = errors.New("widevine: session key is not 16 bytes")
)

// CDM builds challenges and processes responses for one device.
type CDM struct {
	device      *Device
	licenseType LicenseType
	privacyMode bool
	rand        io.Reader
	now         func() time.Time
}

var _ cdm.Client = (*CDM)(nil)

// Option adjusts CDM construction.
type Option func(*CDM)

// WithLicenseType selects the license class requested in challenges.
func WithLicenseType(t LicenseType) Option {
	return func(c *CDM) { c.licenseType = t }
}

// WithPrivacyMode encrypts client identification against the session's
// service certificate.
func WithPrivacyMode() Option {
	return func(c *CDM) { c.privacyMode = true }
}

// WithRandom overrides the entropy source. Tests use it for reproducible
// challenges.
func WithRandom(r io.Reader) Option {
	return func(c *CDM) { c.rand = r }
}

// WithClock overrides the request-time source.
func WithClock(now func() time.Time) Option {
	return func(c *CDM) { c.now = now }
}

// NewCDM returns a client for the given device.
func NewCDM(device *Device, opts ...Option) *CDM {
	c := &CDM{
		device:      device,
		licenseType: licenseTypeDefault,
		rand:        rand.Reader,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BuildChallenge serializes and signs a license request for the given
// content, recording the derivation context under the request identifier.
func (c *CDM) BuildChallenge(session *cdm.Session, content *pssh.Box) ([]byte, error) {
	if content.System() != pssh.SystemWidevine {
		return nil, ErrWrongSystem
	}

	requestID, err := c.device.requestID(c.rand, session.NextRequest())
	if err != nil {
		return nil, err
	}
	nonce, err := c.keyControlNonce()
	if err != nil {
		return nil, err
	}

	req := licenseRequest{
		PsshData:        content.Data,
		LicenseType:     c.licenseType,
		RequestID:       requestID,
		RequestTime:     c.now().Unix(),
		KeyControlNonce: nonce,
	}
	if c.privacyMode {
		encrypted, err := c.encryptClientID(session)
		if err != nil {
			return nil, err
		}
		req.EncryptedClientID = encrypted
	} else {
		req.ClientID = c.device.ClientID
	}

	msg := req.marshal()
	ctx := cdm.DerivationContext{
		Enc:  encryptionContext(msg),
		Auth: authenticationContext(msg),
	}
	if err := session.RegisterContext(requestID, ctx); err != nil {
		return nil, err
	}

	signature, err := cryptoutils.RSAPSSSign(c.rand, c.device.PrivateKey, msg)
	if err != nil {
		return nil, err
	}

	envelope := SignedMessage{
		Type:      MessageLicenseRequest,
		Msg:       msg,
		Signature: signature,
	}

	return envelope.Marshal(), nil
}

// ProcessResponse verifies a license response against the pending request
// and returns the decrypted keys.
func (c *CDM) ProcessResponse(session *cdm.Session, response []byte) ([]cdm.ContentKey, error) {
	sm, err := UnmarshalSignedMessage(response)
	if err != nil {
		return nil, err
	}
	switch sm.Type {
	case MessageLicense:
	case MessageErrorResponse:
		return nil, fmt.Errorf("%w: error response", cdm.ErrServerFault)
	default:
		return nil, fmt.Errorf("%w: got type %d", cdm.ErrWrongMessageType, sm.Type)
	}

	lic, err := UnmarshalLicense(sm.Msg)
	if err != nil {
		return nil, err
	}
	ctx, err := session.TakeContext(lic.ID.RequestID)
	if err != nil {
		return nil, err
	}

	sessionKey, err := cryptoutils.RSAOAEPDecrypt(c.device.PrivateKey, sm.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("widevine: session key: %w", err)
	}
	if len(sessionKey) != aes.BlockSize {
		return nil, ErrBadSessionKey
	}

	encKey, err := cryptoutils.DeriveKey(sessionKey, ctx.Enc, 1, 1)
	if err != nil {
		return nil, err
	}
	macKey, err := cryptoutils.DeriveKey(sessionKey, ctx.Auth, 1, 2)
	if err != nil {
		return nil, err
	}

	// The HMAC covers the OEMCrypto core message, when present, followed by
	// the license body.
	signed := make([]byte, 0, len(sm.OemCryptoCoreMessage)+len(sm.Msg))
	signed = append(signed, sm.OemCryptoCoreMessage...)
	signed = append(signed, sm.Msg...)
	if err := cryptoutils.VerifyHMACSHA256(macKey, signed, sm.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", cdm.ErrIntegrity, err)
	}

	var keys []cdm.ContentKey
	var entryErrs []error
	for i, kc := range lic.Keys {
		// Containers without key material or with a bad IV cannot be
		// recovered; siblings still are.
		if len(kc.Key) == 0 || len(kc.IV) != aes.BlockSize {
			entryErrs = append(entryErrs, fmt.Errorf(
				"container %d: key %d bytes, iv %d bytes: %w",
				i, len(kc.Key), len(kc.IV), cdm.ErrUnsupportedKeyEntry,
			))

			continue
		}
		clear, err := cryptoutils.AESCBCDecrypt(encKey, kc.IV, kc.Key)
		if err != nil {
			return nil, fmt.Errorf("widevine: key container: %w", err)
		}
		keys = append(keys, cdm.ContentKey{
			ID:   cdm.NormalizeKeyID(kc.ID),
			Key:  clear,
			Role: containerRole(kc.Type),
		})
	}
	if len(keys) == 0 {
		return nil, errors.Join(cdm.ErrNoKeys, errors.Join(entryErrs...))
	}

	return keys, nil
}

func containerRole(typ int) cdm.KeyRole {
	switch typ {
	case keyTypeSigning:
		return cdm.RoleSigning
	case keyTypeContent:
		return cdm.RoleContent
	case keyTypeKeyControl:
		return cdm.RoleKeyControl
	case keyTypeOperatorSession:
		return cdm.RoleOperatorSession
	case keyTypeEntitlement:
		return cdm.RoleEntitlement
	default:
		return cdm.RoleUnknown
	}
}

// keyControlNonce draws a nonce in [1, 2^31), avoiding the zero value some
// servers reject.
func (c *CDM) keyControlNonce() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.rand, buf[:]); err != nil {
		return 0, fmt.Errorf("widevine: nonce: %w", err)
	}
	v := binary.BigEndian.Uint32(buf[:])

	return v%(1<<31-1) + 1, nil
}

func encryptionContext(msg []byte) []byte {
	out := make([]byte, 0, 11+len(msg)+4)
	out = append(out, "ENCRYPTION\x00"...)
	out = append(out, msg...)

	return binary.BigEndian.AppendUint32(out, 128)
}

func authenticationContext(msg []byte) []byte {
	out := make([]byte, 0, 15+len(msg)+4)
	out = append(out, "AUTHENTICATION\x00"...)
	out = append(out, msg...)

	return binary.BigEndian.AppendUint32(out, 512)
}
