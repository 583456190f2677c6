package playready

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/cryptoutils"
	"github.com/cdmlab/go_cdm/pkg/pssh"
	"github.com/cdmlab/go_cdm/pkg/xmr"
)

// ErrKeyMismatch reports a license bound to a different device encryption
// key than ours.
var ErrKeyMismatch = errors.New("playready: license bound to another device key")

// ProcessResponse extracts the XMR licenses from a SOAP response, verifies
// each against the pending challenge, and returns the recovered content
// keys. Entries with unsupported cipher types are skipped as long as at
// least one key survives.
func (c *CDM) ProcessResponse(session *cdm.Session, response []byte) ([]cdm.ContentKey, error) {
	licenses, err := extractLicenses(response)
	if err != nil {
		return nil, err
	}

	parsed := make([]*xmr.License, 0, len(licenses))
	for i, raw := range licenses {
		lic, err := xmr.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("license %d: %w", i, err)
		}
		parsed = append(parsed, lic)
	}

	// All licenses of one response answer one challenge; the rights id
	// echoes the challenge nonce and consumes its context exactly once.
	if _, err := session.TakeContext(parsed[0].RightsID[:]); err != nil {
		return nil, err
	}

	devicePub := cryptoutils.ECPoint{
		X: c.device.EncryptionKey.PublicKey.X,
		Y: c.device.EncryptionKey.PublicKey.Y,
	}.Bytes()

	var keys []cdm.ContentKey
	var entryErrs []error
	for i, lic := range parsed {
		licKeys, err := c.processLicense(lic, devicePub)
		if err != nil {
			var unsupported *unsupportedEntryError
			if errors.As(err, &unsupported) {
				entryErrs = append(entryErrs, fmt.Errorf("license %d: %w", i, err))

				continue
			}

			return nil, fmt.Errorf("license %d: %w", i, err)
		}
		keys = append(keys, licKeys...)
	}
	if len(keys) == 0 {
		return nil, errors.Join(cdm.ErrNoKeys, errors.Join(entryErrs...))
	}

	return keys, nil
}

type unsupportedEntryError struct {
	cipherType uint16
}

func (e *unsupportedEntryError) Error() string {
	return fmt.Sprintf("cipher type %d: %v", e.cipherType, cdm.ErrUnsupportedKeyEntry)
}

func (e *unsupportedEntryError) Unwrap() error { return cdm.ErrUnsupportedKeyEntry }

func (c *CDM) processLicense(lic *xmr.License, devicePub []byte) ([]cdm.ContentKey, error) {
	if eccKey, err := lic.ECCDeviceKey(); err == nil {
		if !bytes.Equal(eccKey, devicePub) {
			return nil, ErrKeyMismatch
		}
	}

	entries, err := lic.ContentKeys()
	if err != nil {
		return nil, err
	}
	sig, err := lic.Signature()
	if err != nil {
		return nil, err
	}
	signed, err := lic.SignedBytes()
	if err != nil {
		return nil, err
	}

	var keys []cdm.ContentKey
	var unsupported *unsupportedEntryError
	for _, entry := range entries {
		var integrityKey, contentKey []byte
		switch entry.CipherType {
		case xmr.CipherECC256:
			integrityKey, contentKey, err = c.decryptECC256(entry.EncryptedKey)
		case xmr.CipherECC256ViaSymmetric:
			var aux []xmr.AuxKey
			aux, err = lic.AuxKeys()
			if err == nil {
				integrityKey, contentKey, err = c.decryptScalable(entry.EncryptedKey, aux)
			}
		default:
			unsupported = &unsupportedEntryError{cipherType: entry.CipherType}

			continue
		}
		if err != nil {
			return nil, err
		}

		// Keys count only after the license authenticates under the
		// integrity key recovered with them.
		if err := cryptoutils.VerifyAESCMAC(integrityKey, signed, sig.Data); err != nil {
			return nil, fmt.Errorf("%w: %v", cdm.ErrIntegrity, err)
		}

		keys = append(keys, cdm.ContentKey{
			ID:   pssh.KeyIDToGUID(entry.KeyID), // wire carries GUID order
			Key:  contentKey,
			Role: cdm.RoleContent,
		})
	}
	if len(keys) == 0 && unsupported != nil {
		return nil, unsupported
	}

	return keys, nil
}

// decryptECC256 recovers the integrity and content keys from a plain
// ElGamal-encrypted entry: the halves of the decrypted point's X coordinate.
func (c *CDM) decryptECC256(encrypted []byte) (integrity, content []byte, err error) {
	point, err := cryptoutils.ElGamalDecrypt(c.device.EncryptionKey.D, encrypted)
	if err != nil {
		return nil, nil, err
	}
	x := make([]byte, 32)
	point.X.FillBytes(x)

	return x[:16], x[16:], nil
}

// soap fault and license extraction

func extractLicenses(response []byte) ([][]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(response))

	var licenses [][]byte
	var faultText string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "License":
			var b64 string
			if err := dec.DecodeElement(&b64, &start); err != nil {
				return nil, fmt.Errorf("playready: license element: %w", err)
			}
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
			if err != nil {
				return nil, fmt.Errorf("playready: license base64: %w", err)
			}
			licenses = append(licenses, raw)
		case "faultstring", "Reason":
			var text string
			if err := dec.DecodeElement(&text, &start); err == nil && faultText == "" {
				faultText = strings.TrimSpace(text)
			}
		}
	}

	if faultText != "" {
		return nil, fmt.Errorf("%w: %s", cdm.ErrServerFault, faultText)
	}
	if len(licenses) == 0 {
		return nil, cdm.ErrNoKeys
	}

	return licenses, nil
}
