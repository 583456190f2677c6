package cdm

import "errors"

// Sentinel errors shared by both protocol variants. Parse-level failures stay
// in the format packages; these cover the exchange lifecycle.
var (
	// ErrTooManySessions is returned by Manager.Open at the session ceiling.
	ErrTooManySessions = errors.New("cdm: too many sessions")
	// ErrContextNotFound is returned when a response references a request
	// this session never issued, or one already consumed.
	ErrContextNotFound = errors.New("cdm: derivation context not found")
	// ErrDuplicateContext is returned when a request identifier collides
	// with one still pending.
	ErrDuplicateContext = errors.New("cdm: derivation context already pending")
	// ErrWrongMessageType is returned when a response carries an unexpected
	// message type.
	ErrWrongMessageType = errors.New("cdm: unexpected message type")
	// ErrServerFault is returned when the license service answered with an
	// explicit error instead of a license.
	ErrServerFault = errors.New("cdm: license service fault")
	// ErrIntegrity is returned when a response fails MAC verification.
	ErrIntegrity = errors.New("cdm: response integrity check failed")
	// ErrNoKeys is returned when a verified response contains no usable keys.
	ErrNoKeys = errors.New("cdm: response contains no keys")
	// ErrUnsupportedKeyEntry marks a single key entry with an unsupported
	// cipher or key type; sibling entries remain recoverable.
	ErrUnsupportedKeyEntry = errors.New("cdm: unsupported key entry")
)
