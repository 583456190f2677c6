package cdm

import "github.com/cdmlab/go_cdm/pkg/pssh"

// Client is the capability both protocol variants expose: build a signed
// challenge for protected content, then turn the service's response into
// content keys. Implementations are stateless across calls except for what
// they record in the session.
type Client interface {
	BuildChallenge(session *Session, content *pssh.Box) ([]byte, error)
	ProcessResponse(session *Session, response []byte) ([]ContentKey, error)
}
