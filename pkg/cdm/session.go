package cdm

import (
	"sync"

	"github.com/google/uuid"
)

// MaxSessions is the hard ceiling on concurrently open sessions per Manager.
const MaxSessions = 16

// DerivationContext captures the exact serialized request bytes a challenge
// was built from, in the two KDF framings the response processor needs. It is
// registered under the request identifier at challenge time and consumed
// exactly once when the matching response arrives.
type DerivationContext struct {
	Enc  []byte
	Auth []byte
}

// Session tracks one license exchange stream: a monotonically increasing
// request counter, the pending derivation contexts keyed by request
// identifier, and an optional verified service certificate. All mutating
// methods are safe for concurrent use.
type Session struct {
	id uuid.UUID

	mu          sync.Mutex
	requests    uint64
	contexts    map[string]DerivationContext
	serviceCert []byte
}

// ID returns the session handle.
func (s *Session) ID() uuid.UUID { return s.id }

// NextRequest increments and returns the session request counter. The first
// call returns 1.
func (s *Session) NextRequest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	return s.requests
}

// RegisterContext stores the derivation context for a pending request.
func (s *Session) RegisterContext(requestID []byte, ctx DerivationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(requestID)
	if _, ok := s.contexts[key]; ok {
		return ErrDuplicateContext
	}
	s.contexts[key] = ctx

	return nil
}

// TakeContext removes and returns the derivation context for requestID.
// A second take for the same identifier fails with ErrContextNotFound.
func (s *Session) TakeContext(requestID []byte) (DerivationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(requestID)
	ctx, ok := s.contexts[key]
	if !ok {
		return DerivationContext{}, ErrContextNotFound
	}
	delete(s.contexts, key)

	return ctx, nil
}

// SetServiceCertificate caches an already-verified service certificate for
// privacy-mode challenges. The session stores it opaquely; the variant that
// verified it owns the encoding.
func (s *Session) SetServiceCertificate(cert []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceCert = append([]byte(nil), cert...)
}

// ServiceCertificate returns the cached certificate, or nil.
func (s *Session) ServiceCertificate() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serviceCert == nil {
		return nil
	}

	return append([]byte(nil), s.serviceCert...)
}

// Manager owns the open sessions. Open fails once MaxSessions are live; no
// eviction happens implicitly.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[uuid.UUID]*Session)}
}

// Open creates a new session or fails with ErrTooManySessions.
func (m *Manager) Open() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= MaxSessions {
		return nil, ErrTooManySessions
	}
	s := &Session{
		id:       uuid.New(),
		contexts: make(map[string]DerivationContext),
	}
	m.sessions[s.id] = s

	return s, nil
}

// Get looks up an open session by handle.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]

	return s, ok
}

// Close discards a session and its pending contexts.
func (m *Manager) Close(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}
