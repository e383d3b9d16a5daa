package flows

import (
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

const (
	// DefaultSessionCookie names the cookie carrying the flow session id
	DefaultSessionCookie = "flow_sid"
	// DefaultSessionTTL bounds how long an idle flow session survives
	DefaultSessionTTL = 30 * time.Minute

	preferredUsernameKey = "flows:preferred_username"
)

// SessionProvider resolves the host session store for the current request.
type SessionProvider func(c router.Context) SessionStore

// MemorySessionStore is an in process SessionStore for embedding and tests.
type MemorySessionStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: map[string]string{}}
}

func (s *MemorySessionStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySessionStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemorySessionStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

type sessionEntry struct {
	store    *MemorySessionStore
	lastSeen time.Time
}

// MemorySessionProvider hands out per browser session stores keyed by a
// cookie. Idle sessions are dropped after the TTL.
type MemorySessionProvider struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	cookie   string
	now      func() time.Time
}

// SessionProviderOption customizes provider construction.
type SessionProviderOption func(*MemorySessionProvider)

// WithSessionTTL overrides the idle session lifetime.
func WithSessionTTL(ttl time.Duration) SessionProviderOption {
	return func(p *MemorySessionProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithSessionCookieName overrides the session id cookie name.
func WithSessionCookieName(name string) SessionProviderOption {
	return func(p *MemorySessionProvider) {
		if name != "" {
			p.cookie = name
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionProviderOption {
	return func(p *MemorySessionProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewMemorySessionProvider creates an in process session provider.
func NewMemorySessionProvider(opts ...SessionProviderOption) *MemorySessionProvider {
	p := &MemorySessionProvider{
		sessions: map[string]*sessionEntry{},
		ttl:      DefaultSessionTTL,
		cookie:   DefaultSessionCookie,
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Resolve returns the session store for the request, creating the session
// and setting its cookie when none exists yet.
func (p *MemorySessionProvider) Resolve(c router.Context) SessionStore {
	sid := c.Cookies(p.cookie)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweep()

	if sid != "" {
		if entry, ok := p.sessions[sid]; ok {
			entry.lastSeen = p.now()
			return entry.store
		}
	}

	sid = uuid.NewString()
	entry := &sessionEntry{store: NewMemorySessionStore(), lastSeen: p.now()}
	p.sessions[sid] = entry

	c.Cookie(&router.Cookie{
		Name:     p.cookie,
		Value:    sid,
		Expires:  p.now().Add(p.ttl),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})

	return entry.store
}

func (p *MemorySessionProvider) sweep() {
	cutoff := p.now().Add(-p.ttl)
	for sid, entry := range p.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(p.sessions, sid)
		}
	}
}

// UserPreferences remembers non sensitive user choices, currently the last
// username typed into a login or recovery form, across requests in the same
// session.
type UserPreferences struct {
	session SessionStore
}

// NewUserPreferences wraps the session store for the current request.
func NewUserPreferences(session SessionStore) *UserPreferences {
	return &UserPreferences{session: session}
}

// Username returns the remembered username, or empty.
func (p *UserPreferences) Username() string {
	v, _ := p.session.Get(preferredUsernameKey)
	return v
}

// SaveUsername remembers the username for form prefills.
func (p *UserPreferences) SaveUsername(username string) {
	if username == "" {
		return
	}
	p.session.Put(preferredUsernameKey, username)
}
