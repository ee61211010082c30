package studysync

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hyperengineering/studysync/remote"
)

// IdentityProvider supplies the ambient identity and whether remote calls
// may be attempted.
type IdentityProvider interface {
	// CurrentIdentity returns the bound user identity, or "" when anonymous.
	CurrentIdentity() string

	// IsRemoteCapable reports whether the session is authenticated and the
	// remote store is reachable.
	IsRemoteCapable(ctx context.Context) bool
}

// StaticIdentity is an IdentityProvider whose state is set explicitly.
type StaticIdentity struct {
	mu       sync.RWMutex
	identity string
	online   bool
}

// NewStaticIdentity creates a provider bound to identity.
func NewStaticIdentity(identity string, online bool) *StaticIdentity {
	return &StaticIdentity{identity: identity, online: online}
}

// Set changes the current identity. "" logs out.
func (s *StaticIdentity) Set(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

// SetOnline toggles remote reachability.
func (s *StaticIdentity) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = online
}

func (s *StaticIdentity) CurrentIdentity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *StaticIdentity) IsRemoteCapable(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != "" && s.online && ctx.Err() == nil
}

// DefaultProbeTTL is how long a reachability check result is reused.
const DefaultProbeTTL = 30 * time.Second

// TokenIdentity derives the identity from a JWT access token's subject claim
// and checks reachability through a Pinger.
//
// The token is not verified here: the remote store verifies it on every call.
// A malformed token yields no identity. An expired token keeps its subject,
// so the session stays bound to the same user, but is not remote-capable
// until it is refreshed.
type TokenIdentity struct {
	pinger remote.Pinger
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	token     string
	gen       uint64
	probedAt  time.Time
	reachable bool
}

// NewTokenIdentity creates a provider. A nil pinger treats the remote store
// as always reachable; ttl <= 0 uses DefaultProbeTTL.
func NewTokenIdentity(pinger remote.Pinger, ttl time.Duration) *TokenIdentity {
	if ttl <= 0 {
		ttl = DefaultProbeTTL
	}
	return &TokenIdentity{pinger: pinger, ttl: ttl, now: time.Now}
}

// SetToken replaces the access token. "" logs out.
func (t *TokenIdentity) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
	t.gen++
	t.probedAt = time.Time{}
}

// Token returns the current access token. It matches the signature
// remote.HTTPClient.WithToken expects.
func (t *TokenIdentity) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.claims()
	if c.subject == "" {
		return "", ErrNoIdentity
	}
	if c.expired {
		return "", ErrTokenExpired
	}
	return t.token, nil
}

func (t *TokenIdentity) CurrentIdentity() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claims().subject
}

// IsRemoteCapable pings the remote store at most once per TTL. The ping runs
// without holding the provider lock.
func (t *TokenIdentity) IsRemoteCapable(ctx context.Context) bool {
	t.mu.Lock()
	c := t.claims()
	if c.subject == "" || c.expired {
		t.mu.Unlock()
		return false
	}
	if t.pinger == nil {
		t.mu.Unlock()
		return true
	}
	now := t.now()
	if !t.probedAt.IsZero() && now.Sub(t.probedAt) < t.ttl {
		reachable := t.reachable
		t.mu.Unlock()
		return reachable
	}
	gen := t.gen
	t.mu.Unlock()

	reachable := t.pinger.Ping(ctx) == nil

	t.mu.Lock()
	defer t.mu.Unlock()
	// A token swapped during the ping invalidates the result.
	if t.gen == gen {
		t.reachable = reachable
		t.probedAt = now
	}
	return reachable
}

type tokenClaims struct {
	subject string
	expired bool
}

// claims parses the token's sub and exp claims. Caller holds t.mu.
func (t *TokenIdentity) claims() tokenClaims {
	if t.token == "" {
		return tokenClaims{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.token, claims); err != nil {
		return tokenClaims{}
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return tokenClaims{}
	}
	var c tokenClaims
	c.subject = sub
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !exp.After(t.now()) {
		c.expired = true
	}
	return c
}
