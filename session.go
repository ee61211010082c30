package studysync

import (
	"log/slog"
	"sync"
)

// IdentityMarkerKey is the reserved local key holding the identity boundary
// marker.
const IdentityMarkerKey = "__studysync_identity"

// identityMarker is the persisted boundary state: the identity the local
// store belongs to and, per collection, the identity it was last synced for.
type identityMarker struct {
	Identity    string            `json:"identity"`
	Collections map[string]string `json:"collections,omitempty"`
}

// TransitionKind classifies an identity change.
type TransitionKind string

const (
	TransitionNone   TransitionKind = "none"
	TransitionLogin  TransitionKind = "login"
	TransitionLogout TransitionKind = "logout"
	TransitionSwitch TransitionKind = "switch"
)

// Transition describes what Observe saw.
type Transition struct {
	Kind TransitionKind
	From string
	To   string
}

// boundary is the part of an engine the session drives on identity changes.
type boundary interface {
	collectionName() string
	storageKey() string
	resetBoundary()
}

// Session is the explicit session context shared by every engine.
//
// It holds the identity provider, the local store, the identity the local
// store is bound to and the per-collection "last synced identity" markers.
// The bound identity is loaded from the persisted marker at construction.
//
// Reset rules: every identity transition resets each registered engine's
// synced latch and in-memory data. A switch between two identities or a
// logout also clears every registered collection key from the local store.
// A login from anonymous keeps local data so it can be migrated.
type Session struct {
	provider IdentityProvider
	local    *LocalStore
	logger   *slog.Logger

	mu          sync.Mutex
	bound       string
	collections map[string]string
	engines     []boundary
	interacted  bool
}

// NewSession creates a session context. A nil logger uses slog.Default().
func NewSession(provider IdentityProvider, local *LocalStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		provider:    provider,
		local:       local,
		logger:      logger,
		collections: make(map[string]string),
	}
	var marker identityMarker
	if local.ReadInto(IdentityMarkerKey, &marker) {
		s.bound = marker.Identity
		for name, id := range marker.Collections {
			s.collections[name] = id
		}
	}
	return s
}

// Provider returns the identity provider.
func (s *Session) Provider() IdentityProvider { return s.provider }

// Local returns the shared local store.
func (s *Session) Local() *LocalStore { return s.local }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Bound returns the identity the local store currently belongs to.
func (s *Session) Bound() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// register adds an engine to boundary resets.
func (s *Session) register(b boundary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines = append(s.engines, b)
}

// Observe compares the provider's identity with the bound one and applies
// the reset rules on a change.
func (s *Session) Observe() Transition {
	current := s.provider.CurrentIdentity()

	s.mu.Lock()
	if current == s.bound {
		s.mu.Unlock()
		return Transition{Kind: TransitionNone, From: current, To: current}
	}

	t := Transition{From: s.bound, To: current}
	switch {
	case s.bound == "":
		t.Kind = TransitionLogin
	case current == "":
		t.Kind = TransitionLogout
	default:
		t.Kind = TransitionSwitch
	}

	engines := make([]boundary, len(s.engines))
	copy(engines, s.engines)

	if t.Kind != TransitionLogin {
		for _, e := range engines {
			s.local.Remove(e.storageKey())
		}
		s.collections = make(map[string]string)
	}
	s.bound = current
	s.interacted = false
	s.persistLocked()
	s.mu.Unlock()

	for _, e := range engines {
		e.resetBoundary()
	}

	s.logger.Info("identity boundary crossed",
		"kind", string(t.Kind), "engines", len(engines))
	return t
}

// CheckCollection reports whether the local copy of collection may be
// migrated for the bound identity. When the collection was last synced for
// another identity its local copy is discarded and false is returned.
func (s *Session) CheckCollection(collection, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.collections[collection]
	if !ok || last == s.bound {
		return true
	}

	s.local.Remove(key)
	delete(s.collections, collection)
	s.persistLocked()
	s.logger.Warn("discarded local collection of another identity", "collection", collection)
	return false
}

// MarkSynced stamps collection as synced for the bound identity.
func (s *Session) MarkSynced(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markSyncedLocked(collection)
}

// commitFor observes the provider and, if identity is still bound, runs write
// under the session lock. A transition cannot interleave with write, so data
// fetched for one identity never lands after the boundary moved. Reports
// whether write ran.
func (s *Session) commitFor(identity string, write func()) bool {
	s.Observe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if identity == "" || s.bound != identity {
		return false
	}
	write()
	return true
}

// markSyncedLocked stamps collection for the bound identity. Callers hold s.mu.
func (s *Session) markSyncedLocked(collection string) {
	if s.bound == "" || s.collections[collection] == s.bound {
		return
	}
	s.collections[collection] = s.bound
	s.persistLocked()
}

// LastSynced returns the identity collection was last synced for.
func (s *Session) LastSynced(collection string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[collection]
}

// MarkInteracted records that the user changed data during this session.
func (s *Session) MarkInteracted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interacted = true
}

// Interacted reports whether the user changed data since the last identity
// transition.
func (s *Session) Interacted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interacted
}

func (s *Session) persistLocked() {
	marker := identityMarker{Identity: s.bound}
	if len(s.collections) > 0 {
		marker.Collections = make(map[string]string, len(s.collections))
		for k, v := range s.collections {
			marker.Collections[k] = v
		}
	}
	s.local.Write(IdentityMarkerKey, marker)
}
