package studysync_test

import (
	"testing"

	"github.com/hyperengineering/studysync"
	"github.com/hyperengineering/studysync/internal/kv"
	"github.com/hyperengineering/studysync/remote"
)

// harness wires a session over an in-memory local store and remote store.
type harness struct {
	backend  *kv.MemoryBackend
	local    *studysync.LocalStore
	identity *studysync.StaticIdentity
	session  *studysync.Session
	store    *remote.MemoryStore
}

func newHarness(t *testing.T, identity string, online bool) *harness {
	t.Helper()
	return newHarnessWithBackend(t, kv.NewMemoryBackend(0), identity, online)
}

func newHarnessWithBackend(t *testing.T, backend *kv.MemoryBackend, identity string, online bool) *harness {
	t.Helper()
	logger := studysync.DiscardLogger()
	local := studysync.NewLocalStore(backend, logger)
	id := studysync.NewStaticIdentity(identity, online)
	return &harness{
		backend:  backend,
		local:    local,
		identity: id,
		session:  studysync.NewSession(id, local, logger),
		store:    remote.NewMemoryStore(),
	}
}

// restart simulates a new process over the same local and remote stores.
func (h *harness) restart(t *testing.T) *harness {
	t.Helper()
	logger := studysync.DiscardLogger()
	local := studysync.NewLocalStore(h.backend, logger)
	return &harness{
		backend:  h.backend,
		local:    local,
		identity: h.identity,
		session:  studysync.NewSession(h.identity, local, logger),
		store:    h.store,
	}
}

func (h *harness) tasks() *studysync.Engine[[]studysync.Record] {
	return studysync.NewEngine(studysync.TasksSpec(), h.session, h.store)
}

func ids(recs []studysync.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

func findByField(recs []studysync.Record, field, value string) studysync.Record {
	for _, r := range recs {
		if r.String(field) == value {
			return r
		}
	}
	return nil
}
