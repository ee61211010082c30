package mcp

import (
	"fmt"
	"sync"
)

// RecordRef is a record's location: its collection and id.
type RecordRef struct {
	Collection string
	RecordID   string
}

// RecordSession hands out short session references (R1, R2, ...) for
// records shown to an agent. The counter is global across collections so a
// ref is never ambiguous.
type RecordSession struct {
	mu      sync.Mutex
	refs    map[string]RecordRef // session ref -> record
	reverse map[string]string    // "collection:id" -> session ref
	counter int
}

// NewRecordSession creates an empty session tracker.
func NewRecordSession() *RecordSession {
	return &RecordSession{
		refs:    make(map[string]RecordRef),
		reverse: make(map[string]string),
	}
}

// Track returns the ref of a record, assigning the next one on first sight.
func (s *RecordSession) Track(collection, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reverseKey(collection, id)
	if ref, ok := s.reverse[key]; ok {
		return ref
	}

	s.counter++
	ref := fmt.Sprintf("R%d", s.counter)
	s.refs[ref] = RecordRef{Collection: collection, RecordID: id}
	s.reverse[key] = ref
	return ref
}

// Resolve converts a session ref to its record.
func (s *RecordSession) Resolve(ref string) (RecordRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refs[ref]
	return r, ok
}

// Rebind points refs of promoted records at their remote-issued ids, so a
// ref handed out before a sync stays valid after it.
func (s *RecordSession) Rebind(collection string, promoted map[string]string) {
	if len(promoted) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for from, to := range promoted {
		key := reverseKey(collection, from)
		ref, ok := s.reverse[key]
		if !ok {
			continue
		}
		delete(s.reverse, key)
		s.reverse[reverseKey(collection, to)] = ref
		s.refs[ref] = RecordRef{Collection: collection, RecordID: to}
	}
}

// Forget drops a removed record's ref.
func (s *RecordSession) Forget(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reverseKey(collection, id)
	if ref, ok := s.reverse[key]; ok {
		delete(s.refs, ref)
		delete(s.reverse, key)
	}
}

// Clear resets the tracker, including the counter. Called when the bound
// identity changes.
func (s *RecordSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs = make(map[string]RecordRef)
	s.reverse = make(map[string]string)
	s.counter = 0
}

// Len returns the number of tracked records.
func (s *RecordSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

func reverseKey(collection, id string) string {
	return collection + ":" + id
}
