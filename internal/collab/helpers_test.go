package collab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type fakeRosters struct {
	mu      sync.Mutex
	rosters map[string]*Roster
	err     error
	calls   int
}

func newFakeRosters(rosters ...*Roster) *fakeRosters {
	f := &fakeRosters{rosters: make(map[string]*Roster)}
	for _, r := range rosters {
		f.rosters[r.DocumentID] = r
	}
	return f
}

func (f *fakeRosters) LoadRoster(_ context.Context, documentID string) (*Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rosters[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	cp := *r
	cp.Collaborators = append([]RosterEntry(nil), r.Collaborators...)
	return &cp, nil
}

func (f *fakeRosters) set(r *Roster) {
	f.mu.Lock()
	f.rosters[r.DocumentID] = r
	f.mu.Unlock()
}

type fakeProfiles map[string]*Profile

func (f fakeProfiles) LookupProfile(_ context.Context, userID string) (*Profile, error) {
	p, ok := f[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return p, nil
}

type recordingSender struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *recordingSender) Send(evt Event) error {
	if s.fail {
		return errors.New("send buffer full")
	}
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) named(name EventName) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, evt := range s.events {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

func (s *recordingSender) last(name EventName) (Event, bool) {
	events := s.named(name)
	if len(events) == 0 {
		return Event{}, false
	}
	return events[len(events)-1], true
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

type fakeSaver struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func (f *fakeSaver) SaveCode(_ context.Context, documentID, _ string, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[documentID] = code
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived map[string]string
}

func (f *fakeArchiver) Archive(_ context.Context, documentID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archived == nil {
		f.archived = make(map[string]string)
	}
	f.archived[documentID] = code
	return nil
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (f *fakeAuditor) Record(_ context.Context, evt AuditEvent) {
	f.mu.Lock()
	f.events = append(f.events, evt)
	f.mu.Unlock()
}

func (f *fakeAuditor) denied(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, evt := range f.events {
		if evt.Action == action && evt.Outcome == "denied" {
			n++
		}
	}
	return n
}

type staticVerifier map[string]Identity

func (v staticVerifier) Verify(token string) (Identity, error) {
	id, ok := v[token]
	if !ok {
		return Identity{}, errors.New("signature is invalid")
	}
	return id, nil
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func collaboratorIDs(cs []Collaborator) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}
