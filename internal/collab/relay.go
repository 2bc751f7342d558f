package collab

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Relay forwards code and cursor changes between collaborators. Code is
// relayed as a whole buffer to the entire room, sender included; receivers
// drop updates carrying their own user id. There is no merge: the last
// update a peer receives replaces its local buffer.
type Relay struct {
	registry    *Registry
	broadcaster *Broadcaster
	presence    *Coordinator
	rosters     RosterLoader
	autosaver   *Autosaver

	mu       sync.Mutex
	lastCode map[string]string

	now func() time.Time
}

func NewRelay(registry *Registry, broadcaster *Broadcaster, presence *Coordinator, rosters RosterLoader, autosaver *Autosaver) *Relay {
	return &Relay{
		registry:    registry,
		broadcaster: broadcaster,
		presence:    presence,
		rosters:     rosters,
		autosaver:   autosaver,
		lastCode:    make(map[string]string),
		now:         time.Now,
	}
}

// RelayCodeChange broadcasts a new code buffer from connID to its room.
// Viewers are rejected with ErrPermissionDenied before anything is sent.
func (r *Relay) RelayCodeChange(ctx context.Context, connID string, req CodeChangeRequest) error {
	id, documentID, ok := r.registry.Connection(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if documentID != req.DocumentID {
		return fmt.Errorf("%w: code change for %s while joined to %q", ErrStaleUpdate, req.DocumentID, documentID)
	}
	if req.SourceUserID != id.UserID {
		return fmt.Errorf("%w: source user %s does not match connection user %s", ErrPermissionDenied, req.SourceUserID, id.UserID)
	}

	roster, err := r.rosters.LoadRoster(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load roster %s: %w", documentID, err)
	}
	if role := ResolveRole(roster, id.UserID); !role.CanEdit() {
		return fmt.Errorf("%w: user %s has role %s on document %s", ErrPermissionDenied, id.UserID, role, documentID)
	}

	code := ""
	if req.Code != nil {
		code = *req.Code
	}

	r.mu.Lock()
	r.lastCode[documentID] = code
	r.mu.Unlock()

	r.broadcaster.Emit(documentID, Event{
		Name: EventCodeUpdate,
		Payload: CodeUpdate{
			DocumentID:   documentID,
			Code:         code,
			SourceUserID: id.UserID,
			Timestamp:    r.now().UTC(),
		},
	})
	r.autosaver.Schedule(documentID, id.UserID, code)
	return nil
}

// RelayCursorChange stores the cursor of the connection's user and folds it
// into a presence recomputation.
func (r *Relay) RelayCursorChange(ctx context.Context, connID string, req CursorUpdateRequest) error {
	id, documentID, ok := r.registry.Connection(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if documentID != req.DocumentID {
		return fmt.Errorf("%w: cursor for %s while joined to %q", ErrStaleUpdate, req.DocumentID, documentID)
	}
	if req.UserID != id.UserID {
		return fmt.Errorf("%w: cursor user %s does not match connection user %s", ErrPermissionDenied, req.UserID, id.UserID)
	}

	if err := r.registry.SetCursor(id.UserID, documentID, req.Position()); err != nil {
		return err
	}
	return r.presence.Recompute(ctx, documentID)
}

// takeLastCode returns and forgets the last relayed buffer of documentID.
func (r *Relay) takeLastCode(documentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.lastCode[documentID]
	delete(r.lastCode, documentID)
	return code, ok
}
