package collab

import (
	"sort"
	"sync"
	"time"
)

// ConnState is the lifecycle state of a registered connection.
type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unauthenticated"
	}
}

// Identity is the authenticated owner of a connection.
type Identity struct {
	UserID string
	Name   string
}

type connection struct {
	id          string
	identity    Identity
	documentID  string
	sender      Sender
	connectedAt time.Time
}

type cursorKey struct {
	userID     string
	documentID string
}

// PresenceEntry is one live user of a document.
type PresenceEntry struct {
	UserID      string
	Cursor      *Cursor
	Connections int
}

// LeaveResult describes the effect of a connection leaving its document.
type LeaveResult struct {
	ConnectionID string
	UserID       string
	DocumentID   string

	// UserLeft is set when no other connection of the user remains in DocumentID.
	UserLeft bool

	// RoomEmpty is set when DocumentID has no connections left.
	RoomEmpty bool
}

// JoinResult describes the effect of JoinDocument.
type JoinResult struct {
	// Previous holds the implicit leave of the connection's former document, if any.
	Previous *LeaveResult

	// AlreadyJoined is set when the connection was already in the requested room.
	AlreadyJoined bool
}

// Registry is the in-memory record of live connections, document rooms and
// cursors. A connection is in at most one room; joining another document
// leaves the previous one. All state sits behind a single mutex so every
// mutation is followed by a consistent snapshot.
type Registry struct {
	mu sync.RWMutex

	// conns holds every live connection by id
	conns map[string]*connection

	// rooms maps document id to the ids of connections joined to it
	rooms map[string]map[string]struct{}

	// cursors holds the last cursor per (user, document); nil means joined without a cursor yet
	cursors map[cursorKey]*Cursor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*connection),
		rooms:   make(map[string]map[string]struct{}),
		cursors: make(map[cursorKey]*Cursor),
	}
}

// RegisterConnection adds an authenticated connection that is not yet in any
// room. Registering an id twice is a no-op and returns false.
func (r *Registry) RegisterConnection(connID string, id Identity, sender Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connID]; exists {
		return false
	}
	r.conns[connID] = &connection{
		id:          connID,
		identity:    id,
		sender:      sender,
		connectedAt: time.Now(),
	}
	return true
}

// JoinDocument moves the connection into the document's room, leaving its
// previous room first, and initializes an empty cursor for (user, document).
func (r *Registry) JoinDocument(connID, documentID string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return JoinResult{}, ErrUnknownConnection
	}
	if c.documentID == documentID {
		return JoinResult{AlreadyJoined: true}, nil
	}

	var res JoinResult
	if c.documentID != "" {
		prev := r.leaveLocked(c)
		res.Previous = &prev
	}

	room, ok := r.rooms[documentID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[documentID] = room
	}
	room[connID] = struct{}{}
	c.documentID = documentID

	key := cursorKey{userID: c.identity.UserID, documentID: documentID}
	if _, ok := r.cursors[key]; !ok {
		r.cursors[key] = nil
	}
	return res, nil
}

// LeaveDocument removes the connection from its room. It returns
// ErrStaleUpdate when the connection is not joined to any document.
func (r *Registry) LeaveDocument(connID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return LeaveResult{}, ErrUnknownConnection
	}
	if c.documentID == "" {
		return LeaveResult{}, ErrStaleUpdate
	}
	return r.leaveLocked(c), nil
}

// SetCursor overwrites the cursor of (user, document). Updates for a document
// the user is no longer joined to return ErrStaleUpdate.
func (r *Registry) SetCursor(userID, documentID string, pos Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.userInRoomLocked(userID, documentID) {
		return ErrStaleUpdate
	}
	p := pos
	r.cursors[cursorKey{userID: userID, documentID: documentID}] = &p
	return nil
}

// Disconnect removes the connection from the registry and from its room. It
// is safe to call more than once; only the first call returns true.
func (r *Registry) Disconnect(connID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return LeaveResult{}, false
	}

	res := LeaveResult{ConnectionID: connID, UserID: c.identity.UserID}
	if c.documentID != "" {
		res = r.leaveLocked(c)
	}
	delete(r.conns, connID)
	return res, true
}

// leaveLocked removes c from its room, dropping the user's cursor for that
// document when c was the user's last connection there. r.mu must be held.
func (r *Registry) leaveLocked(c *connection) LeaveResult {
	documentID := c.documentID
	res := LeaveResult{
		ConnectionID: c.id,
		UserID:       c.identity.UserID,
		DocumentID:   documentID,
	}

	if room, ok := r.rooms[documentID]; ok {
		delete(room, c.id)
		if len(room) == 0 {
			delete(r.rooms, documentID)
			res.RoomEmpty = true
		}
	} else {
		res.RoomEmpty = true
	}
	c.documentID = ""

	if !r.userInRoomLocked(c.identity.UserID, documentID) {
		res.UserLeft = true
		delete(r.cursors, cursorKey{userID: c.identity.UserID, documentID: documentID})
	}
	return res
}

func (r *Registry) userInRoomLocked(userID, documentID string) bool {
	for connID := range r.rooms[documentID] {
		if c, ok := r.conns[connID]; ok && c.identity.UserID == userID {
			return true
		}
	}
	return false
}

// SnapshotPresence returns the users with at least one connection joined to
// the document, ordered by user id. Cursors are copies.
func (r *Registry) SnapshotPresence(documentID string) []PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for connID := range r.rooms[documentID] {
		if c, ok := r.conns[connID]; ok {
			counts[c.identity.UserID]++
		}
	}

	entries := make([]PresenceEntry, 0, len(counts))
	for userID, n := range counts {
		entry := PresenceEntry{UserID: userID, Connections: n}
		if cur := r.cursors[cursorKey{userID: userID, documentID: documentID}]; cur != nil {
			cp := *cur
			entry.Cursor = &cp
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Members returns the senders of every connection in the document's room.
func (r *Registry) Members(documentID string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[documentID]
	senders := make([]Sender, 0, len(room))
	for connID := range room {
		if c, ok := r.conns[connID]; ok && c.sender != nil {
			senders = append(senders, c.sender)
		}
	}
	return senders
}

// Connection returns the identity and joined document of a live connection.
func (r *Registry) Connection(connID string) (Identity, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return Identity{}, "", false
	}
	return c.identity, c.documentID, true
}

// State returns the lifecycle state of connID. Ids that are not registered,
// either never or no longer, report StateDisconnected.
func (r *Registry) State(connID string) ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	switch {
	case !ok:
		return StateDisconnected
	case c.documentID != "":
		return StateJoined
	default:
		return StateAuthenticated
	}
}

// IsJoined reports whether the user has a connection in the document's room.
func (r *Registry) IsJoined(userID, documentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userInRoomLocked(userID, documentID)
}

// DocumentsOf returns the documents the user currently has a connection joined to.
func (r *Registry) DocumentsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range r.conns {
		if c.identity.UserID == userID && c.documentID != "" {
			seen[c.documentID] = struct{}{}
		}
	}
	docs := make([]string, 0, len(seen))
	for id := range seen {
		docs = append(docs, id)
	}
	sort.Strings(docs)
	return docs
}

// Stats returns the number of live connections and non-empty rooms.
func (r *Registry) Stats() (connections, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.rooms)
}
