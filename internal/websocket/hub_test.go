package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/collab"
)

type memoryRosters struct {
	mu      sync.Mutex
	rosters map[string]*collab.Roster
}

func (m *memoryRosters) LoadRoster(_ context.Context, documentID string) (*collab.Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rosters[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, collab.ErrDocumentNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRosters) set(r *collab.Roster) {
	m.mu.Lock()
	m.rosters[r.DocumentID] = r
	m.mu.Unlock()
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, documentID string) {
	r.mu.Lock()
	r.ids = append(r.ids, documentID)
	r.mu.Unlock()
}

func (r *recordingInvalidator) invalidated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// gatedInvalidator blocks its first call until release is closed.
type gatedInvalidator struct {
	recordingInvalidator
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedInvalidator) Invalidate(ctx context.Context, documentID string) {
	first := false
	g.once.Do(func() { first = true })
	g.recordingInvalidator.Invalidate(ctx, documentID)
	if first {
		close(g.entered)
		<-g.release
	}
}

type channelSignals chan string

func (c channelSignals) SubscribeRosterChanges(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case id := <-c:
				out <- id
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type testEnv struct {
	hub     *Hub
	rosters *memoryRosters
	cache   *recordingInvalidator
	signals channelSignals
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rosters := &memoryRosters{rosters: map[string]*collab.Roster{
		"doc": {
			DocumentID: "doc",
			OwnerID:    "u1",
			Collaborators: []collab.RosterEntry{
				{UserID: "u2", Role: collab.RoleEditor},
				{UserID: "viewer", Role: collab.RoleViewer},
			},
		},
	}}

	svc := collab.NewService(collab.Options{Rosters: rosters})
	env := &testEnv{
		rosters: rosters,
		cache:   &recordingInvalidator{},
		signals: make(channelSignals),
	}
	env.hub = NewHub(svc, env.cache, env.signals, ClientConfig{
		SendBuffer:     64,
		MaxMessageSize: 1 << 16,
		PongWait:       5 * time.Second,
	})
	go env.hub.Run()

	upgrader := NewUpgrader(nil)
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		env.hub.ServeWS(upgrader, w, r, collab.Identity{UserID: user, Name: strings.ToUpper(user)})
	}))

	t.Cleanup(func() {
		env.hub.Stop()
		env.server.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	msg := readUntil(t, conn, MessageTypeConnected)
	var data ConnectedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.Equal(t, user, data.UserID)
	require.NotEmpty(t, data.ClientID)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType MessageType, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{ID: "m", Type: msgType, Data: raw, Timestamp: time.Now().Unix()}))
}

func readUntil(t *testing.T, conn *websocket.Conn, want MessageType) Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg Message
		err := conn.ReadJSON(&msg)
		require.NoError(t, err, "waiting for %s", want)
		if msg.Type == want {
			return msg
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, user, doc string) {
	t.Helper()
	send(t, conn, MessageTypeJoinDocument, collab.JoinDocumentRequest{DocumentID: doc, UserID: user})
	readUntil(t, conn, MessageType(collab.EventCollaboratorsUpdate))
	// the joiner receives its own announcement too
	readUntil(t, conn, MessageType(collab.EventCollaboratorJoined))
}

func TestHub_CodeChangeReachesCollaborator(t *testing.T) {
	env := newTestEnv(t)
	owner := env.dial(t, "u1")
	editor := env.dial(t, "u2")

	join(t, owner, "u1", "doc")
	join(t, editor, "u2", "doc")

	joined := readUntil(t, owner, MessageType(collab.EventCollaboratorJoined))
	assert.JSONEq(t, `{"userId":"u2","name":"U2"}`, string(joined.Data))

	code := "const x=1"
	send(t, editor, MessageTypeCodeChange, collab.CodeChangeRequest{DocumentID: "doc", Code: &code, SourceUserID: "u2"})

	msg := readUntil(t, owner, MessageType(collab.EventCodeUpdate))
	var update collab.CodeUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	assert.Equal(t, "u2", update.SourceUserID)
	assert.Equal(t, code, update.Code)
}

func TestHub_InvalidMessageKeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"joinDocument","data":{"documentId":""}}`)))
	msg := readUntil(t, conn, MessageTypeError)
	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, ErrCodeInvalidMessage, data.Code)

	join(t, conn, "u1", "doc")
}

func TestHub_AccessDeniedClosesConnection(t *testing.T) {
	env := newTestEnv(t)
	owner := env.dial(t, "u1")
	join(t, owner, "u1", "doc")

	stranger := env.dial(t, "u3")
	send(t, stranger, MessageTypeJoinDocument, collab.JoinDocumentRequest{DocumentID: "doc", UserID: "u3"})

	msg := readUntil(t, stranger, MessageTypeError)
	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, ErrCodeAccessDenied, data.Code)

	require.NoError(t, stranger.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := stranger.ReadMessage()
		if err == nil {
			continue
		}
		assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		break
	}

	registry := env.hub.service.Registry()
	assert.Eventually(t, func() bool {
		conns, _ := registry.Stats()
		return conns == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, registry.IsJoined("u3", "doc"))
	assert.True(t, registry.IsJoined("u1", "doc"))
}

func TestHub_DisconnectNotifiesRoom(t *testing.T) {
	env := newTestEnv(t)
	owner := env.dial(t, "u1")
	editor := env.dial(t, "u2")
	join(t, owner, "u1", "doc")
	join(t, editor, "u2", "doc")

	require.NoError(t, owner.Close())

	msg := readUntil(t, editor, MessageType(collab.EventCollaboratorLeft))
	assert.JSONEq(t, `{"userId":"u1"}`, string(msg.Data))

	msg = readUntil(t, editor, MessageType(collab.EventCollaboratorsUpdated))
	var list []collab.Collaborator
	require.NoError(t, json.Unmarshal(msg.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "u2", list[0].ID)
}

func TestHub_RosterChangeSignal(t *testing.T) {
	env := newTestEnv(t)
	editor := env.dial(t, "u2")
	join(t, editor, "u2", "doc")

	env.rosters.set(&collab.Roster{
		DocumentID:    "doc",
		OwnerID:       "u1",
		Collaborators: []collab.RosterEntry{{UserID: "u2", Role: collab.RoleViewer}},
	})
	env.signals <- "doc"

	msg := readUntil(t, editor, MessageType(collab.EventCollaboratorsUpdate))
	var update collab.CollaboratorsUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	require.Len(t, update.Collaborators, 1)
	assert.Equal(t, collab.RoleViewer, update.Collaborators[0].Role)
	assert.Equal(t, []string{"doc"}, env.cache.invalidated())
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"https://app.example.com/"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:5173", true},
		{"https://evil.example.com", false},
		{"https://localhost.evil.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, up.CheckOrigin(r), tt.origin)
	}
}

func TestHub_RosterRefreshesCoalesce(t *testing.T) {
	inv := &gatedInvalidator{entered: make(chan struct{}), release: make(chan struct{})}
	svc := collab.NewService(collab.Options{Rosters: &memoryRosters{rosters: map[string]*collab.Roster{}}})
	hub := NewHub(svc, inv, nil, ClientConfig{SendBuffer: 1, PongWait: time.Second})

	hub.scheduleRosterRefresh("doc")
	<-inv.entered
	for i := 0; i < 5; i++ {
		hub.scheduleRosterRefresh("doc")
	}
	hub.scheduleRosterRefresh("other")
	close(inv.release)

	assert.Eventually(t, func() bool {
		hub.refreshMu.Lock()
		defer hub.refreshMu.Unlock()
		return len(hub.refreshes) == 0
	}, 2*time.Second, 10*time.Millisecond)

	calls := map[string]int{}
	for _, id := range inv.invalidated() {
		calls[id]++
	}
	assert.Equal(t, map[string]int{"doc": 2, "other": 1}, calls)
}
