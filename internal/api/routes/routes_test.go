package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"collab-service/internal/api/handlers"
	"collab-service/internal/api/middleware"
	"collab-service/internal/auth"
	"collab-service/internal/collab"
	"collab-service/internal/metrics"
	"collab-service/internal/models"
	"collab-service/internal/services"
	"collab-service/internal/websocket"
)

const (
	testSecret      = "test-secret"
	testInternalKey = "internal-key"
)

type staticRosters map[string]*collab.Roster

func (s staticRosters) LoadRoster(_ context.Context, documentID string) (*collab.Roster, error) {
	r, ok := s[documentID]
	if !ok {
		return nil, collab.ErrDocumentNotFound
	}
	return r, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakePublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakePublisher) PublishRosterChanged(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, documentID)
	return f.err
}

type routerEnv struct {
	router   *Router
	verifier *auth.Verifier
	metrics  *metrics.Metrics
}

func newRouterEnv(t *testing.T, mutate func(*Deps)) *routerEnv {
	t.Helper()

	verifier := auth.NewVerifier(testSecret)
	m := metrics.New()
	svc := collab.NewService(collab.Options{
		Verifier: verifier,
		Rosters: staticRosters{
			"doc": {DocumentID: "doc", OwnerID: "u1", Collaborators: []collab.RosterEntry{{UserID: "u2", Role: collab.RoleEditor}}},
		},
		Metrics: m,
	})
	hub := websocket.NewHub(svc, nil, nil, websocket.ClientConfig{
		SendBuffer:     16,
		MaxMessageSize: 1 << 16,
		PongWait:       5 * time.Second,
	})
	go hub.Run()
	t.Cleanup(hub.Stop)

	hash, err := bcrypt.GenerateFromPassword([]byte(testInternalKey), bcrypt.MinCost)
	require.NoError(t, err)

	deps := Deps{
		Service:         svc,
		Hub:             hub,
		Upgrader:        websocket.NewUpgrader(nil),
		Metrics:         m.Handler(),
		HealthChecks:    map[string]handlers.Pinger{"redis": fakePinger{}},
		InternalKeyHash: string(hash),
	}
	if mutate != nil {
		mutate(&deps)
	}

	r := NewRouter(deps)
	r.SetupRoutes()
	return &routerEnv{router: r, verifier: verifier, metrics: m}
}

func (e *routerEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Issue(userID, strings.ToUpper(userID), time.Hour)
	require.NoError(t, err)
	return token
}

func (e *routerEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.GetEngine().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newRouterEnv(t, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"redis":"ok"}}`, w.Body.String())

	env = newRouterEnv(t, func(d *Deps) {
		d.HealthChecks = map[string]handlers.Pinger{"redis": fakePinger{err: errors.New("down")}}
	})
	w = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPresence(t *testing.T) {
	env := newRouterEnv(t, nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc/presence", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc/presence", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc/presence", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u2"))
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var update collab.CollaboratorsUpdate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
	assert.Equal(t, "u1", update.OwnerID)
	assert.Empty(t, update.Collaborators)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc/presence", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u9"))
	w = env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing/presence", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	w = env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRosterChanged(t *testing.T) {
	env := newRouterEnv(t, nil)

	w := env.do(httptest.NewRequest(http.MethodPost, "/internal/v1/documents/doc/roster-changed", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/documents/doc/roster-changed", nil)
	req.Header.Set(middleware.InternalKeyHeader, "wrong")
	w = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/internal/v1/documents/doc/roster-changed", nil)
	req.Header.Set(middleware.InternalKeyHeader, testInternalKey)
	w = env.do(req)
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp models.RosterChangedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.RosterChangedResponse{DocumentID: "doc", Recomputed: true}, resp)
}

func TestRosterChanged_Published(t *testing.T) {
	publisher := &fakePublisher{}
	env := newRouterEnv(t, func(d *Deps) { d.Publisher = publisher })

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/documents/doc/roster-changed", nil)
	req.Header.Set(middleware.InternalKeyHeader, testInternalKey)
	w := env.do(req)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"documentId":"doc","recomputed":false}`, w.Body.String())
	assert.Equal(t, []string{"doc"}, publisher.ids)

	publisher.err = errors.New("redis down")
	w = env.do(req.Clone(context.Background()))
	assert.JSONEq(t, `{"documentId":"doc","recomputed":true}`, w.Body.String())
}

func TestInternalAuth_EmptyHashRejects(t *testing.T) {
	env := newRouterEnv(t, func(d *Deps) { d.InternalKeyHash = "" })

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/documents/doc/roster-changed", nil)
	req.Header.Set(middleware.InternalKeyHeader, testInternalKey)
	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebSocket_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newRouterEnv(t, func(d *Deps) {
		d.Limiter = services.NewRedisService(client)
		d.ConnectRateLimit = 1
	})
	token := env.token(t, "u1")

	// the first attempt passes the limiter and fails the upgrade
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/ws?token="+token, nil))
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/ws?token="+token, nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWebSocket_Handshake(t *testing.T) {
	env := newRouterEnv(t, nil)
	server := httptest.NewServer(env.router.GetEngine())
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"

	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.MessageTypeConnected, msg.Type)
	assert.JSONEq(t, fmt.Sprintf(`{"clientId":%q,"userId":"u1"}`, connectedClientID(t, msg)), string(msg.Data))

	data, _ := json.Marshal(collab.JoinDocumentRequest{DocumentID: "doc", UserID: "u1"})
	require.NoError(t, conn.WriteJSON(websocket.Message{Type: websocket.MessageTypeJoinDocument, Data: data}))
	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == websocket.MessageType(collab.EventCollaboratorsUpdate) {
			break
		}
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "collab_joins_total 1")
	assert.Contains(t, w.Body.String(), `collab_denials_total{kind="auth"} 1`)
}

func connectedClientID(t *testing.T, msg websocket.Message) string {
	t.Helper()
	var data websocket.ConnectedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	return data.ClientID
}
