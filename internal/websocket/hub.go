package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"collab-service/internal/collab"
)

// RosterInvalidator drops cached rosters.
type RosterInvalidator interface {
	Invalidate(ctx context.Context, documentID string)
}

// RosterSignals delivers ids of documents whose roster changed elsewhere.
type RosterSignals interface {
	SubscribeRosterChanges(ctx context.Context) (<-chan string, error)
}

// Hub owns the live websocket clients of this process and feeds their frames
// into the collaboration service.
type Hub struct {
	service *collab.Service
	cache   RosterInvalidator
	signals RosterSignals
	cfg     ClientConfig

	// Registered clients, owned by Run
	clients map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once

	// Roster refreshes in flight, and whether another signal arrived meanwhile
	refreshMu sync.Mutex
	refreshes map[string]bool
}

// NewHub creates a hub. cache and signals may be nil.
func NewHub(service *collab.Service, cache RosterInvalidator, signals RosterSignals, cfg ClientConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		service:    service,
		cache:      cache,
		signals:    signals,
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		refreshes:  make(map[string]bool),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	if h.signals != nil {
		go h.watchRosterChanges()
	}

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			slog.Debug("Client registered", "clientID", client.id, "userID", client.identity.UserID, "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				slog.Debug("Client unregistered", "clientID", client.id, "userID", client.identity.UserID, "clients", len(h.clients))
			}

		case <-h.ctx.Done():
			slog.Info("WebSocket hub shutting down", "clients", len(h.clients))
			for client := range h.clients {
				client.close()
			}
			for client := range h.clients {
				client.waitForGoroutines(5 * time.Second)
			}
			return
		}
	}
}

// Stop closes every client and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(h.cancel)
	<-h.done
}

func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient removes the client from the core and the hub. It runs once
// per client, when its read pump exits.
func (h *Hub) unregisterClient(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.service.Disconnect(ctx, client.id)

	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// RosterChanged invalidates the cached roster of documentID and refreshes the
// presence of its room.
func (h *Hub) RosterChanged(ctx context.Context, documentID string) {
	if h.cache != nil {
		h.cache.Invalidate(ctx, documentID)
	}
	h.service.RosterChanged(ctx, documentID)
}

func (h *Hub) watchRosterChanges() {
	backoff := time.Second
	for {
		changes, err := h.signals.SubscribeRosterChanges(h.ctx)
		if err != nil {
			slog.Error("Failed to subscribe to roster changes", "error", err, "retryIn", backoff)
			select {
			case <-time.After(backoff):
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			case <-h.ctx.Done():
				return
			}
		}
		backoff = time.Second

		for documentID := range changes {
			slog.Debug("Roster change received", "documentID", documentID)
			h.scheduleRosterRefresh(documentID)
		}

		if h.ctx.Err() != nil {
			return
		}
	}
}

// scheduleRosterRefresh runs at most one refresh per document at a time.
// Signals arriving while one runs collapse into a single follow-up refresh.
func (h *Hub) scheduleRosterRefresh(documentID string) {
	h.refreshMu.Lock()
	if _, running := h.refreshes[documentID]; running {
		h.refreshes[documentID] = true
		h.refreshMu.Unlock()
		return
	}
	h.refreshes[documentID] = false
	h.refreshMu.Unlock()

	go func() {
		for {
			ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
			h.RosterChanged(ctx, documentID)
			cancel()

			h.refreshMu.Lock()
			if h.refreshes[documentID] && h.ctx.Err() == nil {
				h.refreshes[documentID] = false
				h.refreshMu.Unlock()
				continue
			}
			delete(h.refreshes, documentID)
			h.refreshMu.Unlock()
			return
		}
	}()
}
