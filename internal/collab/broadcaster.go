package collab

import (
	"log/slog"

	"collab-service/internal/metrics"
)

// Broadcaster fans document-scoped events out to every connection in the
// document's room. Delivery is fire-and-forget: senders queue without
// blocking and the registry lock is released before any send.
type Broadcaster struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewBroadcaster(registry *Registry, m *metrics.Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// Emit sends evt to the whole room of documentID, sender included, and
// returns the number of connections that accepted it.
func (b *Broadcaster) Emit(documentID string, evt Event) int {
	members := b.registry.Members(documentID)

	delivered := 0
	for _, member := range members {
		if err := member.Send(evt); err != nil {
			b.metrics.IncDroppedSend()
			b.logger.Debug("Dropped event for connection", "documentID", documentID, "event", evt.Name, "error", err)
			continue
		}
		delivered++
	}

	b.metrics.AddDeliveries(string(evt.Name), delivered)
	b.logger.Debug("Event broadcasted", "documentID", documentID, "event", evt.Name, "delivered", delivered, "members", len(members))
	return delivered
}
