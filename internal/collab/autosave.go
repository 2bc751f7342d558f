package collab

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CodeSaver persists a code buffer on behalf of a user. Implementations
// re-validate that the user may edit the document.
type CodeSaver interface {
	SaveCode(ctx context.Context, documentID, userID, code string) error
}

type pendingSave struct {
	userID string
	code   string
}

// Autosaver coalesces relayed code per document and periodically writes the
// latest buffer through a CodeSaver. A nil *Autosaver ignores every call.
type Autosaver struct {
	saver    CodeSaver
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingSave
}

// NewAutosaver returns nil when saver is nil or interval is not positive.
func NewAutosaver(saver CodeSaver, interval time.Duration, logger *slog.Logger) *Autosaver {
	if saver == nil || interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{
		saver:    saver,
		interval: interval,
		logger:   logger,
		pending:  make(map[string]pendingSave),
	}
}

// Schedule records code as the next buffer to save for documentID.
func (a *Autosaver) Schedule(documentID, userID, code string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.pending[documentID] = pendingSave{userID: userID, code: code}
	a.mu.Unlock()
}

// Pending returns the number of documents waiting to be saved.
func (a *Autosaver) Pending() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush saves every pending buffer and returns how many saves succeeded.
// Failed saves are logged and dropped.
func (a *Autosaver) Flush(ctx context.Context) int {
	if a == nil {
		return 0
	}

	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string]pendingSave)
	a.mu.Unlock()

	saved := 0
	for documentID, p := range batch {
		if err := a.saver.SaveCode(ctx, documentID, p.userID, p.code); err != nil {
			a.logger.Warn("Autosave failed", "documentID", documentID, "userID", p.userID, "error", err)
			continue
		}
		saved++
	}
	if saved > 0 {
		a.logger.Debug("Autosave flushed", "saved", saved, "pending", len(batch))
	}
	return saved
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (a *Autosaver) Run(ctx context.Context) {
	if a == nil {
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.Flush(flushCtx)
			cancel()
			return
		}
	}
}
