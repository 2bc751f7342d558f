package collab

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"collab-service/internal/metrics"
)

// AuditEvent is one authorization-relevant decision.
type AuditEvent struct {
	Action       string    `json:"action"`
	Outcome      string    `json:"outcome"`
	UserID       string    `json:"userId,omitempty"`
	DocumentID   string    `json:"documentId,omitempty"`
	ConnectionID string    `json:"connectionId,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// Auditor records audit events. Record must not block.
type Auditor interface {
	Record(ctx context.Context, evt AuditEvent)
}

// Archiver stores the final code buffer of a session once its room empties.
type Archiver interface {
	Archive(ctx context.Context, documentID, code string) error
}

type Options struct {
	Verifier         TokenVerifier
	Rosters          RosterLoader
	Profiles         ProfileLookup
	Saver            CodeSaver
	AutosaveInterval time.Duration
	Archiver         Archiver
	Auditor          Auditor
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Service wires the gatekeeper, registry, broadcaster, presence coordinator
// and relay behind the operations a connection handler performs.
type Service struct {
	registry    *Registry
	broadcaster *Broadcaster
	presence    *Coordinator
	relay       *Relay
	gate        *Gatekeeper
	autosaver   *Autosaver
	archiver    Archiver
	auditor     Auditor
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, opts.Metrics, logger)
	presence := NewCoordinator(registry, broadcaster, opts.Rosters, opts.Profiles, logger)
	autosaver := NewAutosaver(opts.Saver, opts.AutosaveInterval, logger)

	return &Service{
		registry:    registry,
		broadcaster: broadcaster,
		presence:    presence,
		relay:       NewRelay(registry, broadcaster, presence, opts.Rosters, autosaver),
		gate:        NewGatekeeper(opts.Verifier, opts.Rosters, registry),
		autosaver:   autosaver,
		archiver:    opts.Archiver,
		auditor:     opts.Auditor,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Authenticate verifies a handshake token. Failures are logged and audited.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	id, err := s.gate.Authenticate(token)
	if err != nil {
		s.logger.Warn("Connection authentication failed", "error", err)
		s.metrics.IncDenial("auth")
		s.audit(ctx, AuditEvent{Action: "connect", Outcome: "denied", Reason: err.Error()})
		return Identity{}, err
	}
	return id, nil
}

// Connect registers an authenticated connection.
func (s *Service) Connect(ctx context.Context, connID string, id Identity, sender Sender) {
	if !s.gate.Admit(connID, id, sender) {
		return
	}
	s.updateGauges()
	s.logger.Info("Connection registered", "connectionID", connID, "userID", id.UserID)
	s.audit(ctx, AuditEvent{Action: "connect", Outcome: "admitted", UserID: id.UserID, ConnectionID: connID})
}

// JoinDocument authorizes and performs a room join. An ErrAccessDenied result
// leaves the connection out of every new room; the caller must close it.
func (s *Service) JoinDocument(ctx context.Context, connID string, req JoinDocumentRequest) error {
	id, _, ok := s.registry.Connection(connID)
	if !ok {
		return ErrUnknownConnection
	}

	err := s.authorizeJoin(ctx, id, req)
	if err != nil {
		s.logger.Warn("Join denied", "connectionID", connID, "userID", id.UserID, "documentID", req.DocumentID, "action", "joinDocument", "error", err)
		s.metrics.IncDenial("access")
		s.audit(ctx, AuditEvent{Action: "joinDocument", Outcome: "denied", UserID: id.UserID, DocumentID: req.DocumentID, ConnectionID: connID, Reason: err.Error()})
		return err
	}

	res, err := s.registry.JoinDocument(connID, req.DocumentID)
	if err != nil {
		return err
	}
	if res.Previous != nil {
		s.afterLeave(ctx, *res.Previous)
	}
	s.updateGauges()
	s.metrics.IncJoin()

	_ = s.presence.Recompute(ctx, req.DocumentID)
	s.broadcaster.Emit(req.DocumentID, Event{
		Name:    EventCollaboratorJoined,
		Payload: CollaboratorJoined{UserID: id.UserID, Name: id.Name},
	})

	s.logger.Info("User joined document", "connectionID", connID, "userID", id.UserID, "documentID", req.DocumentID)
	s.audit(ctx, AuditEvent{Action: "joinDocument", Outcome: "admitted", UserID: id.UserID, DocumentID: req.DocumentID, ConnectionID: connID})
	return nil
}

func (s *Service) authorizeJoin(ctx context.Context, id Identity, req JoinDocumentRequest) error {
	if req.UserID != id.UserID {
		return errors.Join(ErrAccessDenied, errors.New("join payload user does not match the authenticated user"))
	}
	return s.gate.AuthorizeJoin(ctx, id.UserID, req.DocumentID)
}

// LeaveDocument takes the connection out of its room without disconnecting it.
func (s *Service) LeaveDocument(ctx context.Context, connID string, req LeaveDocumentRequest) error {
	_, documentID, ok := s.registry.Connection(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if documentID != req.DocumentID {
		return ErrStaleUpdate
	}

	res, err := s.registry.LeaveDocument(connID)
	if err != nil {
		return err
	}
	s.updateGauges()
	s.afterLeave(ctx, res)
	return nil
}

// UpdateCursor relays a cursor move. Stale updates are dropped silently.
func (s *Service) UpdateCursor(ctx context.Context, connID string, req CursorUpdateRequest) error {
	err := s.relay.RelayCursorChange(ctx, connID, req)
	return s.actionResult(ctx, connID, req.DocumentID, "cursorUpdate", err)
}

// ChangeCode relays a code buffer. Viewers get ErrPermissionDenied and
// nothing is sent.
func (s *Service) ChangeCode(ctx context.Context, connID string, req CodeChangeRequest) error {
	err := s.relay.RelayCodeChange(ctx, connID, req)
	return s.actionResult(ctx, connID, req.DocumentID, "codeChange", err)
}

func (s *Service) actionResult(ctx context.Context, connID, documentID, action string, err error) error {
	if err == nil {
		return nil
	}

	id, _, _ := s.registry.Connection(connID)
	switch {
	case errors.Is(err, ErrStaleUpdate):
		s.logger.Debug("Stale update ignored", "connectionID", connID, "userID", id.UserID, "documentID", documentID, "action", action)
	case errors.Is(err, ErrPermissionDenied):
		s.logger.Warn("Action suppressed", "connectionID", connID, "userID", id.UserID, "documentID", documentID, "action", action, "error", err)
		s.metrics.IncDenial("permission")
		s.audit(ctx, AuditEvent{Action: action, Outcome: "denied", UserID: id.UserID, DocumentID: documentID, ConnectionID: connID, Reason: err.Error()})
	default:
		s.logger.Error("Action failed", "connectionID", connID, "userID", id.UserID, "documentID", documentID, "action", action, "error", err)
	}
	return err
}

// Disconnect removes the connection. Repeated calls for the same connection
// are no-ops.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	res, removed := s.registry.Disconnect(connID)
	if !removed {
		return
	}
	s.updateGauges()
	s.logger.Info("Connection removed", "connectionID", connID, "userID", res.UserID, "documentID", res.DocumentID)
	s.audit(ctx, AuditEvent{Action: "disconnect", Outcome: "completed", UserID: res.UserID, DocumentID: res.DocumentID, ConnectionID: connID})

	if res.DocumentID != "" {
		s.afterLeave(ctx, res)
	}
}

// afterLeave announces a departure and refreshes presence of the left room.
func (s *Service) afterLeave(ctx context.Context, res LeaveResult) {
	if res.UserLeft {
		s.broadcaster.Emit(res.DocumentID, Event{
			Name:    EventCollaboratorLeft,
			Payload: CollaboratorLeft{UserID: res.UserID},
		})
	}
	_ = s.presence.Recompute(ctx, res.DocumentID)

	if res.RoomEmpty {
		s.archive(ctx, res.DocumentID)
	}
}

func (s *Service) archive(ctx context.Context, documentID string) {
	code, ok := s.relay.takeLastCode(documentID)
	if !ok || s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, documentID, code); err != nil {
		s.logger.Warn("Snapshot archive failed", "documentID", documentID, "error", err)
	}
}

// RosterChanged reacts to an out-of-band role or ownership change by
// recomputing presence. Users dropped from the roster stay connected.
func (s *Service) RosterChanged(ctx context.Context, documentID string) {
	if len(s.registry.Members(documentID)) == 0 {
		return
	}
	_ = s.presence.Recompute(ctx, documentID)
}

// Presence returns the current collaborator list after the same access check
// a join performs.
func (s *Service) Presence(ctx context.Context, userID, documentID string) (*CollaboratorsUpdate, error) {
	if err := s.gate.AuthorizeJoin(ctx, userID, documentID); err != nil {
		s.metrics.IncDenial("access")
		return nil, err
	}
	return s.presence.Snapshot(ctx, documentID)
}

// RunAutosave blocks flushing code saves until ctx is done.
func (s *Service) RunAutosave(ctx context.Context) {
	s.autosaver.Run(ctx)
}

// FlushAutosave writes pending code saves immediately.
func (s *Service) FlushAutosave(ctx context.Context) int {
	return s.autosaver.Flush(ctx)
}

func (s *Service) updateGauges() {
	conns, rooms := s.registry.Stats()
	s.metrics.SetActive(conns, rooms)
}

func (s *Service) audit(ctx context.Context, evt AuditEvent) {
	if s.auditor == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	s.auditor.Record(ctx, evt)
}
