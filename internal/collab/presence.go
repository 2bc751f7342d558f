package collab

import (
	"context"
	"fmt"
	"log/slog"
)

// RosterLoader reads the persisted roster of a document. It returns an error
// wrapping ErrDocumentNotFound for unknown documents.
type RosterLoader interface {
	LoadRoster(ctx context.Context, documentID string) (*Roster, error)
}

// ProfileLookup resolves display metadata for a user.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, userID string) (*Profile, error)
}

// Coordinator computes the enriched collaborator list of a document from the
// persisted roster and live presence, and broadcasts it.
type Coordinator struct {
	registry    *Registry
	broadcaster *Broadcaster
	rosters     RosterLoader
	profiles    ProfileLookup
	logger      *slog.Logger
}

func NewCoordinator(registry *Registry, broadcaster *Broadcaster, rosters RosterLoader, profiles ProfileLookup, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry:    registry,
		broadcaster: broadcaster,
		rosters:     rosters,
		profiles:    profiles,
		logger:      logger,
	}
}

// Snapshot builds the current collaborator list of documentID. The roster and
// profiles are fetched without holding the registry lock; only the presence
// read takes it.
func (c *Coordinator) Snapshot(ctx context.Context, documentID string) (*CollaboratorsUpdate, error) {
	roster, err := c.rosters.LoadRoster(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load roster %s: %w", documentID, err)
	}

	live := c.registry.SnapshotPresence(documentID)

	update := &CollaboratorsUpdate{
		Collaborators: make([]Collaborator, 0, len(live)),
		OwnerID:       roster.OwnerID,
	}
	for _, p := range live {
		update.Collaborators = append(update.Collaborators, c.enrich(ctx, roster, p))
	}
	return update, nil
}

func (c *Coordinator) enrich(ctx context.Context, roster *Roster, p PresenceEntry) Collaborator {
	collaborator := Collaborator{
		ID:       p.UserID,
		Role:     ResolveRole(roster, p.UserID),
		IsOnline: true,
		Cursor:   p.Cursor,
		Color:    DefaultColor,
	}

	var profile *Profile
	if e := roster.entry(p.UserID); e != nil && e.Profile != nil {
		profile = e.Profile
	} else if c.profiles != nil {
		var err error
		profile, err = c.profiles.LookupProfile(ctx, p.UserID)
		if err != nil {
			c.logger.Warn("Profile lookup failed", "userID", p.UserID, "documentID", roster.DocumentID, "error", err)
		}
	}

	if profile != nil {
		collaborator.Name = profile.Name
		collaborator.Email = profile.Email
		if profile.Avatar != "" {
			avatar := profile.Avatar
			collaborator.Avatar = &avatar
		}
		if profile.Color != "" {
			collaborator.Color = profile.Color
		}
	}
	return collaborator
}

// Recompute rebuilds the collaborator list of documentID and sends it in both
// shapes, the plain list and the structured update. Nothing is sent to an
// empty room, and a roster failure aborts the broadcast.
func (c *Coordinator) Recompute(ctx context.Context, documentID string) error {
	update, err := c.Snapshot(ctx, documentID)
	if err != nil {
		c.logger.Error("Failed to recompute presence", "documentID", documentID, "error", err)
		return err
	}
	if len(update.Collaborators) == 0 {
		return nil
	}

	c.broadcaster.Emit(documentID, Event{Name: EventCollaboratorsUpdated, Payload: update.Collaborators})
	c.broadcaster.Emit(documentID, Event{Name: EventCollaboratorsUpdate, Payload: update})
	return nil
}
