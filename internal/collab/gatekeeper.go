package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TokenVerifier validates a bearer credential and returns its identity.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Gatekeeper admits connections and authorizes document joins.
type Gatekeeper struct {
	verifier TokenVerifier
	rosters  RosterLoader
	registry *Registry
}

func NewGatekeeper(verifier TokenVerifier, rosters RosterLoader, registry *Registry) *Gatekeeper {
	return &Gatekeeper{
		verifier: verifier,
		rosters:  rosters,
		registry: registry,
	}
}

// Authenticate verifies the handshake credential. Every failure wraps ErrAuth.
func (g *Gatekeeper) Authenticate(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Identity{}, fmt.Errorf("%w: token is required", ErrAuth)
	}

	id, err := g.verifier.Verify(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token carries no user id", ErrAuth)
	}
	return id, nil
}

// Admit registers an authenticated connection. It is not in any room yet.
func (g *Gatekeeper) Admit(connID string, id Identity, sender Sender) bool {
	return g.registry.RegisterConnection(connID, id, sender)
}

// AuthorizeJoin checks the persisted roster: owners, listed collaborators of
// any role, and anyone on a public document may join. Unknown documents and
// roster failures deny.
func (g *Gatekeeper) AuthorizeJoin(ctx context.Context, userID, documentID string) error {
	roster, err := g.rosters.LoadRoster(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return fmt.Errorf("%w: document %s not found", ErrAccessDenied, documentID)
		}
		return fmt.Errorf("%w: load roster %s: %v", ErrAccessDenied, documentID, err)
	}
	if !roster.HasAccess(userID) {
		return fmt.Errorf("%w: user %s is not a collaborator of %s", ErrAccessDenied, userID, documentID)
	}
	return nil
}
