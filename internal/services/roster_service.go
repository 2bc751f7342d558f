package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"collab-service/internal/collab"
)

// DocumentStore is the persistence the roster service reads through.
type DocumentStore interface {
	GetRoster(ctx context.Context, documentID string) (*collab.Roster, error)
	SaveCode(ctx context.Context, documentID, userID, code string) error
}

// ProfileStore resolves user display metadata.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*collab.Profile, error)
}

// RosterService serves rosters and profiles from Redis, falling back to the
// document store. Cache failures never fail a read.
type RosterService struct {
	store    DocumentStore
	profiles ProfileStore
	cache    *RedisService
	ttl      time.Duration
}

func NewRosterService(store DocumentStore, profiles ProfileStore, cache *RedisService, ttl time.Duration) *RosterService {
	return &RosterService{
		store:    store,
		profiles: profiles,
		cache:    cache,
		ttl:      ttl,
	}
}

func (s *RosterService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

// LoadRoster implements collab.RosterLoader.
func (s *RosterService) LoadRoster(ctx context.Context, documentID string) (*collab.Roster, error) {
	if s.cacheEnabled() {
		var cached collab.Roster
		err := s.cache.Get(ctx, RosterKey(documentID), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("Roster cache read failed", "documentID", documentID, "error", err)
		}
	}

	roster, err := s.store.GetRoster(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, RosterKey(documentID), roster, s.ttl); err != nil {
			slog.Warn("Roster cache write failed", "documentID", documentID, "error", err)
		}
	}
	return roster, nil
}

// LookupProfile implements collab.ProfileLookup.
func (s *RosterService) LookupProfile(ctx context.Context, userID string) (*collab.Profile, error) {
	if s.cacheEnabled() {
		var cached collab.Profile
		if err := s.cache.Get(ctx, ProfileKey(userID), &cached); err == nil {
			return &cached, nil
		}
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, ProfileKey(userID), profile, s.ttl); err != nil {
			slog.Warn("Profile cache write failed", "userID", userID, "error", err)
		}
	}
	return profile, nil
}

// SaveCode implements collab.CodeSaver. The store re-validates the role.
func (s *RosterService) SaveCode(ctx context.Context, documentID, userID, code string) error {
	return s.store.SaveCode(ctx, documentID, userID, code)
}

// Invalidate drops the cached roster of documentID.
func (s *RosterService) Invalidate(ctx context.Context, documentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, RosterKey(documentID)); err != nil {
		slog.Warn("Roster cache invalidation failed", "documentID", documentID, "error", err)
	}
}
