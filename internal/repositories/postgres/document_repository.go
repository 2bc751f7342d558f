// Package postgres holds the gorm repositories of the SQL document store.
// The same repositories run against MySQL through the gorm mysql dialector.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collab-service/internal/collab"
	"collab-service/internal/models"

	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.LastModified.IsZero() {
		doc.LastModified = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Preload("Collaborators.User").
		Where("id = ?", documentID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document %s: %w", documentID, collab.ErrDocumentNotFound)
		}
		return nil, err
	}
	return &doc, nil
}

// GetRoster returns the owner, visibility and collaborators of a document,
// with each collaborator's profile already joined.
func (r *DocumentRepository) GetRoster(ctx context.Context, documentID string) (*collab.Roster, error) {
	doc, err := r.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return toRoster(doc), nil
}

func toRoster(doc *models.Document) *collab.Roster {
	roster := &collab.Roster{
		DocumentID:    doc.ID,
		OwnerID:       doc.OwnerID,
		IsPublic:      doc.IsPublic,
		Collaborators: make([]collab.RosterEntry, 0, len(doc.Collaborators)),
	}
	for _, c := range doc.Collaborators {
		entry := collab.RosterEntry{
			UserID: c.UserID,
			Role:   collab.NormalizeRole(c.Role),
		}
		if c.User != nil {
			entry.Profile = toProfile(c.User)
		}
		roster.Collaborators = append(roster.Collaborators, entry)
	}
	return roster
}

// SaveCode stores code as the document's buffer after re-checking that userID
// may edit it.
func (r *DocumentRepository) SaveCode(ctx context.Context, documentID, userID, code string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Preload("Collaborators").Where("id = ?", documentID).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("document %s: %w", documentID, collab.ErrDocumentNotFound)
			}
			return fmt.Errorf("failed to load document: %w", err)
		}

		if role := collab.ResolveRole(toRoster(&doc), userID); !role.CanEdit() {
			return fmt.Errorf("%w: user %s has role %s on document %s", collab.ErrPermissionDenied, userID, role, documentID)
		}

		err := tx.Model(&models.Document{}).
			Where("id = ?", documentID).
			Updates(map[string]any{
				"code":             code,
				"last_modified":    time.Now().UTC(),
				"last_modified_by": userID,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to save code: %w", err)
		}
		return nil
	})
}

// UpsertCollaborator grants or changes the role of userID on a document.
func (r *DocumentRepository) UpsertCollaborator(ctx context.Context, c *models.Collaborator) error {
	return r.db.WithContext(ctx).Save(c).Error
}
