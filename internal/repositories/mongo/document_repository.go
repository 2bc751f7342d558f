// Package mongo reads rosters and profiles from the MongoDB document store,
// where collaborators are embedded in the document.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"collab-service/internal/collab"
)

const (
	documentsCollection = "documents"
	usersCollection     = "users"
)

var ErrUserNotFound = errors.New("user not found")

type collaboratorDoc struct {
	User primitive.ObjectID `bson:"user"`
	Role string             `bson:"role"`
}

type documentDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Name           string             `bson:"name"`
	Code           string             `bson:"code"`
	Language       string             `bson:"language"`
	Owner          primitive.ObjectID `bson:"owner"`
	IsPublic       bool               `bson:"isPublic"`
	Collaborators  []collaboratorDoc  `bson:"collaborators"`
	LastModified   time.Time          `bson:"lastModified"`
	LastModifiedBy primitive.ObjectID `bson:"lastModifiedBy,omitempty"`
}

type userDoc struct {
	ID     primitive.ObjectID `bson:"_id"`
	Name   string             `bson:"name"`
	Email  string             `bson:"email"`
	Avatar string             `bson:"avatarUrl"`
	Color  string             `bson:"color"`
}

type DocumentRepository struct {
	documents *mongo.Collection
	users     *mongo.Collection
}

func NewDocumentRepository(db *mongo.Database) *DocumentRepository {
	return &DocumentRepository{
		documents: db.Collection(documentsCollection),
		users:     db.Collection(usersCollection),
	}
}

func (r *DocumentRepository) find(ctx context.Context, documentID string) (*documentDoc, error) {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, collab.ErrDocumentNotFound)
	}

	var doc documentDoc
	if err := r.documents.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("document %s: %w", documentID, collab.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return &doc, nil
}

func toRoster(doc *documentDoc) *collab.Roster {
	roster := &collab.Roster{
		DocumentID:    doc.ID.Hex(),
		OwnerID:       doc.Owner.Hex(),
		IsPublic:      doc.IsPublic,
		Collaborators: make([]collab.RosterEntry, 0, len(doc.Collaborators)),
	}
	for _, c := range doc.Collaborators {
		roster.Collaborators = append(roster.Collaborators, collab.RosterEntry{
			UserID: c.User.Hex(),
			Role:   collab.NormalizeRole(c.Role),
		})
	}
	return roster
}

func (r *DocumentRepository) GetRoster(ctx context.Context, documentID string) (*collab.Roster, error) {
	doc, err := r.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return toRoster(doc), nil
}

// SaveCode stores code after re-checking that userID may edit the document.
func (r *DocumentRepository) SaveCode(ctx context.Context, documentID, userID, code string) error {
	doc, err := r.find(ctx, documentID)
	if err != nil {
		return err
	}
	if role := collab.ResolveRole(toRoster(doc), userID); !role.CanEdit() {
		return fmt.Errorf("%w: user %s has role %s on document %s", collab.ErrPermissionDenied, userID, role, documentID)
	}

	set := bson.M{"code": code, "lastModified": time.Now().UTC()}
	if uid, err := primitive.ObjectIDFromHex(userID); err == nil {
		set["lastModifiedBy"] = uid
	}
	if _, err := r.documents.UpdateByID(ctx, doc.ID, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to save code: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetProfile(ctx context.Context, userID string) (*collab.Profile, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}

	var u userDoc
	opts := options.FindOne().SetProjection(bson.M{"name": 1, "email": 1, "avatarUrl": 1, "color": 1})
	if err := r.users.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &collab.Profile{Name: u.Name, Email: u.Email, Avatar: u.Avatar, Color: u.Color}, nil
}
