package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/database"
	"collab-service/internal/models"
	"collab-service/internal/repositories/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Store.Kind != config.StoreSQL {
		slog.Error("Seeding is only supported for the sql store", "store", cfg.Store.Kind)
		os.Exit(1)
	}

	slog.Info("Starting database seeding...")

	db, err := database.NewSQLConnection(cfg.Store)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	userRepo := postgres.NewUserRepository(db)
	docRepo := postgres.NewDocumentRepository(db)

	seedUsers := []models.User{
		{Name: "Alice", Email: "alice@collab.dev", Color: "#e57373"},
		{Name: "Bob", Email: "bob@collab.dev", Color: "#64b5f6"},
		{Name: "Charlie", Email: "charlie@collab.dev", Color: "#81c784"},
	}
	for i := range seedUsers {
		seedUsers[i].ID = uuid.NewString()
		if err := userRepo.Create(ctx, &seedUsers[i]); err != nil {
			slog.Error("Failed to create user", "email", seedUsers[i].Email, "error", err)
			os.Exit(1)
		}
		slog.Info("Created user", "name", seedUsers[i].Name, "id", seedUsers[i].ID)
	}
	alice, bob, charlie := seedUsers[0], seedUsers[1], seedUsers[2]

	doc := &models.Document{
		ID:       uuid.NewString(),
		Name:     "Welcome",
		Code:     "// start typing\n",
		Language: "typescript",
		OwnerID:  alice.ID,
	}
	if err := docRepo.Create(ctx, doc); err != nil {
		slog.Error("Failed to create document", "error", err)
		os.Exit(1)
	}
	for _, c := range []models.Collaborator{
		{DocumentID: doc.ID, UserID: bob.ID, Role: models.RoleEditor},
		{DocumentID: doc.ID, UserID: charlie.ID, Role: models.RoleViewer},
	} {
		if err := docRepo.UpsertCollaborator(ctx, &c); err != nil {
			slog.Error("Failed to add collaborator", "userID", c.UserID, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Created document", "id", doc.ID, "owner", alice.Name)

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	for _, u := range seedUsers {
		token, err := verifier.Issue(u.ID, u.Name, 24*time.Hour)
		if err != nil {
			slog.Error("Failed to issue token", "userID", u.ID, "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\n", u.Name, token)
	}

	slog.Info("Database seeding completed successfully!")
}
