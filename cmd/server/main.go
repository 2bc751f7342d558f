package main

// @title           Collaboration Service API
// @version         1.0
// @description     Realtime document collaboration over WebSocket
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "collab-service/docs"
	"collab-service/internal/api/handlers"
	"collab-service/internal/api/routes"
	"collab-service/internal/audit"
	"collab-service/internal/auth"
	"collab-service/internal/collab"
	"collab-service/internal/config"
	"collab-service/internal/database"
	"collab-service/internal/metrics"
	mongorepo "collab-service/internal/repositories/mongo"
	"collab-service/internal/repositories/postgres"
	"collab-service/internal/services"
	"collab-service/internal/snapshot"
	"collab-service/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	slog.Info("Starting collaboration server", "store", cfg.Store.Kind)

	// Document store
	var (
		documents services.DocumentStore
		profiles  services.ProfileStore
		closers   []func(context.Context)
	)
	switch cfg.Store.Kind {
	case config.StoreMongo:
		mdb, err := database.NewMongoConnection(cfg.Store)
		if err != nil {
			slog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func(ctx context.Context) { _ = mdb.Close(ctx) })
		repo := mongorepo.NewDocumentRepository(mdb.DB)
		documents, profiles = repo, repo
	default:
		db, err := database.NewSQLConnection(cfg.Store)
		if err != nil {
			slog.Error("Failed to connect to database", "driver", cfg.Store.Driver, "error", err)
			os.Exit(1)
		}
		documents = postgres.NewDocumentRepository(db)
		profiles = postgres.NewUserRepository(db)
	}

	// Redis: roster cache, rate limiting and cross-instance roster signals
	var redisService *services.RedisService
	healthChecks := map[string]handlers.Pinger{}
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func(context.Context) { _ = redisClient.Close() })
		redisService = services.NewRedisService(redisClient.GetClient())
		healthChecks["redis"] = redisService
	} else {
		slog.Warn("REDIS_URL not set, running without roster cache and rate limiting")
	}

	rosters := services.NewRosterService(documents, profiles, redisService, cfg.Collab.RosterCacheTTL)
	m := metrics.New()

	opts := collab.Options{
		Verifier:         auth.NewVerifier(cfg.JWT.Secret),
		Rosters:          rosters,
		Profiles:         rosters,
		Saver:            rosters,
		AutosaveInterval: cfg.Collab.AutosaveInterval,
		Metrics:          m,
		Logger:           logger,
	}

	if len(cfg.Kafka.Brokers) > 0 {
		auditor, err := audit.NewKafkaAuditor(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, logger)
		if err != nil {
			slog.Error("Failed to create audit producer", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func(context.Context) { auditor.Close() })
		opts.Auditor = auditor
	}

	if cfg.Minio.Endpoint != "" {
		client, err := snapshot.NewMinioClient(cfg.Minio)
		if err != nil {
			slog.Error("Failed to create MinIO client", "error", err)
			os.Exit(1)
		}
		opts.Archiver = snapshot.NewArchiver(client, cfg.Minio.Bucket)
	}

	service := collab.NewService(opts)

	hub := newHub(service, rosters, redisService, cfg.WebSocket)
	go hub.Run()

	autosaveCtx, stopAutosave := context.WithCancel(context.Background())
	autosaveDone := make(chan struct{})
	go func() {
		defer close(autosaveDone)
		service.RunAutosave(autosaveCtx)
	}()

	deps := routes.Deps{
		Service:          service,
		Hub:              hub,
		Upgrader:         websocket.NewUpgrader(cfg.WebSocket.AllowedOrigins),
		Metrics:          m.Handler(),
		HealthChecks:     healthChecks,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		InternalKeyHash:  cfg.Security.InternalAPIKeyHash,
		ConnectRateLimit: cfg.WebSocket.ConnectRateLimit,
		Logger:           logger,
	}
	if redisService != nil {
		deps.Limiter = redisService
		deps.Publisher = redisService
	}
	router := routes.NewRouter(deps)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Stopping the autosave loop flushes pending code, so clients go first.
	hub.Stop()
	stopAutosave()
	<-autosaveDone

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i](ctx)
	}
	slog.Info("Server stopped")
}

func newHub(service *collab.Service, rosters *services.RosterService, redisService *services.RedisService, cfg config.WebSocketConfig) *websocket.Hub {
	clientCfg := websocket.ClientConfig{
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
		PongWait:       cfg.PongWait,
	}
	if redisService == nil {
		return websocket.NewHub(service, rosters, nil, clientCfg)
	}
	return websocket.NewHub(service, rosters, redisService, clientCfg)
}
