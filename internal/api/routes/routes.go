package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"collab-service/internal/api/handlers"
	"collab-service/internal/api/middleware"
	"collab-service/internal/collab"
	"collab-service/internal/websocket"
)

// Deps are the collaborators the HTTP layer needs. Limiter, Publisher and
// Metrics may be nil.
type Deps struct {
	Service          *collab.Service
	Hub              *websocket.Hub
	Upgrader         *gorillaws.Upgrader
	Limiter          middleware.RateLimiter
	Publisher        handlers.RosterPublisher
	Metrics          http.Handler
	HealthChecks     map[string]handlers.Pinger
	AllowedOrigins   []string
	InternalKeyHash  string
	ConnectRateLimit int
	Logger           *slog.Logger
}

type Router struct {
	engine          *gin.Engine
	deps            Deps
	wsHandler       *handlers.WSHandler
	documentHandler *handlers.DocumentHandler
	healthHandler   *handlers.HealthHandler
	authMW          *middleware.AuthMiddleware
	rateLimitMW     *middleware.RateLimitMiddleware
}

func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	r := &Router{
		engine:          engine,
		deps:            deps,
		wsHandler:       handlers.NewWSHandler(deps.Hub, deps.Upgrader),
		documentHandler: handlers.NewDocumentHandler(deps.Service, deps.Hub, deps.Publisher),
		healthHandler:   handlers.NewHealthHandler(deps.HealthChecks),
		authMW:          middleware.NewAuthMiddleware(deps.Service),
	}
	if deps.Limiter != nil {
		r.rateLimitMW = middleware.NewRateLimitMiddleware(deps.Limiter)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", r.healthHandler.Health)
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if r.deps.Metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.deps.Metrics))
	}

	api := r.engine.Group("/api/v1")

	// connection attempts are limited per address before the token is checked
	ws := []gin.HandlerFunc{}
	if r.rateLimitMW != nil {
		ws = append(ws, r.rateLimitMW.RateLimitIP(r.deps.ConnectRateLimit, time.Minute))
	}
	ws = append(ws, r.authMW.RequireAuth(), r.wsHandler.HandleWebSocket)
	api.GET("/ws", ws...)

	documents := api.Group("/documents")
	documents.Use(r.authMW.RequireAuth())
	if r.rateLimitMW != nil {
		documents.Use(r.rateLimitMW.RateLimitIP(100, time.Minute))
	}
	{
		documents.GET("/:id/presence", r.documentHandler.GetPresence)
	}

	internal := r.engine.Group("/internal/v1")
	internal.Use(middleware.InternalAuth(r.deps.InternalKeyHash))
	{
		internal.POST("/documents/:id/roster-changed", r.documentHandler.RosterChanged)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
