package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/admin"
	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/metrics"
)

// ConnHandler serves one line-protocol connection. *chat.Handler implements it.
type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn, transport string)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Chat      ConnHandler
	Auth      *auth.Service
	Processor *admin.Processor
	// Metrics may be nil, in which case /metrics is not mounted.
	Metrics *metrics.Metrics
	// OnShutdown is called when an admin command replies SHUTDOWN.
	OnShutdown func()
}

// NewServer builds the HTTP server: health, metrics, the WebSocket line
// protocol and the admin API.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Chat, logger)))

	api := NewAPIHandlers(deps.Auth, deps.Processor, deps.OnShutdown, logger)
	apiGroup := router.Group("/api")
	apiGroup.POST("/auth/token", api.Token)

	adminGroup := apiGroup.Group("/admin")
	adminGroup.Use(AuthMiddleware(deps.Auth, logger))
	adminGroup.POST("/commands", api.Command)

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
