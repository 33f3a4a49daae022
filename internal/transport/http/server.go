package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campusride/ridechat-server/internal/auth"
	"github.com/campusride/ridechat-server/internal/config"
	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/store"
)

// NewServer builds the HTTP server: health check, the WebSocket endpoint and
// the REST chat gateway.
func NewServer(hub *core.Hub, verifier *auth.Verifier, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, verifier, cfg.AuthTimeout, logger)))

	chatHandlers := NewChatHandlers(st, cfg, logger)
	chat := router.Group("/chat")
	chat.Use(AuthMiddleware(verifier, logger), RateLimitMiddleware(cfg.APIRateLimit))
	{
		chat.GET("/:rideID/messages", chatHandlers.GetHistory)
		chat.POST("/:rideID/read", chatHandlers.MarkRead)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
