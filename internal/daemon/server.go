package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/creatorhub/messaging/internal/api"
	"github.com/creatorhub/messaging/internal/auth"
	"github.com/creatorhub/messaging/internal/hub"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server manages the HTTP server carrying both the REST routes and the
// WebSocket endpoint.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the gin engine and binds it to the configured address.
func NewServer(
	p Params,
	logger *zap.Logger,
	apiHandler *api.Handler,
	wsHandler *hub.Handler,
	verifier *auth.Verifier,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     p.Config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiHandler.Register(r, verifier)
	r.GET("/ws", gin.WrapH(wsHandler))

	return &Server{
		httpServer: &http.Server{
			Addr:    p.Config.Server.ListenAddr,
			Handler: r,
		},
		logger: logger,
	}
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
}
