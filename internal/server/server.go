package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"edusocial/internal/config"
	"edusocial/internal/handler"
	"edusocial/internal/identity"
	"edusocial/internal/metrics"
	"edusocial/internal/middleware"
	"edusocial/internal/transport/httpdto"
	"edusocial/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     config.ServerConfig
	logger     *logger.Logger
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Chat   *handler.ChatHandler
	Friend *handler.FriendHandler
	Events *handler.EventsHandler
	// Identity tags request logs with the acting user; optional.
	Identity identity.Resolver
}

// New builds the local HTTP surface. appMode is the application mode from
// config; "production" runs gin in release mode.
func New(appMode string, cfg config.ServerConfig, l *logger.Logger) *Server {
	switch appMode {
	case logger.ProductionMode, ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Request contexts derive from baseCtx so Shutdown can end open streams.
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
		engine:     engine,
		config:     cfg,
		logger:     l,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

func (s *Server) SetupRoutes(h *Handlers) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.AllowedOrigin))
	s.engine.Use(middleware.IdentityMiddleware(h.Identity))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.engine.Group("/", middleware.AuthMiddleware(s.config.Token))
	{
		api.GET("/state", h.Chat.State)
		api.GET("/events", h.Events.Stream)

		api.GET("/conversations", h.Chat.Conversations)
		api.POST("/conversations/refresh", h.Chat.Refresh)
		api.PUT("/conversations/active", h.Chat.SetActive)
		api.POST("/conversations/:id/read", h.Chat.MarkRead)
		api.DELETE("/conversations/:id", h.Chat.Delete)
		api.POST("/conversations/:id/messages/load", h.Chat.LoadMessages)
		api.POST("/chats", h.Chat.StartChat)

		api.GET("/messages", h.Chat.Messages)
		api.POST("/messages", h.Chat.Send)

		api.GET("/contacts", h.Friend.Contacts)
		api.POST("/contacts/refresh", h.Friend.Refresh)
		api.GET("/friend-requests", h.Friend.Requests)
		api.GET("/friend-requests/received", h.Friend.ReceivedRequests)
		api.POST("/friend-requests", h.Friend.SendRequest)
		api.GET("/blocks", h.Friend.Blocks)
		api.GET("/blocks/:id", h.Friend.BlockStatus)
		api.POST("/blocks/:id", h.Friend.Block)
		api.DELETE("/blocks/:id", h.Friend.Unblock)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on %s...", s.config.Addr)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.cancelBase()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Shutting down the server")
	}
	s.cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
