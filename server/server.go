// Package server exposes the retrieval service over HTTP and streams task
// progress over websockets.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/ragdesk/pkg/logger"
	"github.com/xhad/ragdesk/pkg/rag"
)

// ScopeHeader carries the caller's scope. Authentication happens upstream.
const ScopeHeader = "X-Scope"

const defaultScope = "default"

type Config struct {
	Addr string
	// Mode is gin's mode: debug, release or test.
	Mode           string
	MaxUploadBytes int64
	// WatchInterval is how often a websocket re-reads its task.
	WatchInterval time.Duration
}

type Server struct {
	config   Config
	svc      *rag.Service
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewServer(config Config, svc *rag.Service, log *logger.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 20 << 20
	}
	if config.WatchInterval == 0 {
		config.WatchInterval = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		config: config,
		svc:    svc,
		log:    log.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Router() *gin.Engine {
	if s.config.Mode != "" {
		gin.SetMode(s.config.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())
	router.MaxMultipartMemory = s.config.MaxUploadBytes

	router.GET("/health", s.health)
	router.GET("/ws/tasks/:id", s.watchTask)

	api := router.Group("/api")
	{
		api.GET("/status", s.status)
		api.GET("/providers", s.providers)
		api.POST("/providers/test", s.testProvider)

		api.GET("/documents", s.listDocuments)
		api.POST("/documents", s.uploadDocument)
		api.POST("/documents/url", s.importURL)
		api.DELETE("/documents/:name", s.deleteDocument)

		api.GET("/tasks", s.listTasks)
		api.POST("/tasks/reindex", s.reindex)
		api.GET("/tasks/:id", s.getTask)
		api.POST("/tasks/:id/cancel", s.cancelTask)

		api.POST("/search", s.search)
		api.POST("/search/rerank", s.searchRerank)
		api.GET("/search/suggest", s.suggest)

		api.POST("/ask", s.ask)
		api.GET("/chat", s.chatHistory)
		api.POST("/chat", s.chat)
		api.GET("/chat/:id/citations", s.citations)
		api.POST("/chat/:id/feedback", s.feedback)
		api.GET("/chat/:id/export", s.exportChat)

		api.GET("/settings/provider", s.providerSettings)
		api.PUT("/settings/provider", s.saveProviderSettings)
		api.POST("/settings/provider/test", s.testProviderSettings)

		api.GET("/admin/vectors", s.vectors)
	}

	return router
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func scopeOf(c *gin.Context) string {
	if v := c.GetHeader(ScopeHeader); v != "" {
		return v
	}
	return defaultScope
}
