// Package httpapi exposes the ledger and session over a local JSON API for browser front ends.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/logger"
	"github.com/verte-zerg/arcade/internal/model"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8787"

// UserHeader carries the caller's user id.
const UserHeader = "X-User-ID"

const (
	ctxUserID       = "user_id"
	shutdownTimeout = 5 * time.Second
)

// Config tunes the HTTP facade.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Mode           model.Mode
	Gates          ledger.Gates
}

// Server serves the JSON facade.
type Server struct {
	session *arcade.Session
	ledger  *ledger.Ledger
	cfg     Config
	log     *logger.Logger
	router  *gin.Engine
}

// New builds the server and its routes.
func New(session *arcade.Session, cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Mode == "" {
		cfg.Mode = model.ModeCourse
	}
	s := &Server{
		session: session,
		ledger:  session.Ledger(),
		cfg:     cfg,
		log:     log.With("service", "HTTPAPI"),
	}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(requireUser())
	{
		api.GET("/profile", s.getProfile)
		api.PUT("/profile", s.putProfile)
		api.GET("/quota", s.getQuota)
		api.POST("/quota/consume", s.consumeQuota)
		api.GET("/course", s.getCourse)
		api.POST("/course/completions", s.recordCompletion)
		api.GET("/course/next-module", s.nextModule)
		api.GET("/rooms/:room", s.getRoom)
		api.GET("/lessons", s.listLessons)
		api.POST("/lessons", s.generateLesson)
		api.POST("/lessons/complete-last", s.completeLast)
		api.POST("/lessons/submit", s.submitAnswer)
		api.POST("/lessons/activity", s.completeActivity)
		api.GET("/homework", s.listHomework)
		api.POST("/homework", s.saveHomework)
		api.GET("/badges", s.listBadges)
		api.GET("/progress", s.getProgress)
		api.POST("/sync/pull", s.pull)
		api.POST("/sync/push", s.push)
		api.GET("/sync/warnings", s.syncWarnings)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", UserHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorEnvelope{
				Error: APIError{Message: "missing " + UserHeader + " header", Code: "missing_user"},
			})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
