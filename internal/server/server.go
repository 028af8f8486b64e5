// Package server is the thin HTTP layer in front of the core: form parsing,
// validation-error mapping, and the SSE log stream. All heavy lifting stays
// in the session/fetcher/dispatch packages.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"massdm/internal/dispatch"
	"massdm/internal/fetcher"
	"massdm/internal/insta"
	"massdm/internal/logstream"
	"massdm/internal/session"
	logx "massdm/pkg/logx"
)

// Auth is the slice of the session manager the handlers need.
type Auth interface {
	Login(ctx context.Context, username, password string) session.LoginResult
	CompleteTwoFactor(ctx context.Context, code string) session.LoginResult
	IsLoggedIn() bool
}

// Lister resolves handles and fetches connection lists.
type Lister interface {
	Resolve(ctx context.Context, handle string) (int64, error)
	Fetch(ctx context.Context, userID int64, kind insta.ListKind) fetcher.Result
}

// Dispatcher triggers detached dispatch runs.
type Dispatcher interface {
	Trigger(ctx context.Context, req dispatch.Request) error
}

// LogSource is the drain side of the log buffer.
type LogSource interface {
	DrainAll() []logstream.Entry
}

type Config struct {
	Addr            string
	LogPollInterval time.Duration
}

type Server struct {
	cfg    Config
	engine *gin.Engine
	http   *http.Server

	auth   Auth
	lister Lister
	disp   Dispatcher
	logs   LogSource
	log    logx.Logger

	// runCtx is handed to Trigger so dispatch runs outlive their HTTP
	// request. Set by Start(); defaults to Background for tests.
	runCtx context.Context
}

func New(cfg Config, auth Auth, lister Lister, disp Dispatcher, logs LogSource, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.LogPollInterval <= 0 {
		cfg.LogPollInterval = 750 * time.Millisecond
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLog(log))

	s := &Server{
		cfg:    cfg,
		engine: engine,
		auth:   auth,
		lister: lister,
		disp:   disp,
		logs:   logs,
		log:    log,
		runCtx: context.Background(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine.POST("/login", s.handleLogin)
	s.engine.POST("/complete-2fa", s.handleCompleteTwoFactor)
	s.engine.GET("/status", s.handleStatus)
	s.engine.POST("/get-list", s.handleGetList)
	s.engine.POST("/send-dm", s.handleSendDM)
	s.engine.GET("/logs", s.handleLogs)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	s.http = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
		// No WriteTimeout: /logs holds its connection open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// The log stream endpoint blocks for the whole connection; logging
		// it would only add noise.
		if c.FullPath() == "/logs" {
			return
		}
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
