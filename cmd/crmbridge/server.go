package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crmbridge/internal/constants"
	"crmbridge/internal/middleware"
	"crmbridge/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SessionStatus is the read-only supervisor surface the HTTP layer reports on
type SessionStatus interface {
	Snapshot() models.Session
	MaxReconnectAttempts() int
}

// TransitionHistory lists journaled session transitions for /status
type TransitionHistory interface {
	RunID() string
	Recent(ctx context.Context, sessionID string, limit int) ([]models.SessionTransition, error)
}

// MessageSender accepts outbound sends from the CRM
type MessageSender interface {
	Send(ctx context.Context, req models.SendRequest) (*models.SendResult, error)
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	cfg     *models.Config
	session SessionStatus
	sender  MessageSender
	history TransitionHistory
	started time.Time
	server  *http.Server
}

func NewServer(cfg *models.Config, session SessionStatus, sender MessageSender, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		cfg:     cfg,
		session: session,
		sender:  sender,
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// SetHistory adds the journal's recent transitions to /status
func (s *Server) SetHistory(history TransitionHistory) {
	s.history = history
}

func (s *Server) setupRoutes() {
	s.router.Use(
		middleware.Recovery(s.logger),
		middleware.Observability(s.logger),
		middleware.MaxBody(constants.MaxRequestBodyBytes),
		middleware.DebugLogging(s.logger, middleware.DefaultDebugLoggingConfig()),
	)

	s.router.HandleFunc("/", s.handleRoot()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	s.router.HandleFunc("/qr", s.handleQR()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/send-message", s.handleSendMessage()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
