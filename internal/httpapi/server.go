// Package httpapi serves the fix supervisor over a local JSON API so a
// separate UI process can start, poll and cancel jobs.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"game-fix-manager/internal/history"
	"game-fix-manager/internal/supervisor"

	"github.com/labstack/echo/v4"
)

// Service is the subset of the supervisor the API drives.
type Service interface {
	CheckAvailability(ctx context.Context, appID int64) supervisor.Availability
	StartApply(appID int64, downloadURL, installPath, fixType, gameName string) supervisor.Result
	PollApply(appID int64) supervisor.ApplyPoll
	CancelApply(appID int64) supervisor.Result
	StartRemove(ctx context.Context, appID int64, installPath string) supervisor.Result
	PollRemove(appID int64) supervisor.RemovePoll
	Jobs() supervisor.Jobs
}

// HistoryLister reads finished job outcomes.
type HistoryLister interface {
	List(ctx context.Context, appID int64, limit int) ([]history.Entry, error)
}

type Options struct {
	Addr    string
	History HistoryLister
	Metrics http.Handler
	Logger  *slog.Logger
}

type Server struct {
	echo    *echo.Echo
	addr    string
	svc     Service
	history HistoryLister
	metrics http.Handler
	logger  *slog.Logger
	started time.Time
}

func NewServer(svc Service, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:    e,
		addr:    opts.Addr,
		svc:     svc,
		history: opts.History,
		metrics: opts.Metrics,
		logger:  logger,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.logger.Info("starting api server", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
