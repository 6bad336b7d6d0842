// Package httpapi exposes the daemon's operational surface: health checks,
// the manual trigger, and per-genre status.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/curator-agent/internal/scheduler"
	"github.com/curator-agent/internal/storage"
	"github.com/curator-agent/pkg/logger"
)

// Options holds server settings.
type Options struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server wires the orchestrator and repository into an echo HTTP server.
type Server struct {
	orch *scheduler.Orchestrator
	repo storage.Repository
	log  *logger.Logger
	opts Options
	echo *echo.Echo
}

// New creates the server.
func New(orch *scheduler.Orchestrator, repo storage.Repository, opts Options, log *logger.Logger) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		orch: orch,
		repo: repo,
		log:  log.WithComponent("httpapi"),
		opts: opts,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealth)
	e.POST("/api/trigger", s.handleTrigger)
	e.GET("/api/genres", s.handleGenres)

	s.echo = e
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	s.log.Info().Str("addr", addr).Msg("HTTP server starting")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// tickResultView is the JSON shape of one genre's tick outcome.
type tickResultView struct {
	GenreID    string `json:"genre_id"`
	Outcome    string `json:"outcome"`
	SkipReason string `json:"skip_reason,omitempty"`
	Candidates int    `json:"candidates,omitempty"`
	Published  int    `json:"published,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleTrigger evaluates all genres now. Safe to race with the periodic
// tick: the per-genre execution lock prevents double runs.
func (s *Server) handleTrigger(c echo.Context) error {
	s.log.Info().Msg("Manual trigger received")

	results, err := s.orch.RunAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	views := make([]tickResultView, 0, len(results))
	for _, r := range results {
		view := tickResultView{
			GenreID:    r.GenreID,
			Outcome:    string(r.Outcome),
			SkipReason: r.SkipReason,
			Candidates: r.Candidates,
			Published:  r.Published,
		}
		if r.Err != nil {
			view.Error = r.Err.Error()
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": views})
}

// genreStatusView is the JSON shape of one genre's bookkeeping.
type genreStatusView struct {
	GenreID        string     `json:"genre_id"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty"`
	LastOutcome    string     `json:"last_outcome,omitempty"`
	LastReason     string     `json:"last_reason,omitempty"`
	PublishedToday int64      `json:"published_today"`
}

func (s *Server) handleGenres(c echo.Context) error {
	ctx := c.Request().Context()

	genres, err := s.orch.Genres(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	views := make([]genreStatusView, 0, len(genres))
	for _, genre := range genres {
		run, err := s.repo.GetGenreRun(ctx, genre.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		count, err := s.repo.CountPublishedSince(ctx, genre.ID, time.Now().Add(-24*time.Hour))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		views = append(views, genreStatusView{
			GenreID:        genre.ID,
			LastRunAt:      run.LastRunAt,
			LastFailureAt:  run.LastFailureAt,
			LastOutcome:    run.LastOutcome,
			LastReason:     run.LastReason,
			PublishedToday: count,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"genres": views})
}
