// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/lets/internal/domain/types"
	"github.com/okian/lets/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScoreDependencies
	RankDependencies
	LeaderboardDependencies
	SweepDependencies
	AdminDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

const (
	defaultMaxLimit    = 500
	defaultDownloadURL = "https://storage.ainu.pw/d/"
)

// Option configures a Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard page size.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithDownloadURL sets the beatmap mirror prefix used by /d/ redirects.
func WithDownloadURL(u string) Option {
	return func(s *Server) {
		if u != "" {
			s.downloadURL = u
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReadiness makes /healthz answer 503 while check fails.
func WithReadiness(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.ready = check
	}
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	maxLimit    int
	downloadURL string
	ready       func(ctx context.Context) error
	logger      logger.Logger

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	sweepHandler       *SweepHandler
	adminHandler       *AdminHandler
	downloadHandler    *DownloadHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxLimit:    defaultMaxLimit,
		downloadURL: defaultDownloadURL,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(s.ready, s.logger)
	s.statsHandler = NewStatsHandler(deps)
	s.scoresHandler = NewScoresHandler(deps, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit, s.logger)
	s.rankHandler = NewRankHandler(deps, s.logger)
	s.sweepHandler = NewSweepHandler(deps, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	s.downloadHandler = NewDownloadHandler(s.downloadURL)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /scores", MetricsMiddleware(s.scoresHandler.HandlePostScore, "scores"))
	mux.HandleFunc("GET /leaderboard/{mode}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{mode}/{user_id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("POST /leaderboard/{mode}/rebuild", MetricsMiddleware(s.adminHandler.HandleRebuild, "rebuild"))
	mux.HandleFunc("POST /users/{user_id}/refresh", MetricsMiddleware(s.adminHandler.HandleRefreshUser, "user_refresh"))
	mux.HandleFunc("POST /beatmaps/{beatmap_id}/sweep", MetricsMiddleware(s.sweepHandler.HandleSweep, "sweep"))
	mux.HandleFunc("GET /d/{set_id}", MetricsMiddleware(s.downloadHandler.HandleDownload, "download"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports a client error. 5xx bodies never carry err; use
// serverError for those.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// serverError logs err and answers 500 with a generic body.
func serverError(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error, fields ...logger.Field) {
	l.Error(ctx, "request failed", append(fields, logger.Error(err))...)
	writeError(w, http.StatusInternalServerError, "internal_error", nil)
}

// relaxParam reads the relax query flag; "1" and "true" select relax.
func relaxParam(r *http.Request) bool {
	switch r.URL.Query().Get("relax") {
	case "1", "true":
		return true
	}
	return false
}
