package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/pkg/logger"
)

const defaultLimit = 50

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	Top(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant, country string, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
	logger   logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int, l logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
		logger:   l,
	}
}

// HandleGetLeaderboard handles GET /leaderboard/{mode}?relax=1&country=xx&limit=N
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	mode, err := leaderboard.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	q := r.URL.Query()
	n := defaultLimit
	if s := q.Get("limit"); s != "" {
		n, err = strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}

	entries, err := h.deps.Top(r.Context(), mode, leaderboard.VariantOf(relaxParam(r)), q.Get("country"), n)
	if err != nil {
		serverError(r.Context(), w, h.logger, Wrap(op, err), logger.String("mode", mode.String()))
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
