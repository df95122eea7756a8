package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/pkg/logger"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	RankInfo(ctx context.Context, userID int64, mode leaderboard.Mode, variant leaderboard.Variant) (leaderboard.RankInfo, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps   RankDependencies
	logger logger.Logger
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, l logger.Logger) *RankHandler {
	return &RankHandler{deps: deps, logger: l}
}

// HandleGetRank handles GET /rank/{mode}/{user_id} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	mode, err := leaderboard.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	info, err := h.deps.RankInfo(r.Context(), userID, mode, leaderboard.VariantOf(relaxParam(r)))
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		serverError(r.Context(), w, h.logger, Wrap(op, err), logger.Int64("user_id", userID))
		return
	}
	writeJSON(w, http.StatusOK, info)
}
