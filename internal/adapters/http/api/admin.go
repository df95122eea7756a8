package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/types"
	"github.com/okian/lets/pkg/logger"
)

// AdminDependencies are the maintenance operations on leaderboards.
type AdminDependencies interface {
	RebuildLeaderboard(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant) (int, error)
	RefreshUser(ctx context.Context, userID int64) (types.UserRefresh, error)
}

// AdminHandler handles leaderboard maintenance requests.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

// HandleRebuild handles POST /leaderboard/{mode}/rebuild?relax=1 by replaying
// the stored user totals into the board.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.rebuild_leaderboard"
	mode, err := leaderboard.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	relax := relaxParam(r)

	n, err := h.deps.RebuildLeaderboard(r.Context(), mode, leaderboard.VariantOf(relax))
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		serverError(r.Context(), w, h.logger, Wrap(op, err), logger.String("mode", mode.String()), logger.Bool("relax", relax))
		return
	}
	writeJSON(w, http.StatusOK, types.Rebuild{Mode: mode.String(), Relax: relax, Users: n})
}

// HandleRefreshUser handles POST /users/{user_id}/refresh. A user that lost
// leaderboard eligibility is removed from every board.
func (h *AdminHandler) HandleRefreshUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_user"
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.RefreshUser(r.Context(), userID)
	if err != nil {
		serverError(r.Context(), w, h.logger, Wrap(op, err), logger.Int64("user_id", userID))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
