package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/lets/internal/domain/types"
	"github.com/okian/lets/pkg/logger"
)

// SweepDependencies runs a single beatmap sweep.
type SweepDependencies interface {
	SweepBeatmap(ctx context.Context, beatmapID int64) (types.SweepOutcome, error)
}

// SweepHandler triggers on-demand sweeps.
type SweepHandler struct {
	deps   SweepDependencies
	logger logger.Logger
}

// NewSweepHandler creates a new sweep handler.
func NewSweepHandler(deps SweepDependencies, l logger.Logger) *SweepHandler {
	return &SweepHandler{deps: deps, logger: l}
}

// HandleSweep handles POST /beatmaps/{beatmap_id}/sweep. Unknown beatmaps
// answer 404 with the outcome body; a sweep already running answers 202.
func (h *SweepHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	const op = "api.sweep_beatmap"
	id, err := strconv.ParseInt(r.PathValue("beatmap_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.SweepBeatmap(r.Context(), id)
	if err != nil {
		serverError(r.Context(), w, h.logger, Wrap(op, err), logger.Int64("beatmap_id", id))
		return
	}
	switch {
	case !out.Found:
		writeJSON(w, http.StatusNotFound, out)
	case out.InFlight:
		writeJSON(w, http.StatusAccepted, out)
	default:
		writeJSON(w, http.StatusOK, out)
	}
}
