package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/lets/internal/adapters/mq/queue"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/model"
	"github.com/okian/lets/pkg/logger"
)

// ScoreDependencies defines what score ingestion needs.
type ScoreDependencies interface {
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
	// Enqueue pushes a score for async ranking.
	Enqueue(ctx context.Context, e model.ScoreEvent) error
}

// scoreRequest is the body of POST /scores.
type scoreRequest struct {
	ScoreID     string  `json:"score_id"`
	UserID      int64   `json:"user_id"`
	Mode        int     `json:"mode"`
	Relax       bool    `json:"relax"`
	PP          float64 `json:"pp"`
	RankedScore int64   `json:"ranked_score"`
	TS          string  `json:"ts,omitempty"`
}

func (s scoreRequest) event() (model.ScoreEvent, error) {
	if strings.TrimSpace(s.ScoreID) == "" {
		return model.ScoreEvent{}, errors.New("missing score_id")
	}
	ts := time.Now().UTC()
	if s.TS != "" {
		t, err := time.Parse(time.RFC3339, s.TS)
		if err != nil {
			return model.ScoreEvent{}, errors.New("invalid ts; must be RFC3339")
		}
		ts = t
	}
	e := model.ScoreEvent{
		ScoreID:     s.ScoreID,
		UserID:      s.UserID,
		Mode:        leaderboard.Mode(s.Mode),
		Relax:       s.Relax,
		PP:          s.PP,
		RankedScore: s.RankedScore,
		TS:          ts,
	}
	return e, e.Validate()
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// ScoresHandler handles score submissions.
type ScoresHandler struct {
	deps   ScoreDependencies
	logger logger.Logger
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, l logger.Logger) *ScoresHandler {
	return &ScoresHandler{deps: deps, logger: l}
}

// HandlePostScore handles POST /scores requests.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	e, err := req.event()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if h.deps.SeenAndRecord(r.Context(), e.ScoreID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.deps.Enqueue(r.Context(), e); err != nil {
		// let the client retry the same score id
		h.deps.Unrecord(r.Context(), e.ScoreID)
		switch {
		case errors.Is(err, leaderboard.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
			writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		default:
			h.logger.Warn(r.Context(), "score not queued", logger.String("score_id", e.ScoreID), logger.Error(Wrap(op, err)))
			writeError(w, http.StatusServiceUnavailable, "unavailable", nil)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
