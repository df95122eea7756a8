// Package service ties the ranking engines, the leaderboards and the score
// pipeline together and implements the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	eventqueue "github.com/okian/lets/internal/adapters/mq/queue"
	workerpool "github.com/okian/lets/internal/adapters/mq/worker"
	"github.com/okian/lets/internal/domain/autorank"
	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/internal/domain/dedupe"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/model"
	"github.com/okian/lets/internal/domain/scoring"
	"github.com/okian/lets/internal/domain/types"
	"github.com/okian/lets/pkg/logger"
	"github.com/okian/lets/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// ErrNotStarted is returned by ingestion calls before Start.
var ErrNotStarted = errors.New("service not started")

// BeatmapRepository loads and persists beatmaps.
type BeatmapRepository interface {
	Beatmap(ctx context.Context, beatmapID int64) (beatmap.Beatmap, error)
	SaveBeatmap(ctx context.Context, bm beatmap.Beatmap, releaseFreeze bool) error
	ClearLeaderboard(ctx context.Context, beatmapID int64) error
	SweepCandidates(ctx context.Context, limit int) ([]int64, error)
}

// StatsSource lists users' stored totals.
type StatsSource interface {
	Stats(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant) ([]model.UserStats, error)
}

// CriteriaApplier runs the manual ranking rules.
type CriteriaApplier interface {
	Apply(ctx context.Context, bm *beatmap.Beatmap) ([]int64, error)
}

// AutorankSweeper runs the time-driven promotion pipeline.
type AutorankSweeper interface {
	Sweep(ctx context.Context, bm *beatmap.Beatmap) (autorank.Result, error)
}

// Leaderboards updates and queries the user rankings.
type Leaderboards interface {
	RecordScore(ctx context.Context, userID int64, score float64, mode leaderboard.Mode, variant leaderboard.Variant) error
	RankInfo(ctx context.Context, userID int64, mode leaderboard.Mode, variant leaderboard.Variant) (leaderboard.RankInfo, error)
	Top(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant, country string, n int) ([]types.Entry, error)
	Forget(ctx context.Context, userID int64, mode leaderboard.Mode, variant leaderboard.Variant, country string) error
}

// CacheInvalidator is implemented by user directories that cache lookups.
type CacheInvalidator interface {
	Invalidate(userID int64)
}

// Notifier announces autorank transitions. It never fails the sweep.
type Notifier interface {
	Notify(ctx context.Context, n autorank.Notification)
}

// Components are the collaborators built by the caller.
type Components struct {
	Beatmaps     BeatmapRepository
	Stats        StatsSource
	Criteria     CriteriaApplier
	Autorank     AutorankSweeper
	Leaderboards Leaderboards
	Users        leaderboard.UserDirectory
	Notifier     Notifier
	Selector     *scoring.Selector
}

// Service implements the API dependencies of the ranking server.
type Service struct {
	mu sync.RWMutex

	beatmaps     BeatmapRepository
	stats        StatsSource
	criteria     CriteriaApplier
	autorank     AutorankSweeper
	leaderboards Leaderboards
	users        leaderboard.UserDirectory
	notifier     Notifier
	selector     *scoring.Selector

	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool
	inFlight   *xsync.Map[int64, struct{}]

	workerCount int
	queueSize   int
	dedupeSize  int
	dedupeTTL   time.Duration

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of score workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the score queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the score idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDedupeTTL sets how long a score id is remembered.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around c.
func New(c Components, opts ...Option) *Service {
	s := &Service{
		beatmaps:     c.Beatmaps,
		stats:        c.Stats,
		criteria:     c.Criteria,
		autorank:     c.Autorank,
		leaderboards: c.Leaderboards,
		users:        c.Users,
		notifier:     c.Notifier,
		selector:     c.Selector,
		inFlight:     xsync.NewMap[int64, struct{}](),
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    100_000,
		dedupeSize:   500_000,
		dedupeTTL:    time.Hour,
		logger:       logger.Nop(),
	}
	if s.selector == nil {
		s.selector = scoring.NewSelector()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the score pipeline and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	d, err := dedupe.NewDeduper(dedupe.WithMaxSize(s.dedupeSize), dedupe.WithTTL(s.dedupeTTL))
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	s.deduper = d
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.selector, s.leaderboards,
		workerpool.WithPoolLogger(s.logger))
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued scores and releases the pipeline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping ranking service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.deduper.Close()

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
}

// SeenAndRecord reports whether a score id was already submitted and
// records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordScoreDuplicate()
	}
	return seen
}

// Unrecord forgets a score id so the client may retry it.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.started {
		s.deduper.Unrecord(ctx, id)
	}
}

// Enqueue submits a score for asynchronous ranking.
func (s *Service) Enqueue(ctx context.Context, e model.ScoreEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		return fmt.Errorf("enqueue %s: %w", e.ScoreID, err)
	}
	metrics.RecordScoreAccepted()
	return nil
}

// RankInfo returns the user's position and the gap to the next user.
func (s *Service) RankInfo(ctx context.Context, userID int64, mode leaderboard.Mode, variant leaderboard.Variant) (leaderboard.RankInfo, error) {
	return s.leaderboards.RankInfo(ctx, userID, mode, variant)
}

// Top returns the best n entries with usernames filled in where known.
func (s *Service) Top(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant, country string, n int) ([]types.Entry, error) {
	entries, err := s.leaderboards.Top(ctx, mode, variant, country, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.Entry{Rank: e.Rank, UserID: e.UserID, Score: e.Score}
		if s.users == nil {
			continue
		}
		name, ok, err := s.users.Username(ctx, e.UserID)
		if err != nil {
			s.logger.Warn(ctx, "username lookup failed", logger.Int64("user_id", e.UserID), logger.Error(err))
			continue
		}
		if ok {
			out[i].Username = name
		}
	}
	return out, nil
}

// SweepBeatmap runs the criteria rules and the autorank pipeline on one
// beatmap, wipes the beatmap leaderboard when its ranking meaning changed,
// persists the result and announces transitions. Concurrent sweeps of the same
// beatmap are collapsed: the later one returns immediately with InFlight.
func (s *Service) SweepBeatmap(ctx context.Context, beatmapID int64) (types.SweepOutcome, error) {
	start := time.Now()
	out := types.SweepOutcome{BeatmapID: beatmapID}

	if _, busy := s.inFlight.LoadOrStore(beatmapID, struct{}{}); busy {
		out.Found, out.InFlight, out.Outcome = true, true, "in_flight"
		metrics.RecordSweep(out.Outcome, 0)
		return out, nil
	}
	defer s.inFlight.Delete(beatmapID)

	out, err := s.sweep(ctx, beatmapID)
	if err != nil {
		out.Outcome = "error"
	}
	metrics.RecordSweep(out.Outcome, float64(time.Since(start).Microseconds())/1000)
	return out, err
}

func (s *Service) sweep(ctx context.Context, beatmapID int64) (types.SweepOutcome, error) {
	out := types.SweepOutcome{BeatmapID: beatmapID}

	bm, err := s.beatmaps.Beatmap(ctx, beatmapID)
	if errors.Is(err, beatmap.ErrNotFound) {
		out.Outcome = "not_found"
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("load beatmap %d: %w", beatmapID, err)
	}
	out.Found = true
	orig := bm

	ids, err := s.criteria.Apply(ctx, &bm)
	if err != nil {
		return out, fmt.Errorf("apply criteria to %d: %w", beatmapID, err)
	}
	out.CriteriaIDs = ids
	for _, id := range ids {
		metrics.RecordCriteriaHit(strconv.FormatInt(id, 10))
	}

	res, err := s.autorank.Sweep(ctx, &bm)
	if err != nil {
		return out, fmt.Errorf("autorank %d: %w", beatmapID, err)
	}
	out.Outcome = res.Outcome()
	out.PreviousLabel = orig.RankedStatus.Label()
	out.StatusLabel = bm.RankedStatus.Label()

	// The wipe goes first: until the new status is saved, the next sweep
	// still sees the old one and asks for the wipe again.
	if res.NeedWipe {
		if err := s.beatmaps.ClearLeaderboard(ctx, beatmapID); err != nil {
			return out, fmt.Errorf("wipe leaderboard of %d: %w", beatmapID, err)
		}
		metrics.RecordLeaderboardWipe()
		out.Wiped = true
	}

	if !bm.Equal(orig) || res.ReleaseFreeze {
		if err := s.beatmaps.SaveBeatmap(ctx, bm, res.ReleaseFreeze); err != nil {
			return out, fmt.Errorf("save beatmap %d: %w", beatmapID, err)
		}
		out.Saved = true
	}

	if res.Transitioned {
		metrics.RecordStatusTransition(res.Previous.Label(), bm.RankedStatus.Label())
		s.logger.Info(ctx, "beatmap status changed",
			logger.Int64("beatmap_id", beatmapID),
			logger.String("from", res.Previous.Label()),
			logger.String("to", bm.RankedStatus.Label()),
		)
	}
	if s.notifier != nil {
		for _, n := range res.Notifications {
			s.notifier.Notify(ctx, n)
			out.Notified++
		}
	}
	return out, nil
}

// RebuildLeaderboard re-records every stored user total for (mode, variant)
// through the leaderboard service. Ineligible users are skipped by the
// service. It returns the number of rows replayed.
func (s *Service) RebuildLeaderboard(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant) (int, error) {
	if !mode.Valid() || !variant.Valid() {
		return 0, fmt.Errorf("%w: mode %d variant %d", leaderboard.ErrInvalidArgument, int(mode), int(variant))
	}
	rows, err := s.stats.Stats(ctx, mode, variant)
	if err != nil {
		return 0, fmt.Errorf("load stats: %w", err)
	}
	for i, st := range rows {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		v := s.selector.Value(mode, st.PP, st.RankedScore)
		if err := s.leaderboards.RecordScore(ctx, st.UserID, v, mode, variant); err != nil {
			return i, fmt.Errorf("rebuild %d: %w", st.UserID, err)
		}
	}
	s.logger.Info(ctx, "leaderboard rebuilt",
		logger.String("mode", mode.String()),
		logger.Bool("relax", variant == leaderboard.VariantRelax),
		logger.Int("users", len(rows)),
	)
	return len(rows), nil
}

// RefreshUser drops any cached facts about the user and re-reads them. A user
// that is no longer eligible is removed from every mode and variant board,
// including the board of their current country.
func (s *Service) RefreshUser(ctx context.Context, userID int64) (types.UserRefresh, error) {
	out := types.UserRefresh{UserID: userID}
	if userID <= 0 {
		return out, fmt.Errorf("%w: user id %d", leaderboard.ErrInvalidArgument, userID)
	}
	if inv, ok := s.users.(CacheInvalidator); ok {
		inv.Invalidate(userID)
	}

	eligible, err := s.users.Eligible(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("check eligibility of %d: %w", userID, err)
	}
	country, err := s.users.Country(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("country of %d: %w", userID, err)
	}
	out.Eligible, out.Country = eligible, country
	if eligible {
		return out, nil
	}

	for _, mode := range leaderboard.Modes() {
		for _, variant := range []leaderboard.Variant{leaderboard.VariantRegular, leaderboard.VariantRelax} {
			if err := s.leaderboards.Forget(ctx, userID, mode, variant, country); err != nil {
				return out, fmt.Errorf("forget %d: %w", userID, err)
			}
		}
	}
	out.Removed = true
	s.logger.Info(ctx, "ineligible user removed from leaderboards",
		logger.Int64("user_id", userID), logger.String("country", country))
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"sweepsInFlight": s.inFlight.Size(),
	}
	if s.started {
		stats["queueLength"] = s.eventQueue.Len(context.Background())
		stats["dedupeEntries"] = s.deduper.Size()
	}
	return stats
}
