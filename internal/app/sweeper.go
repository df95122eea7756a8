package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/lets/pkg/logger"
	"github.com/robfig/cron/v3"
)

// SweepSummary counts what one batch sweep did.
type SweepSummary struct {
	Candidates   int
	Transitioned int
	Failed       int
}

// Sweeper periodically sweeps every autorank candidate.
type Sweeper struct {
	svc       *Service
	batchSize int
	cron      *cron.Cron
	runMu     sync.Mutex
	logger    logger.Logger
}

// NewSweeper schedules RunOnce on the standard cron expression schedule.
func NewSweeper(svc *Service, schedule string, batchSize int, l logger.Logger) (*Sweeper, error) {
	if l == nil {
		l = logger.Nop()
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	sw := &Sweeper{svc: svc, batchSize: batchSize, cron: cron.New(), logger: l.Named("sweeper")}

	if _, err := sw.cron.AddFunc(schedule, func() {
		if _, err := sw.RunOnce(context.Background()); err != nil {
			sw.logger.Error(context.Background(), "scheduled sweep failed", logger.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return sw, nil
}

// Start starts the scheduler.
func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop stops the scheduler and waits for a running sweep to finish or ctx
// to expire.
func (sw *Sweeper) Stop(ctx context.Context) {
	select {
	case <-sw.cron.Stop().Done():
	case <-ctx.Done():
		sw.logger.Warn(ctx, "sweep still running at shutdown")
	}
}

// RunOnce sweeps up to batchSize candidates. Runs never overlap; a call made
// while another is active returns an empty summary.
func (sw *Sweeper) RunOnce(ctx context.Context) (SweepSummary, error) {
	if !sw.runMu.TryLock() {
		sw.logger.Debug(ctx, "sweep already running, skipped")
		return SweepSummary{}, nil
	}
	defer sw.runMu.Unlock()

	ids, err := sw.svc.beatmaps.SweepCandidates(ctx, sw.batchSize)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list sweep candidates: %w", err)
	}

	sum := SweepSummary{Candidates: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		out, err := sw.svc.SweepBeatmap(ctx, id)
		if err != nil {
			sum.Failed++
			sw.logger.Warn(ctx, "beatmap sweep failed", logger.Int64("beatmap_id", id), logger.Error(err))
			continue
		}
		if out.Outcome == "transitioned" {
			sum.Transitioned++
		}
	}

	sw.logger.Info(ctx, "autorank sweep finished",
		logger.Int("candidates", sum.Candidates),
		logger.Int("transitioned", sum.Transitioned),
		logger.Int("failed", sum.Failed),
	)
	return sum, nil
}
