package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/lets/internal/adapters/mq/queue"
	"github.com/okian/lets/internal/adapters/mq/worker"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/model"
	"github.com/okian/lets/internal/domain/scoring"
	logging "github.com/okian/lets/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	events chan queue.Event
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{events: make(chan queue.Event, 128)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Event { return mq.events }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.events) })
	return nil
}

type failingScorer struct {
	scoring.Scorer
	failUser int64
}

func (f failingScorer) Score(ctx context.Context, in scoring.Input) (scoring.Result, error) {
	if in.UserID == f.failUser {
		return scoring.Result{}, errors.New("scoring error")
	}
	return f.Scorer.Score(ctx, in)
}

type update struct {
	score   float64
	mode    leaderboard.Mode
	variant leaderboard.Variant
}

type mockUpdater struct {
	mu       sync.Mutex
	updates  map[int64]update
	failUser int64
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{updates: make(map[int64]update)}
}

func (m *mockUpdater) RecordScore(_ context.Context, userID int64, score float64, mode leaderboard.Mode, variant leaderboard.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == m.failUser {
		return errors.New("update error")
	}
	m.updates[userID] = update{score: score, mode: mode, variant: variant}
	return nil
}

func (m *mockUpdater) get(userID int64) (update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.updates[userID]
	return u, ok
}

func (m *mockUpdater) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		scorer := failingScorer{
			Scorer:   scoring.NewSelector(scoring.WithMetric(leaderboard.ModeMania, scoring.MetricScore)),
			failUser: 66,
		}
		updater := newMockUpdater()
		updater.failUser = 77

		w := worker.NewInMemoryWorker(q, scorer, updater, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a pp-ranked score arrives", func() {
			q.events <- model.ScoreEvent{ScoreID: "a", UserID: 1, Mode: leaderboard.ModeStandard, Relax: true, PP: 321.5, RankedScore: 9}

			convey.Convey("Then the pp total is recorded on the relax board", func() {
				convey.So(waitFor(func() bool { _, ok := updater.get(1); return ok }), convey.ShouldBeTrue)
				u, _ := updater.get(1)
				convey.So(u.score, convey.ShouldEqual, 321.5)
				convey.So(u.variant, convey.ShouldEqual, leaderboard.VariantRelax)
			})
		})

		convey.Convey("When a score-ranked mode arrives", func() {
			q.events <- model.ScoreEvent{ScoreID: "b", UserID: 2, Mode: leaderboard.ModeMania, PP: 10, RankedScore: 123456}

			convey.Convey("Then the ranked score is recorded", func() {
				convey.So(waitFor(func() bool { _, ok := updater.get(2); return ok }), convey.ShouldBeTrue)
				u, _ := updater.get(2)
				convey.So(u.score, convey.ShouldEqual, 123456)
				convey.So(u.mode, convey.ShouldEqual, leaderboard.ModeMania)
			})
		})

		convey.Convey("When scoring or updating fails", func() {
			q.events <- model.ScoreEvent{ScoreID: "c", UserID: 66, Mode: leaderboard.ModeStandard}
			q.events <- model.ScoreEvent{ScoreID: "d", UserID: 77, Mode: leaderboard.ModeStandard}
			q.events <- model.ScoreEvent{ScoreID: "e", UserID: 3, Mode: leaderboard.ModeStandard, PP: 1}

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { _, ok := updater.get(3); return ok }), convey.ShouldBeTrue)
				_, ok := updater.get(66)
				convey.So(ok, convey.ShouldBeFalse)
				_, ok = updater.get(77)
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		updater := newMockUpdater()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, scoring.NewSelector(), updater)

			convey.Convey("Then it defaults to a CPU-based size", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When many events are processed concurrently", func() {
			pool := worker.NewPool(4, q, scoring.NewSelector(), updater, worker.WithPoolLogger(logging.Nop()))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			const total = 100
			var wg sync.WaitGroup
			for p := range 5 {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for j := range total / 5 {
						q.events <- model.ScoreEvent{
							ScoreID: fmt.Sprintf("s-%d-%d", p, j),
							UserID:  int64(p*1000 + j + 1),
							Mode:    leaderboard.ModeTaiko,
							PP:      float64(j),
						}
					}
				}(p)
			}
			wg.Wait()

			convey.Convey("Then every event is recorded and shutdown drains cleanly", func() {
				convey.So(waitFor(func() bool { return updater.count() == total }), convey.ShouldBeTrue)

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}
