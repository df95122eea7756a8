package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/lets/internal/adapters/http/api"
	"github.com/okian/lets/internal/adapters/mq/queue"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/model"
	"github.com/okian/lets/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	mu       sync.Mutex
	seen     map[string]bool
	enqueued []model.ScoreEvent
	enqErr   error

	rankArgs struct {
		userID  int64
		mode    leaderboard.Mode
		variant leaderboard.Variant
	}
	rank    leaderboard.RankInfo
	rankErr error

	topArgs struct {
		mode    leaderboard.Mode
		variant leaderboard.Variant
		country string
		n       int
	}
	top    []types.Entry
	topErr error

	sweep    types.SweepOutcome
	sweepErr error

	rebuildArgs struct {
		mode    leaderboard.Mode
		variant leaderboard.Variant
	}
	rebuilt    int
	rebuildErr error

	refreshed  []int64
	refresh    types.UserRefresh
	refreshErr error
}

func newMockDeps() *mockDeps {
	return &mockDeps{seen: map[string]bool{}}
}

func (m *mockDeps) SeenAndRecord(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDeps) Unrecord(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
}

func (m *mockDeps) Enqueue(_ context.Context, e model.ScoreEvent) error {
	if m.enqErr != nil {
		return m.enqErr
	}
	m.enqueued = append(m.enqueued, e)
	return nil
}

func (m *mockDeps) RankInfo(_ context.Context, userID int64, mode leaderboard.Mode, variant leaderboard.Variant) (leaderboard.RankInfo, error) {
	m.rankArgs.userID, m.rankArgs.mode, m.rankArgs.variant = userID, mode, variant
	return m.rank, m.rankErr
}

func (m *mockDeps) Top(_ context.Context, mode leaderboard.Mode, variant leaderboard.Variant, country string, n int) ([]types.Entry, error) {
	m.topArgs.mode, m.topArgs.variant, m.topArgs.country, m.topArgs.n = mode, variant, country, n
	if m.topErr != nil {
		return nil, m.topErr
	}
	if n < len(m.top) {
		return m.top[:n], nil
	}
	return m.top, nil
}

func (m *mockDeps) SweepBeatmap(_ context.Context, id int64) (types.SweepOutcome, error) {
	out := m.sweep
	out.BeatmapID = id
	return out, m.sweepErr
}

func (m *mockDeps) RebuildLeaderboard(_ context.Context, mode leaderboard.Mode, variant leaderboard.Variant) (int, error) {
	m.rebuildArgs.mode, m.rebuildArgs.variant = mode, variant
	return m.rebuilt, m.rebuildErr
}

func (m *mockDeps) RefreshUser(_ context.Context, userID int64) (types.UserRefresh, error) {
	m.refreshed = append(m.refreshed, userID)
	out := m.refresh
	out.UserID = userID
	return out, m.refreshErr
}

func (m *mockDeps) GetStats() map[string]any {
	return map[string]any{"started": true, "queueLength": 3}
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestPostScore(t *testing.T) {
	Convey("Given the scores endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)
		const body = `{"score_id":"s-1","user_id":1000,"mode":3,"relax":true,"pp":512.5,"ranked_score":99}`

		Convey("When a valid score is posted", func() {
			w := do(mux, http.MethodPost, "/scores", body)

			Convey("Then it is accepted and queued as sent", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var res ack
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Status, ShouldEqual, "accepted")
				So(deps.enqueued, ShouldHaveLength, 1)
				e := deps.enqueued[0]
				So(e.Mode, ShouldEqual, leaderboard.ModeMania)
				So(e.Relax, ShouldBeTrue)
				So(e.PP, ShouldEqual, 512.5)
				So(e.TS.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the same score is posted twice", func() {
			do(mux, http.MethodPost, "/scores", body)
			w := do(mux, http.MethodPost, "/scores", body)

			Convey("Then the repeat is acknowledged as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res ack
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
				So(deps.enqueued, ShouldHaveLength, 1)
			})
		})

		Convey("When the body is malformed", func() {
			for _, bad := range []string{
				`{invalid json`,
				`{"user_id":1,"mode":0}`,
				`{"score_id":"x","user_id":0,"mode":0}`,
				`{"score_id":"x","user_id":1,"mode":9}`,
				`{"score_id":"x","user_id":1,"mode":0,"ts":"yesterday"}`,
			} {
				w := do(mux, http.MethodPost, "/scores", bad)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.seen, ShouldBeEmpty)
		})

		Convey("When the queue is full", func() {
			deps.enqErr = fmt.Errorf("enqueue s-1: %w", queue.ErrFull)
			w := do(mux, http.MethodPost, "/scores", body)

			Convey("Then the client is told to back off and may retry", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				var res apiError
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Code, ShouldEqual, "backpressure")
				So(deps.seen["s-1"], ShouldBeFalse)
			})
		})

		Convey("When the service is not running", func() {
			deps.enqErr = errors.New("service not started")
			w := do(mux, http.MethodPost, "/scores", body)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, "/scores", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestGetRank(t *testing.T) {
	Convey("Given the rank endpoint", t, func() {
		deps := newMockDeps()
		deps.rank = leaderboard.RankInfo{CurrentRank: 4, NextUsername: "peppy", Difference: -12}
		mux := newMux(deps)

		Convey("When a relax rank is requested by mode name", func() {
			w := do(mux, http.MethodGet, "/rank/taiko/1000?relax=1", "")

			Convey("Then the rank info is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"currentRank":4,"nextUsername":"peppy","difference":-12}`)
				So(deps.rankArgs.userID, ShouldEqual, 1000)
				So(deps.rankArgs.mode, ShouldEqual, leaderboard.ModeTaiko)
				So(deps.rankArgs.variant, ShouldEqual, leaderboard.VariantRelax)
			})
		})

		Convey("When the mode is numeric", func() {
			w := do(mux, http.MethodGet, "/rank/2/5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.rankArgs.mode, ShouldEqual, leaderboard.ModeCatch)
			So(deps.rankArgs.variant, ShouldEqual, leaderboard.VariantRegular)
		})

		Convey("When the path is invalid", func() {
			So(do(mux, http.MethodGet, "/rank/golf/5", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/rank/std/abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/rank/std/-1", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store fails", func() {
			deps.rankErr = errors.New("redis down")
			So(do(mux, http.MethodGet, "/rank/std/5", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestGetLeaderboard(t *testing.T) {
	Convey("Given the leaderboard endpoint", t, func() {
		deps := newMockDeps()
		deps.top = []types.Entry{
			{Rank: 1, UserID: 1, Username: "a", Score: 900},
			{Rank: 2, UserID: 2, Username: "b", Score: 800},
			{Rank: 3, UserID: 3, Score: 700},
		}
		mux := newMux(deps, api.WithMaxLimit(100))

		Convey("When a country page is requested", func() {
			w := do(mux, http.MethodGet, "/leaderboard/mania?relax=true&country=ID&limit=2", "")

			Convey("Then the filtered page is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var entries []types.Entry
				So(json.NewDecoder(w.Body).Decode(&entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Username, ShouldEqual, "a")
				So(deps.topArgs.mode, ShouldEqual, leaderboard.ModeMania)
				So(deps.topArgs.variant, ShouldEqual, leaderboard.VariantRelax)
				So(deps.topArgs.country, ShouldEqual, "ID")
			})
		})

		Convey("When no limit is given", func() {
			w := do(mux, http.MethodGet, "/leaderboard/std", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.topArgs.n, ShouldEqual, 50)
		})

		Convey("When the board is empty", func() {
			deps.top = nil
			w := do(mux, http.MethodGet, "/leaderboard/std", "")
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("When the limit is invalid or too large", func() {
			So(do(mux, http.MethodGet, "/leaderboard/std?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboard/std?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)

			w := do(mux, http.MethodGet, "/leaderboard/std?limit=101", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			var res apiError
			So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
			So(res.Code, ShouldEqual, "limit_exceeded")
		})

		Convey("When the store fails", func() {
			deps.topErr = errors.New("boom")
			So(do(mux, http.MethodGet, "/leaderboard/std", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestSweep(t *testing.T) {
	Convey("Given the sweep endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When the beatmap transitions", func() {
			deps.sweep = types.SweepOutcome{Found: true, Outcome: "transitioned", StatusLabel: "qualified", Saved: true, Notified: 1}
			w := do(mux, http.MethodPost, "/beatmaps/315/sweep", "")

			Convey("Then the outcome is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out types.SweepOutcome
				So(json.NewDecoder(w.Body).Decode(&out), ShouldBeNil)
				So(out.BeatmapID, ShouldEqual, 315)
				So(out.StatusLabel, ShouldEqual, "qualified")
			})
		})

		Convey("When the beatmap is unknown", func() {
			deps.sweep = types.SweepOutcome{Outcome: "not_found"}
			So(do(mux, http.MethodPost, "/beatmaps/1/sweep", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a sweep is already running", func() {
			deps.sweep = types.SweepOutcome{Found: true, InFlight: true, Outcome: "in_flight"}
			So(do(mux, http.MethodPost, "/beatmaps/1/sweep", "").Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("When the sweep fails or the id is bad", func() {
			So(do(mux, http.MethodPost, "/beatmaps/abc/sweep", "").Code, ShouldEqual, http.StatusBadRequest)
			deps.sweepErr = errors.New("sqlite: disk I/O error near beatmaps_criteria_control")
			w := do(mux, http.MethodPost, "/beatmaps/1/sweep", "")

			Convey("Then the failure is reported without internal detail", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				var res apiError
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Code, ShouldEqual, "internal_error")
				So(res.Message, ShouldEqual, "Internal Server Error")
				So(w.Body.String(), ShouldNotContainSubstring, "sqlite")
			})
		})
	})
}

func TestDownloadRedirect(t *testing.T) {
	Convey("Given the download endpoint", t, func() {
		mux := newMux(newMockDeps(), api.WithDownloadURL("https://mirror.example/d/"))

		Convey("When a set id is requested", func() {
			w := do(mux, http.MethodGet, "/d/1234", "")

			Convey("Then the client is redirected without caching", func() {
				So(w.Code, ShouldEqual, http.StatusFound)
				So(w.Header().Get("Location"), ShouldEqual, "https://mirror.example/d/1234")
				So(w.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
				So(w.Header().Get("Pragma"), ShouldEqual, "no-cache")
			})
		})

		Convey("When the no-video suffix is used", func() {
			w := do(mux, http.MethodGet, "/d/1234n", "")
			So(w.Header().Get("Location"), ShouldEqual, "https://mirror.example/d/1234?novideo")
		})

		Convey("When the id is not a number", func() {
			w := do(mux, http.MethodGet, "/d/abc", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "Invalid set id")
		})
	})
}

func TestRebuildLeaderboard(t *testing.T) {
	Convey("Given the rebuild endpoint", t, func() {
		deps := newMockDeps()
		deps.rebuilt = 12
		mux := newMux(deps)

		Convey("When a relax board is rebuilt", func() {
			w := do(mux, http.MethodPost, "/leaderboard/taiko/rebuild?relax=1", "")

			Convey("Then the replayed user count is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res types.Rebuild
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res, ShouldResemble, types.Rebuild{Mode: "taiko", Relax: true, Users: 12})
				So(deps.rebuildArgs.mode, ShouldEqual, leaderboard.ModeTaiko)
				So(deps.rebuildArgs.variant, ShouldEqual, leaderboard.VariantRelax)
			})
		})

		Convey("When the mode is unknown", func() {
			So(do(mux, http.MethodPost, "/leaderboard/golf/rebuild", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the stats cannot be loaded", func() {
			deps.rebuildErr = errors.New("load stats: no such table")
			w := do(mux, http.MethodPost, "/leaderboard/std/rebuild", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "no such table")
		})

		Convey("When it is read with GET", func() {
			So(do(mux, http.MethodGet, "/leaderboard/std/rebuild", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestRefreshUser(t *testing.T) {
	Convey("Given the user refresh endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When a restricted user is refreshed", func() {
			deps.refresh = types.UserRefresh{Eligible: false, Country: "ID", Removed: true}
			w := do(mux, http.MethodPost, "/users/42/refresh", "")

			Convey("Then the removal is reported", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res types.UserRefresh
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.UserID, ShouldEqual, 42)
				So(res.Removed, ShouldBeTrue)
				So(deps.refreshed, ShouldResemble, []int64{42})
			})
		})

		Convey("When the id is invalid", func() {
			So(do(mux, http.MethodPost, "/users/x/refresh", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/users/0/refresh", "").Code, ShouldEqual, http.StatusBadRequest)
			So(deps.refreshed, ShouldBeEmpty)
		})

		Convey("When the directory fails", func() {
			deps.refreshErr = errors.New("db down")
			So(do(mux, http.MethodPost, "/users/42/refresh", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(newMockDeps())

		Convey("Then health answers ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then stats expose the service counters", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			So(json.NewDecoder(w.Body).Decode(&stats), ShouldBeNil)
			So(stats["queueLength"], ShouldEqual, float64(3))
		})

		Convey("Then metrics are served in the Prometheus format", func() {
			do(mux, http.MethodGet, "/healthz", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "lets_ranking_http_requests_total")
		})
	})

	Convey("Given a readiness check", t, func() {
		var failing error
		mux := newMux(newMockDeps(), api.WithReadiness(func(context.Context) error { return failing }))

		Convey("Then health follows the check", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			failing = errors.New("database is locked")
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldNotContainSubstring, "locked")
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both the kind and the cause match", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.op: ")
			So(errors.Is(api.NewKind("api.op", api.ErrBackpressure), api.ErrBackpressure), ShouldBeTrue)
			So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
		})
	})
}
