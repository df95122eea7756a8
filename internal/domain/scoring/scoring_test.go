package scoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/lets/internal/domain/leaderboard"
	scoring "github.com/okian/lets/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSelector(t *testing.T) {
	Convey("Given a default selector", t, func() {
		s := scoring.NewSelector()

		Convey("Then every mode ranks by pp", func() {
			for _, m := range leaderboard.Modes() {
				So(s.MetricFor(m), ShouldEqual, scoring.MetricPP)
				So(s.Value(m, 123.4, 99999), ShouldEqual, 123.4)
			}
		})
	})

	Convey("Given a selector configured from a map", t, func() {
		s := scoring.NewSelector(scoring.WithMetricsFromConfig(map[string]string{
			"mania": "score",
			"ctb":   "bogus",
			"osu!":  "score",
		}))

		Convey("Then known entries apply and the rest are ignored", func() {
			So(s.MetricFor(leaderboard.ModeMania), ShouldEqual, scoring.MetricScore)
			So(s.MetricFor(leaderboard.ModeCatch), ShouldEqual, scoring.MetricPP)
			So(s.Value(leaderboard.ModeMania, 1.5, 1_000_000), ShouldEqual, 1_000_000.0)
		})
	})

	Convey("Given the Scorer contract", t, func() {
		s := scoring.NewSelector(scoring.WithMetric(leaderboard.ModeTaiko, scoring.MetricScore))

		Convey("When scoring a valid submission", func() {
			res, err := s.Score(context.Background(), scoring.Input{
				UserID: 7, Mode: leaderboard.ModeTaiko, PP: 300, RankedScore: 5000,
			})

			Convey("Then the configured metric is used", func() {
				So(err, ShouldBeNil)
				So(res.UserID, ShouldEqual, 7)
				So(res.Score, ShouldEqual, 5000.0)
			})
		})

		Convey("When the mode is unknown", func() {
			_, err := s.Score(context.Background(), scoring.Input{UserID: 7, Mode: leaderboard.Mode(8)})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, leaderboard.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := s.Score(ctx, scoring.Input{UserID: 7})

			Convey("Then the cancellation is surfaced", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
