package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors should be registered", func() {
				So(manager, ShouldNotBeNil)
				manager.sweepsTotal.WithLabelValues("transitioned").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "lets_ranking_sweeps_total")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{1, 2}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names should use them", func() {
				manager.leaderboardWipes.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_sub_")
				So(testutil.ToFloat64(manager.leaderboardWipes), ShouldEqual, 1)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording a status transition", func() {
			before := testutil.ToFloat64(globalManager.statusTransitions.WithLabelValues("qualified", "ranked"))
			RecordStatusTransition("qualified", "ranked")

			Convey("Then the labelled counter should move", func() {
				after := testutil.ToFloat64(globalManager.statusTransitions.WithLabelValues("qualified", "ranked"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording gauges", func() {
			UpdateQueueSize(12)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)

			Convey("Then the latest value wins", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
			})
		})

		Convey("When recording everything else", func() {
			So(func() {
				RecordSweep("skipped_frozen", 1.5)
				RecordCriteriaHit("7")
				RecordLeaderboardWipe()
				RecordMetadataFailure("timeout")
				RecordNotificationError()
				RecordLeaderboardUpsert("global")
				RecordLeaderboardSkipped()
				RecordRankQuery("top")
				RecordStoreLatency("memory", "upsert", 0.1)
				UpdateStoreMembers("memory", 3)
				RecordScoreAccepted()
				RecordScoreDuplicate()
				RecordQueueRejected("full")
				RecordWorkerError("record")
				RecordWorkerLatency(3)
				RecordUsersCacheLookup("country", true)
				RecordHTTPRequest("rank", "GET", "200")
				RecordHTTPRequestDuration("rank", "GET", "200", 2)
				RecordHTTPError("scores", "rate_limit")
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
