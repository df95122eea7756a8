package osuapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/lets/internal/adapters/osuapi"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFetchUpstreamMetadata(t *testing.T) {
	ctx := context.Background()

	Convey("Given an upstream API", t, func() {
		var (
			status = http.StatusOK
			body   = `[{"beatmap_id":"75","beatmapset_id":"1","file_md5":"abc","last_update":"2024-01-02 03:04:05"},
				{"beatmap_id":"76","last_update":"1999-01-01 00:00:00"}]`
			gotPath, gotKey, gotHash string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.URL.Query().Get("k")
			gotHash = r.URL.Query().Get("h")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		Reset(srv.Close)

		c := osuapi.New(srv.URL+"/api/", "secret", osuapi.WithHTTPClient(srv.Client()))

		Convey("When the file is known", func() {
			md, ok, err := c.FetchUpstreamMetadata(ctx, "abc")

			Convey("Then the first element's update date is returned", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(md.LastUpdate, ShouldEqual, "2024-01-02 03:04:05")
				So(gotPath, ShouldEqual, "/api/get_beatmaps")
				So(gotKey, ShouldEqual, "secret")
				So(gotHash, ShouldEqual, "abc")
			})
		})

		Convey("When the file is unknown", func() {
			body = `[]`
			_, ok, err := c.FetchUpstreamMetadata(ctx, "zzz")

			Convey("Then no metadata and no error", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the upstream fails", func() {
			status = http.StatusBadGateway
			_, ok, err := c.FetchUpstreamMetadata(ctx, "abc")

			Convey("Then an error is returned", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(err, osuapi.ErrUnexpectedStatus), ShouldBeTrue)
			})
		})

		Convey("When the body is not JSON", func() {
			body = `<html>`
			_, _, err := c.FetchUpstreamMetadata(ctx, "abc")
			So(err, ShouldNotBeNil)
		})
	})
}
