package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/config"
	"github.com/okian/lutcurate/internal/domain/lut/luttest"
)

// run executes one CLI invocation and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeLooks(t *testing.T, dir string) {
	t.Helper()
	files := map[string][]byte{
		"warm/a.cube": luttest.Cube("warm a", 3, luttest.Warm),
		"warm/b.cube": luttest.Cube("warm b", 5, luttest.Warm),
		"cool/a.cube": luttest.Cube("cool a", 3, luttest.Cool),
		"cool/b.cube": luttest.Cube("cool b", 5, luttest.Cool),
		"notes.txt":   []byte("not a lut"),
	}
	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCuratorWorkflow(t *testing.T) {
	convey.Convey("Given a data dir and a folder of looks", t, func() {
		tmp := t.TempDir()
		looks := filepath.Join(tmp, "looks")
		writeLooks(t, looks)
		t.Setenv("LUTC_DATA_DIR", filepath.Join(tmp, "data"))
		t.Setenv("LUTC_LOG_LEVEL", "error")

		convey.Convey("When ingesting twice", func() {
			first, err := run(t, "ingest", looks)
			convey.So(err, convey.ShouldBeNil)
			second, err := run(t, "ingest", looks)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then only .cube files are added, once", func() {
				convey.So(first, convey.ShouldContainSubstring, "matched 4, added 4")
				convey.So(second, convey.ShouldContainSubstring, "added 0, already catalogued 4")
			})
		})

		convey.Convey("When running the full curation flow", func() {
			_, err := run(t, "ingest", looks)
			convey.So(err, convey.ShouldBeNil)

			analyzed, err := run(t, "analyze", "--progress=false")
			convey.So(err, convey.ShouldBeNil)
			convey.So(analyzed, convey.ShouldContainSubstring, "completed: processed 4/4 (success 4, failed 0)")

			clustered, err := run(t, "cluster", "-k", "2")
			convey.So(err, convey.ShouldBeNil)
			convey.So(clustered, convey.ShouldContainSubstring, "2 clusters over 4 files")

			members, err := run(t, "members", "0")
			convey.So(err, convey.ShouldBeNil)
			convey.So(members, convey.ShouldContainSubstring, "DISTANCE")
			convey.So(strings.Count(members, ".cube"), convey.ShouldEqual, 2)

			created, err := run(t, "snapshot", "create", "spring", "--description", "first pass")
			convey.So(err, convey.ShouldBeNil)
			id := strings.Fields(created)[0]

			listed, err := run(t, "snapshot", "list")
			convey.So(err, convey.ShouldBeNil)
			convey.So(listed, convey.ShouldContainSubstring, id)

			exported, err := run(t, "snapshot", "export", id, "-f", "yaml")

			convey.Convey("Then the export carries the frozen grouping", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(exported, convey.ShouldContainSubstring, "name: spring")
				convey.So(exported, convey.ShouldContainSubstring, "description: first pass")
				convey.So(exported, convey.ShouldContainSubstring, "metric: lightweight_7d")
				convey.So(exported, convey.ShouldContainSubstring, "n_clusters: 2")
			})
		})

		convey.Convey("When arguments are invalid", func() {
			_, err := run(t, "members", "x")
			convey.So(err, convey.ShouldNotBeNil)

			_, err = run(t, "snapshot", "export", "nope", "-f", "xml")
			convey.So(err, convey.ShouldNotBeNil)

			_, err = run(t, "cluster", "-k", "1")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestHTTPMux(t *testing.T) {
	convey.Convey("Given a started in-memory service", t, func() {
		cfg := config.New()
		cfg.DatabasePath = config.MemoryDatabase
		cfg.RenderCacheDir = t.TempDir()
		svc := service.New(service.WithConfig(cfg))
		ctx := context.Background()
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := newMux(ctx, svc)

		convey.Convey("Then docs and business routes are both served", func() {
			for _, path := range []string{"/openapi.yaml", "/api-docs", "/stats", "/clusters", "/healthz"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the runtime gauges", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
