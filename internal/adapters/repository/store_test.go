package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/lutcurate/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(v float64) *float64 { return &v }

// storeFactories runs the same contract against every implementation.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, factory := range storeFactories(t) {
		Convey("Given a "+name+" store", t, func() {
			ctx := context.Background()
			s := factory()
			defer s.Close()

			Convey("Luts are listed in creation order and are unique", func() {
				So(s.PutLut(ctx, model.LutAsset{ID: "b", Filename: "b.cube", BlobPath: "luts/b", CreatedAt: base.Add(time.Second)}), ShouldBeNil)
				So(s.PutLut(ctx, model.LutAsset{ID: "a", Filename: "a.cube", BlobPath: "luts/a", CreatedAt: base}), ShouldBeNil)

				err := s.PutLut(ctx, model.LutAsset{ID: "a", Filename: "dup.cube", CreatedAt: base})
				So(errors.Is(err, ErrConflict), ShouldBeTrue)

				luts, err := s.ListLuts(ctx)
				So(err, ShouldBeNil)
				So(len(luts), ShouldEqual, 2)
				So(luts[0].ID, ShouldEqual, "a")
				So(luts[0].CreatedAt.Equal(base), ShouldBeTrue)

				got, err := s.LutByFilename(ctx, "b.cube")
				So(err, ShouldBeNil)
				So(got.BlobPath, ShouldEqual, "luts/b")

				_, err = s.GetLut(ctx, "zzz")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Analyses are upserted", func() {
				a := model.LutAnalysis{
					LutID:       "a",
					GridSize:    33,
					Lightweight: []float64{1, 2, 3, 4, 5, 6, 7},
					Tags:        []string{"warm", "vivid"},
					AnalyzedAt:  base,
				}
				So(s.PutAnalysis(ctx, a), ShouldBeNil)
				a.Tags = []string{"cool"}
				a.ThumbnailPath = "thumbnails/a.png"
				So(s.PutAnalysis(ctx, a), ShouldBeNil)

				got, err := s.GetAnalysis(ctx, "a")
				So(err, ShouldBeNil)
				So(got.Tags, ShouldResemble, []string{"cool"})
				So(got.Lightweight, ShouldResemble, a.Lightweight)
				So(got.ImageFeatures, ShouldBeNil)
				So(got.Analyzed(), ShouldBeTrue)

				all, err := s.ListAnalyses(ctx)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 1)

				_, err = s.GetAnalysis(ctx, "b")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("A clustering run replaces the whole assignment set", func() {
				first := []model.ClusterAssignment{
					{ClusterID: 0, LutID: "a", DistanceToCenter: ptr(0.5)},
					{ClusterID: 1, LutID: "b", DistanceToCenter: ptr(0.1)},
					{ClusterID: 2, LutID: "c"},
				}
				run := model.ClusterRun{Metric: model.Lightweight7D, Algorithm: model.CentroidBased, NClusters: 3, TotalFiles: 3, CreatedAt: base}
				So(s.ReplaceAssignments(ctx, run, first), ShouldBeNil)
				So(s.SetDistilled(ctx, 2, "c"), ShouldBeNil)

				second := []model.ClusterAssignment{
					{ClusterID: 1, LutID: "a", DistanceToCenter: ptr(0.2)},
					{ClusterID: 0, LutID: "b", DistanceToCenter: ptr(0.3)},
					{ClusterID: 0, LutID: "c", DistanceToCenter: ptr(0.4)},
				}
				run2 := model.ClusterRun{Metric: model.SSIM, Algorithm: model.HierarchicalPrecomputed, NClusters: 2, TotalFiles: 3, CreatedAt: base.Add(time.Minute)}
				So(s.ReplaceAssignments(ctx, run2, second), ShouldBeNil)

				got, err := s.ListAssignments(ctx)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				So(got[0].LutID, ShouldEqual, "b")
				So(got[1].LutID, ShouldEqual, "c")
				So(got[1].Distilled, ShouldBeFalse)
				So(*got[2].DistanceToCenter, ShouldEqual, 0.2)
				for _, a := range got {
					So(a.ClusterID, ShouldBeLessThan, 2)
				}

				current, err := s.CurrentRun(ctx)
				So(err, ShouldBeNil)
				So(current.Metric, ShouldEqual, model.SSIM)
				So(current.NClusters, ShouldEqual, 2)
			})

			Convey("Distilling is idempotent and needs an existing pair", func() {
				So(s.ReplaceAssignments(ctx, model.ClusterRun{Metric: model.Lightweight7D, Algorithm: model.CentroidBased, CreatedAt: base},
					[]model.ClusterAssignment{{ClusterID: 0, LutID: "a"}}), ShouldBeNil)
				So(s.SetDistilled(ctx, 0, "a"), ShouldBeNil)
				So(s.SetDistilled(ctx, 0, "a"), ShouldBeNil)

				got, err := s.ListAssignments(ctx)
				So(err, ShouldBeNil)
				So(got[0].Distilled, ShouldBeTrue)
				So(got[0].DistanceToCenter, ShouldBeNil)

				So(errors.Is(s.SetDistilled(ctx, 1, "a"), ErrNotFound), ShouldBeTrue)
			})

			Convey("No run is reported before the first clustering", func() {
				_, err := s.CurrentRun(ctx)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Snapshots are immutable and listed newest first", func() {
				snap := model.ClusterSnapshot{
					ID:        "s1",
					Name:      "first",
					Metric:    "lightweight_7d",
					NClusters: 1,
					ClusterData: map[int]model.SnapshotCluster{
						0: {FileCount: 1, Members: []model.MemberSummary{{LutID: "a", Filename: "a.cube", DistanceToCenter: ptr(1)}}},
					},
					CreatedAt: base,
				}
				So(s.PutSnapshot(ctx, snap), ShouldBeNil)
				So(errors.Is(s.PutSnapshot(ctx, snap), ErrConflict), ShouldBeTrue)
				snap.ID, snap.Name, snap.CreatedAt = "s2", "second", base.Add(time.Hour)
				So(s.PutSnapshot(ctx, snap), ShouldBeNil)

				list, err := s.ListSnapshots(ctx)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[0].Name, ShouldEqual, "second")

				got, err := s.GetSnapshot(ctx, "s1")
				So(err, ShouldBeNil)
				So(got.ClusterData[0].Members[0].Filename, ShouldEqual, "a.cube")
				So(*got.ClusterData[0].Members[0].DistanceToCenter, ShouldEqual, 1)
			})

			Convey("Tasks track the running one", func() {
				started := base.Add(time.Second)
				So(s.PutTask(ctx, model.AnalysisTask{ID: "t1", Status: model.TaskCompleted, CreatedAt: base}), ShouldBeNil)
				So(s.PutTask(ctx, model.AnalysisTask{ID: "t2", Status: model.TaskRunning, Total: 5, CreatedAt: base.Add(time.Minute), StartedAt: &started}), ShouldBeNil)

				running, err := s.RunningTask(ctx)
				So(err, ShouldBeNil)
				So(running.ID, ShouldEqual, "t2")
				So(running.StartedAt.Equal(started), ShouldBeTrue)
				So(running.FinishedAt, ShouldBeNil)

				running.Status = model.TaskFailed
				running.Interrupted = true
				running.Processed = 2
				So(s.PutTask(ctx, running), ShouldBeNil)

				_, err = s.RunningTask(ctx)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)

				got, err := s.GetTask(ctx, "t2")
				So(err, ShouldBeNil)
				So(got.Interrupted, ShouldBeTrue)
				So(got.Processed, ShouldEqual, 2)

				tasks, err := s.ListTasks(ctx)
				So(err, ShouldBeNil)
				So(tasks[0].ID, ShouldEqual, "t2")
			})
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	Convey("Given a SQLite catalog on disk", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "nested", "catalog.db")
		s, err := OpenSQLite(ctx, path, WithBusyTimeout(time.Second))
		So(err, ShouldBeNil)
		So(s.PutLut(ctx, model.LutAsset{ID: "a", Filename: "a.cube", CreatedAt: time.Now()}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Reopening keeps data and does not migrate twice", func() {
			again, err := OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer again.Close()
			luts, err := again.ListLuts(ctx)
			So(err, ShouldBeNil)
			So(len(luts), ShouldEqual, 1)
		})
	})
}
