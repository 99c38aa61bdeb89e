package analysis_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lutcurate/internal/adapters/blob"
	"github.com/okian/lutcurate/internal/adapters/repository"
	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/lut/luttest"
	"github.com/okian/lutcurate/internal/domain/model"
)

// goSubmitter runs every job on its own goroutine.
type goSubmitter struct{}

func (goSubmitter) Submit(_ context.Context, _ string, run func(context.Context, func()) error) error {
	go func() { _ = run(context.Background(), func() {}) }()
	return nil
}

// heldSubmitter keeps jobs without running them.
type heldSubmitter struct {
	mu   sync.Mutex
	jobs []func(context.Context, func()) error
}

func (h *heldSubmitter) Submit(_ context.Context, _ string, run func(context.Context, func()) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, run)
	return nil
}

type refusingSubmitter struct{}

func (refusingSubmitter) Submit(context.Context, string, func(context.Context, func()) error) error {
	return errors.New("queue full")
}

// gatedBlobs blocks Exists until gate is closed.
type gatedBlobs struct {
	*blob.Memory
	gate chan struct{}
}

func (g *gatedBlobs) Exists(ctx context.Context, p string) (bool, error) {
	<-g.gate
	return g.Memory.Exists(ctx, p)
}

type fixture struct {
	store *repository.MemoryStore
	blobs *blob.Memory
	ids   []string
}

func newFixture(ctx context.Context) *fixture {
	f := &fixture{store: repository.NewMemoryStore(), blobs: blob.NewMemory()}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []struct {
		id   string
		data []byte
	}{
		{"identity", luttest.Cube("identity", 5, luttest.Identity)},
		{"warm", luttest.Cube("warm", 5, luttest.Warm)},
		{"mono", luttest.Cube("mono", 5, luttest.Mono)},
		{"garbage", []byte("not a lut at all")},
		{"missing", nil},
	}
	for i, it := range items {
		p := "luts/" + it.id + ".cube"
		if it.data != nil {
			So(f.blobs.Put(ctx, p, it.data), ShouldBeNil)
		}
		So(f.store.PutLut(ctx, model.LutAsset{
			ID: it.id, Filename: it.id + ".cube", BlobPath: p,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}), ShouldBeNil)
		f.ids = append(f.ids, it.id)
	}
	return f
}

func TestRunner(t *testing.T) {
	Convey("Given a catalog of five luts, two of them broken", t, func() {
		ctx := context.Background()
		f := newFixture(ctx)

		Convey("When a task runs without a reference image", func() {
			r := analysis.NewRunner(f.store, f.blobs, features.NewExtractor(), goSubmitter{})
			task, err := r.Start(ctx, analysis.Options{})
			So(err, ShouldBeNil)
			So(task.Status, ShouldEqual, model.TaskPending)

			done, err := r.Wait(ctx, task.ID)
			So(err, ShouldBeNil)

			Convey("Then it completes and counts each item once", func() {
				So(done.Status, ShouldEqual, model.TaskCompleted)
				So(done.Total, ShouldEqual, 5)
				So(done.Processed, ShouldEqual, 5)
				So(done.Success, ShouldEqual, 3)
				So(done.FailedCount, ShouldEqual, 2)
				So(done.Interrupted, ShouldBeFalse)
				So(done.StartedAt, ShouldNotBeNil)
				So(done.FinishedAt, ShouldNotBeNil)
			})

			Convey("Then analyses carry lightweight vectors and tags only", func() {
				a, err := f.store.GetAnalysis(ctx, "mono")
				So(err, ShouldBeNil)
				So(len(a.Lightweight), ShouldEqual, features.LightweightDims)
				So(a.ImageFeatures, ShouldBeEmpty)
				So(a.ThumbnailPath, ShouldBeEmpty)
				So(a.GridSize, ShouldEqual, 5)
				So(a.Tags, ShouldContain, "neutral")
				So(a.Tags, ShouldContain, "muted")

				_, err = f.store.GetAnalysis(ctx, "garbage")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And a skip-analyzed rerun only visits the failures", func() {
				again, err := r.Start(ctx, analysis.Options{SkipAnalyzed: true})
				So(err, ShouldBeNil)
				again, err = r.Wait(ctx, again.ID)
				So(err, ShouldBeNil)
				So(again.Total, ShouldEqual, 2)
				So(again.FailedCount, ShouldEqual, 2)

				Convey("Unless forced", func() {
					forced, err := r.Start(ctx, analysis.Options{SkipAnalyzed: true, Force: true})
					So(err, ShouldBeNil)
					forced, err = r.Wait(ctx, forced.ID)
					So(err, ShouldBeNil)
					So(forced.Total, ShouldEqual, 5)
				})
			})
		})

		Convey("When a reference image is configured", func() {
			e := features.NewExtractor(features.WithReference(luttest.Gradient(64, 48)), features.WithThumbnailSize(16))
			r := analysis.NewRunner(f.store, f.blobs, e, goSubmitter{})
			task, err := r.Start(ctx, analysis.Options{})
			So(err, ShouldBeNil)
			task, err = r.Wait(ctx, task.ID)
			So(err, ShouldBeNil)

			Convey("Then image features and thumbnails are stored", func() {
				So(task.Success, ShouldEqual, 3)
				a, err := f.store.GetAnalysis(ctx, "warm")
				So(err, ShouldBeNil)
				So(len(a.ImageFeatures), ShouldEqual, features.ImageFeaturesDims)
				So(a.ThumbnailPath, ShouldEqual, "thumbnails/warm.png")
				thumb, err := f.blobs.Get(ctx, a.ThumbnailPath)
				So(err, ShouldBeNil)
				So(string(thumb[1:4]), ShouldEqual, "PNG")
			})
		})

		Convey("When a task is interrupted after two items", func() {
			var (
				r    *analysis.Runner
				once sync.Once
			)
			r = analysis.NewRunner(f.store, f.blobs, features.NewExtractor(), goSubmitter{},
				analysis.WithProgress(func(t model.AnalysisTask) {
					if t.Processed == 2 && t.Status == model.TaskRunning {
						once.Do(func() { _, _ = r.Interrupt(context.Background(), t.ID) })
					}
				}))
			task, err := r.Start(ctx, analysis.Options{})
			So(err, ShouldBeNil)
			task, err = r.Wait(ctx, task.ID)
			So(err, ShouldBeNil)

			Convey("Then it ends failed and does not resume", func() {
				So(task.Status, ShouldEqual, model.TaskFailed)
				So(task.Interrupted, ShouldBeTrue)
				So(task.Processed, ShouldEqual, 2)
				So(task.Processed, ShouldBeLessThan, task.Total)
				So(task.ErrorMessage, ShouldEqual, "interrupted: processed 2/5 (success 2, failed 0)")

				_, err := r.Interrupt(ctx, task.ID)
				So(errors.Is(err, analysis.ErrTaskFinished), ShouldBeTrue)
			})
		})

		Convey("When a task is pending", func() {
			held := &heldSubmitter{}
			r := analysis.NewRunner(f.store, f.blobs, features.NewExtractor(), held)
			task, err := r.Start(ctx, analysis.Options{})
			So(err, ShouldBeNil)

			Convey("Then a second start is refused", func() {
				_, err := r.Start(ctx, analysis.Options{})
				So(errors.Is(err, analysis.ErrTaskRunning), ShouldBeTrue)
			})

			Convey("Then interrupting it before it runs fails it at the first check", func() {
				got, err := r.Interrupt(ctx, task.ID)
				So(err, ShouldBeNil)
				So(got.Interrupted, ShouldBeTrue)

				stored, err := r.Task(ctx, task.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, model.TaskPending)
				So(stored.Interrupted, ShouldBeTrue)

				So(len(held.jobs), ShouldEqual, 1)
				So(errors.Is(held.jobs[0](ctx, func() {}), analysis.ErrInterrupted), ShouldBeTrue)

				final, err := r.Task(ctx, task.ID)
				So(err, ShouldBeNil)
				So(final.Status, ShouldEqual, model.TaskFailed)
				So(final.Processed, ShouldEqual, 0)
				So(final.Total, ShouldEqual, 5)
				So(final.ErrorMessage, ShouldStartWith, "interrupted: processed 0/5")
			})
		})

		Convey("When a stale running record exists", func() {
			stale := model.AnalysisTask{ID: "stale", Status: model.TaskRunning, Total: 9, Processed: 4, CreatedAt: time.Now().UTC()}
			So(f.store.PutTask(ctx, stale), ShouldBeNil)
			r := analysis.NewRunner(f.store, f.blobs, features.NewExtractor(), goSubmitter{})

			Convey("Then a plain start is refused", func() {
				_, err := r.Start(ctx, analysis.Options{})
				So(errors.Is(err, analysis.ErrTaskRunning), ShouldBeTrue)
			})

			Convey("Then a forced start demotes it", func() {
				task, err := r.Start(ctx, analysis.Options{Force: true})
				So(err, ShouldBeNil)
				_, err = r.Wait(ctx, task.ID)
				So(err, ShouldBeNil)

				old, err := r.Task(ctx, "stale")
				So(err, ShouldBeNil)
				So(old.Status, ShouldEqual, model.TaskFailed)
				So(old.ErrorMessage, ShouldEqual, "superseded by a forced restart")
			})

			Convey("Then interrupting it fails it directly", func() {
				got, err := r.Interrupt(ctx, "stale")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.TaskFailed)
				So(got.ErrorMessage, ShouldEqual, "interrupted: processed 4/9 (success 0, failed 0)")
			})
		})

		Convey("When a forced start supersedes a task in this process", func() {
			gated := &gatedBlobs{Memory: f.blobs, gate: make(chan struct{})}
			r := analysis.NewRunner(f.store, gated, features.NewExtractor(), goSubmitter{})
			first, err := r.Start(ctx, analysis.Options{})
			So(err, ShouldBeNil)

			type started struct {
				task model.AnalysisTask
				err  error
			}
			result := make(chan started, 1)
			go func() {
				task, err := r.Start(ctx, analysis.Options{Force: true})
				result <- started{task, err}
			}()
			time.Sleep(50 * time.Millisecond)
			close(gated.gate)

			second := <-result
			So(second.err, ShouldBeNil)
			_, err = r.Wait(ctx, second.task.ID)
			So(err, ShouldBeNil)

			old, err := r.Task(ctx, first.ID)
			So(err, ShouldBeNil)
			So(old.Status, ShouldEqual, model.TaskFailed)
			So(old.ErrorMessage, ShouldEqual, "superseded by a forced restart")

			latest, err := r.Task(ctx, second.task.ID)
			So(err, ShouldBeNil)
			So(latest.Status, ShouldEqual, model.TaskCompleted)
		})

		Convey("When the queue refuses the job", func() {
			r := analysis.NewRunner(f.store, f.blobs, features.NewExtractor(), refusingSubmitter{})
			task, err := r.Start(ctx, analysis.Options{})

			Convey("Then the task is recorded as failed and nothing is held", func() {
				So(err, ShouldNotBeNil)
				So(task.Status, ShouldEqual, model.TaskFailed)
				So(strings.HasPrefix(task.ErrorMessage, "submit:"), ShouldBeTrue)
				_, err = r.Start(ctx, analysis.Options{})
				So(err, ShouldNotBeNil)
				So(errors.Is(err, analysis.ErrTaskRunning), ShouldBeFalse)
			})
		})
	})
}

func TestTags(t *testing.T) {
	Convey("Given lightweight vectors", t, func() {
		Convey("A saturated warm bright contrasty look", func() {
			So(analysis.Tags([]float64{30, 0.6, 0.8, 0.1, 0.1, 0.1, 0.95}),
				ShouldResemble, []string{"warm", "vivid", "bright", "high-contrast"})
		})
		Convey("A dim teal low-contrast look", func() {
			So(analysis.Tags([]float64{200, 0.3, 0.2, 0.01, 0.01, 0.01, 0.4}),
				ShouldResemble, []string{"cool", "dark", "low-contrast"})
		})
		Convey("A gray look is neutral and muted", func() {
			So(analysis.Tags([]float64{0, 0, 0.5, 0.08, 0.08, 0.08, 0.7}),
				ShouldResemble, []string{"neutral", "muted"})
		})
		Convey("A vector of the wrong size has no tags", func() {
			So(analysis.Tags([]float64{1, 2}), ShouldBeNil)
		})
	})
}
