// Package analysis runs the catalog-wide batch analysis as a resumable,
// interruptible background task.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/lut"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/logger"
	"github.com/okian/lutcurate/pkg/metrics"
)

// ThumbnailDir is the blob prefix thumbnails are written under.
const ThumbnailDir = "thumbnails"

// Catalog is the slice of the catalog store the runner needs.
type Catalog interface {
	ListLuts(ctx context.Context) ([]model.LutAsset, error)
	ListAnalyses(ctx context.Context) (map[string]model.LutAnalysis, error)
	PutAnalysis(ctx context.Context, a model.LutAnalysis) error
	PutTask(ctx context.Context, t model.AnalysisTask) error
	GetTask(ctx context.Context, id string) (model.AnalysisTask, error)
	ListTasks(ctx context.Context) ([]model.AnalysisTask, error)
}

// Blobs reads LUT bytes and stores thumbnails.
type Blobs interface {
	Get(ctx context.Context, p string) ([]byte, error)
	Put(ctx context.Context, p string, data []byte) error
	Exists(ctx context.Context, p string) (bool, error)
}

// Submitter hands a job to the background queue. run receives a release
// func that frees the job's queue slot; it must be safe to call more than
// once.
type Submitter interface {
	Submit(ctx context.Context, id string, run func(ctx context.Context, release func()) error) error
}

// Options selects the work list of a new task.
type Options struct {
	Force        bool `json:"force"`
	SkipAnalyzed bool `json:"skip_analyzed"`
}

// handle is the in-process side of a submitted task.
type handle struct {
	token  context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Runner starts, executes and interrupts analysis tasks.
type Runner struct {
	catalog   Catalog
	blobs     Blobs
	extractor *features.Extractor
	submit    Submitter

	log      logger.Logger
	now      func() time.Time
	newID    func() string
	progress func(model.AnalysisTask)

	startMu sync.Mutex
	mu      sync.Mutex
	active  map[string]*handle

	// Serializes task record writes with interrupt requests.
	recordMu sync.Mutex
}

// NewRunner builds a Runner.
func NewRunner(catalog Catalog, blobs Blobs, extractor *features.Extractor, submit Submitter, opts ...Option) *Runner {
	r := &Runner{
		catalog:   catalog,
		blobs:     blobs,
		extractor: extractor,
		submit:    submit,
		log:       logger.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
		active:    make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a pending task and submits it. A running task blocks a new
// one unless opts.Force is set, in which case the running task is canceled
// and marked failed first.
func (r *Runner) Start(ctx context.Context, opts Options) (model.AnalysisTask, error) {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	busy, err := r.busy(ctx)
	if err != nil {
		return model.AnalysisTask{}, err
	}
	if len(busy) > 0 {
		if !opts.Force {
			return model.AnalysisTask{}, fmt.Errorf("%w: %s", ErrTaskRunning, busy[0])
		}
		if err := r.supersede(ctx, busy); err != nil {
			return model.AnalysisTask{}, err
		}
	}

	task := model.AnalysisTask{
		ID:           r.newID(),
		Status:       model.TaskPending,
		Force:        opts.Force,
		SkipAnalyzed: opts.SkipAnalyzed,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.catalog.PutTask(ctx, task); err != nil {
		return model.AnalysisTask{}, fmt.Errorf("store task: %w", err)
	}

	token, cancel := context.WithCancelCause(context.Background())
	h := &handle{token: token, cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.active[task.ID] = h
	r.mu.Unlock()

	job := func(jobCtx context.Context, release func()) error {
		// Waiters may start the next task as soon as done closes, so the
		// slot goes first.
		defer close(h.done)
		defer release()
		defer r.forget(task.ID)

		// Interrupts cancel token, which reaches runCtx synchronously.
		runCtx, stop := context.WithCancelCause(token)
		defer stop(nil)
		unlink := context.AfterFunc(jobCtx, func() { stop(context.Cause(jobCtx)) })
		defer unlink()

		_, err := r.Run(runCtx, task)
		return err
	}
	if err := r.submit.Submit(ctx, task.ID, job); err != nil {
		r.forget(task.ID)
		cancel(err)
		close(h.done)
		r.fail(context.WithoutCancel(ctx), &task, "submit: "+err.Error())
		return task, fmt.Errorf("submit task: %w", err)
	}

	r.log.Info(ctx, "analysis task submitted",
		logger.String("task_id", task.ID),
		logger.Bool("force", opts.Force),
		logger.Bool("skip_analyzed", opts.SkipAnalyzed))
	return task, nil
}

// Interrupt asks a task to stop at its next suspension point. A running
// record left behind by a dead process is failed directly.
func (r *Runner) Interrupt(ctx context.Context, id string) (model.AnalysisTask, error) {
	task, err := r.catalog.GetTask(ctx, id)
	if err != nil {
		return model.AnalysisTask{}, fmt.Errorf("get task %s: %w", id, err)
	}
	if task.Status.Terminal() {
		return task, fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, task.Status)
	}

	r.mu.Lock()
	h := r.active[id]
	r.mu.Unlock()
	if h == nil {
		task.Interrupted = true
		r.fail(ctx, &task, interruptMessage(task))
		return task, nil
	}

	// Once the token is canceled every later checkpoint keeps the flag, so
	// the record read under recordMu is the latest one without it.
	r.recordMu.Lock()
	defer r.recordMu.Unlock()
	h.cancel(ErrInterrupted)
	task, err = r.catalog.GetTask(ctx, id)
	if err != nil {
		return model.AnalysisTask{}, fmt.Errorf("get task %s: %w", id, err)
	}
	if task.Status.Terminal() {
		return task, fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, task.Status)
	}
	task.Interrupted = true
	if err := r.catalog.PutTask(context.WithoutCancel(ctx), task); err != nil {
		return task, fmt.Errorf("store task %s: %w", id, err)
	}
	r.log.Info(ctx, "analysis task interrupt requested", logger.String("task_id", id))
	return task, nil
}

// Wait blocks until an in-process task returns, then reports its record.
func (r *Runner) Wait(ctx context.Context, id string) (model.AnalysisTask, error) {
	r.mu.Lock()
	h := r.active[id]
	r.mu.Unlock()
	if h != nil {
		select {
		case <-h.done:
		case <-ctx.Done():
			return model.AnalysisTask{}, context.Cause(ctx)
		}
	}
	return r.catalog.GetTask(ctx, id)
}

// Task returns a task record.
func (r *Runner) Task(ctx context.Context, id string) (model.AnalysisTask, error) {
	return r.catalog.GetTask(ctx, id)
}

// Run executes task to a terminal state. Cancellation of ctx interrupts
// it; the returned error wraps ErrInterrupted in that case.
func (r *Runner) Run(ctx context.Context, task model.AnalysisTask) (model.AnalysisTask, error) {
	metrics.SetAnalysisActive(true)
	defer metrics.SetAnalysisActive(false)

	persist := context.WithoutCancel(ctx)
	log := r.log.With(logger.String("task_id", task.ID))

	started := r.now().UTC()
	task.Status = model.TaskRunning
	task.StartedAt = &started
	r.save(ctx, &task)

	work, err := r.workList(persist, task)
	if err != nil {
		r.fail(ctx, &task, err.Error())
		return task, err
	}
	task.Total = len(work)
	r.save(ctx, &task)
	log.Info(ctx, "analysis task running", logger.Int("total", task.Total))

	for _, asset := range work {
		if err := checkpoint(ctx); err != nil {
			return r.stop(ctx, task, err)
		}
		err := r.analyze(ctx, asset)
		switch {
		case err == nil:
			task.Success++
			metrics.RecordAnalysisItem("success")
		case isStop(err):
			return r.stop(ctx, task, err)
		default:
			task.FailedCount++
			metrics.RecordAnalysisItem("failed")
			log.Warn(ctx, "lut analysis failed",
				logger.String("lut_id", asset.ID),
				logger.String("filename", asset.Filename),
				logger.Error(err))
		}
		task.Processed++
		r.save(ctx, &task)
	}

	finished := r.now().UTC()
	task.Status = model.TaskCompleted
	task.FinishedAt = &finished
	r.save(ctx, &task)
	metrics.RecordAnalysisTask(string(model.TaskCompleted))
	log.Info(ctx, "analysis task completed",
		logger.Int("processed", task.Processed),
		logger.Int("success", task.Success),
		logger.Int("failed", task.FailedCount))
	return task, nil
}

// workList returns every asset, minus analyzed ones when the task skips
// them.
func (r *Runner) workList(ctx context.Context, task model.AnalysisTask) ([]model.LutAsset, error) {
	luts, err := r.catalog.ListLuts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list luts: %w", err)
	}
	if !task.SkipAnalyzed || task.Force {
		return luts, nil
	}
	done, err := r.catalog.ListAnalyses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	work := make([]model.LutAsset, 0, len(luts))
	for _, l := range luts {
		if a, ok := done[l.ID]; ok && a.Analyzed() {
			metrics.RecordAnalysisItem("skipped")
			continue
		}
		work = append(work, l)
	}
	return work, nil
}

// analyze extracts and persists one asset's features, tags and thumbnail.
func (r *Runner) analyze(ctx context.Context, asset model.LutAsset) error {
	persist := context.WithoutCancel(ctx)

	ok, err := r.blobs.Exists(persist, asset.BlobPath)
	if err != nil {
		return fmt.Errorf("stat blob: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlobMissing, asset.BlobPath)
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}

	data, err := r.blobs.Get(persist, asset.BlobPath)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	table, err := lut.Parse(data)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	lw, err := r.extractor.LightweightTable(ctx, table)
	if err != nil {
		return err
	}
	if lw == nil {
		return ErrNoFeatures
	}

	rec := model.LutAnalysis{
		LutID:       asset.ID,
		GridSize:    table.GridSize,
		Lightweight: lw.Values,
		Tags:        Tags(lw.Values),
	}
	if r.extractor.HasReference() {
		if err := r.imageSide(ctx, table, &rec); err != nil {
			return err
		}
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}

	rec.AnalyzedAt = r.now().UTC()
	if err := r.catalog.PutAnalysis(persist, rec); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}
	return nil
}

// imageSide adds image features and the thumbnail. Only interruption is
// fatal; other failures are noted on the record.
func (r *Runner) imageSide(ctx context.Context, table *lut.Table, rec *model.LutAnalysis) error {
	img, err := r.extractor.ImageFeaturesTable(ctx, table)
	if err != nil {
		return err
	}
	if img == nil {
		rec.Error = "image features unavailable"
		return nil
	}
	rec.ImageFeatures = img.Values

	thumb, err := r.extractor.Thumbnail(ctx, table)
	switch {
	case isStop(err):
		return err
	case err != nil:
		r.log.Warn(ctx, "thumbnail failed", logger.String("lut_id", rec.LutID), logger.Error(err))
		return nil
	}
	p := path.Join(ThumbnailDir, rec.LutID+".png")
	if err := r.blobs.Put(context.WithoutCancel(ctx), p, thumb); err != nil {
		r.log.Warn(ctx, "thumbnail not stored", logger.String("lut_id", rec.LutID), logger.Error(err))
		return nil
	}
	rec.ThumbnailPath = p
	return nil
}

// stop finishes an interrupted run. A superseded run leaves its record to
// the task that replaced it.
func (r *Runner) stop(ctx context.Context, task model.AnalysisTask, err error) (model.AnalysisTask, error) {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrSuperseded) {
		r.log.Info(ctx, "analysis task superseded", logger.String("task_id", task.ID))
		return task, fmt.Errorf("%w: %w", ErrInterrupted, cause)
	}
	task.Interrupted = true
	r.fail(context.WithoutCancel(ctx), &task, interruptMessage(task))
	if cause == nil {
		cause = err
	}
	return task, fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

// supersede cancels in-process tasks and fails every busy record.
func (r *Runner) supersede(ctx context.Context, ids []string) error {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel(ErrSuperseded)
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	for _, id := range ids {
		task, err := r.catalog.GetTask(ctx, id)
		if err != nil {
			return fmt.Errorf("get task %s: %w", id, err)
		}
		if task.Status.Terminal() {
			continue
		}
		r.fail(ctx, &task, ErrSuperseded.Error())
		r.log.Warn(ctx, "analysis task superseded", logger.String("task_id", id))
	}
	return nil
}

// busy lists running records and tasks held in process.
func (r *Runner) busy(ctx context.Context) ([]string, error) {
	tasks, err := r.catalog.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, t := range tasks {
		if t.Status == model.TaskRunning {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	r.mu.Lock()
	for id := range r.active {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	return ids, nil
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// fail moves task to failed with msg.
func (r *Runner) fail(ctx context.Context, task *model.AnalysisTask, msg string) {
	finished := r.now().UTC()
	task.Status = model.TaskFailed
	task.ErrorMessage = msg
	task.FinishedAt = &finished
	r.save(ctx, task)
	metrics.RecordAnalysisTask(string(model.TaskFailed))
	r.log.Warn(ctx, "analysis task failed", logger.String("task_id", task.ID), logger.String("reason", msg))
}

// save checkpoints task. Store failures are logged; the run goes on.
func (r *Runner) save(ctx context.Context, task *model.AnalysisTask) {
	r.recordMu.Lock()
	if errors.Is(context.Cause(ctx), ErrInterrupted) {
		task.Interrupted = true
	}
	err := r.catalog.PutTask(context.WithoutCancel(ctx), *task)
	r.recordMu.Unlock()
	if err != nil {
		metrics.RecordErrorByComponent("runner", "checkpoint")
		r.log.Error(ctx, "task checkpoint failed", logger.String("task_id", task.ID), logger.Error(err))
	}
	if r.progress != nil {
		r.progress(*task)
	}
}

func interruptMessage(t model.AnalysisTask) string {
	return fmt.Sprintf("interrupted: processed %d/%d (success %d, failed %d)",
		t.Processed, t.Total, t.Success, t.FailedCount)
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

func isStop(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, features.ErrInterrupted)
}
