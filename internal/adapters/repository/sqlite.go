package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/okian/lutcurate/internal/domain/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// CurrentSchemaVersion is the version written by migrate.
const CurrentSchemaVersion = 1

// SQLiteStore is a Store backed by a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the catalog at path and migrates it.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	cfg := defaultSQLiteConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		path, cfg.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(cfg.maxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return s, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version >= CurrentSchemaVersion {
		return nil
	}
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			CurrentSchemaVersion, formatTime(time.Now()))
		return err
	})
}

func (s *SQLiteStore) schemaVersion(ctx context.Context) (int, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check schema_version: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PutLut implements LutStore.
func (s *SQLiteStore) PutLut(ctx context.Context, lut model.LutAsset) error {
	if lut.ID == "" {
		return fmt.Errorf("%w: lut id is empty", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO luts (id, filename, blob_path, created_at) VALUES (?, ?, ?, ?)",
		lut.ID, lut.Filename, lut.BlobPath, formatTime(lut.CreatedAt))
	if isConstraint(err) {
		return fmt.Errorf("lut %s: %w", lut.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert lut: %w", err)
	}
	return nil
}

const lutColumns = "id, filename, blob_path, created_at"

// GetLut implements LutStore.
func (s *SQLiteStore) GetLut(ctx context.Context, id string) (model.LutAsset, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+lutColumns+" FROM luts WHERE id = ?", id)
	lut, err := scanLut(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LutAsset{}, fmt.Errorf("lut %s: %w", id, ErrNotFound)
	}
	return lut, err
}

// LutByFilename implements LutStore.
func (s *SQLiteStore) LutByFilename(ctx context.Context, filename string) (model.LutAsset, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+lutColumns+" FROM luts WHERE filename = ? ORDER BY created_at, id LIMIT 1", filename)
	lut, err := scanLut(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LutAsset{}, fmt.Errorf("lut %q: %w", filename, ErrNotFound)
	}
	return lut, err
}

// ListLuts implements LutStore.
func (s *SQLiteStore) ListLuts(ctx context.Context) ([]model.LutAsset, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+lutColumns+" FROM luts ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list luts: %w", err)
	}
	defer rows.Close()
	var out []model.LutAsset
	for rows.Next() {
		lut, err := scanLut(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lut)
	}
	return out, rows.Err()
}

func scanLut(row rowScanner) (model.LutAsset, error) {
	var (
		lut     model.LutAsset
		created string
	)
	if err := row.Scan(&lut.ID, &lut.Filename, &lut.BlobPath, &created); err != nil {
		return model.LutAsset{}, err
	}
	var err error
	if lut.CreatedAt, err = parseTime(created); err != nil {
		return model.LutAsset{}, fmt.Errorf("lut %s created_at: %w", lut.ID, err)
	}
	return lut, nil
}

// PutAnalysis implements AnalysisStore.
func (s *SQLiteStore) PutAnalysis(ctx context.Context, a model.LutAnalysis) error {
	if a.LutID == "" {
		return fmt.Errorf("%w: analysis lut id is empty", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lut_analyses
			(lut_id, grid_size, lightweight, image_features, tags, thumbnail_path, error, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lut_id) DO UPDATE SET
			grid_size = excluded.grid_size,
			lightweight = excluded.lightweight,
			image_features = excluded.image_features,
			tags = excluded.tags,
			thumbnail_path = excluded.thumbnail_path,
			error = excluded.error,
			analyzed_at = excluded.analyzed_at`,
		a.LutID, a.GridSize, encodeJSON(a.Lightweight), encodeJSON(a.ImageFeatures), encodeJSON(a.Tags),
		a.ThumbnailPath, a.Error, formatTime(a.AnalyzedAt))
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

const analysisColumns = "lut_id, grid_size, lightweight, image_features, tags, thumbnail_path, error, analyzed_at"

// GetAnalysis implements AnalysisStore.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, lutID string) (model.LutAnalysis, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+analysisColumns+" FROM lut_analyses WHERE lut_id = ?", lutID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LutAnalysis{}, fmt.Errorf("analysis %s: %w", lutID, ErrNotFound)
	}
	return a, err
}

// ListAnalyses implements AnalysisStore.
func (s *SQLiteStore) ListAnalyses(ctx context.Context) (map[string]model.LutAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+analysisColumns+" FROM lut_analyses")
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()
	out := make(map[string]model.LutAnalysis)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out[a.LutID] = a
	}
	return out, rows.Err()
}

func scanAnalysis(row rowScanner) (model.LutAnalysis, error) {
	var (
		a                  model.LutAnalysis
		light, image, tags sql.NullString
		analyzed           string
	)
	if err := row.Scan(&a.LutID, &a.GridSize, &light, &image, &tags, &a.ThumbnailPath, &a.Error, &analyzed); err != nil {
		return model.LutAnalysis{}, err
	}
	if err := decodeJSON(light, &a.Lightweight); err != nil {
		return model.LutAnalysis{}, fmt.Errorf("analysis %s lightweight: %w", a.LutID, err)
	}
	if err := decodeJSON(image, &a.ImageFeatures); err != nil {
		return model.LutAnalysis{}, fmt.Errorf("analysis %s image_features: %w", a.LutID, err)
	}
	if err := decodeJSON(tags, &a.Tags); err != nil {
		return model.LutAnalysis{}, fmt.Errorf("analysis %s tags: %w", a.LutID, err)
	}
	var err error
	if a.AnalyzedAt, err = parseTime(analyzed); err != nil {
		return model.LutAnalysis{}, fmt.Errorf("analysis %s analyzed_at: %w", a.LutID, err)
	}
	return a, nil
}

// ReplaceAssignments implements AssignmentStore in one transaction.
func (s *SQLiteStore) ReplaceAssignments(ctx context.Context, run model.ClusterRun, assignments []model.ClusterAssignment) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cluster_assignments"); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO cluster_assignments (cluster_id, lut_id, distance_to_center, distilled) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare assignment insert: %w", err)
		}
		defer stmt.Close()
		for _, a := range assignments {
			var dist sql.NullFloat64
			if a.DistanceToCenter != nil {
				dist = sql.NullFloat64{Float64: *a.DistanceToCenter, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, a.ClusterID, a.LutID, dist, boolToInt(a.Distilled)); err != nil {
				return fmt.Errorf("insert assignment %d/%s: %w", a.ClusterID, a.LutID, err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cluster_runs (id, metric, algorithm, n_clusters, total_files, created_at)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				metric = excluded.metric,
				algorithm = excluded.algorithm,
				n_clusters = excluded.n_clusters,
				total_files = excluded.total_files,
				created_at = excluded.created_at`,
			run.Metric.String(), run.Algorithm.String(), run.NClusters, run.TotalFiles, formatTime(run.CreatedAt))
		if err != nil {
			return fmt.Errorf("record cluster run: %w", err)
		}
		return nil
	})
}

// ListAssignments implements AssignmentStore.
func (s *SQLiteStore) ListAssignments(ctx context.Context) ([]model.ClusterAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cluster_id, lut_id, distance_to_center, distilled FROM cluster_assignments ORDER BY cluster_id, lut_id")
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()
	var out []model.ClusterAssignment
	for rows.Next() {
		var (
			a         model.ClusterAssignment
			dist      sql.NullFloat64
			distilled int
		)
		if err := rows.Scan(&a.ClusterID, &a.LutID, &dist, &distilled); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if dist.Valid {
			d := dist.Float64
			a.DistanceToCenter = &d
		}
		a.Distilled = distilled != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// CurrentRun implements AssignmentStore.
func (s *SQLiteStore) CurrentRun(ctx context.Context) (model.ClusterRun, error) {
	var (
		run               model.ClusterRun
		metric, algorithm string
		created           string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT metric, algorithm, n_clusters, total_files, created_at FROM cluster_runs WHERE id = 1",
	).Scan(&metric, &algorithm, &run.NClusters, &run.TotalFiles, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClusterRun{}, fmt.Errorf("cluster run: %w", ErrNotFound)
	}
	if err != nil {
		return model.ClusterRun{}, fmt.Errorf("read cluster run: %w", err)
	}
	if run.Metric, err = model.ParseMetric(metric); err != nil {
		return model.ClusterRun{}, err
	}
	if run.Algorithm, err = model.ParseAlgorithm(algorithm); err != nil {
		return model.ClusterRun{}, err
	}
	if run.CreatedAt, err = parseTime(created); err != nil {
		return model.ClusterRun{}, err
	}
	return run, nil
}

// SetDistilled implements AssignmentStore.
func (s *SQLiteStore) SetDistilled(ctx context.Context, clusterID int, lutID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cluster_assignments SET distilled = 1 WHERE cluster_id = ? AND lut_id = ?", clusterID, lutID)
	if err != nil {
		return fmt.Errorf("distill %d/%s: %w", clusterID, lutID, err)
	}
	// SQLite counts matched rows, so a repeated distill still reports 1.
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("distill %d/%s: %w", clusterID, lutID, err)
	}
	if n == 0 {
		return fmt.Errorf("assignment %d/%s: %w", clusterID, lutID, ErrNotFound)
	}
	return nil
}

// PutSnapshot implements SnapshotStore.
func (s *SQLiteStore) PutSnapshot(ctx context.Context, snap model.ClusterSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot id is empty", ErrInvalid)
	}
	data, err := json.Marshal(snap.ClusterData)
	if err != nil {
		return fmt.Errorf("encode cluster data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cluster_snapshots
			(id, name, description, metric, metric_name, algorithm, algorithm_name, n_clusters, cluster_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Name, snap.Description, snap.Metric, snap.MetricName, snap.Algorithm, snap.AlgorithmName,
		snap.NClusters, string(data), formatTime(snap.CreatedAt))
	if isConstraint(err) {
		return fmt.Errorf("snapshot %s: %w", snap.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = "id, name, description, metric, metric_name, algorithm, algorithm_name, n_clusters, cluster_data, created_at"

// GetSnapshot implements SnapshotStore.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (model.ClusterSnapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM cluster_snapshots WHERE id = ?", id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClusterSnapshot{}, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	return snap, err
}

// ListSnapshots implements SnapshotStore.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]model.ClusterSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+snapshotColumns+" FROM cluster_snapshots ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []model.ClusterSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (model.ClusterSnapshot, error) {
	var (
		snap          model.ClusterSnapshot
		data, created string
	)
	if err := row.Scan(&snap.ID, &snap.Name, &snap.Description, &snap.Metric, &snap.MetricName,
		&snap.Algorithm, &snap.AlgorithmName, &snap.NClusters, &data, &created); err != nil {
		return model.ClusterSnapshot{}, err
	}
	if err := json.Unmarshal([]byte(data), &snap.ClusterData); err != nil {
		return model.ClusterSnapshot{}, fmt.Errorf("snapshot %s cluster_data: %w", snap.ID, err)
	}
	var err error
	if snap.CreatedAt, err = parseTime(created); err != nil {
		return model.ClusterSnapshot{}, fmt.Errorf("snapshot %s created_at: %w", snap.ID, err)
	}
	return snap, nil
}

// PutTask implements TaskStore.
func (s *SQLiteStore) PutTask(ctx context.Context, t model.AnalysisTask) error {
	if t.ID == "" {
		return fmt.Errorf("%w: task id is empty", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_tasks
			(id, status, total, processed, success, failed, interrupted, error_message,
			 forced, skip_analyzed, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			processed = excluded.processed,
			success = excluded.success,
			failed = excluded.failed,
			interrupted = excluded.interrupted,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		t.ID, string(t.Status), t.Total, t.Processed, t.Success, t.FailedCount, boolToInt(t.Interrupted),
		t.ErrorMessage, boolToInt(t.Force), boolToInt(t.SkipAnalyzed), formatTime(t.CreatedAt),
		formatTimePtr(t.StartedAt), formatTimePtr(t.FinishedAt))
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

const taskColumns = `id, status, total, processed, success, failed, interrupted, error_message,
	forced, skip_analyzed, created_at, started_at, finished_at`

// GetTask implements TaskStore.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (model.AnalysisTask, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM analysis_tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnalysisTask{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// RunningTask implements TaskStore.
func (s *SQLiteStore) RunningTask(ctx context.Context) (model.AnalysisTask, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM analysis_tasks WHERE status = ? ORDER BY created_at DESC, id LIMIT 1",
		string(model.TaskRunning))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnalysisTask{}, fmt.Errorf("running task: %w", ErrNotFound)
	}
	return t, err
}

// ListTasks implements TaskStore.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]model.AnalysisTask, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM analysis_tasks ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []model.AnalysisTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (model.AnalysisTask, error) {
	var (
		t                                 model.AnalysisTask
		status, created                   string
		started, finished                 sql.NullString
		interrupted, forced, skipAnalyzed int
	)
	if err := row.Scan(&t.ID, &status, &t.Total, &t.Processed, &t.Success, &t.FailedCount, &interrupted,
		&t.ErrorMessage, &forced, &skipAnalyzed, &created, &started, &finished); err != nil {
		return model.AnalysisTask{}, err
	}
	t.Status = model.TaskStatus(status)
	t.Interrupted = interrupted != 0
	t.Force = forced != 0
	t.SkipAnalyzed = skipAnalyzed != 0
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return model.AnalysisTask{}, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.StartedAt, err = parseTimePtr(started); err != nil {
		return model.AnalysisTask{}, fmt.Errorf("task %s started_at: %w", t.ID, err)
	}
	if t.FinishedAt, err = parseTimePtr(finished); err != nil {
		return model.AnalysisTask{}, fmt.Errorf("task %s finished_at: %w", t.ID, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed width so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeJSON[T any](v []T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeJSON[T any](s sql.NullString, dst *[]T) error {
	if !s.Valid || s.String == "" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraint detects a primary key or unique violation without
// importing the driver's error codes.
func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
