// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/curation"
	"github.com/okian/lutcurate/internal/domain/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Catalog.
	Ingest(ctx context.Context, filename string, data []byte) (model.LutAsset, bool, error)
	Luts(ctx context.Context) ([]model.LutAsset, error)

	// Clustering.
	Cluster(ctx context.Context, req service.ClusterRequest) (*service.ClusterResult, error)
	Clusters(ctx context.Context) (*service.ClusterOverview, error)

	// Curation.
	Members(ctx context.Context, clusterID int) ([]model.MemberSummary, error)
	Distill(ctx context.Context, clusterID int, lutID string) error
	CreateSnapshot(ctx context.Context, req curation.SnapshotRequest) (model.ClusterSnapshot, error)
	Snapshots(ctx context.Context) ([]model.ClusterSnapshot, error)
	Snapshot(ctx context.Context, id string) (model.ClusterSnapshot, error)

	// Batch analysis.
	StartAnalysis(ctx context.Context, opts analysis.Options) (model.AnalysisTask, error)
	AnalysisTask(ctx context.Context, id string) (model.AnalysisTask, error)
	InterruptAnalysis(ctx context.Context, id string) (model.AnalysisTask, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	lutsHandler     *LutsHandler
	clustersHandler *ClustersHandler
	snapshotHandler *SnapshotsHandler
	analysisHandler *AnalysisHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		lutsHandler:     NewLutsHandler(deps),
		clustersHandler: NewClustersHandler(deps),
		snapshotHandler: NewSnapshotsHandler(deps),
		analysisHandler: NewAnalysisHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /luts", MetricsMiddleware(s.lutsHandler.HandleList, "luts"))
	mux.HandleFunc("POST /luts", MetricsMiddleware(s.lutsHandler.HandleUpload, "luts"))

	mux.HandleFunc("POST /clusters", MetricsMiddleware(s.clustersHandler.HandleCluster, "clusters"))
	mux.HandleFunc("GET /clusters", MetricsMiddleware(s.clustersHandler.HandleOverview, "clusters"))
	mux.HandleFunc("GET /clusters/{id}/members", MetricsMiddleware(s.clustersHandler.HandleMembers, "cluster_members"))
	mux.HandleFunc("POST /clusters/{id}/distill", MetricsMiddleware(s.clustersHandler.HandleDistill, "cluster_distill"))

	mux.HandleFunc("POST /snapshots", MetricsMiddleware(s.snapshotHandler.HandleCreate, "snapshots"))
	mux.HandleFunc("GET /snapshots", MetricsMiddleware(s.snapshotHandler.HandleList, "snapshots"))
	mux.HandleFunc("GET /snapshots/{id}", MetricsMiddleware(s.snapshotHandler.HandleGet, "snapshot"))

	mux.HandleFunc("POST /analysis", MetricsMiddleware(s.analysisHandler.HandleStart, "analysis"))
	mux.HandleFunc("GET /analysis/{id}", MetricsMiddleware(s.analysisHandler.HandleGet, "analysis_task"))
	mux.HandleFunc("POST /analysis/{id}/interrupt", MetricsMiddleware(s.analysisHandler.HandleInterrupt, "analysis_interrupt"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a single JSON object into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return WrapKind("decode body", ErrBadRequest, err)
	}
	return nil
}

// clusterID parses the {id} path segment.
func clusterID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, fmt.Errorf("cluster id %q: %w", r.PathValue("id"), ErrBadRequest)
	}
	return id, nil
}
