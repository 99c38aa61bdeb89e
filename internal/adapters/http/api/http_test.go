package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lutcurate/internal/adapters/mq/queue"
	"github.com/okian/lutcurate/internal/adapters/repository"
	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/clustering"
	"github.com/okian/lutcurate/internal/domain/curation"
	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/model"
)

type mockDeps struct {
	luts       map[string]model.LutAsset
	clusterReq service.ClusterRequest
	clusterErr error
	members    map[int][]model.MemberSummary
	distilled  []string
	snaps      map[string]model.ClusterSnapshot
	snapReq    curation.SnapshotRequest
	analysis   analysis.Options
	startErr   error
	tasks      map[string]model.AnalysisTask
}

func newMockDeps() *mockDeps {
	d := 0.25
	return &mockDeps{
		luts: map[string]model.LutAsset{},
		members: map[int][]model.MemberSummary{
			0: {{LutID: "a", Filename: "a.cube", DistanceToCenter: &d}},
		},
		snaps: map[string]model.ClusterSnapshot{
			"snap-1": {
				ID: "snap-1", Name: "spring", Metric: "lightweight_7d", NClusters: 1,
				ClusterData: map[int]model.SnapshotCluster{
					0: {FileCount: 1, Members: []model.MemberSummary{{LutID: "a", Filename: "a.cube"}}},
				},
			},
		},
		tasks: map[string]model.AnalysisTask{
			"t-1": {ID: "t-1", Status: model.TaskCompleted, Total: 3, Processed: 3, Success: 3},
			"t-2": {ID: "t-2", Status: model.TaskRunning, Total: 3, Processed: 1},
		},
	}
}

func (m *mockDeps) Ingest(_ context.Context, filename string, _ []byte) (model.LutAsset, bool, error) {
	if strings.TrimSpace(filename) == "" {
		return model.LutAsset{}, false, service.ErrInvalidRequest
	}
	if a, ok := m.luts[filename]; ok {
		return a, false, nil
	}
	a := model.LutAsset{ID: fmt.Sprintf("lut-%d", len(m.luts)+1), Filename: filename}
	m.luts[filename] = a
	return a, true, nil
}

func (m *mockDeps) Luts(context.Context) ([]model.LutAsset, error) {
	out := make([]model.LutAsset, 0, len(m.luts))
	for _, a := range m.luts {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockDeps) Cluster(_ context.Context, req service.ClusterRequest) (*service.ClusterResult, error) {
	m.clusterReq = req
	if m.clusterErr != nil {
		return nil, m.clusterErr
	}
	return &service.ClusterResult{
		NClusters: req.NClusters, Metric: req.Metric, Algorithm: req.Algorithm,
		TotalFiles: 4, FailedFiles: []service.FailedFile{}, ClusterStats: map[int]int{0: 2, 1: 2},
	}, nil
}

func (m *mockDeps) Clusters(context.Context) (*service.ClusterOverview, error) {
	return &service.ClusterOverview{ClusterStats: map[int]int{0: 1}}, nil
}

func (m *mockDeps) Members(_ context.Context, id int) ([]model.MemberSummary, error) {
	members, ok := m.members[id]
	if !ok {
		return nil, curation.ErrNotFound
	}
	return members, nil
}

func (m *mockDeps) Distill(_ context.Context, id int, lutID string) error {
	if _, ok := m.members[id]; !ok {
		return curation.ErrNotFound
	}
	m.distilled = append(m.distilled, lutID)
	return nil
}

func (m *mockDeps) CreateSnapshot(_ context.Context, req curation.SnapshotRequest) (model.ClusterSnapshot, error) {
	m.snapReq = req
	if strings.TrimSpace(req.Name) == "" {
		return model.ClusterSnapshot{}, curation.ErrInvalidName
	}
	return model.ClusterSnapshot{ID: "snap-2", Name: req.Name}, nil
}

func (m *mockDeps) Snapshots(context.Context) ([]model.ClusterSnapshot, error) {
	return []model.ClusterSnapshot{m.snaps["snap-1"]}, nil
}

func (m *mockDeps) Snapshot(_ context.Context, id string) (model.ClusterSnapshot, error) {
	s, ok := m.snaps[id]
	if !ok {
		return model.ClusterSnapshot{}, repository.ErrNotFound
	}
	return s, nil
}

func (m *mockDeps) StartAnalysis(_ context.Context, opts analysis.Options) (model.AnalysisTask, error) {
	m.analysis = opts
	if m.startErr != nil {
		return model.AnalysisTask{}, m.startErr
	}
	return model.AnalysisTask{ID: "t-3", Status: model.TaskPending, Force: opts.Force, SkipAnalyzed: opts.SkipAnalyzed}, nil
}

func (m *mockDeps) AnalysisTask(_ context.Context, id string) (model.AnalysisTask, error) {
	t, ok := m.tasks[id]
	if !ok {
		return model.AnalysisTask{}, repository.ErrNotFound
	}
	return t, nil
}

func (m *mockDeps) InterruptAnalysis(_ context.Context, id string) (model.AnalysisTask, error) {
	t, ok := m.tasks[id]
	switch {
	case !ok:
		return model.AnalysisTask{}, repository.ErrNotFound
	case t.Status.Terminal():
		return t, analysis.ErrTaskFinished
	}
	t.Interrupted = true
	return t, nil
}

type mockStats struct{}

func (mockStats) GetStats(context.Context) map[string]any {
	return map[string]any{"started": true, "luts": 4}
}

func newTestMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	NewServer(deps, mockStats{}).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(rec *httptest.ResponseRecorder) errorResponse {
	var e errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &e)
	return e
}

func TestClustersRoutes(t *testing.T) {
	Convey("Given the clusters routes", t, func() {
		deps := newMockDeps()
		mux := newTestMux(deps)

		Convey("When posting a clustering request", func() {
			rec := do(mux, http.MethodPost, "/clusters",
				`{"n_clusters":2,"metric":"lightweight_7d","algorithm":"centroid_based"}`)

			Convey("Then the request reaches the service and the result is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.clusterReq.NClusters, ShouldEqual, 2)
				So(deps.clusterReq.Algorithm, ShouldEqual, "centroid_based")

				var res service.ClusterResult
				So(json.Unmarshal(rec.Body.Bytes(), &res), ShouldBeNil)
				So(res.TotalFiles, ShouldEqual, 4)
				So(res.ClusterStats[1], ShouldEqual, 2)
			})
		})

		Convey("When the body is malformed", func() {
			rec := do(mux, http.MethodPost, "/clusters", `{"n_clusters":`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec).Code, ShouldEqual, "bad_request")
		})

		Convey("When the body carries unknown fields", func() {
			rec := do(mux, http.MethodPost, "/clusters", `{"clusters":2}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service rejects the plan", func() {
			cases := []struct {
				err    error
				status int
			}{
				{clustering.ErrInvalidClusterCount, http.StatusBadRequest},
				{model.ErrUnknownMetric, http.StatusBadRequest},
				{model.ErrIncompatiblePlan, http.StatusBadRequest},
				{features.ErrReferenceImage, http.StatusPreconditionFailed},
				{clustering.ErrTooFewItems, http.StatusPreconditionFailed},
				{service.ErrNotStarted, http.StatusServiceUnavailable},
				{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
			}
			for _, tc := range cases {
				deps.clusterErr = fmt.Errorf("cluster: %w", tc.err)
				rec := do(mux, http.MethodPost, "/clusters", `{"n_clusters":2}`)
				So(rec.Code, ShouldEqual, tc.status)
				So(decodeError(rec).Message, ShouldContainSubstring, tc.err.Error())
			}
		})

		Convey("When reading the overview", func() {
			rec := do(mux, http.MethodGet, "/clusters", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"cluster_stats"`)
		})

		Convey("When listing members", func() {
			rec := do(mux, http.MethodGet, "/clusters/0/members", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var members []model.MemberSummary
			So(json.Unmarshal(rec.Body.Bytes(), &members), ShouldBeNil)
			So(members, ShouldHaveLength, 1)
			So(*members[0].DistanceToCenter, ShouldEqual, 0.25)
		})

		Convey("When listing an unknown or malformed cluster", func() {
			So(do(mux, http.MethodGet, "/clusters/9/members", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/clusters/x/members", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When distilling a member", func() {
			rec := do(mux, http.MethodPost, "/clusters/0/distill", `{"lut_id":"a"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.distilled, ShouldResemble, []string{"a"})
		})

		Convey("When distilling without a lut id", func() {
			rec := do(mux, http.MethodPost, "/clusters/0/distill", `{}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.distilled, ShouldBeEmpty)
		})

		Convey("When using the wrong method", func() {
			So(do(mux, http.MethodDelete, "/clusters", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestSnapshotsRoutes(t *testing.T) {
	Convey("Given the snapshots routes", t, func() {
		deps := newMockDeps()
		mux := newTestMux(deps)

		Convey("When creating a snapshot", func() {
			rec := do(mux, http.MethodPost, "/snapshots", `{"name":"spring","description":"warm looks"}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)
			So(deps.snapReq.Description, ShouldEqual, "warm looks")
		})

		Convey("When creating a snapshot without a name", func() {
			rec := do(mux, http.MethodPost, "/snapshots", `{"name":"  "}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When listing snapshots", func() {
			rec := do(mux, http.MethodGet, "/snapshots", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"snap-1"`)
		})

		Convey("When fetching a snapshot as json", func() {
			rec := do(mux, http.MethodGet, "/snapshots/snap-1", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")

			var snap model.ClusterSnapshot
			So(json.Unmarshal(rec.Body.Bytes(), &snap), ShouldBeNil)
			So(snap.ClusterData[0].FileCount, ShouldEqual, 1)
		})

		Convey("When fetching a snapshot as yaml", func() {
			rec := do(mux, http.MethodGet, "/snapshots/snap-1?format=yml", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/yaml")
			So(rec.Body.String(), ShouldContainSubstring, "name: spring")
			So(rec.Header().Get("Content-Disposition"), ShouldContainSubstring, "snapshot-snap-1.yaml")
		})

		Convey("When the format or id is unknown", func() {
			So(do(mux, http.MethodGet, "/snapshots/snap-1?format=xml", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/snapshots/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAnalysisRoutes(t *testing.T) {
	Convey("Given the analysis routes", t, func() {
		deps := newMockDeps()
		mux := newTestMux(deps)

		Convey("When starting a task", func() {
			rec := do(mux, http.MethodPost, "/analysis", `{"force":true,"skip_analyzed":true}`)

			Convey("Then it is accepted with its options", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(deps.analysis, ShouldResemble, analysis.Options{Force: true, SkipAnalyzed: true})

				var task model.AnalysisTask
				So(json.Unmarshal(rec.Body.Bytes(), &task), ShouldBeNil)
				So(task.Status, ShouldEqual, model.TaskPending)
			})
		})

		Convey("When starting with an empty body", func() {
			rec := do(mux, http.MethodPost, "/analysis", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.analysis, ShouldResemble, analysis.Options{})
		})

		Convey("When a task is already running", func() {
			deps.startErr = analysis.ErrTaskRunning
			So(do(mux, http.MethodPost, "/analysis", `{}`).Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When the job queue is full", func() {
			deps.startErr = fmt.Errorf("submit: %w", queue.ErrFull)
			So(do(mux, http.MethodPost, "/analysis", `{}`).Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When reading tasks", func() {
			So(do(mux, http.MethodGet, "/analysis/t-1", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/analysis/none", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When interrupting", func() {
			rec := do(mux, http.MethodPost, "/analysis/t-2/interrupt", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(rec.Body.String(), ShouldContainSubstring, `"interrupted":true`)

			So(do(mux, http.MethodPost, "/analysis/t-1/interrupt", "").Code, ShouldEqual, http.StatusConflict)
		})
	})
}

func TestLutsRoutes(t *testing.T) {
	Convey("Given the catalog routes", t, func() {
		deps := newMockDeps()
		mux := newTestMux(deps)

		upload := func(name string) *httptest.ResponseRecorder {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, _ := mw.CreateFormFile("file", name)
			_, _ = fw.Write([]byte("LUT_3D_SIZE 2\n"))
			_ = mw.Close()
			req := httptest.NewRequest(http.MethodPost, "/luts", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			return rec
		}

		Convey("When uploading a new file twice", func() {
			first := upload("warm.cube")
			second := upload("warm.cube")

			Convey("Then the second upload returns the existing asset", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(second.Body.String(), ShouldContainSubstring, `"lut-1"`)
			})
		})

		Convey("When the upload has no file field", func() {
			rec := do(mux, http.MethodPost, "/luts", `{}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When listing", func() {
			upload("cool.cube")
			rec := do(mux, http.MethodGet, "/luts", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "cool.cube")
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given the operational routes", t, func() {
		mux := newTestMux(newMockDeps())

		Convey("When reading stats", func() {
			rec := do(mux, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"luts":4`)
		})

		Convey("When scraping healthz after a request", func() {
			do(mux, http.MethodGet, "/stats", "")
			rec := do(mux, http.MethodGet, "/healthz", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "lutcurate_engine_http_requests_total")
		})
	})
}

func TestGetErrorType(t *testing.T) {
	Convey("Given status codes", t, func() {
		So(getErrorType(500), ShouldEqual, "server_error")
		So(getErrorType(409), ShouldEqual, "conflict")
		So(getErrorType(404), ShouldEqual, "not_found")
		So(getErrorType(412), ShouldEqual, "client_error")
		So(getErrorType(200), ShouldEqual, "unknown")
	})
}
