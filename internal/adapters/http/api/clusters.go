package api

import (
	"net/http"
	"strings"

	service "github.com/okian/lutcurate/internal/app"
)

// ClustersHandler serves clustering runs and cluster membership.
type ClustersHandler struct {
	deps Dependencies
}

// NewClustersHandler creates a new clusters handler.
func NewClustersHandler(deps Dependencies) *ClustersHandler {
	return &ClustersHandler{deps: deps}
}

// HandleCluster handles POST /clusters.
func (h *ClustersHandler) HandleCluster(w http.ResponseWriter, r *http.Request) {
	const op = "cluster"
	var req service.ClusterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	res, err := h.deps.Cluster(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleOverview handles GET /clusters.
func (h *ClustersHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.deps.Clusters(r.Context())
	if err != nil {
		writeFailure(w, "clusters", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleMembers handles GET /clusters/{id}/members.
func (h *ClustersHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	const op = "members"
	id, err := clusterID(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	members, err := h.deps.Members(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type distillRequest struct {
	LutID string `json:"lut_id"`
}

// HandleDistill handles POST /clusters/{id}/distill.
func (h *ClustersHandler) HandleDistill(w http.ResponseWriter, r *http.Request) {
	const op = "distill"
	id, err := clusterID(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	var req distillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	if strings.TrimSpace(req.LutID) == "" {
		writeFailure(w, op, NewKind("missing lut_id", ErrBadRequest))
		return
	}
	if err := h.deps.Distill(r.Context(), id, req.LutID); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cluster_id": id, "lut_id": req.LutID, "distilled": true})
}
