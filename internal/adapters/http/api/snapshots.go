package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/okian/lutcurate/internal/domain/curation"
)

// SnapshotsHandler serves frozen cluster snapshots.
type SnapshotsHandler struct {
	deps Dependencies
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(deps Dependencies) *SnapshotsHandler {
	return &SnapshotsHandler{deps: deps}
}

// HandleCreate handles POST /snapshots.
func (h *SnapshotsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "create snapshot"
	var req curation.SnapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	snap, err := h.deps.CreateSnapshot(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleList handles GET /snapshots.
func (h *SnapshotsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.deps.Snapshots(r.Context())
	if err != nil {
		writeFailure(w, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// HandleGet handles GET /snapshots/{id}. The optional format query
// parameter selects a json or yaml export document.
func (h *SnapshotsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "get snapshot"
	format := curation.FormatJSON
	if raw := r.URL.Query().Get("format"); raw != "" {
		parsed, err := curation.ParseFormat(raw)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		format = parsed
	}

	id := r.PathValue("id")
	snap, err := h.deps.Snapshot(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}

	var buf bytes.Buffer
	if err := curation.ExportSnapshot(&buf, snap, format); err != nil {
		writeFailure(w, op, err)
		return
	}
	contentType := "application/json; charset=utf-8"
	if format == curation.FormatYAML {
		contentType = "application/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "snapshot-"+id+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
