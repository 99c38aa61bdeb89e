package api

import (
	"net/http"

	"github.com/okian/lutcurate/internal/domain/analysis"
)

// AnalysisHandler serves the background analysis task.
type AnalysisHandler struct {
	deps Dependencies
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(deps Dependencies) *AnalysisHandler {
	return &AnalysisHandler{deps: deps}
}

type startAnalysisRequest struct {
	Force        bool `json:"force"`
	SkipAnalyzed bool `json:"skip_analyzed"`
}

// HandleStart handles POST /analysis and answers 202 with the pending task.
func (h *AnalysisHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "start analysis"
	var req startAnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	task, err := h.deps.StartAnalysis(r.Context(), analysis.Options{
		Force:        req.Force,
		SkipAnalyzed: req.SkipAnalyzed,
	})
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// HandleGet handles GET /analysis/{id}.
func (h *AnalysisHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.deps.AnalysisTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, "analysis task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleInterrupt handles POST /analysis/{id}/interrupt. The task stops at
// its next checkpoint.
func (h *AnalysisHandler) HandleInterrupt(w http.ResponseWriter, r *http.Request) {
	task, err := h.deps.InterruptAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, "interrupt analysis", err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}
