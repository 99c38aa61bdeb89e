package api

import (
	"io"
	"net/http"
)

// maxUploadBytes bounds a multipart LUT upload.
const maxUploadBytes = 32 << 20

// LutsHandler serves the LUT catalog.
type LutsHandler struct {
	deps Dependencies
}

// NewLutsHandler creates a new catalog handler.
func NewLutsHandler(deps Dependencies) *LutsHandler {
	return &LutsHandler{deps: deps}
}

// HandleList handles GET /luts.
func (h *LutsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	luts, err := h.deps.Luts(r.Context())
	if err != nil {
		writeFailure(w, "list luts", err)
		return
	}
	writeJSON(w, http.StatusOK, luts)
}

// HandleUpload handles POST /luts with a multipart "file" field.
// An already known filename answers 200 with the existing asset.
func (h *LutsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "upload lut"
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, op, WrapKind("read upload", ErrBadRequest, err))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, op, WrapKind("read upload", ErrBadRequest, err))
		return
	}

	asset, created, err := h.deps.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, asset)
}
