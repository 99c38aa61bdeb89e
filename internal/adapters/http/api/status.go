package api

import (
	"errors"
	"net/http"

	"github.com/okian/lutcurate/internal/adapters/blob"
	"github.com/okian/lutcurate/internal/adapters/mq/queue"
	"github.com/okian/lutcurate/internal/adapters/repository"
	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/clustering"
	"github.com/okian/lutcurate/internal/domain/curation"
	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/model"
)

// statusRule maps error kinds to a response status and code.
type statusRule struct {
	status int
	code   string
	kinds  []error
}

var statusRules = []statusRule{ //nolint:gochecknoglobals // static lookup table
	{http.StatusBadRequest, "bad_request", []error{
		ErrBadRequest,
		service.ErrInvalidRequest,
		model.ErrUnknownMetric,
		model.ErrUnknownAlgorithm,
		model.ErrIncompatiblePlan,
		clustering.ErrInvalidClusterCount,
		curation.ErrInvalidName,
		curation.ErrUnknownFormat,
	}},
	{http.StatusNotFound, "not_found", []error{
		repository.ErrNotFound,
		curation.ErrNotFound,
		blob.ErrNotFound,
	}},
	{http.StatusConflict, "conflict", []error{
		analysis.ErrTaskRunning,
		analysis.ErrTaskFinished,
		queue.ErrFull,
		repository.ErrConflict,
	}},
	{http.StatusPreconditionFailed, "precondition_failed", []error{
		features.ErrReferenceImage,
		clustering.ErrTooFewItems,
	}},
	{http.StatusServiceUnavailable, "unavailable", []error{
		service.ErrNotStarted,
		features.ErrInterrupted,
		queue.ErrClosed,
	}},
}

// statusFor classifies err.
func statusFor(err error) (int, string) {
	for _, rule := range statusRules {
		for _, kind := range rule.kinds {
			if errors.Is(err, kind) {
				return rule.status, rule.code
			}
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeFailure writes err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, Wrap(op, err))
}
