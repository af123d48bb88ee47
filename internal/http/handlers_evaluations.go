// Package httpx provides the HTTP API of the evaluation orchestrator.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/service"
)

// EvaluationService is the part of service.EvaluationService the handlers drive.
type EvaluationService interface {
	Submit(ctx context.Context, req model.SubmitEvaluationRequest) (*model.SubmitEvaluationResult, error)
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	List(ctx context.Context) (*service.EvaluationList, error)
	Cancel(ctx context.Context, id string) error
	Catalog() service.CatalogView
	CancellationEnabled() bool
}

// EvaluationHandlers provides HTTP handlers for evaluation submission and status.
type EvaluationHandlers struct {
	Svc    EvaluationService
	Logger *slog.Logger
}

type submitResponse struct {
	Success      bool                       `json:"success"`
	EvaluationID string                     `json:"evaluationId"`
	Reused       bool                       `json:"reused,omitempty"`
	Data         model.SubmitEvaluationData `json:"data"`
}

type cancelResponse struct {
	Success      bool   `json:"success"`
	EvaluationID string `json:"evaluationId"`
	Message      string `json:"message"`
}

// Submit handles POST /api/evaluations.
func (h *EvaluationHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitEvaluationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	WriteJSON(w, status, submitResponse{
		Success:      true,
		EvaluationID: res.EvaluationID,
		Reused:       res.Reused,
		Data:         res.Data,
	})
}

// Get handles GET /api/evaluations/{id}.
func (h *EvaluationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	h.writeJob(w, r, r.PathValue("id"))
}

// List handles GET /api/evaluations. A non-empty id query parameter returns that job instead.
func (h *EvaluationHandlers) List(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		h.writeJob(w, r, id)
		return
	}

	list, err := h.Svc.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, list)
}

// Cancel handles POST /api/evaluations/{id}/cancel.
func (h *EvaluationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Svc.Cancel(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, cancelResponse{
		Success:      true,
		EvaluationID: id,
		Message:      "cancellation requested",
	})
}

// Catalog handles GET /api/catalog.
func (h *EvaluationHandlers) Catalog(w http.ResponseWriter, _ *http.Request) {
	WriteData(w, http.StatusOK, h.Svc.Catalog())
}

func (h *EvaluationHandlers) writeJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, job)
}

// writeServiceError maps service sentinels to HTTP status codes.
func (h *EvaluationHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	p := ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err}
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		p.Code, p.ErrCode = http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, catalog.ErrUnknownCategory):
		p.Code, p.ErrCode = http.StatusBadRequest, CodeUnknownCategory
	case errors.Is(err, catalog.ErrUnknownModel):
		p.Code, p.ErrCode = http.StatusBadRequest, CodeUnknownModel
	case errors.Is(err, service.ErrDuplicateSubmission):
		p.Code, p.ErrCode = http.StatusConflict, CodeDuplicateSubmission
	case errors.Is(err, service.ErrJobNotFound):
		p.Code, p.ErrCode = http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrJobNotRunning):
		p.Code, p.ErrCode = http.StatusConflict, CodeNotRunning
	case errors.Is(err, service.ErrCancellationDisabled):
		p.Code, p.ErrCode = http.StatusMethodNotAllowed, CodeCancellationDisabled
	}

	if p.Code >= http.StatusInternalServerError {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "evaluation request failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
		}
		p.Err = errors.New("internal server error")
	}
	WriteError(w, p)
}
