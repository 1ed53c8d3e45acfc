package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/ricesearch/fairrank/internal/dataset"
	"github.com/ricesearch/fairrank/internal/evaluation"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
	"github.com/ricesearch/fairrank/internal/report"
)

// maxListLimit bounds GET /v1/reports?limit=.
const maxListLimit = 1000

// BatchRequest is the JSON body of POST /v1/fairness/evaluate/batch.
type BatchRequest struct {
	Datasets []json.RawMessage `json:"datasets"`
}

// ReportsResponse wraps a list of reports or report summaries.
type ReportsResponse[T any] struct {
	Reports []T `json:"reports"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err, reporting oversized bodies as 413.
func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		apperrors.WriteErrorWithStatus(w, http.StatusRequestEntityTooLarge,
			apperrors.InvalidRequestError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
		return
	}

	var batchErr *evaluation.BatchError
	if errors.As(err, &batchErr) {
		var appErr *apperrors.AppError
		if errors.As(batchErr.Err, &appErr) {
			detailed := *appErr
			detailed.Details = make(map[string]string, len(appErr.Details)+1)
			for k, v := range appErr.Details {
				detailed.Details[k] = v
			}
			detailed.Details["index"] = strconv.Itoa(batchErr.Index)
			apperrors.WriteError(w, &detailed)
			return
		}
	}

	apperrors.WriteError(w, err)
}

// requestFormat picks the dataset format from the Content-Type header.
// JSON is the default.
func requestFormat(r *http.Request) dataset.Format {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return dataset.FormatYAML
	default:
		return dataset.FormatJSON
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.cfg.Version})
}

// handleEvaluate handles POST /v1/fairness/evaluate.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ds, err := dataset.Read(r.Body, requestFormat(r))
	if err != nil {
		writeError(w, err)
		return
	}

	rep, err := s.svc.Evaluate(r.Context(), ds)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/v1/reports/"+rep.ID)
	writeJSON(w, http.StatusCreated, rep)
}

// handleEvaluateBatch handles POST /v1/fairness/evaluate/batch.
func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = apperrors.InvalidRequestError("request body is empty")
		} else {
			err = apperrors.Wrap(apperrors.CodeInvalidRequest, "decoding batch request", err)
		}
		writeError(w, err)
		return
	}

	datasets := make([]*dataset.Dataset, len(req.Datasets))
	for i, raw := range req.Datasets {
		ds, err := dataset.Parse(raw, dataset.FormatJSON)
		if err != nil {
			writeError(w, &evaluation.BatchError{Index: i, Err: err})
			return
		}
		datasets[i] = ds
	}

	reports, err := s.svc.EvaluateBatch(r.Context(), datasets)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReportsResponse[*report.Report]{Reports: reports})
}

// handleListReports handles GET /v1/reports?limit=N.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := report.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			writeError(w, apperrors.InvalidRequestError(
				fmt.Sprintf("limit must be between 1 and %d", maxListLimit)).WithDetail("limit", raw))
			return
		}
		limit = n
	}

	summaries, err := s.svc.Reports(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReportsResponse[report.Summary]{Reports: summaries})
}

// handleGetReport handles GET /v1/reports/{id}. ?format=text renders the
// report as aligned tables.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		report.WriteText(w, rep)
	default:
		writeError(w, apperrors.InvalidRequestError("format must be json or text"))
	}
}
