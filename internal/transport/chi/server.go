// Package chi exposes the HTTP API: structured provider search, the
// natural-language ask endpoint, health, and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/carelens/costnav/internal/domain"
	domcat "github.com/carelens/costnav/internal/domain/catalog"
	askuc "github.com/carelens/costnav/internal/usecase/ask"
	healthuc "github.com/carelens/costnav/internal/usecase/health"
	searchuc "github.com/carelens/costnav/internal/usecase/search"
)

// upstreamMessage is the only thing callers see when the language model is
// unreachable.
const upstreamMessage = "The language model service is currently unavailable. Please try again."

// SearchService runs structured provider searches.
type SearchService interface {
	Search(ctx context.Context, p searchuc.Params) ([]domcat.Row, error)
}

// AskService answers natural-language questions.
type AskService interface {
	Ask(ctx context.Context, question string) (askuc.Result, error)
}

// HealthService reports component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers.
type Server struct {
	search        SearchService
	ask           AskService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search SearchService, ask AskService, health HealthService, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		ask:    ask,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		unknownLocationHandler,
		invalidQueryHandler,
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, upstreamMessage),
		sentinelHandler(domain.ErrExecutionFailed, http.StatusInternalServerError, "internal error"),
	}
	return s
}

// Register mounts the API routes.
func (s *Server) Register(r chi.Router) {
	r.Get("/providers", s.SearchProviders)
	r.Post("/ask", s.Ask)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// providerResponse is the wire shape of one catalog row.
type providerResponse struct {
	ProviderID              string   `json:"provider_id"`
	ProviderName            string   `json:"provider_name"`
	ProviderCity            string   `json:"provider_city"`
	ProviderState           string   `json:"provider_state"`
	ProviderZipCode         string   `json:"provider_zip_code"`
	ProcedureLabel          string   `json:"procedure_label"`
	TotalDischarges         int      `json:"total_discharges"`
	AverageCoveredCharges   float64  `json:"average_covered_charges"`
	AverageTotalPayments    float64  `json:"average_total_payments"`
	AverageMedicarePayments float64  `json:"average_medicare_payments"`
	Rating                  *int     `json:"rating"`
	DistanceKM              *float64 `json:"distance_km"`
}

// SearchProviders handles GET /providers.
func (s *Server) SearchProviders(w http.ResponseWriter, r *http.Request) {
	params, err := searchParamsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.search.Search(r.Context(), params)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rowsToResponse(rows))
}

func searchParamsFromQuery(r *http.Request) (searchuc.Params, error) {
	q := r.URL.Query()
	params := searchuc.Params{
		DRG:   q.Get("drg"),
		City:  q.Get("city"),
		State: q.Get("state"),
		Zip:   q.Get("zip"),
	}

	if v := q.Get("radius_km"); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return searchuc.Params{}, errors.New("radius_km must be a number")
		}
		params.RadiusKM = radius
	}
	if v := q.Get("min_rating"); v != "" {
		rating, err := strconv.Atoi(v)
		if err != nil {
			return searchuc.Params{}, errors.New("min_rating must be an integer")
		}
		params.MinRating = rating
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return searchuc.Params{}, errors.New("limit must be an integer")
		}
		params.Limit = limit
	}
	return params, nil
}

func rowsToResponse(rows []domcat.Row) []providerResponse {
	out := make([]providerResponse, len(rows))
	for i, row := range rows {
		out[i] = providerResponse{
			ProviderID:              row.ProviderID,
			ProviderName:            row.ProviderName,
			ProviderCity:            row.ProviderCity,
			ProviderState:           row.ProviderState,
			ProviderZipCode:         row.ProviderZip,
			ProcedureLabel:          row.ProcedureLabel,
			TotalDischarges:         row.TotalDischarges,
			AverageCoveredCharges:   row.AverageCoveredCharges,
			AverageTotalPayments:    row.AverageTotalPayments,
			AverageMedicarePayments: row.AverageMedicarePayments,
			Rating:                  row.Rating,
			DistanceKM:              row.DistanceKM,
		}
	}
	return out
}

// askRequest is the POST /ask request body.
type askRequest struct {
	Question string `json:"question"`
}

// askResponse is the POST /ask response. Results is null when the answer
// carries no tabular data.
type askResponse struct {
	Answer  string `json:"answer"`
	Results any    `json:"results"`
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.ask.Ask(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := askResponse{Answer: result.Answer}
	switch {
	case result.Rows != nil:
		resp.Results = rowsToResponse(result.Rows)
	case result.Records != nil:
		resp.Results = result.Records
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the error body as {"detail": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel
// error and renders a fixed message, never the wrapped detail.
func sentinelHandler(sentinel error, status int, message string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, message)
		return true
	}
}

// unknownLocationHandler handles unknown zip codes with the zip in the detail.
func unknownLocationHandler(w http.ResponseWriter, err error) bool {
	var ule *domain.UnknownLocationError
	if !errors.As(err, &ule) {
		return false
	}
	writeError(w, http.StatusBadRequest, ule.Error())
	return true
}

// invalidQueryHandler handles validation failures. The wrapped message is
// written by this codebase and safe to show.
func invalidQueryHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
