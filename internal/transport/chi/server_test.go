package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carelens/costnav/internal/domain"
	domcat "github.com/carelens/costnav/internal/domain/catalog"
	askuc "github.com/carelens/costnav/internal/usecase/ask"
	healthuc "github.com/carelens/costnav/internal/usecase/health"
	searchuc "github.com/carelens/costnav/internal/usecase/search"
)

// --- Mocks ---

type mockSearch struct {
	rows       []domcat.Row
	err        error
	lastParams searchuc.Params
}

func (m *mockSearch) Search(_ context.Context, p searchuc.Params) ([]domcat.Row, error) {
	m.lastParams = p
	return m.rows, m.err
}

type mockAsk struct {
	result askuc.Result
	err    error
	lastQ  string
}

func (m *mockAsk) Ask(_ context.Context, q string) (askuc.Result, error) {
	m.lastQ = q
	return m.result, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestRouter(search SearchService, ask AskService, health HealthService) http.Handler {
	r := chi.NewRouter()
	NewServer(search, ask, health, zap.NewNop()).Register(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Detail
}

// --- Tests ---

func TestSearchProviders_OK(t *testing.T) {
	dist := 7.5
	rating := 9
	search := &mockSearch{rows: []domcat.Row{
		{
			ProviderID:            "330101",
			ProviderName:          "TEST HOSPITAL",
			ProviderCity:          "NEW YORK",
			ProviderState:         "NY",
			ProviderZip:           "10001",
			ProcedureLabel:        "470 - MAJOR JOINT REPLACEMENT",
			TotalDischarges:       25,
			AverageCoveredCharges: 42000.50,
			Rating:                &rating,
			DistanceKM:            &dist,
		},
		{ProviderID: "330102", ProviderName: "OTHER HOSPITAL"},
	}}
	router := newTestRouter(search, &mockAsk{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet,
		"/providers?drg=joint&state=NY&zip=10001&radius_km=25&min_rating=5&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	want := searchuc.Params{DRG: "joint", State: "NY", Zip: "10001", RadiusKM: 25, MinRating: 5, Limit: 10}
	if search.lastParams != want {
		t.Errorf("params = %+v, want %+v", search.lastParams, want)
	}

	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0]["provider_id"] != "330101" || got[0]["distance_km"] != 7.5 || got[0]["rating"] != float64(9) {
		t.Errorf("first row wrong: %+v", got[0])
	}
	if got[1]["distance_km"] != nil || got[1]["rating"] != nil {
		t.Errorf("absent distance/rating must serialize as null: %+v", got[1])
	}
}

func TestSearchProviders_MalformedNumbers(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockAsk{}, &mockHealth{})

	for _, target := range []string{
		"/providers?radius_km=abc",
		"/providers?min_rating=high",
		"/providers?limit=many",
	} {
		rec := doRequest(t, router, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
		if decodeDetail(t, rec) == "" {
			t.Errorf("%s: missing detail", target)
		}
	}
}

func TestSearchProviders_InvalidQuery(t *testing.T) {
	search := &mockSearch{err: domain.ErrInvalidQuery}
	router := newTestRouter(search, &mockAsk{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/providers?zip=10001", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchProviders_UnknownZip(t *testing.T) {
	search := &mockSearch{err: domain.NewUnknownLocation("99999")}
	router := newTestRouter(search, &mockAsk{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/providers?zip=99999&radius_km=10", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeDetail(t, rec); got != "ZIP code 99999 not found in our database" {
		t.Errorf("detail = %q", got)
	}
}

func TestSearchProviders_ExecutionFailure(t *testing.T) {
	search := &mockSearch{err: domain.ErrExecutionFailed}
	router := newTestRouter(search, &mockAsk{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/providers", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeDetail(t, rec); got != "internal error" {
		t.Errorf("internal detail leaked: %q", got)
	}
}

func TestAsk_FilterResults(t *testing.T) {
	ask := &mockAsk{result: askuc.Result{
		Answer: "Found 1 matching providers, sorted by average covered charges.",
		Rows:   []domcat.Row{{ProviderID: "050001"}},
	}}
	router := newTestRouter(&mockSearch{}, ask, &mockHealth{})

	rec := doRequest(t, router, http.MethodPost, "/ask", `{"question": "cheapest hip replacement"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ask.lastQ != "cheapest hip replacement" {
		t.Errorf("question not forwarded: %q", ask.lastQ)
	}

	var got struct {
		Answer  string           `json:"answer"`
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Results) != 1 || got.Results[0]["provider_id"] != "050001" {
		t.Errorf("results wrong: %+v", got.Results)
	}
	if !strings.Contains(got.Answer, "Found 1") {
		t.Errorf("answer = %q", got.Answer)
	}
}

func TestAsk_DeclinedHasNullResults(t *testing.T) {
	ask := &mockAsk{result: askuc.Result{Answer: "I can only answer questions about hospital providers."}}
	router := newTestRouter(&mockSearch{}, ask, &mockHealth{})

	rec := doRequest(t, router, http.MethodPost, "/ask", `{"question": "what is the weather"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(got["results"]) != "null" {
		t.Errorf("results = %s, want null", got["results"])
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockAsk{}, &mockHealth{})

	for _, body := range []string{`{}`, `{"question": "  "}`} {
		rec := doRequest(t, router, http.MethodPost, "/ask", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestAsk_MalformedBody(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockAsk{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodPost, "/ask", `{"question": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAsk_UpstreamUnavailable(t *testing.T) {
	ask := &mockAsk{err: domain.ErrUpstreamUnavailable}
	router := newTestRouter(&mockSearch{}, ask, &mockHealth{})

	rec := doRequest(t, router, http.MethodPost, "/ask", `{"question": "anything"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if got := decodeDetail(t, rec); got != upstreamMessage {
		t.Errorf("detail = %q", got)
	}
}

func TestAsk_UnexpectedErrorIsOpaque(t *testing.T) {
	ask := &mockAsk{err: errors.New("pgx: connection refused at 10.0.0.5")}
	router := newTestRouter(&mockSearch{}, ask, &mockHealth{})

	rec := doRequest(t, router, http.MethodPost, "/ask", `{"question": "anything"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeDetail(t, rec); strings.Contains(got, "10.0.0.5") {
		t.Errorf("internal detail leaked: %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		report     healthuc.Report
		wantStatus int
	}{
		{
			"healthy",
			healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK}},
			http.StatusOK,
		},
		{
			"degraded",
			healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError}},
			http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockSearch{}, &mockAsk{}, &mockHealth{report: tt.report})
			rec := doRequest(t, router, http.MethodGet, "/health", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var got struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if got.Status != string(tt.report.Status) {
				t.Errorf("status field = %q, want %q", got.Status, tt.report.Status)
			}
		})
	}
}
