package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/costnav/internal/domain"
	domq "github.com/carelens/costnav/internal/domain/query"
	"github.com/carelens/costnav/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterTranslationMetrics()
	os.Exit(m.Run())
}

// completionResponse mirrors the OpenAI-compatible chat completion response.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func completionServer(t *testing.T, reply func(call int) (status int, content string)) *httptest.Server {
	t.Helper()
	var calls int
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		calls++
		status, content := reply(calls)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"detail": "upstream exploded"}`))
			return
		}

		var resp completionResponse
		resp.Choices = append(resp.Choices, struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		}{})
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = content

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestTranslator(url string, maxRetries int) *Translator {
	return NewTranslator(&Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		Logger:     zap.NewNop(),
	})
}

func TestTranslate_FilterIntent(t *testing.T) {
	server := completionServer(t, func(int) (int, string) {
		return http.StatusOK, `{"intent":"filter","filter":{"drg":"hip replacement","zip":"10001","radius_km":25}}`
	})
	defer server.Close()

	p, err := newTestTranslator(server.URL, 0).Translate(context.Background(), "hip replacement near 10001")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if p.Intent() != domq.IntentFilter {
		t.Fatalf("intent = %q, want filter", p.Intent())
	}
	f := p.Filter()
	if f.DRG() != "hip replacement" || f.Zip() != "10001" || f.RadiusKM() != 25 {
		t.Errorf("filter fields wrong: drg=%q zip=%q radius=%v", f.DRG(), f.Zip(), f.RadiusKM())
	}
}

func TestTranslate_AggregateIntent(t *testing.T) {
	server := completionServer(t, func(int) (int, string) {
		return http.StatusOK, `{"intent":"aggregate","aggregate":{"op":"count_by_city","table":"providers","group_by":"provider_city","state":"TX","limit":5}}`
	})
	defer server.Close()

	p, err := newTestTranslator(server.URL, 0).Translate(context.Background(), "top Texas cities by hospital count")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if p.Intent() != domq.IntentAggregate {
		t.Fatalf("intent = %q, want aggregate", p.Intent())
	}
	a := p.Aggregate()
	if a.Op() != domq.OpCountByCity || a.State() != "TX" || a.Limit() != 5 {
		t.Errorf("aggregate fields wrong: op=%q state=%q limit=%d", a.Op(), a.State(), a.Limit())
	}
}

func TestTranslate_FencedJSON(t *testing.T) {
	server := completionServer(t, func(int) (int, string) {
		return http.StatusOK, "```json\n{\"intent\":\"out_of_scope\"}\n```"
	})
	defer server.Close()

	p, err := newTestTranslator(server.URL, 0).Translate(context.Background(), "what's the weather")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if p.Intent() != domq.IntentOutOfScope {
		t.Errorf("intent = %q, want out_of_scope", p.Intent())
	}
}

func TestTranslate_AmbiguousCarriesNote(t *testing.T) {
	server := completionServer(t, func(int) (int, string) {
		return http.StatusOK, `{"intent":"ambiguous","note":"no wait-time data"}`
	})
	defer server.Close()

	p, err := newTestTranslator(server.URL, 0).Translate(context.Background(), "shortest wait times")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if p.Intent() != domq.IntentAmbiguous || p.Note() != "no wait-time data" {
		t.Errorf("got intent=%q note=%q", p.Intent(), p.Note())
	}
}

func TestTranslate_RetriesMalformedOnce(t *testing.T) {
	server := completionServer(t, func(call int) (int, string) {
		if call == 1 {
			return http.StatusOK, "Sure! Here are the results you asked for."
		}
		return http.StatusOK, `{"intent":"out_of_scope"}`
	})
	defer server.Close()

	p, err := newTestTranslator(server.URL, 1).Translate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if p.Intent() != domq.IntentOutOfScope {
		t.Errorf("intent = %q, want out_of_scope", p.Intent())
	}
}

func TestTranslate_NoRetryBudgetFails(t *testing.T) {
	server := completionServer(t, func(int) (int, string) {
		return http.StatusOK, `{"intent":"teleport"}`
	})
	defer server.Close()

	_, err := newTestTranslator(server.URL, 0).Translate(context.Background(), "anything")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestTranslate_APIErrorMapped(t *testing.T) {
	server := completionServer(t, func(int) (int, string) {
		return http.StatusInternalServerError, ""
	})
	defer server.Close()

	_, err := newTestTranslator(server.URL, 1).Translate(context.Background(), "anything")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestTranslate_InvalidProposedFilterRejected(t *testing.T) {
	// Zip without radius violates the filter contract even when the JSON parses.
	server := completionServer(t, func(int) (int, string) {
		return http.StatusOK, `{"intent":"filter","filter":{"zip":"10001"}}`
	})
	defer server.Close()

	_, err := newTestTranslator(server.URL, 0).Translate(context.Background(), "hospitals near 10001")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
