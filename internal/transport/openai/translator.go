// Package openai adapts an OpenAI-compatible chat completion API into the
// question translator.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/carelens/costnav/internal/domain"
	domq "github.com/carelens/costnav/internal/domain/query"
	"github.com/carelens/costnav/internal/metrics"
)

// systemPrompt pins the model to the dataset vocabulary and the proposal
// wire format. The model never sees or writes SQL.
const systemPrompt = `You translate questions about US hospital inpatient prices into a JSON proposal.

The dataset has exactly these tables and columns:
  providers(provider_id, provider_name, provider_city, provider_state, provider_zip_code)
  drgs(drg_id, ms_drg_definition)
  drg_prices(id, provider_id, drg_id, total_discharges, average_covered_charges, average_total_payments, average_medicare_payments)
  ratings(id, provider_id, rating)            -- rating is 1..10
  zip_codes(zip_code, latitude, longitude)

Respond with a single JSON object and nothing else:
{
  "intent": "filter" | "aggregate" | "out_of_scope" | "ambiguous",
  "filter": {"drg": "", "city": "", "state": "", "zip": "", "radius_km": 0, "min_rating": 0, "limit": 0},
  "aggregate": {"op": "count_by_city" | "avg_cost_by_group", "table": "", "metric": "", "group_by": "", "drg": "", "state": "", "limit": 0},
  "note": ""
}

Rules:
- "filter" returns provider rows. Use "drg" for a procedure-name substring, "state" as a 2-letter code, "zip" plus "radius_km" together for distance search.
- "aggregate" supports only the two ops above. count_by_city groups providers by provider_city; avg_cost_by_group averages one of the three average_* price columns over ms_drg_definition.
- Questions unrelated to hospital providers, procedure prices, or ratings are "out_of_scope".
- On-topic questions this schema cannot answer are "ambiguous"; explain why in "note".
- Omit fields you do not need. Never invent tables or columns.

Examples:
Q: cheapest hip replacement near 10001 within 25 km
{"intent":"filter","filter":{"drg":"hip replacement","zip":"10001","radius_km":25}}
Q: top 5 cities in Texas by number of hospitals
{"intent":"aggregate","aggregate":{"op":"count_by_city","table":"providers","group_by":"provider_city","state":"TX","limit":5}}
Q: average medicare payment for heart procedures
{"intent":"aggregate","aggregate":{"op":"avg_cost_by_group","table":"drg_prices","metric":"average_medicare_payments","group_by":"ms_drg_definition","drg":"heart"}}
Q: what's the weather in Boston
{"intent":"out_of_scope"}
Q: which hospital has the shortest wait times
{"intent":"ambiguous","note":"The dataset has prices and 1-10 ratings but no wait-time information."}`

// Translator is a question translator using the OpenAI-compatible chat API.
type Translator struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// Config holds the completion provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Logger     *zap.Logger
}

// NewTranslator creates an OpenAI-compatible question translator.
func NewTranslator(cfg *Config) *Translator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Translator{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}
}

// wireProposal mirrors the JSON the model is instructed to produce.
type wireProposal struct {
	Intent string `json:"intent"`
	Filter *struct {
		DRG       string  `json:"drg"`
		City      string  `json:"city"`
		State     string  `json:"state"`
		Zip       string  `json:"zip"`
		RadiusKM  float64 `json:"radius_km"`
		MinRating int     `json:"min_rating"`
		Limit     int     `json:"limit"`
	} `json:"filter"`
	Aggregate *struct {
		Op      string `json:"op"`
		Table   string `json:"table"`
		Metric  string `json:"metric"`
		GroupBy string `json:"group_by"`
		DRG     string `json:"drg"`
		State   string `json:"state"`
		Limit   int    `json:"limit"`
	} `json:"aggregate"`
	Note string `json:"note"`
}

// Translate turns a question into a structured proposal. Transport and
// malformed-output failures are retried once at most; a well-formed response
// is final whatever its intent.
func (t *Translator) Translate(ctx context.Context, question string) (domq.Proposal, error) {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		proposal, err := t.translateOnce(ctx, question)
		if err == nil {
			metrics.TranslationRequestsTotal.WithLabelValues(t.model, string(proposal.Intent())).Inc()
			return proposal, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		t.logger.Warn("translation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	metrics.TranslationRequestsTotal.WithLabelValues(t.model, "error").Inc()
	return domq.Proposal{}, lastErr
}

func (t *Translator) translateOnce(ctx context.Context, question string) (domq.Proposal, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return domq.Proposal{}, parseAPIError(err)
	}
	metrics.TranslationRequestDuration.WithLabelValues(t.model).Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return domq.Proposal{}, fmt.Errorf("empty completion response: %w", domain.ErrUpstreamUnavailable)
	}

	return parseProposal(resp.Choices[0].Message.Content)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (t *Translator) HealthCheck(ctx context.Context) error {
	if _, err := t.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseProposal decodes the model's JSON into a validated proposal.
func parseProposal(content string) (domq.Proposal, error) {
	var wire wireProposal
	if err := json.Unmarshal([]byte(stripFences(content)), &wire); err != nil {
		return domq.Proposal{}, fmt.Errorf("malformed proposal JSON: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	switch domq.Intent(wire.Intent) {
	case domq.IntentFilter:
		if wire.Filter == nil {
			return domq.Proposal{}, fmt.Errorf("filter intent without filter body: %w", domain.ErrUpstreamUnavailable)
		}
		f, err := domq.NewFilter(wire.Filter.DRG, wire.Filter.City, wire.Filter.State,
			wire.Filter.Zip, wire.Filter.RadiusKM, wire.Filter.MinRating, wire.Filter.Limit)
		if err != nil {
			return domq.Proposal{}, fmt.Errorf("invalid filter proposal: %w: %w", err, domain.ErrUpstreamUnavailable)
		}
		return domq.NewFilterProposal(f), nil

	case domq.IntentAggregate:
		if wire.Aggregate == nil {
			return domq.Proposal{}, fmt.Errorf("aggregate intent without aggregate body: %w", domain.ErrUpstreamUnavailable)
		}
		a, err := domq.NewAggregate(domq.AggregateOp(wire.Aggregate.Op), wire.Aggregate.Table,
			wire.Aggregate.Metric, wire.Aggregate.GroupBy, wire.Aggregate.DRG,
			wire.Aggregate.State, wire.Aggregate.Limit)
		if err != nil {
			return domq.Proposal{}, fmt.Errorf("invalid aggregate proposal: %w: %w", err, domain.ErrUpstreamUnavailable)
		}
		return domq.NewAggregateProposal(a), nil

	case domq.IntentOutOfScope:
		return domq.NewOutOfScope(wire.Note), nil

	case domq.IntentAmbiguous:
		return domq.NewAmbiguous(wire.Note), nil

	default:
		return domq.Proposal{}, fmt.Errorf("unknown intent %q: %w", wire.Intent, domain.ErrUpstreamUnavailable)
	}
}

// stripFences removes a markdown code fence if the model wrapped its JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrUpstreamUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrUpstreamUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("completion API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("completion request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
