package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stbl-strategies/catalog-cli/internal/resilience"
	"github.com/stbl-strategies/catalog-cli/pkg/anthropic"
)

// Document is one PDF to extract from. Name is used in errors and logs.
type Document struct {
	Name string
	Data []byte
}

// Engine runs prompt specs against documents. Stateless and safe for
// concurrent use; a shared rate limiter spaces out API calls across
// goroutines.
type Engine struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// Option configures an Engine.
type Option func(*Engine)

// WithRate sets the request rate limit in calls per second.
func WithRate(perSec float64) Option {
	return func(e *Engine) {
		e.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithRetryConfig overrides the retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// NewEngine creates an extraction engine bound to one model.
func NewEngine(client anthropic.Client, model string, opts ...Option) *Engine {
	e := &Engine{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(0.5), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.retry.ShouldRetry = func(err error) bool {
		return anthropic.IsRetryable(err) || resilience.IsTransient(err)
	}
	e.retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	return e
}

// Extract runs the spec against the document and returns the validated JSON
// object. Transient API failures are retried with backoff; a response that
// is not a JSON object with the spec's required keys is a
// MalformedExtractionError, which is never retried.
func (e *Engine) Extract(ctx context.Context, doc Document, spec PromptSpec) (json.RawMessage, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: spec.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(spec.System),
			Messages: []anthropic.Message{
				anthropic.UserMessage(
					anthropic.TextBlock(spec.Instruction),
					anthropic.PDFBlock(doc.Data),
				),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	resp.Usage.LogCost(e.model, spec.Name)
	zap.L().Debug("extraction complete",
		zap.String("doc", doc.Name),
		zap.String("spec", spec.Name),
		zap.Duration("elapsed", time.Since(start)),
	)

	return validate(doc.Name, spec, resp.Text())
}

// validate applies the response hygiene rules: strip code fences, require a
// JSON object, require the spec's top-level keys.
func validate(docName string, spec PromptSpec, text string) (json.RawMessage, error) {
	cleaned := StripFences(text)
	if cleaned == "" {
		return nil, &resilience.MalformedExtractionError{Doc: docName, Reason: "empty response"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return nil, &resilience.MalformedExtractionError{
			Doc:    docName,
			Reason: "response is not a JSON object: " + err.Error(),
		}
	}
	for _, key := range spec.RequiredKeys {
		if _, ok := top[key]; !ok {
			return nil, &resilience.MalformedExtractionError{
				Doc:    docName,
				Reason: "missing required key " + key,
			}
		}
	}
	return json.RawMessage(cleaned), nil
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace. Models wrap JSON in fences often
// enough that this is part of the contract.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line, if any.
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
