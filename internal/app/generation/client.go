// Package generation talks to the generation backend on behalf of the
// conversation: data analysis on the reasoning model, dashboard synthesis
// and edits on the coding model. Transient overload is retried with
// exponential backoff; unusable responses fall back to deterministic output
// where a fallback exists.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

type Client struct {
	backend domain.GenerationBackend
	retry   RetryPolicy
	metrics *observability.Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(backend domain.GenerationBackend, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		retry:   DefaultRetryPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call sends one prompt through the retry policy.
func (c *Client) call(ctx context.Context, model domain.ModelKind, prompt domain.Prompt) (string, error) {
	log := observability.LoggerFromContext(ctx).With("model", model)

	policy := c.retry
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("backend overloaded, retrying",
			"attempt", attempt+1,
			"max_retries", policy.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err)
		c.metrics.IncRetry(string(model))
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}

	return Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return c.backend.Generate(ctx, model, prompt)
	})
}

func (c *Client) observe(op string, start time.Time, outcome string) {
	c.metrics.ObserveGeneration(op, outcome, c.now().Sub(start))
}

// Analyze describes the uploaded files. It only fails for an empty batch:
// any backend or parsing failure produces FallbackAnalysis instead.
func (c *Client) Analyze(ctx context.Context, files []domain.UploadedFile) (domain.DataAnalysis, error) {
	if len(files) == 0 {
		return domain.DataAnalysis{}, domain.ErrNoFiles
	}
	start := c.now()
	log := observability.LoggerFromContext(ctx).With("op", "analyze", "files", len(files))

	text, err := c.call(ctx, domain.ModelReasoning, buildAnalysisPrompt(files))
	if err != nil {
		log.Error("analysis call failed, using fallback analysis", "error", err)
		return c.fallbackAnalysis(files, start), nil
	}

	var analysis domain.DataAnalysis
	if err := DecodeStructured(text, &analysis); err != nil {
		log.Warn("analysis response unusable, using fallback analysis", "error", err)
		return c.fallbackAnalysis(files, start), nil
	}
	if strings.TrimSpace(analysis.Summary) == "" && len(analysis.Columns) == 0 {
		log.Warn("analysis response empty, using fallback analysis")
		return c.fallbackAnalysis(files, start), nil
	}

	normalizeAnalysis(&analysis)
	c.observe("analyze", start, "ok")
	log.Info("analysis completed", "columns", len(analysis.Columns), "rows", analysis.RowCountEstimate)
	return analysis, nil
}

func (c *Client) fallbackAnalysis(files []domain.UploadedFile, start time.Time) domain.DataAnalysis {
	c.metrics.IncFallback("analyze")
	c.observe("analyze", start, "fallback")
	return FallbackAnalysis(files)
}

func normalizeAnalysis(a *domain.DataAnalysis) {
	a.Summary = strings.TrimSpace(a.Summary)
	if a.Columns == nil {
		a.Columns = []string{}
	}
	if a.Suggestions == nil {
		a.Suggestions = []string{}
	}
	if a.KeyInsights == nil {
		a.KeyInsights = []string{}
	}
	if a.RowCountEstimate < 0 {
		a.RowCountEstimate = 0
	}
}

// Synthesize generates the dashboard document. When the backend cannot
// deliver a structurally valid document the templated FallbackDocument is
// returned with Kind DocumentFallback.
func (c *Client) Synthesize(
	ctx context.Context,
	analysis domain.DataAnalysis,
	scope domain.Scope,
	brief string,
	files []domain.UploadedFile,
) (domain.GeneratedDocument, error) {
	start := c.now()
	log := observability.LoggerFromContext(ctx).With("op", "synthesize", "scope", scope)

	data, err := recordsJSON(files)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}

	text, err := c.call(ctx, domain.ModelCoding, buildSynthesisPrompt(analysis, scope, brief, data))
	if err != nil {
		log.Error("synthesis call failed, using fallback dashboard", "error", err)
		return c.fallbackDocument(analysis, start), nil
	}

	body, err := CleanDocument(text)
	if err != nil {
		log.Warn("synthesis response unusable, using fallback dashboard", "error", err)
		return c.fallbackDocument(analysis, start), nil
	}

	title, description := ExtractMetadata(body)
	c.observe("synthesize", start, "ok")
	log.Info("dashboard synthesized", "title", title, "bytes", len(body))

	return domain.GeneratedDocument{
		Kind:        domain.DocumentValid,
		Body:        body,
		Title:       title,
		Description: description,
	}, nil
}

func (c *Client) fallbackDocument(analysis domain.DataAnalysis, start time.Time) domain.GeneratedDocument {
	c.metrics.IncFallback("synthesize")
	c.observe("synthesize", start, "fallback")
	return FallbackDocument(analysis)
}

// EditElement asks for a replacement document in which only the element
// addressed by ref changed. There is no fallback: any failure is returned.
func (c *Client) EditElement(
	ctx context.Context,
	document string,
	ref domain.ElementRef,
	request string,
) (domain.GeneratedDocument, error) {
	if strings.TrimSpace(document) == "" {
		return domain.GeneratedDocument{}, domain.ErrNoDocument
	}
	return c.rewrite(ctx, "edit_element", buildEditPrompt(document, ref, request))
}

// Revise asks for a whole-document change. Same failure semantics as
// EditElement.
func (c *Client) Revise(
	ctx context.Context,
	document string,
	analysis *domain.DataAnalysis,
	request string,
) (domain.GeneratedDocument, error) {
	if strings.TrimSpace(document) == "" {
		return domain.GeneratedDocument{}, domain.ErrNoDocument
	}
	return c.rewrite(ctx, "revise", buildRevisePrompt(document, analysis, request))
}

func (c *Client) rewrite(ctx context.Context, op string, prompt domain.Prompt) (domain.GeneratedDocument, error) {
	start := c.now()
	log := observability.LoggerFromContext(ctx).With("op", op)

	text, err := c.call(ctx, domain.ModelCoding, prompt)
	if err != nil {
		c.observe(op, start, outcomeOf(err))
		log.Error("rewrite call failed", "error", err)
		return domain.GeneratedDocument{}, fmt.Errorf("%s: %w", op, err)
	}

	body, err := CleanDocument(text)
	if err != nil {
		c.observe(op, start, "malformed")
		log.Warn("rewrite response unusable", "error", err)
		return domain.GeneratedDocument{}, fmt.Errorf("%s: %w", op, err)
	}

	title, description := ExtractMetadata(body)
	c.observe(op, start, "ok")
	return domain.GeneratedDocument{
		Kind:        domain.DocumentValid,
		Body:        body,
		Title:       title,
		Description: description,
	}, nil
}

func outcomeOf(err error) string {
	if errors.Is(err, domain.ErrBackendOverloaded) {
		return "overloaded"
	}
	return "error"
}
