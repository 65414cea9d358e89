package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

type GeminiConfig struct {
	// APIKey selects the Gemini API backend; Project/Location select Vertex AI.
	APIKey   string
	Project  string
	Location string
	Vertex   bool

	ReasoningModel string
	CodingModel    string

	// Output token limits per logical model. Zero uses the defaults.
	ReasoningMaxTokens int32
	CodingMaxTokens    int32

	// RequestsPerSecond throttles calls client side. Zero disables it.
	RequestsPerSecond float64
}

// Default output token limits: gemini-2.0-flash caps output at 8192 tokens,
// gemini-2.5-pro at 65536.
const (
	DefaultReasoningMaxTokens int32 = 8192
	DefaultCodingMaxTokens    int32 = 65536
)

type GeminiClient struct {
	client    *genai.Client
	models    map[domain.ModelKind]string
	maxTokens map[domain.ModelKind]int32
	limiter   *rate.Limiter
}

// NewGeminiClient creates a GenerationBackend on Gemini, either through the
// Gemini API (API key) or through Vertex AI.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	if cfg.Vertex {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("%w: vertex needs project and location", domain.ErrBackendUnavailable)
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: missing Gemini API key", domain.ErrBackendUnavailable)
		}
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &GeminiClient{
		client: client,
		models: map[domain.ModelKind]string{
			domain.ModelReasoning: cfg.ReasoningModel,
			domain.ModelCoding:    cfg.CodingModel,
		},
		maxTokens: map[domain.ModelKind]int32{
			domain.ModelReasoning: orDefault(cfg.ReasoningMaxTokens, DefaultReasoningMaxTokens),
			domain.ModelCoding:    orDefault(cfg.CodingMaxTokens, DefaultCodingMaxTokens),
		},
		limiter: limiter,
	}, nil
}

// Generate implements domain.GenerationBackend.
func (g *GeminiClient) Generate(ctx context.Context, model domain.ModelKind, prompt domain.Prompt) (string, error) {
	name, ok := g.models[model]
	if !ok || name == "" {
		return "", fmt.Errorf("%w: no model configured for %q", domain.ErrBackendUnavailable, model)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("gemini rate limiter: %w", err)
		}
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)}

	res, err := g.client.Models.GenerateContent(ctx, name, contents, g.contentConfig(model, prompt))
	if err != nil {
		return "", classifyError(err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}

	return text, nil
}

func (g *GeminiClient) contentConfig(model domain.ModelKind, prompt domain.Prompt) *genai.GenerateContentConfig {
	temp := float32(0.7)
	if model == domain.ModelReasoning {
		temp = 0.2
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: g.maxTokens[model],
	}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if prompt.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func orDefault(v, def int32) int32 {
	if v > 0 {
		return v
	}
	return def
}

// classifyError maps provider overload onto domain.ErrBackendOverloaded.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE" {
			return fmt.Errorf("%w: %w", domain.ErrBackendOverloaded, err)
		}
	}
	return fmt.Errorf("gemini generate content: %w", err)
}
