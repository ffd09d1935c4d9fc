package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/FACorreiaa/go-comment-suggestions/config"
)

var (
	ErrNoAPIKey        = errors.New("no completion API key configured")
	ErrEmptyCompletion = errors.New("completion returned no text")
)

// CompletionRequest is a single stateless prompt.
type CompletionRequest struct {
	Prompt string
	// Model overrides the configured model when set to anything but "default".
	Model string
	// APIKey replaces the service key for this call (user supplied key).
	APIKey string
}

// Completer is the completion endpoint.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

var _ Completer = (*AIClient)(nil)

type AIClient struct {
	logger      *slog.Logger
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewAIClient builds the Gemini client. A missing service key is not fatal:
// calls then only succeed with a per-user key.
func NewAIClient(ctx context.Context, apiKey string, gen config.GenerationConfig, logger *slog.Logger) (*AIClient, error) {
	ai := &AIClient{
		logger:      logger,
		model:       gen.Model,
		temperature: gen.Temperature,
		timeout:     gen.Timeout,
	}
	if ai.timeout <= 0 {
		ai.timeout = 30 * time.Second
	}
	if apiKey == "" {
		logger.Warn("Gemini API key not set, only custom user keys will work")
		return ai, nil
	}
	client, err := newGenaiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	ai.client = client
	return ai, nil
}

func newGenaiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

func (ai *AIClient) resolveModel(override string) string {
	if override == "" || override == "default" {
		return ai.model
	}
	return override
}

// Complete sends one prompt under the configured deadline and returns the
// concatenated text of the first candidate.
func (ai *AIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := ai.resolveModel(req.Model)
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "Complete", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Bool("llm.custom_key", req.APIKey != ""),
		attribute.Int("llm.prompt_length", len(req.Prompt)),
	))
	defer span.End()

	client := ai.client
	if req.APIKey != "" {
		c, err := newGenaiClient(ctx, req.APIKey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "client init failed")
			return "", err
		}
		client = c
	}
	if client == nil {
		span.SetStatus(codes.Error, "no api key")
		return "", ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, ai.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](ai.temperature)}
	result, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		ai.logger.WarnContext(ctx, "Completion call failed", slog.String("model", model), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		span.SetStatus(codes.Error, "empty completion")
		return "", ErrEmptyCompletion
	}
	span.SetStatus(codes.Ok, "completed")
	return text, nil
}
