package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Generator is the generation interface consumed by the pipeline and the chat
// orchestrator. Implementations may retry transient failures internally.
type Generator interface {
	// GenerateText returns unconstrained text. An empty string is not an error
	// at this level; callers decide whether empty content is acceptable.
	GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error)
	// GenerateStructured returns JSON constrained to schema.
	GenerateStructured(ctx context.Context, systemPrompt, prompt string, schema *genai.Schema) ([]byte, error)
}

type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

type LLMConfig struct {
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	MaxRetries     int
	RetryDelay     time.Duration
	Timeout        time.Duration
}

// LLMService owns the Gemini client for the lifetime of the process.
type LLMService struct {
	client *genai.Client
	cfg    LLMConfig
	logger *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey string, cfg LLMConfig, logger *zap.Logger) (*LLMService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, cfg: cfg, logger: logger}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing GenAI client", zap.Error(err))
	} else {
		s.logger.Info("GenAI client closed")
	}
}

func (s *LLMService) GetEmbedding(ctx context.Context, text string) (embedding []float32, err error) {
	start := time.Now()
	defer func() { observeLLMRequest("embedding", start, err) }()

	em := s.client.EmbeddingModel(s.cfg.EmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) model(systemPrompt string) *genai.GenerativeModel {
	model := s.client.GenerativeModel(s.cfg.ChatModel)
	model.SetTemperature(s.cfg.Temperature)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	return model
}

func (s *LLMService) GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error) {
	model := s.model(systemPrompt)
	return s.generate(ctx, "text", model, prompt)
}

func (s *LLMService) GenerateStructured(ctx context.Context, systemPrompt, prompt string, schema *genai.Schema) ([]byte, error) {
	if schema == nil {
		return nil, errors.New("structured generation needs a schema")
	}
	model := s.model(systemPrompt)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = schema

	text, err := s.generate(ctx, "structured", model, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(text), nil
}

// generate calls the model, retrying up to MaxRetries times with exponential
// backoff. Blocked prompts and cancelled contexts are not retried.
func (s *LLMService) generate(ctx context.Context, kind string, model *genai.GenerativeModel, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := float64(s.cfg.RetryDelay) * math.Pow(2, float64(attempt-1))
			delay += delay * 0.1 * (rand.Float64()*2 - 1)
			s.logger.Warn("retrying gemini request",
				zap.String("kind", kind), zap.Int("attempt", attempt), zap.Duration("delay", time.Duration(delay)), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(delay)):
			}
		}

		start := time.Now()
		text, err := s.generateOnce(ctx, model, prompt)
		observeLLMRequest(kind, start, err)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var blocked *genai.BlockedError
		if errors.As(err, &blocked) || ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("gemini %s request failed: %w", kind, lastErr)
}

func (s *LLMService) generateOnce(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
