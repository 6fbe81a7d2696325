package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/infrastructure/transport"
	"ApplicationScanner/internal/ports"
)

// OpenAIClient implements ports.Extractor against OpenAI-compatible chat completion
// APIs. The default endpoint is a local Ollama server.
type OpenAIClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxBodyChars int
	transport    *transport.Client
	logger       *slog.Logger
}

var (
	_ ports.Extractor = (*OpenAIClient)(nil)
	_ ports.Verifier  = (*OpenAIClient)(nil)
	_ Backend         = (*OpenAIClient)(nil)
)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.LLMConfig, logger *slog.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		maxBodyChars: cfg.MaxBodyChars,
		transport: transport.New(&http.Client{Timeout: timeout}, transport.Options{
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        2,
		}),
		logger: logger,
	}
}

// Name identifies the backend in the registry and in prerequisite checks.
func (c *OpenAIClient) Name() string {
	return config.ProviderOpenAI
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract asks the model for company, role and status of msg.
func (c *OpenAIClient) Extract(ctx context.Context, msg domain.Message) (domain.Extraction, error) {
	answer, err := c.complete(ctx, BuildPrompt(msg, c.maxBodyChars))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("%w: message %s: %w", ports.ErrExtraction, msg.ID, err)
	}

	ext, ok := ParseResponse(answer)
	if !ok {
		c.logger.Warn("model answer is not valid JSON, using defaults", "message_id", msg.ID)
		c.logger.Debug("raw model answer", "message_id", msg.ID, "answer", answer)
	}
	return ext, nil
}

// Verify sends a trivial prompt to confirm the endpoint and model respond.
func (c *OpenAIClient) Verify(ctx context.Context) error {
	_, err := c.complete(ctx, `Respond with: {"test": "ok"}`)
	if err != nil {
		return fmt.Errorf("model %s at %s: %w", c.model, c.endpoint, err)
	}
	return nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", errors.New("openai client is nil")
	}
	if c.endpoint == "" || c.model == "" {
		return "", errors.New("openai client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	raw, err := c.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a data extraction assistant. Always respond with valid JSON only."
	}
	return prompt
}
