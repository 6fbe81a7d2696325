package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/ports"
)

const anthropicMaxTokens = 256

// AnthropicClient implements ports.Extractor with the Anthropic Messages API.
type AnthropicClient struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	maxBodyChars int
	limiter      *rate.Limiter
	logger       *slog.Logger
}

var (
	_ ports.Extractor = (*AnthropicClient)(nil)
	_ ports.Verifier  = (*AnthropicClient)(nil)
	_ Backend         = (*AnthropicClient)(nil)
)

// NewAnthropicClient builds a client from configuration. Extra options are applied
// after the configured ones.
func NewAnthropicClient(cfg config.LLMConfig, logger *slog.Logger, opts ...option.RequestOption) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(2)}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	c := &AnthropicClient{
		client:       anthropic.NewClient(reqOpts...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxBodyChars: cfg.MaxBodyChars,
		logger:       logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Name identifies the backend in the registry and in prerequisite checks.
func (c *AnthropicClient) Name() string {
	return config.ProviderAnthropic
}

// Extract asks the model for company, role and status of msg.
func (c *AnthropicClient) Extract(ctx context.Context, msg domain.Message) (domain.Extraction, error) {
	answer, err := c.complete(ctx, BuildPrompt(msg, c.maxBodyChars))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("%w: message %s: %w", ports.ErrExtraction, msg.ID, err)
	}

	ext, ok := ParseResponse(answer)
	if !ok {
		c.logger.Warn("model answer is not valid JSON, using defaults", "message_id", msg.ID)
	}
	return ext, nil
}

// Verify sends a trivial prompt to confirm the key and model work.
func (c *AnthropicClient) Verify(ctx context.Context) error {
	if _, err := c.complete(ctx, `Respond with: {"test": "ok"}`); err != nil {
		return fmt.Errorf("model %s: %w", c.model, err)
	}
	return nil
}

func (c *AnthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	if c.model == "" {
		return "", errors.New("anthropic client misconfigured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: safePrompt(c.systemPrompt)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("message contained no text")
	}
	return b.String(), nil
}
