package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/infrastructure/transport"
	"ApplicationScanner/internal/ports"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	// Telegram rejects messages longer than this many characters.
	maxMessageLen = 4096
)

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	baseURL   string
	botToken  string
	chatID    string
	transport *transport.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// Option customises a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.transport = transport.New(c, transport.Options{MaxRetries: 2}) }
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL:  defaultBaseURL,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.transport == nil {
		n.transport = transport.New(&http.Client{Timeout: 5 * time.Second}, transport.Options{MaxRetries: 2})
	}
	return n
}

// Name identifies the adapter in prerequisite checks.
func (n *Notifier) Name() string {
	return "telegram"
}

// Verify calls getMe to confirm the bot token.
func (n *Notifier) Verify(ctx context.Context) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	_, err := n.call(ctx, "getMe", nil)
	return err
}

// Notify posts a plain-text message to the chat.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if r := []rune(text); len(r) > maxMessageLen {
		text = string(r[:maxMessageLen-1]) + "…"
	}

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	if _, err := n.call(ctx, "sendMessage", form); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

func (n *Notifier) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)
	body, err := n.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("telegram error: %s", resp.Description)
	}
	return resp.Result, nil
}
