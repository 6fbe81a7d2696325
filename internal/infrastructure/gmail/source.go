// Package gmail reads job-related messages from a Gmail mailbox over the REST API.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/infrastructure/transport"
	"ApplicationScanner/internal/ports"
)

const (
	defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"
	linkPrefix     = "https://mail.google.com/mail/u/0/#inbox/"
	maxPageSize    = 500
)

// Source implements ports.MailSource over the Gmail REST API. The HTTP client passed
// in must already carry OAuth credentials.
type Source struct {
	baseURL   string
	user      string
	category  string
	pageSize  int
	transport *transport.Client
	logger    *slog.Logger
}

var (
	_ ports.MailSource = (*Source)(nil)
	_ ports.Verifier   = (*Source)(nil)
)

// NewSource wires an authorized HTTP client.
func NewSource(client *http.Client, cfg config.GmailConfig, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		user:     cfg.User,
		category: cfg.Category,
		pageSize: cfg.PageSize,
		transport: transport.New(client, transport.Options{
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             int(cfg.RequestsPerSecond),
		}),
		logger: logger,
	}
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}
	if s.user == "" {
		s.user = "me"
	}
	if s.pageSize <= 0 || s.pageSize > maxPageSize {
		s.pageSize = 100
	}
	return s
}

// Name identifies the adapter in prerequisite checks.
func (s *Source) Name() string {
	return "gmail"
}

// Verify reads the mailbox profile to confirm the token is valid.
func (s *Source) Verify(ctx context.Context) error {
	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := s.getJSON(ctx, s.userURL("profile", nil), &profile); err != nil {
		return fmt.Errorf("gmail profile: %w", err)
	}
	s.logger.Debug("gmail access verified", "mailbox", profile.EmailAddress)
	return nil
}

// BuildQuery renders the Gmail search expression for a date window.
func BuildQuery(category string, since, until time.Time) string {
	var parts []string
	if category != "" {
		parts = append(parts, "category:"+category)
	}
	if !since.IsZero() {
		parts = append(parts, "after:"+since.Format("2006/01/02"))
	}
	if !until.IsZero() {
		parts = append(parts, "before:"+until.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

type fullMessage struct {
	ID           string      `json:"id"`
	InternalDate string      `json:"internalDate"`
	Snippet      string      `json:"snippet"`
	Payload      messagePart `json:"payload"`
}

// Messages pages through the search results, drops ids rejected by q.Filter and fetches
// each remaining message in full. Iteration stops after q.Max yielded messages.
func (s *Source) Messages(ctx context.Context, q ports.Query) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		query := BuildQuery(s.category, q.Since, q.Until)
		s.logger.Info("listing messages", "query", query)

		yielded := 0
		pageToken := ""
		for {
			params := url.Values{}
			params.Set("q", query)
			params.Set("maxResults", strconv.Itoa(s.pageSize))
			if pageToken != "" {
				params.Set("pageToken", pageToken)
			}

			var page listResponse
			if err := s.getJSON(ctx, s.userURL("messages", params), &page); err != nil {
				yield(domain.Message{}, fmt.Errorf("list messages: %w", err))
				return
			}

			ids := make([]string, 0, len(page.Messages))
			for _, m := range page.Messages {
				ids = append(ids, m.ID)
			}
			listed := len(ids)
			if q.Filter != nil {
				ids = q.Filter(ids)
			}
			if skipped := listed - len(ids); skipped > 0 {
				s.logger.Debug("skipping already processed messages", "count", skipped)
			}

			for _, id := range ids {
				if q.Max > 0 && yielded >= q.Max {
					return
				}
				msg, err := s.fetch(ctx, id)
				if err != nil {
					yield(domain.Message{}, err)
					return
				}
				yielded++
				if !yield(msg, nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}
			pageToken = page.NextPageToken
		}
	}
}

func (s *Source) fetch(ctx context.Context, id string) (domain.Message, error) {
	params := url.Values{}
	params.Set("format", "full")

	var raw fullMessage
	if err := s.getJSON(ctx, s.userURL("messages/"+url.PathEscape(id), params), &raw); err != nil {
		return domain.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return s.toMessage(raw), nil
}

func (s *Source) toMessage(raw fullMessage) domain.Message {
	body := extractText(raw.Payload)
	if body == "" {
		body = raw.Snippet
	}
	return domain.Message{
		ID:      raw.ID,
		Subject: headerValue(raw.Payload.Headers, "Subject"),
		Sender:  headerValue(raw.Payload.Headers, "From"),
		Body:    body,
		Link:    linkPrefix + raw.ID,
		SentAt:  sentAt(raw),
	}
}

// sentAt prefers Gmail's internal timestamp and falls back to the Date header.
func sentAt(raw fullMessage) time.Time {
	if ms, err := strconv.ParseInt(raw.InternalDate, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if t, err := mail.ParseDate(headerValue(raw.Payload.Headers, "Date")); err == nil {
		return t
	}
	return time.Time{}
}

func (s *Source) userURL(path string, params url.Values) string {
	u := fmt.Sprintf("%s/users/%s/%s", s.baseURL, url.PathEscape(s.user), path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (s *Source) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := s.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
