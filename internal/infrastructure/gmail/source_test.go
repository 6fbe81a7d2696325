package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/ports"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	if got := BuildQuery("primary", since, until); got != "category:primary after:2025/12/01 before:2025/12/31" {
		t.Fatalf("unexpected query %q", got)
	}
	if got := BuildQuery("primary", since, time.Time{}); got != "category:primary after:2025/12/01" {
		t.Fatalf("unexpected open-ended query %q", got)
	}
}

func TestExtractTextPrefersPlainInNestedParts(t *testing.T) {
	t.Parallel()

	payload := messagePart{
		MimeType: "multipart/mixed",
		Parts: []messagePart{
			{MimeType: "text/html", Body: partBody{Data: b64("<p>html version</p>")}},
			{
				MimeType: "multipart/alternative",
				Parts: []messagePart{
					{MimeType: "text/plain", Body: partBody{Data: b64("Thank you for applying to Acme.")}},
				},
			},
		},
	}

	if got := extractText(payload); got != "Thank you for applying to Acme." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractTextFallsBackToHTML(t *testing.T) {
	t.Parallel()

	html := `<html><head><style>p{color:red}</style></head><body>
	<p>Hi Sam,</p><p>We would like to invite you to an <b>interview</b>.</p>
	<script>track()</script></body></html>`
	payload := messagePart{
		MimeType: "multipart/alternative",
		Parts:    []messagePart{{MimeType: "text/html", Body: partBody{Data: b64(html)}}},
	}

	got := extractText(payload)
	if !strings.Contains(got, "Hi Sam,") || !strings.Contains(got, "invite you to an interview.") {
		t.Fatalf("unexpected text %q", got)
	}
	if strings.Contains(got, "track()") || strings.Contains(got, "color:red") {
		t.Fatalf("script/style leaked into text: %q", got)
	}
}

func TestDecodeAcceptsPaddedAndUnpadded(t *testing.T) {
	t.Parallel()

	padded := base64.URLEncoding.EncodeToString([]byte("ab"))
	if decode(padded) != "ab" || decode(b64("ab")) != "ab" {
		t.Fatal("decode failed on padded or unpadded input")
	}
}

type fakeGmail struct {
	pages    map[string]map[string]any
	messages map[string]map[string]any

	mu      sync.Mutex
	fetched []string
}

func (f *fakeGmail) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeGmail) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/users/me/profile":
			_ = json.NewEncoder(w).Encode(map[string]string{"emailAddress": "me@example.com"})
		case r.URL.Path == "/users/me/messages":
			if q := r.URL.Query().Get("q"); !strings.HasPrefix(q, "category:primary after:2026/01/01") {
				t.Errorf("unexpected query %q", q)
			}
			_ = json.NewEncoder(w).Encode(f.pages[r.URL.Query().Get("pageToken")])
		case strings.HasPrefix(r.URL.Path, "/users/me/messages/"):
			id := strings.TrimPrefix(r.URL.Path, "/users/me/messages/")
			f.mu.Lock()
			f.fetched = append(f.fetched, id)
			f.mu.Unlock()
			msg, ok := f.messages[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(msg)
		default:
			http.NotFound(w, r)
		}
	})
}

func gmailMessage(id, subject, body string, sent time.Time) map[string]any {
	return map[string]any{
		"id":           id,
		"internalDate": strconvMillis(sent),
		"payload": map[string]any{
			"mimeType": "text/plain",
			"headers": []map[string]string{
				{"name": "Subject", "value": subject},
				{"name": "From", "value": "Careers <jobs@example.com>"},
			},
			"body": map[string]any{"data": b64(body)},
		},
	}
}

func strconvMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func newTestSource(t *testing.T, f *fakeGmail) (*Source, func()) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	src := NewSource(srv.Client(), config.GmailConfig{BaseURL: srv.URL, Category: "primary", PageSize: 2}, nil)
	return src, srv.Close
}

func collect(t *testing.T, src *Source, q ports.Query) []domain.Message {
	t.Helper()
	var out []domain.Message
	for msg, err := range src.Messages(context.Background(), q) {
		if err != nil {
			t.Fatalf("Messages yielded error: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func TestSourceMessagesPaginatesAndFilters(t *testing.T) {
	t.Parallel()

	sent := time.Date(2026, 1, 5, 15, 4, 0, 0, time.UTC)
	f := &fakeGmail{
		pages: map[string]map[string]any{
			"":   {"messages": []map[string]string{{"id": "a"}, {"id": "b"}}, "nextPageToken": "p2"},
			"p2": {"messages": []map[string]string{{"id": "c"}}},
		},
		messages: map[string]map[string]any{
			"a": gmailMessage("a", "Application received", "Thanks for applying", sent),
			"c": gmailMessage("c", "Interview", "Let's talk", sent),
		},
	}
	src, stop := newTestSource(t, f)
	defer stop()

	got := collect(t, src, ports.Query{
		Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Filter: func(ids []string) []string {
			out := ids[:0:0]
			for _, id := range ids {
				if id != "b" {
					out = append(out, id)
				}
			}
			return out
		},
	})

	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected messages %+v", got)
	}
	if got[0].Subject != "Application received" || got[0].Body != "Thanks for applying" {
		t.Fatalf("unexpected parsed message %+v", got[0])
	}
	if got[0].Link != "https://mail.google.com/mail/u/0/#inbox/a" {
		t.Fatalf("unexpected link %s", got[0].Link)
	}
	if !got[0].SentAt.Equal(sent) {
		t.Fatalf("unexpected sent time %s", got[0].SentAt)
	}
	for _, id := range f.fetchedIDs() {
		if id == "b" {
			t.Fatal("filtered message was fetched")
		}
	}
}

func TestSourceMessagesHonoursMax(t *testing.T) {
	t.Parallel()

	sent := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	f := &fakeGmail{
		pages: map[string]map[string]any{
			"": {"messages": []map[string]string{{"id": "a"}, {"id": "b"}}, "nextPageToken": "p2"},
		},
		messages: map[string]map[string]any{
			"a": gmailMessage("a", "s", "body a", sent),
			"b": gmailMessage("b", "s", "body b", sent),
		},
	}
	src, stop := newTestSource(t, f)
	defer stop()

	got := collect(t, src, ports.Query{Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Max: 1})
	if fetched := f.fetchedIDs(); len(got) != 1 || len(fetched) != 1 {
		t.Fatalf("expected a single message, got %d (fetched %v)", len(got), fetched)
	}
}

func TestSourceMessagesStopsOnFetchError(t *testing.T) {
	t.Parallel()

	f := &fakeGmail{
		pages: map[string]map[string]any{
			"": {"messages": []map[string]string{{"id": "missing"}}},
		},
	}
	src, stop := newTestSource(t, f)
	defer stop()

	var errs int
	for _, err := range src.Messages(context.Background(), ports.Query{Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}) {
		if err != nil {
			errs++
		}
	}
	if errs != 1 {
		t.Fatalf("expected one error, got %d", errs)
	}
}

func TestSourceVerify(t *testing.T) {
	t.Parallel()

	src, stop := newTestSource(t, &fakeGmail{})
	defer stop()

	if err := src.Verify(context.Background()); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}
