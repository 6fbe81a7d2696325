package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type messagePart struct {
	MimeType string        `json:"mimeType"`
	Headers  []header      `json:"headers"`
	Body     partBody      `json:"body"`
	Parts    []messagePart `json:"parts"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

var blankLinesExpr = regexp.MustCompile(`\n{3,}`)

// extractText returns the message text, preferring text/plain anywhere in the part tree
// and falling back to text/html converted to plain text.
func extractText(p messagePart) string {
	if text := findPart(p, "text/plain"); text != "" {
		return strings.TrimSpace(text)
	}
	if html := findPart(p, "text/html"); html != "" {
		return htmlToText(html)
	}
	// single-part messages without a useful mime type
	if len(p.Parts) == 0 && p.Body.Data != "" {
		raw := decode(p.Body.Data)
		if strings.Contains(strings.ToLower(p.MimeType), "html") {
			return htmlToText(raw)
		}
		return strings.TrimSpace(raw)
	}
	return ""
}

func findPart(p messagePart, mime string) string {
	if strings.EqualFold(p.MimeType, mime) && p.Body.Data != "" {
		return decode(p.Body.Data)
	}
	for _, child := range p.Parts {
		if text := findPart(child, mime); text != "" {
			return text
		}
	}
	return ""
}

func decode(data string) string {
	// Gmail uses base64url; padding is not always present
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(raw), "")
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	text := strings.Join(out, "\n")
	return strings.TrimSpace(blankLinesExpr.ReplaceAllString(text, "\n\n"))
}

func headerValue(headers []header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
