// Package sheets stores applications as rows of a Google Sheets tab.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/infrastructure/transport"
	"ApplicationScanner/internal/ports"
	"ApplicationScanner/internal/status"
)

const (
	defaultBaseURL  = "https://sheets.googleapis.com/v4"
	defaultTitle    = "Job Applications"
	titleDateLayout = "01/02/2006"
)

// Header is the first row of a fresh tab. Columns are fixed: A company, B status,
// C role, D submission date, E message link.
var Header = []string{"Company", "Status", "Role", "Date Applied", "Email Link"}

var titleDateExpr = regexp.MustCompile(` - \d{2}/\d{2}/\d{4}$`)

// Sink implements ports.ApplicationSink against one spreadsheet tab.
type Sink struct {
	baseURL       string
	spreadsheetID string
	sheetName     string
	batchSize     int
	transport     *transport.Client
	logger        *slog.Logger
}

var (
	_ ports.ApplicationSink = (*Sink)(nil)
	_ ports.Verifier        = (*Sink)(nil)
	_ ports.Stamper         = (*Sink)(nil)
)

// NewSink wires an authorized HTTP client. Writes are paced to cfg.WritesPerMinute.
func NewSink(client *http.Client, cfg config.SheetsConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		batchSize:     cfg.BatchSize,
		transport: transport.New(client, transport.Options{
			RequestsPerSecond: float64(cfg.WritesPerMinute) / 60,
			Burst:             1,
		}),
		logger: logger,
	}
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}
	if s.sheetName == "" {
		s.sheetName = "Sheet1"
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	return s
}

// Name identifies the adapter in prerequisite checks.
func (s *Sink) Name() string {
	return "sheets"
}

type spreadsheet struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

// Verify confirms the spreadsheet is reachable and has the configured tab.
func (s *Sink) Verify(ctx context.Context) error {
	if s.spreadsheetID == "" {
		return errors.New("spreadsheet id is not configured")
	}
	meta, err := s.metadata(ctx)
	if err != nil {
		return err
	}
	tabs := make([]string, 0, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		if sh.Properties.Title == s.sheetName {
			s.logger.Debug("spreadsheet verified", "title", meta.Properties.Title, "tab", s.sheetName)
			return nil
		}
		tabs = append(tabs, sh.Properties.Title)
	}
	return fmt.Errorf("sheet tab %q not found (available: %s)", s.sheetName, strings.Join(tabs, ", "))
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

// ReadAll returns every data row below the header. Rows are numbered as the sheet
// numbers them, so the first data row is 2.
func (s *Sink) ReadAll(ctx context.Context) ([]domain.StoredApplication, error) {
	var vr valueRange
	if err := s.call(ctx, http.MethodGet, s.valuesURL(s.a1("A:E"), nil), nil, &vr); err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", s.sheetName, err)
	}
	if len(vr.Values) <= 1 {
		return nil, nil
	}

	out := make([]domain.StoredApplication, 0, len(vr.Values)-1)
	for i, row := range vr.Values[1:] {
		rowNum := int64(i + 2)
		company, role := cell(row, 0), cell(row, 2)
		if company == "" && role == "" {
			continue
		}
		st, ok := status.ParseLabel(cell(row, 1))
		if !ok && cell(row, 1) != "" {
			s.logger.Warn("unrecognised status label", "row", rowNum, "value", cell(row, 1))
		}
		out = append(out, domain.StoredApplication{
			Row:     rowNum,
			Company: company,
			Role:    role,
			Status:  st,
			Link:    cell(row, 4),
		})
	}
	return out, nil
}

// Append writes apps in order, batchSize rows per request. A header row is written
// first when the tab is empty. On error the count of rows already written is returned.
func (s *Sink) Append(ctx context.Context, apps []domain.Application) (int, error) {
	if len(apps) == 0 {
		return 0, nil
	}
	if err := s.ensureHeader(ctx); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(apps); start += s.batchSize {
		end := min(start+s.batchSize, len(apps))
		rows := make([][]string, 0, end-start)
		for _, app := range apps[start:end] {
			rows = append(rows, toRow(app))
		}
		if err := s.appendRows(ctx, rows); err != nil {
			return written, fmt.Errorf("append rows %d-%d: %w", start+1, end, err)
		}
		written += len(rows)
		s.logger.Info("appended batch", "rows", len(rows), "written", written, "total", len(apps))
	}
	return written, nil
}

// Update rewrites the status and link cells of an existing row.
func (s *Sink) Update(ctx context.Context, row int64, st status.Status, link string) error {
	body := map[string]any{
		"valueInputOption": "USER_ENTERED",
		"data": []valueRange{
			{Range: s.a1(fmt.Sprintf("B%d", row)), Values: [][]string{{st.Label()}}},
			{Range: s.a1(fmt.Sprintf("E%d", row)), Values: [][]string{{link}}},
		},
	}
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values:batchUpdate", s.baseURL, url.PathEscape(s.spreadsheetID))
	if err := s.call(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	s.logger.Info("updated row", "row", row, "status", st.Label())
	return nil
}

// Stamp renames the spreadsheet so its title ends with " - MM/DD/YYYY", replacing an
// earlier stamp if one is present.
func (s *Sink) Stamp(ctx context.Context, at time.Time) error {
	meta, err := s.metadata(ctx)
	if err != nil {
		return err
	}
	title := StampTitle(meta.Properties.Title, at)

	body := map[string]any{
		"requests": []map[string]any{{
			"updateSpreadsheetProperties": map[string]any{
				"properties": map[string]string{"title": title},
				"fields":     "title",
			},
		}},
	}
	endpoint := fmt.Sprintf("%s/spreadsheets/%s:batchUpdate", s.baseURL, url.PathEscape(s.spreadsheetID))
	if err := s.call(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("rename spreadsheet: %w", err)
	}
	s.logger.Info("renamed spreadsheet", "title", title)
	return nil
}

// StampTitle returns title with its date suffix set to at.
func StampTitle(title string, at time.Time) string {
	if title == "" {
		title = defaultTitle
	}
	suffix := " - " + at.Format(titleDateLayout)
	if titleDateExpr.MatchString(title) {
		return titleDateExpr.ReplaceAllLiteralString(title, suffix)
	}
	return title + suffix
}

func (s *Sink) ensureHeader(ctx context.Context) error {
	var vr valueRange
	if err := s.call(ctx, http.MethodGet, s.valuesURL(s.a1("A1:E1"), nil), nil, &vr); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(vr.Values) > 0 {
		return nil
	}
	s.logger.Info("writing header row", "tab", s.sheetName)
	return s.appendRows(ctx, [][]string{Header})
}

func (s *Sink) appendRows(ctx context.Context, rows [][]string) error {
	params := url.Values{}
	params.Set("valueInputOption", "USER_ENTERED")
	params.Set("insertDataOption", "INSERT_ROWS")
	return s.call(ctx, http.MethodPost, s.valuesURL(s.a1("A:E")+":append", params), valueRange{Values: rows}, nil)
}

func (s *Sink) metadata(ctx context.Context) (spreadsheet, error) {
	params := url.Values{}
	params.Set("fields", "properties.title,sheets.properties.title")
	endpoint := fmt.Sprintf("%s/spreadsheets/%s?%s", s.baseURL, url.PathEscape(s.spreadsheetID), params.Encode())

	var meta spreadsheet
	if err := s.call(ctx, http.MethodGet, endpoint, nil, &meta); err != nil {
		return spreadsheet{}, fmt.Errorf("spreadsheet metadata: %w", err)
	}
	return meta, nil
}

func (s *Sink) a1(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(s.sheetName, "'", "''"), cells)
}

func (s *Sink) valuesURL(a1 string, params url.Values) string {
	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s", s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(a1))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (s *Sink) call(ctx context.Context, method, endpoint string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	body, err := s.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toRow(app domain.Application) []string {
	return []string{app.Company, app.Status.Label(), app.Role, app.SubmittedOn(), app.Link}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
