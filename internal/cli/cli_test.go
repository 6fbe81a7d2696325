package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/usecase"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := BuildCLI(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(configPathEnv, "")
	t.Setenv("LEDGER_BACKEND", "file")
	t.Setenv("STATE_FILE_PATH", filepath.Join(dir, "processing_state.json"))
	t.Setenv("SINK_BACKEND", config.SinkSheets)
	t.Setenv("SPREADSHEET_ID", "")
	t.Setenv("LLM_PROVIDER", config.ProviderOpenAI)
	return dir
}

func TestStatusAndReset(t *testing.T) {
	dir := isolateEnv(t)

	out, err := execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No previous session.")

	ctx := context.Background()
	led := ledger.New(ledger.NewFileStore(filepath.Join(dir, "processing_state.json")))
	led.SetSinceDate("2026-01-01")
	led.MarkProcessed(ctx, "m1")
	led.MarkProcessed(ctx, "m2")
	require.NoError(t, led.Save(ctx))

	out, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-01-01")
	assert.Contains(t, out, "Tracked ids")

	out, err = execute(t, "", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Processing ledger cleared.")

	out, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No previous session.")
}

func TestRunRequiresSince(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "", "run")
	assert.ErrorContains(t, err, `"since"`)
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "", "run", "--since", "2026-01-01")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunRejectsInvertedWindow(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "", "run", "--since", "2026-02-01", "--until", "2026-01-01", "--spreadsheet-id", "abc")
	assert.ErrorContains(t, err, "must be after")
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-03-04", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)

	zero, err := parseDate("", time.UTC)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = parseDate("03/04/2026", time.UTC)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestApplyRunOverrides(t *testing.T) {
	var cfg config.Config
	applyRunOverrides(&cfg, runFlags{
		spreadsheetID: "https://docs.google.com/spreadsheets/d/sheet-123/edit#gid=0",
		sheetName:     "Tracker",
		model:         "llama3",
	})
	assert.Equal(t, "sheet-123", cfg.Sink.Sheets.SpreadsheetID)
	assert.Equal(t, "Tracker", cfg.Sink.Sheets.SheetName)
	assert.Equal(t, "llama3", cfg.LLM.Model)
}

func TestChooseRunPrompter(t *testing.T) {
	opts := &globalOptions{stdin: strings.NewReader(""), stdout: &bytes.Buffer{}}

	p, err := chooseRunPrompter(opts, runFlags{yes: true, onSinceChange: "reset"})
	require.NoError(t, err)
	assert.Equal(t, usecase.PolicyPrompter{Resume: true, OnSinceChange: usecase.SinceReset}, p)

	_, err = chooseRunPrompter(opts, runFlags{yes: true, onSinceChange: "maybe"})
	assert.Error(t, err)

	p, err = chooseRunPrompter(opts, runFlags{})
	require.NoError(t, err)
	assert.IsType(t, &terminalPrompter{}, p)
}

func TestTerminalPrompter_ConfirmResume(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"y\n", true},
		{"maybe\nn\n", false},
		{"", true},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		p := newTerminalPrompter(strings.NewReader(tc.input), &out)
		got, err := p.ConfirmResume(ctx, ledger.Progress{SinceDate: "2026-01-01", Tracked: 3})
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.Contains(t, out.String(), "A previous session was found.")
	}
}

func TestTerminalPrompter_ResolveSinceChange(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		input string
		want  usecase.SinceChoice
	}{
		{"1\n", usecase.SinceContinue},
		{"reset\n", usecase.SinceReset},
		{"9\n3\n", usecase.SinceAbort},
		{"", usecase.SinceAbort},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		p := newTerminalPrompter(strings.NewReader(tc.input), &out)
		got, err := p.ResolveSinceChange(ctx, "2026-01-01", "2026-02-01")
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.Contains(t, out.String(), "2026-02-01")
	}
}

func TestTerminalPrompter_CancelInterruptsPendingQuestion(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	p := newTerminalPrompter(in, &out)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := p.ConfirmResume(ctx, ledger.Progress{SinceDate: "2026-01-01"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt kept waiting for input after cancellation")
	}
}

func TestTerminalPrompter_AbandonedReadIsReused(t *testing.T) {
	in, w := io.Pipe()

	var out bytes.Buffer
	p := newTerminalPrompter(in, &out)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.readLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, p.pending)

	go func() {
		_, _ = w.Write([]byte("n\n"))
		_ = w.Close()
	}()
	got, err := p.ConfirmResume(context.Background(), ledger.Progress{})
	require.NoError(t, err)
	assert.False(t, got)
}
