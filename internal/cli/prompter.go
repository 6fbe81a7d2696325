package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/report"
	"ApplicationScanner/internal/usecase"
)

// terminalPrompter asks the questions on the terminal. End of input counts as the
// conservative answer: resume, or abort on a since-date change. A cancelled context
// ends a pending question without waiting for Enter.
type terminalPrompter struct {
	in      *bufio.Reader
	out     io.Writer
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

var _ usecase.Prompter = (*terminalPrompter)(nil)

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) ConfirmResume(ctx context.Context, progress ledger.Progress) (bool, error) {
	fmt.Fprintln(p.out, "A previous session was found.")
	report.Progress(p.out, progress)

	for {
		fmt.Fprint(p.out, "Resume from where it stopped? [Y/n]: ")
		answer, err := p.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "", "y", "yes":
			return true, nil
		case "n", "no":
			fmt.Fprintln(p.out, "Starting a fresh session.")
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

func (p *terminalPrompter) ResolveSinceChange(ctx context.Context, previous, current string) (usecase.SinceChoice, error) {
	fmt.Fprintf(p.out, "The previous session scanned mail since %s; this run asks for %s.\n", previous, current)
	fmt.Fprintln(p.out, "  1) continue  keep processed messages and use the new date")
	fmt.Fprintln(p.out, "  2) reset     forget processed messages and start over")
	fmt.Fprintln(p.out, "  3) abort     stop without processing anything")

	for {
		fmt.Fprint(p.out, "Choice [1-3]: ")
		answer, err := p.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return usecase.SinceAbort, nil
		}
		if err != nil {
			return usecase.SinceAbort, err
		}
		choice, err := usecase.ParseSinceChoice(answer)
		if err == nil {
			return choice, nil
		}
		fmt.Fprintln(p.out, err)
	}
}

func (p *terminalPrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// a read abandoned by cancellation is picked up by the next call
	if p.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
		p.pending = ch
	}

	var res lineResult
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case res = <-p.pending:
		p.pending = nil
	}

	if res.err != nil {
		if errors.Is(res.err, io.EOF) && res.line == "" {
			return "", io.EOF
		}
		if !errors.Is(res.err, io.EOF) {
			return "", fmt.Errorf("read answer: %w", res.err)
		}
	}
	return strings.TrimSpace(res.line), nil
}
