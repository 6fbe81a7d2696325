package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/ledger"
)

// SinceChoice is the user's answer when the date filter changed between runs.
type SinceChoice int

const (
	// SinceContinue keeps the processed ids and adopts the new date.
	SinceContinue SinceChoice = iota
	// SinceReset discards the ledger and starts over with the new date.
	SinceReset
	// SinceAbort stops before anything is processed.
	SinceAbort
)

func (c SinceChoice) String() string {
	switch c {
	case SinceReset:
		return "reset"
	case SinceAbort:
		return "abort"
	default:
		return "continue"
	}
}

// ParseSinceChoice accepts continue, reset or abort.
func ParseSinceChoice(value string) (SinceChoice, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "continue", "1":
		return SinceContinue, nil
	case "reset", "2":
		return SinceReset, nil
	case "abort", "3":
		return SinceAbort, nil
	}
	return SinceAbort, fmt.Errorf("unknown choice %q (want continue, reset or abort)", value)
}

// Prompter decides how a new run relates to a previous session.
type Prompter interface {
	ConfirmResume(ctx context.Context, progress ledger.Progress) (bool, error)
	ResolveSinceChange(ctx context.Context, previous, current string) (SinceChoice, error)
}

// PolicyPrompter answers without asking; used for --yes and watch mode.
type PolicyPrompter struct {
	Resume        bool
	OnSinceChange SinceChoice
}

func (p PolicyPrompter) ConfirmResume(context.Context, ledger.Progress) (bool, error) {
	return p.Resume, nil
}

func (p PolicyPrompter) ResolveSinceChange(context.Context, string, string) (SinceChoice, error) {
	return p.OnSinceChange, nil
}

// Begin loads the ledger and settles how this run relates to the previous one.
// It reports false when the user chose to abort.
func (p *Pipeline) Begin(ctx context.Context, since time.Time, reset bool, prompter Prompter) (bool, error) {
	if p.ledger == nil {
		return false, ErrNotConfigured
	}
	if prompter == nil {
		prompter = PolicyPrompter{Resume: true, OnSinceChange: SinceAbort}
	}

	p.ledger.Load(ctx)
	if reset {
		p.resetLedger(ctx)
	}

	current := since.Format(domain.DateLayout)
	if p.ledger.HasPreviousSession() {
		previous := p.ledger.SinceDate()
		if previous != "" && previous != current {
			choice, err := prompter.ResolveSinceChange(ctx, previous, current)
			if err != nil {
				return false, fmt.Errorf("resolve since change: %w", err)
			}
			p.logger.Info("since date changed", "previous", previous, "current", current, "choice", choice.String())
			switch choice {
			case SinceAbort:
				return false, nil
			case SinceReset:
				p.resetLedger(ctx)
			}
		} else {
			resume, err := prompter.ConfirmResume(ctx, p.ledger.Progress())
			if err != nil {
				return false, fmt.Errorf("confirm resume: %w", err)
			}
			if !resume {
				p.resetLedger(ctx)
			} else {
				p.logger.Info("resuming previous session", "tracked", p.ledger.Progress().Tracked)
			}
		}
	}

	p.ledger.SetSinceDate(current)
	return true, nil
}

func (p *Pipeline) resetLedger(ctx context.Context) {
	if err := p.ledger.Reset(ctx); err != nil {
		p.logger.Warn("ledger reset incomplete", "error", err)
	}
}
