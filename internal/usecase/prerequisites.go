package usecase

import (
	"context"
	"errors"
	"fmt"

	"ApplicationScanner/internal/ports"
)

// CheckResult is the outcome of one prerequisite check.
type CheckResult struct {
	Name string
	Err  error
}

// OK reports whether the check passed.
func (r CheckResult) OK() bool {
	return r.Err == nil
}

// CheckPrerequisites runs every verifier in order, stopping early only when ctx is done.
func CheckPrerequisites(ctx context.Context, verifiers ...ports.Verifier) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(verifiers))
	var errs []error
	for _, v := range verifiers {
		if v == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		err := v.Verify(ctx)
		results = append(results, CheckResult{Name: v.Name(), Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Name(), err))
		}
	}
	return results, errors.Join(errs...)
}

// Verifiers collects the adapters that can check their prerequisites.
func Verifiers(adapters ...any) []ports.Verifier {
	var out []ports.Verifier
	for _, a := range adapters {
		if v, ok := a.(ports.Verifier); ok {
			out = append(out, v)
		}
	}
	return out
}
