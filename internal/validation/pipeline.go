package validation

import (
	"context"
	"fmt"
	"strings"

	"tradeGate/internal/ports"
)

// Result is the outcome of a pipeline run.
type Result struct {
	Passed      bool
	FailedCheck string   // Name of the first failing check
	Reason      string   // Verbatim reason of the failing check
	Evaluated   []string // Names of the checks that ran, in order
}

// Pipeline runs an ordered list of checks and stops at the first failure.
type Pipeline struct {
	checks []Check
	logger ports.Logger
}

// NewPipeline builds a pipeline from check names. A nil order selects DefaultOrder;
// names listed in disabled are skipped.
func NewPipeline(policy Policy, order, disabled []string, logger ports.Logger) (*Pipeline, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for validation pipeline")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if order == nil {
		order = DefaultOrder
	}

	registry := builtins(policy)
	var errs []string
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		if _, ok := registry[name]; !ok {
			errs = append(errs, fmt.Sprintf("unknown disabled check %q", name))
		}
		off[name] = true
	}

	seen := make(map[string]bool, len(order))
	checks := make([]Check, 0, len(order))
	for _, name := range order {
		c, ok := registry[name]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("unknown check %q", name))
			continue
		case seen[name]:
			errs = append(errs, fmt.Sprintf("duplicate check %q", name))
			continue
		}
		seen[name] = true
		if !off[name] {
			checks = append(checks, c)
		}
	}
	if len(checks) == 0 {
		errs = append(errs, "at least one validation check must be enabled")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return &Pipeline{checks: checks, logger: logger}, nil
}

// Names returns the enabled checks in evaluation order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.checks))
	for i, c := range p.checks {
		names[i] = c.Name()
	}
	return names
}

// Run evaluates the checks in order. The first failure determines the result and
// no later check runs.
func (p *Pipeline) Run(ctx context.Context, in *Input) Result {
	res := Result{Evaluated: make([]string, 0, len(p.checks))}
	for _, c := range p.checks {
		res.Evaluated = append(res.Evaluated, c.Name())
		passed, reason := c.Check(in)
		if !passed {
			res.FailedCheck = c.Name()
			res.Reason = reason
			p.logger.Info(ctx, "Validation failed", map[string]interface{}{
				"symbol": in.Symbol,
				"check":  c.Name(),
				"reason": reason,
			})
			return res
		}
	}

	res.Passed = true
	p.logger.Debug(ctx, "Validation passed", map[string]interface{}{
		"symbol": in.Symbol,
		"checks": len(p.checks),
	})
	return res
}
