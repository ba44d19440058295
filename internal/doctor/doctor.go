// Package doctor finds and repairs inconsistencies in the provenance
// metadata: legacy identifiers, broken date invariants, dangling or
// duplicated derivation pointers and a drifted activity catalog.
//
// Every check is read-only unless asked to fix. Checks only talk to the
// gateways, never to each other, and a fixed check reports valid when run
// again.
package doctor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"prov-go/internal/prov"
)

// Result is the outcome of one check.
type Result struct {
	// Valid is false when problems remain.
	Valid bool
	// HasManualFix is set when the problems cannot be fixed automatically.
	HasManualFix bool
	// Problems lists the ids of the offending entities.
	Problems []string
	// Report explains the problems for humans, or is empty.
	Report string
}

// Check is one named consistency check.
type Check interface {
	Name() string
	// Run inspects the metadata and, with fix set, repairs it.
	Run(ctx context.Context, fix bool) (Result, error)
}

type checkFunc struct {
	name string
	run  func(ctx context.Context, fix bool) (Result, error)
}

func (c checkFunc) Name() string { return c.name }

func (c checkFunc) Run(ctx context.Context, fix bool) (Result, error) { return c.run(ctx, fix) }

// Gateways are the stores the checks inspect.
type Gateways struct {
	Activities prov.ActivityGateway
	Datasets   prov.DatasetGateway
	Plans      prov.PlanGateway
}

// All returns the full catalog of checks in the order they should run.
// Identifier fixes go first so later checks see the final ids.
func All(gw Gateways) []Check {
	return []Check{
		ActivityIDs(gw.Activities),
		PlanIDs(gw.Plans, gw.Activities),
		PlanModificationDates(gw.Plans),
		PlanDerivation(gw.Plans),
		ActivityDates(gw.Activities, gw.Plans),
		ActivityCatalog(gw.Activities),
		DatasetDerivation(gw.Datasets),
		DatasetDates(gw.Datasets),
		DatasetDatadir(gw.Datasets),
	}
}

// result builds the Result of a fixable check that found problems.
func result(fix bool, what string, problems []string) Result {
	if len(problems) == 0 {
		return Result{Valid: true}
	}
	var b strings.Builder
	if fix {
		fmt.Fprintf(&b, "Fixed %d %s:\n", len(problems), what)
	} else {
		fmt.Fprintf(&b, "Found %d %s:\n", len(problems), what)
	}
	for _, p := range problems {
		fmt.Fprintf(&b, "\t%s\n", p)
	}
	if !fix {
		b.WriteString("Run 'prov doctor --fix' to fix them.\n")
	}
	return Result{Valid: fix, Problems: problems, Report: b.String()}
}

// manualResult builds the Result of a check whose problems need a human.
func manualResult(what, hint string, problems []string) Result {
	if len(problems) == 0 {
		return Result{Valid: true}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s:\n", len(problems), what)
	for _, p := range problems {
		fmt.Fprintf(&b, "\t%s\n", p)
	}
	b.WriteString(hint + "\n")
	return Result{HasManualFix: true, Problems: problems, Report: b.String()}
}

// CheckResult pairs a Result with the check that produced it.
type CheckResult struct {
	Name string
	Result
}

// Runner runs checks and commits their fixes once at the end.
type Runner struct {
	checks  []Check
	tx      prov.Transactor
	logger  prov.Logger
	observe func(check string, problems int)
}

// NewRunner creates a Runner over checks.
func NewRunner(checks []Check, tx prov.Transactor, logger prov.Logger) *Runner {
	return &Runner{checks: checks, tx: tx, logger: logger}
}

// OnResult registers fn to receive the number of problems each check found.
func (r *Runner) OnResult(fn func(check string, problems int)) {
	r.observe = fn
}

// Names returns the names of the known checks.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		names = append(names, c.Name())
	}
	return names
}

// Run runs the checks named in only, or all of them when only is empty.
// With fix set the repairs are committed together; a failing check discards
// every repair made so far.
func (r *Runner) Run(ctx context.Context, fix bool, only ...string) ([]CheckResult, error) {
	selected, err := r.selected(only)
	if err != nil {
		return nil, err
	}

	var results []CheckResult
	for _, c := range selected {
		r.logger.Debug("running check", "check", c.Name(), "fix", fix)
		res, err := c.Run(ctx, fix)
		if err != nil {
			r.tx.Rollback()
			return nil, fmt.Errorf("check %s: %w", c.Name(), err)
		}
		if len(res.Problems) > 0 {
			r.logger.Info("check found problems", "check", c.Name(), "problems", len(res.Problems), "fixed", fix && res.Valid)
		}
		if r.observe != nil {
			r.observe(c.Name(), len(res.Problems))
		}
		results = append(results, CheckResult{Name: c.Name(), Result: res})
	}

	if !fix {
		r.tx.Rollback()
		return results, nil
	}
	if err := r.tx.Commit(ctx); err != nil {
		r.tx.Rollback()
		return nil, fmt.Errorf("committing fixes: %w", err)
	}
	return results, nil
}

func (r *Runner) selected(only []string) ([]Check, error) {
	if len(only) == 0 {
		return r.checks, nil
	}
	byName := make(map[string]Check, len(r.checks))
	for _, c := range r.checks {
		byName[c.Name()] = c
	}
	var out []Check
	for _, name := range only {
		c, ok := byName[name]
		if !ok {
			known := r.Names()
			sort.Strings(known)
			return nil, fmt.Errorf("unknown check %q (known: %s)", name, strings.Join(known, ", "))
		}
		out = append(out, c)
	}
	return out, nil
}

// AllValid reports whether every result is valid.
func AllValid(results []CheckResult) bool {
	for _, r := range results {
		if !r.Valid {
			return false
		}
	}
	return true
}

// lastSegment returns the final path segment of a legacy id.
func lastSegment(id string) string {
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndexAny(id, "/:#"); i >= 0 {
		id = id[i+1:]
	}
	return id
}
