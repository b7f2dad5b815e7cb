package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/schema"
)

// Orchestrator resolves each sub-request of a complex request and tries to
// combine their rows into one table.
type Orchestrator struct {
	Decomposer *Decomposer
	Resolver   *Resolver
	// PartConcurrency > 1 resolves sub-requests in parallel.
	PartConcurrency int
	Logger          *slog.Logger
}

func (o *Orchestrator) RunComplex(ctx context.Context, request string, mapping schema.Mapping, execute bool, rowLimit, maxParts int) Outcome {
	subRequests := o.Decomposer.Split(ctx, request, mapping, maxParts)

	if len(subRequests) == 1 {
		outcome := outcomeFromResult(o.Resolver.Resolve(ctx, subRequests[0], mapping, execute, rowLimit))
		outcome.SubRequest = subRequests[0]
		outcome.SubIndex = 1
		return outcome
	}

	parts := o.resolveParts(ctx, subRequests, mapping, execute, rowLimit)
	combined := Combine(parts)
	observability.IncrementCombination(combined.Possible)
	observability.LoggerOrDiscard(o.Logger).DebugContext(ctx, "complex_request_resolved",
		slog.Int("parts", len(parts)),
		slog.Bool("combined", combined.Possible),
	)
	return Outcome{
		Kind: KindComplex,
		Complex: &ComplexResult{
			OriginalRequest: request,
			SubRequests:     subRequests,
			Parts:           parts,
			Combined:        combined,
		},
	}
}

// resolveParts keeps declared order. Each part writes only its own slot and a
// failing part never stops its siblings.
func (o *Orchestrator) resolveParts(ctx context.Context, subRequests []string, mapping schema.Mapping, execute bool, rowLimit int) []PartResult {
	parts := make([]PartResult, len(subRequests))
	resolve := func(i int) {
		parts[i] = PartResult{
			Index:      i + 1,
			SubRequest: subRequests[i],
			Result:     o.Resolver.Resolve(ctx, subRequests[i], mapping, execute, rowLimit),
		}
	}

	if o.PartConcurrency <= 1 {
		for i := range subRequests {
			resolve(i)
		}
		return parts
	}

	var group errgroup.Group
	group.SetLimit(o.PartConcurrency)
	for i := range subRequests {
		group.Go(func() error {
			resolve(i)
			return nil
		})
	}
	_ = group.Wait()
	return parts
}

// Combine concatenates every part's rows in part order. It succeeds only when
// every part executed, returned rows, and shares one set of column names.
func Combine(parts []PartResult) Combined {
	if len(parts) == 0 {
		return impossible("no parts to combine")
	}
	var (
		rows      []Row
		columns   []string
		reference []string
	)
	for _, part := range parts {
		if !part.Result.OK() {
			return impossible(fmt.Sprintf("part %d did not produce a validated query", part.Index))
		}
		execution := part.Result.Resolution.Execution
		switch {
		case execution != nil && execution.Error != "":
			return impossible(fmt.Sprintf("part %d failed to execute: %s", part.Index, execution.Error))
		case !execution.Executed():
			return impossible(fmt.Sprintf("part %d was not executed", part.Index))
		case len(execution.Rows) == 0:
			return impossible(fmt.Sprintf("part %d returned no rows", part.Index))
		}

		set := columnSet(execution)
		if reference == nil {
			reference = set
			columns = execution.Columns
		} else if !slices.Equal(reference, set) {
			return impossible(fmt.Sprintf("column sets differ: part 1 has (%s), part %d has (%s)",
				strings.Join(reference, ", "), part.Index, strings.Join(set, ", ")))
		}
		rows = append(rows, execution.Rows...)
	}
	return Combined{Rows: rows, Columns: columns, Possible: true}
}

func impossible(reason string) Combined {
	return Combined{Possible: false, Reason: &reason}
}

// columnSet returns the sorted distinct column names of an execution.
func columnSet(execution *Execution) []string {
	seen := map[string]struct{}{}
	names := execution.Columns
	if len(names) == 0 && len(execution.Rows) > 0 {
		names = make([]string, 0, len(execution.Rows[0]))
		for name := range execution.Rows[0] {
			names = append(names, name)
		}
	}
	set := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		set = append(set, name)
	}
	sort.Strings(set)
	return set
}
