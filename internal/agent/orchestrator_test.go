package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/querypilot/querypilot/internal/database"
	"github.com/querypilot/querypilot/internal/query"
)

const (
	northSQL = "SELECT Region, SUM(Amount) AS Total FROM Sales WHERE Region = 'north' GROUP BY Region"
	southSQL = "SELECT Region, SUM(Amount) AS Total FROM Sales WHERE Region = 'south' GROUP BY Region"
	countSQL = "SELECT Region, COUNT(SaleID) AS Orders, SUM(Amount) AS Total FROM Sales GROUP BY Region"
)

func regionGenerator() routedOracle {
	return routedOracle{routes: []route{
		{contains: "USER REQUEST:\nnorth totals", reply: genReply(northSQL)},
		{contains: "USER REQUEST:\nsouth totals", reply: genReply(southSQL)},
		{contains: "USER REQUEST:\norder counts", reply: genReply(countSQL)},
		{contains: "USER REQUEST:\nempty region", reply: genReply("SELECT Region, SUM(Amount) AS Total FROM Sales WHERE 1 = 0 GROUP BY Region")},
	}, fallback: `{"sql": null, "notes": "cannot answer"}`}
}

func regionEngine() *fakeEngine {
	return &fakeEngine{results: map[string]query.Result{
		northSQL: {Columns: []string{"Region", "Total"}, Rows: [][]any{{"north", 10}}},
		southSQL: {Columns: []string{"Total", "Region"}, Rows: [][]any{{4, "south"}, {2, "south-east"}}},
		countSQL: {Columns: []string{"Region", "Orders", "Total"}, Rows: [][]any{{"north", 3, 10}}},
		"SELECT Region, SUM(Amount) AS Total FROM Sales WHERE 1 = 0 GROUP BY Region": {Columns: []string{"Region", "Total"}},
	}}
}

func newTestOrchestrator(t *testing.T, splitReply string, concurrency int) (*Orchestrator, *fakeEngine) {
	t.Helper()
	prompts, err := NewPrompts(database.DialectMSSQL)
	if err != nil {
		t.Fatalf("NewPrompts() error = %v", err)
	}
	engine := regionEngine()
	return &Orchestrator{
		Decomposer: &Decomposer{Oracle: &scriptedOracle{replies: []string{splitReply}}, Prompts: prompts},
		Resolver: &Resolver{
			Generator:   regionGenerator(),
			Validator:   &scriptedOracle{replies: []string{validReply}},
			Executor:    engine,
			Prompts:     prompts,
			MaxAttempts: 2,
		},
		PartConcurrency: concurrency,
	}, engine
}

func TestRunComplexCombinesMatchingParts(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t, `["north totals", "south totals"]`, 1)
	outcome := orchestrator.RunComplex(context.Background(), "north totals vs south totals", salesMapping, true, 5, 5)
	if outcome.Kind != KindComplex {
		t.Fatalf("Kind = %q", outcome.Kind)
	}
	complexResult := outcome.Complex
	if complexResult.OriginalRequest != "north totals vs south totals" || len(complexResult.SubRequests) != 2 {
		t.Fatalf("complex = %+v", complexResult)
	}
	combined := complexResult.Combined
	if !combined.Possible || combined.Reason != nil {
		t.Fatalf("combined = %+v reason=%v", combined, combined.Reason)
	}
	if len(combined.Rows) != 3 {
		t.Fatalf("combined rows = %d, want 3", len(combined.Rows))
	}
	wantRegions := []string{"north", "south", "south-east"}
	for i, row := range combined.Rows {
		if row["Region"] != wantRegions[i] {
			t.Fatalf("row %d Region = %v, want %s", i, row["Region"], wantRegions[i])
		}
	}
	for i, part := range complexResult.Parts {
		if part.Index != i+1 || part.SubRequest != complexResult.SubRequests[i] {
			t.Fatalf("part %d = %+v", i, part)
		}
	}
}

func TestRunComplexReportsColumnMismatch(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t, `["north totals", "order counts"]`, 1)
	outcome := orchestrator.RunComplex(context.Background(), "north totals and order counts", salesMapping, true, 5, 5)
	combined := outcome.Complex.Combined
	if combined.Possible || combined.Reason == nil {
		t.Fatalf("combined = %+v", combined)
	}
	if !strings.HasPrefix(*combined.Reason, "column sets differ") {
		t.Fatalf("reason = %q", *combined.Reason)
	}
	if !outcome.Complex.Parts[0].Result.OK() || !outcome.Complex.Parts[1].Result.OK() {
		t.Fatal("both parts should still resolve")
	}
}

func TestRunComplexFailedPartDoesNotStopSiblings(t *testing.T) {
	orchestrator, engine := newTestOrchestrator(t, `["mystery", "south totals"]`, 1)
	outcome := orchestrator.RunComplex(context.Background(), "mystery plus south totals", salesMapping, true, 5, 5)
	parts := outcome.Complex.Parts
	if parts[0].Result.OK() {
		t.Fatal("part 1 should fail")
	}
	if !parts[1].Result.OK() || !parts[1].Result.Resolution.Execution.Executed() {
		t.Fatalf("part 2 = %+v", parts[1].Result)
	}
	if len(engine.requests) != 1 {
		t.Fatalf("engine requests = %d", len(engine.requests))
	}
	if reason := outcome.Complex.Combined.Reason; reason == nil || *reason != "part 1 did not produce a validated query" {
		t.Fatalf("reason = %v", reason)
	}
}

func TestRunComplexWithoutExecutionCannotCombine(t *testing.T) {
	orchestrator, engine := newTestOrchestrator(t, `["north totals", "south totals"]`, 1)
	outcome := orchestrator.RunComplex(context.Background(), "north totals vs south totals", salesMapping, false, 5, 5)
	if reason := outcome.Complex.Combined.Reason; reason == nil || *reason != "part 1 was not executed" {
		t.Fatalf("reason = %v", reason)
	}
	if len(engine.requests) != 0 {
		t.Fatal("nothing should execute")
	}
}

func TestRunComplexCollapsesSingleSubRequest(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t, `["north totals"]`, 1)
	outcome := orchestrator.RunComplex(context.Background(), "north totals", salesMapping, false, 5, 5)
	if outcome.Kind != KindSimple {
		t.Fatalf("Kind = %q", outcome.Kind)
	}
	if outcome.SubRequest != "north totals" || outcome.SubIndex != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Simple.ValidatedSQL != northSQL {
		t.Fatalf("validated = %q", outcome.Simple.ValidatedSQL)
	}
}

func TestRunComplexParallelKeepsOrder(t *testing.T) {
	orchestrator, engine := newTestOrchestrator(t, `["south totals", "north totals", "mystery", "empty region"]`, 3)
	outcome := orchestrator.RunComplex(context.Background(), "four things", salesMapping, true, 5, 5)
	parts := outcome.Complex.Parts
	if len(parts) != 4 {
		t.Fatalf("parts = %d", len(parts))
	}
	want := []string{"south totals", "north totals", "mystery", "empty region"}
	for i, part := range parts {
		if part.Index != i+1 || part.SubRequest != want[i] {
			t.Fatalf("part %d = %d %q", i, part.Index, part.SubRequest)
		}
	}
	if parts[0].Result.Resolution.ValidatedSQL != southSQL || parts[1].Result.Resolution.ValidatedSQL != northSQL {
		t.Fatal("parts resolved out of order")
	}
	if parts[2].Result.OK() {
		t.Fatal("mystery part should fail")
	}
	if len(engine.requests) != 3 {
		t.Fatalf("engine requests = %d", len(engine.requests))
	}
}

func TestCombine(t *testing.T) {
	executed := func(columns []string, rows ...Row) Result {
		return Result{Resolution: &Resolution{Execution: &Execution{Columns: columns, Rows: rows, SQLExecuted: "SELECT 1"}}}
	}
	tests := []struct {
		name   string
		parts  []PartResult
		reason string
		rows   int
	}{
		{name: "empty", reason: "no parts to combine"},
		{
			name: "duplicate columns collapse",
			parts: []PartResult{
				{Index: 1, Result: executed([]string{"a", "b", "a"}, Row{"a": 1, "b": 2})},
				{Index: 2, Result: executed([]string{"b", "a"}, Row{"a": 3, "b": 4}, Row{"a": 5, "b": 6})},
			},
			rows: 3,
		},
		{
			name: "no rows",
			parts: []PartResult{
				{Index: 1, Result: executed([]string{"a"}, Row{"a": 1})},
				{Index: 2, Result: executed([]string{"a"})},
			},
			reason: "part 2 returned no rows",
		},
		{
			name: "execution error",
			parts: []PartResult{
				{Index: 1, Result: Result{Resolution: &Resolution{Execution: &Execution{Error: "boom"}}}},
			},
			reason: "part 1 failed to execute: boom",
		},
		{
			name: "missing execution",
			parts: []PartResult{
				{Index: 1, Result: Result{Resolution: &Resolution{}}},
			},
			reason: "part 1 was not executed",
		},
		{
			name: "skipped execution",
			parts: []PartResult{
				{Index: 1, Result: executed([]string{"a"}, Row{"a": 1})},
				{Index: 2, Result: Result{Resolution: &Resolution{Execution: &Execution{Skipped: true, Reason: "Execution not requested."}}}},
			},
			reason: "part 2 was not executed",
		},
		{
			name: "rows without executed statement",
			parts: []PartResult{
				{Index: 1, Result: Result{Resolution: &Resolution{Execution: &Execution{Columns: []string{"a"}, Rows: []Row{{"a": 1}}}}}},
			},
			reason: "part 1 was not executed",
		},
		{
			name: "columns from rows",
			parts: []PartResult{
				{Index: 1, Result: executed(nil, Row{"x": 1})},
				{Index: 2, Result: executed(nil, Row{"y": 1})},
			},
			reason: "column sets differ: part 1 has (x), part 2 has (y)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			combined := Combine(tt.parts)
			if tt.reason != "" {
				if combined.Possible || combined.Reason == nil || *combined.Reason != tt.reason {
					t.Fatalf("Combine() = %+v reason=%v, want %q", combined, combined.Reason, tt.reason)
				}
				if combined.Rows != nil {
					t.Fatal("failed combination must not carry rows")
				}
				return
			}
			if !combined.Possible || len(combined.Rows) != tt.rows {
				t.Fatalf("Combine() = %+v", combined)
			}
		})
	}
}
