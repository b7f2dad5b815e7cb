package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/app"
	"github.com/querypilot/querypilot/internal/history"
	"github.com/querypilot/querypilot/internal/schema"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

func TestAskRendersResultTable(t *testing.T) {
	session := &fakeSession{answer: simpleAnswer()}
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"ask", "--limit", "3", "sales", "by", "region"}, Options{
		Open:   session.open,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	got := session.requests[0]
	if got.Question != "sales by region" || got.RowLimit != 3 || !got.Execute {
		t.Fatalf("request = %+v", got)
	}
	out := stdout.String()
	for _, want := range []string{"SELECT Region, SUM(Amount) AS Total FROM Sales GROUP BY Region", "north", "120", "Executed: SELECT TOP (3)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if !session.closed {
		t.Fatal("session should be closed")
	}
}

func TestAskJSONAndNoExecute(t *testing.T) {
	session := &fakeSession{answer: simpleAnswer()}
	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--json", "--execute=false", "ask", "regions"}, Options{Open: session.open, Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if session.requests[0].Execute {
		t.Fatal("execute flag not applied")
	}
	if !strings.Contains(stdout.String(), `"validated_sql": "SELECT Region, SUM(Amount) AS Total FROM Sales GROUP BY Region"`) {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestAskRawShowsModelResponses(t *testing.T) {
	session := &fakeSession{answer: app.Answer{Outcome: agent.Outcome{Kind: agent.KindFailure, Failure: &agent.Failure{
		Error:             "Failed to produce a valid SQL after 1 attempts.",
		RawModelResponses: []string{"not json at all"},
		LastChecker:       &agent.Verdict{Message: "No SQL produced"},
	}}}}
	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"ask", "--raw", "???"}, Options{Open: session.open, Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"Failed to produce a valid SQL after 1 attempts.", "No SQL produced", "[1] not json at all"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAskRendersComplexParts(t *testing.T) {
	reason := "Column sets differ across parts"
	session := &fakeSession{answer: app.Answer{Outcome: agent.Outcome{Kind: agent.KindComplex, Complex: &agent.ComplexResult{
		OriginalRequest: "north totals and order counts",
		SubRequests:     []string{"north totals", "order counts"},
		Parts: []agent.PartResult{
			{Index: 1, SubRequest: "north totals", Result: agent.Result{Resolution: simpleAnswer().Outcome.Simple}},
			{Index: 2, SubRequest: "order counts", Result: agent.Result{Failure: &agent.Failure{Error: "Failed to produce a valid SQL after 3 attempts."}}},
		},
		Combined: agent.Combined{Reason: &reason},
	}}}}
	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"ask", "north totals and order counts"}, Options{Open: session.open, Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"split into 2 parts", "Part 1: north totals", "Part 2: order counts", "Failed to produce a valid SQL after 3 attempts.", reason} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	session := &fakeSession{entries: []history.Indexed{{Index: 2, Entry: history.Entry{
		Timestamp:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Question:     "sales by region",
		ValidatedSQL: "SELECT Region FROM Sales",
	}}}, total: 2}
	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"history", "1"}, Options{Open: session.open, Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if session.lastLimit != 1 {
		t.Fatalf("limit = %d", session.lastLimit)
	}
	out := stdout.String()
	for _, want := range []string{"2026-03-02 09:30:00", "sales by region", "Showing 1 of 2 entries."} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	var stderr bytes.Buffer
	if code := Run(context.Background(), []string{"history", "zero"}, Options{Open: session.open, Stderr: &stderr}); code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRepeatCommand(t *testing.T) {
	session := &fakeSession{answer: simpleAnswer(), entries: []history.Indexed{{Index: 1, Entry: history.Entry{Question: "sales by region"}}}}
	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"repeat", "1"}, Options{Open: session.open, Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(session.requests) != 0 || session.repeated != 1 {
		t.Fatalf("requests = %d repeated = %d", len(session.requests), session.repeated)
	}
	if !strings.Contains(stdout.String(), "Repeating #1: sales by region") {
		t.Fatalf("output = %s", stdout.String())
	}

	var stderr bytes.Buffer
	if code := Run(context.Background(), []string{"repeat", "9"}, Options{Open: session.open, Stderr: &stderr}); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "not found") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestSchemaCommand(t *testing.T) {
	session := &fakeSession{}
	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"schema"}, Options{Open: session.open, Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "Region, Amount") {
		t.Fatalf("output = %s", stdout.String())
	}

	stdout.Reset()
	if code := Run(context.Background(), []string{"schema", "Sales,Missing"}, Options{Open: session.open, Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "decimal") || !strings.Contains(stdout.String(), "Table 'Missing' not found.") {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestCheckCommandNeedsNoSession(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run(context.Background(), []string{"check", "SELECT Region FROM Sales"}, Options{Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "passed") {
		t.Fatalf("output = %s", stdout.String())
	}

	stdout.Reset()
	if code := Run(context.Background(), []string{"check", "SELECT * FROM Sales"}, Options{Stdout: &stdout, Stderr: &stderr}); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "[select_star]") {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestArchiveHistoryCommand(t *testing.T) {
	session := &fakeSession{archive: history.ArchiveResult{Key: "history/date=2026-03-02/history-1.parquet", Entries: 4, Bytes: 900}}
	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"archive-history"}, Options{Open: session.open, Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "Archived 4 entries (900 bytes) to history/date=2026-03-02/history-1.parquet") {
		t.Fatalf("output = %s", stdout.String())
	}

	session.archiveErr = app.ErrArchiveDisabled
	var stderr bytes.Buffer
	if code := Run(context.Background(), []string{"archive-history"}, Options{Open: session.open, Stderr: &stderr}); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestOpenFailureIsReported(t *testing.T) {
	var stderr bytes.Buffer
	open := func(context.Context) (Session, error) { return nil, errors.New("database not reachable") }
	if code := Run(context.Background(), []string{"ask", "x"}, Options{Open: open, Stderr: &stderr}); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "database not reachable") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	if code := Run(context.Background(), []string{"unknown"}, Options{Stderr: &stderr}); code == 0 {
		t.Fatal("expected non-zero exit code")
	}
	if stderr.Len() == 0 {
		t.Fatal("expected error output")
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	if code := Run(context.Background(), []string{"ask"}, Options{}); code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func simpleAnswer() app.Answer {
	sql := "SELECT Region, SUM(Amount) AS Total FROM Sales GROUP BY Region"
	return app.Answer{
		Outcome: agent.Outcome{Kind: agent.KindSimple, Simple: &agent.Resolution{
			GeneratedSQL: sql,
			ValidatedSQL: sql,
			Checker:      agent.Verdict{Valid: true, Message: "ok"},
			Attempts:     []agent.Attempt{{Number: 1}},
			Execution: &agent.Execution{
				Columns:     []string{"Region", "Total"},
				Rows:        []agent.Row{{"Region": "north", "Total": 120}},
				SQLExecuted: "SELECT TOP (3) Region, SUM(Amount) AS Total FROM Sales GROUP BY Region",
			},
		}},
		HistoryIndex: 1,
	}
}

type fakeSession struct {
	answer     app.Answer
	requests   []agent.Request
	repeated   int
	entries    []history.Indexed
	total      int
	lastLimit  int
	archive    history.ArchiveResult
	archiveErr error
	closed     bool
}

func (f *fakeSession) open(context.Context) (Session, error) {
	return f, nil
}

func (f *fakeSession) Ask(_ context.Context, req agent.Request) app.Answer {
	f.requests = append(f.requests, req)
	return f.answer
}

func (f *fakeSession) Repeat(_ context.Context, index int, _ agent.Request) (history.Entry, agent.Outcome, error) {
	for _, entry := range f.entries {
		if entry.Index == index {
			f.repeated++
			return entry.Entry, f.answer.Outcome, nil
		}
	}
	return history.Entry{}, agent.Outcome{}, history.ErrNotFound
}

func (f *fakeSession) History(limit int) ([]history.Indexed, int) {
	f.lastLimit = limit
	return f.entries, f.total
}

func (f *fakeSession) Schema() schema.Provider {
	return fakeSchema{}
}

func (f *fakeSession) ArchiveHistory(context.Context) (history.ArchiveResult, error) {
	return f.archive, f.archiveErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type fakeSchema struct{}

func (fakeSchema) ListTables(context.Context) ([]string, error) {
	return []string{"Sales"}, nil
}

func (fakeSchema) Columns(_ context.Context, table string) ([]schema.Column, error) {
	if table != "Sales" {
		return nil, schema.ErrTableNotFound
	}
	return []schema.Column{{Name: "Region", Type: "nvarchar"}, {Name: "Amount", Type: "decimal", Nullable: true}}, nil
}
