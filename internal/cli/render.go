package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/history"
	"github.com/querypilot/querypilot/internal/schema"
)

// Renderer prints results to a terminal with pterm.
type Renderer struct {
	w io.Writer
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

func (r *Renderer) print(text string) {
	_, _ = fmt.Fprint(r.w, text)
}

func (r *Renderer) println(text string) {
	_, _ = fmt.Fprintln(r.w, text)
}

func (r *Renderer) Prompt(text string) { r.print(text) }

func (r *Renderer) Info(text string)    { r.print(pterm.Info.Sprintln(text)) }
func (r *Renderer) Success(text string) { r.print(pterm.Success.Sprintln(text)) }
func (r *Renderer) Warning(text string) { r.print(pterm.Warning.Sprintln(text)) }
func (r *Renderer) Error(text string)   { r.print(pterm.Error.Sprintln(text)) }

func (r *Renderer) section(title string) {
	r.print(pterm.DefaultSection.Sprintln(title))
}

func (r *Renderer) JSON(value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	r.println(string(encoded))
	return nil
}

func (r *Renderer) table(columns []string, rows []agent.Row) {
	if len(rows) == 0 {
		r.Warning("No rows returned.")
		return
	}
	data := pterm.TableData{columns}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, column := range columns {
			line[i] = cell(row[column])
		}
		data = append(data, line)
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		r.Error(err.Error())
		return
	}
	r.println(rendered)
}

func cell(value any) string {
	if value == nil {
		return "NULL"
	}
	return fmt.Sprint(value)
}

func (r *Renderer) Outcome(outcome agent.Outcome, raw bool) {
	switch outcome.Kind {
	case agent.KindComplex:
		r.complex(outcome.Complex, raw)
	case agent.KindSimple:
		if outcome.SubRequest != "" {
			r.Info("Single sub-request: " + outcome.SubRequest)
		}
		r.resolution(outcome.Simple, raw)
	case agent.KindFailure:
		r.failure(outcome.Failure, raw)
	}
}

func (r *Renderer) resolution(res *agent.Resolution, raw bool) {
	if res == nil {
		return
	}
	r.section("SQL")
	r.println(res.ValidatedSQL)
	if res.GeneratedSQL != res.ValidatedSQL {
		r.Info("Generated: " + res.GeneratedSQL)
	}
	if res.Notes != nil && *res.Notes != "" {
		r.Info("Notes: " + *res.Notes)
	}
	r.Info(fmt.Sprintf("Checker: %s (attempts: %d)", res.Checker.Message, len(res.Attempts)))
	r.execution(res.Execution)
	if raw {
		r.rawResponses(res.RawModelResponses)
	}
}

func (r *Renderer) execution(exec *agent.Execution) {
	switch {
	case exec == nil:
	case exec.Skipped:
		r.Warning("Not executed: " + exec.Reason)
	case exec.Error != "":
		r.Error(exec.Error)
	default:
		r.section("Result")
		r.table(exec.Columns, exec.Rows)
		r.Info("Executed: " + exec.SQLExecuted)
	}
}

func (r *Renderer) failure(f *agent.Failure, raw bool) {
	if f == nil {
		return
	}
	r.Error(f.Error)
	if f.LastChecker != nil && f.LastChecker.Message != "" {
		r.Info("Last checker message: " + f.LastChecker.Message)
	}
	for _, attempt := range f.Attempts {
		sql := "<no sql>"
		if attempt.GeneratedSQL != nil {
			sql = *attempt.GeneratedSQL
		}
		r.println(fmt.Sprintf("  attempt %d: %s -> %s", attempt.Number, sql, attempt.Checker.Message))
	}
	if raw {
		r.rawResponses(f.RawModelResponses)
	}
}

func (r *Renderer) complex(result *agent.ComplexResult, raw bool) {
	if result == nil {
		return
	}
	r.Info(fmt.Sprintf("Complex request split into %d parts.", len(result.SubRequests)))
	for _, part := range result.Parts {
		r.section(fmt.Sprintf("Part %d: %s", part.Index, part.SubRequest))
		if part.Result.Resolution != nil {
			r.resolution(part.Result.Resolution, raw)
		} else {
			r.failure(part.Result.Failure, raw)
		}
	}
	r.section("Combined")
	if !result.Combined.Possible {
		reason := "results could not be combined"
		if result.Combined.Reason != nil {
			reason = *result.Combined.Reason
		}
		r.Warning(reason)
		return
	}
	r.table(result.Combined.Columns, result.Combined.Rows)
}

func (r *Renderer) rawResponses(responses []string) {
	if len(responses) == 0 {
		return
	}
	r.section("Raw model responses")
	for i, response := range responses {
		r.println(fmt.Sprintf("[%d] %s", i+1, response))
	}
}

func (r *Renderer) History(entries []history.Indexed, total int) {
	if len(entries) == 0 {
		r.Warning("History is empty.")
		return
	}
	data := pterm.TableData{{"#", "Time (UTC)", "Complex", "Question", "SQL"}}
	for _, entry := range entries {
		data = append(data, []string{
			strconv.Itoa(entry.Index),
			entry.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatBool(entry.IsComplex),
			entry.Question,
			entry.ValidatedSQL,
		})
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		r.Error(err.Error())
		return
	}
	r.println(rendered)
	r.Info(fmt.Sprintf("Showing %d of %d entries.", len(entries), total))
}

func (r *Renderer) Mapping(mapping schema.Mapping) {
	data := pterm.TableData{{"Table", "Columns"}}
	for _, table := range mapping.Tables() {
		data = append(data, []string{table, strings.Join(mapping[table], ", ")})
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		r.Error(err.Error())
		return
	}
	r.println(rendered)
}

func (r *Renderer) Descriptions(descriptions []schema.TableDescription) {
	for _, description := range descriptions {
		r.section(description.Table)
		if description.Error != "" {
			r.Error(description.Error)
			continue
		}
		data := pterm.TableData{{"Column", "Type", "Nullable"}}
		for _, column := range description.Columns {
			data = append(data, []string{column.Name, column.Type, strconv.FormatBool(column.Nullable)})
		}
		rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			r.Error(err.Error())
			continue
		}
		r.println(rendered)
	}
}

func (r *Renderer) Archive(result history.ArchiveResult) {
	r.Success(fmt.Sprintf("Archived %d entries (%d bytes) to %s", result.Entries, result.Bytes, result.Key))
}
