package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/oracle"
	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/safety"
	"github.com/querypilot/querypilot/internal/schema"
)

const (
	DefaultMaxAttempts = 3
	DefaultRowLimit    = 5

	noSQLProduced      = "No SQL produced"
	noSQLPlaceholder   = "<no sql returned>"
	noMessage          = "No message"
	noJSONFromChecker  = "Model returned no JSON."
	appliedFixNote     = "Applied checker-proposed fix."
	executionNotWanted = "Execution not requested."
)

// Resolver turns one natural-language request into validated SQL through a
// bounded generate, validate and repair loop, then optionally executes it.
type Resolver struct {
	Generator   oracle.Oracle
	Validator   oracle.Oracle
	Executor    query.Engine
	Prompts     *Prompts
	MaxAttempts int
	Logger      *slog.Logger
}

func (r *Resolver) Resolve(ctx context.Context, request string, mapping schema.Mapping, execute bool, rowLimit int) Result {
	logger := observability.LoggerOrDiscard(r.Logger)
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	prompts := promptsOrDefault(r.Prompts)

	var (
		attempts  []Attempt
		raws      []string
		candidate *string
		notes     *string
		last      Verdict
	)
	for number := 1; number <= maxAttempts; number++ {
		var prompt string
		var err error
		if number == 1 {
			prompt, err = prompts.Generate(request, mapping)
		} else {
			invalid := noSQLPlaceholder
			if candidate != nil {
				invalid = *candidate
			}
			message := last.Message
			if strings.TrimSpace(message) == "" {
				message = noMessage
			}
			prompt, err = prompts.Repair(invalid, message, request, mapping)
		}

		var raw string
		var generated, generatedNotes *string
		if err != nil {
			raw = "prompt error: " + err.Error()
		} else {
			raw, generated, generatedNotes = r.generate(ctx, prompt)
		}
		raws = append(raws, raw)

		attempt := Attempt{Number: number, GeneratedSQL: generated, Notes: generatedNotes}
		verdict := Verdict{Valid: false, Message: noSQLProduced}
		if generated != nil {
			verdict = r.validate(ctx, *generated, mapping)
		}

		if verdict.FixedSQL != nil {
			initial := verdict
			fixed := *verdict.FixedSQL
			attempt.InitialChecker = &initial
			attempt.CandidateSQL = &fixed
			candidate = &fixed
			notes = appendNote(generatedNotes, appliedFixNote)
			verdict = r.validate(ctx, fixed, mapping)
		} else {
			candidate = generated
			notes = generatedNotes
		}
		attempt.Checker = verdict
		last = verdict
		attempts = append(attempts, attempt)

		logger.DebugContext(ctx, "resolve_attempt",
			slog.Int("attempt", number),
			slog.Bool("sql_generated", generated != nil),
			slog.Bool("fix_applied", attempt.CandidateSQL != nil),
			slog.Bool("valid", verdict.Valid),
			slog.String("message", verdict.Message),
		)

		if verdict.Valid && candidate != nil {
			validated := *candidate
			if verdict.FixedSQL != nil {
				validated = *verdict.FixedSQL
			}
			generatedSQL := validated
			if generated != nil {
				generatedSQL = *generated
			}
			resolution := &Resolution{
				GeneratedSQL:      generatedSQL,
				ValidatedSQL:      validated,
				Notes:             notes,
				Checker:           verdict,
				Attempts:          attempts,
				RawModelResponses: raws,
			}
			resolution.Execution = r.finalize(ctx, validated, execute, rowLimit)
			observability.ObserveResolve(true, number)
			return Result{Resolution: resolution}
		}
	}

	observability.ObserveResolve(false, len(attempts))
	logger.WarnContext(ctx, "resolve_exhausted",
		slog.Int("attempts", len(attempts)),
		slog.String("last_message", last.Message),
	)
	return Result{Failure: exhaustedFailure(maxAttempts, attempts, raws, last)}
}

// finalize runs the safety gate on validated SQL and, when asked, executes it.
// Nothing here returns an error; every failure becomes part of the payload.
func (r *Resolver) finalize(ctx context.Context, validated string, execute bool, rowLimit int) *Execution {
	if err := safety.Check(validated); err != nil {
		var violation *safety.Violation
		if errors.As(err, &violation) {
			observability.IncrementSafetyRejection(string(violation.Rule))
		}
		if !execute {
			return &Execution{Skipped: true, Reason: err.Error()}
		}
		return &Execution{Error: "Execution blocked: " + err.Error(), ValidatedSQL: validated}
	}
	if !execute {
		return &Execution{Skipped: true, Reason: executionNotWanted, SQLToExecute: validated}
	}
	if r.Executor == nil {
		return &Execution{Error: "no query executor configured", ValidatedSQL: validated}
	}
	result, err := r.Executor.Execute(ctx, query.Request{SQL: validated, RowLimit: rowLimit})
	if err != nil {
		return &Execution{Error: err.Error(), ValidatedSQL: validated}
	}
	return executionFromResult(result)
}

// generate returns the raw reply plus the parsed sql and notes, if any.
func (r *Resolver) generate(ctx context.Context, prompt string) (string, *string, *string) {
	if r.Generator == nil {
		return "generator error: no generator configured", nil, nil
	}
	start := time.Now()
	raw, err := r.Generator.Generate(ctx, prompt)
	observability.ObserveOracleCall("generator", err, time.Since(start))
	if err != nil {
		return "generator error: " + err.Error(), nil, nil
	}
	obj, ok := oracle.ExtractObject(raw)
	if !ok {
		return raw, nil, nil
	}
	return raw, sqlField(obj["sql"]), stringField(obj["notes"])
}

func (r *Resolver) validate(ctx context.Context, sql string, mapping schema.Mapping) Verdict {
	if r.Validator == nil {
		return Verdict{Message: "validator unavailable: no validator configured"}
	}
	prompt, err := promptsOrDefault(r.Prompts).Validate(sql, mapping)
	if err != nil {
		return Verdict{Message: "validator unavailable: " + err.Error()}
	}
	start := time.Now()
	raw, err := r.Validator.Generate(ctx, prompt)
	observability.ObserveOracleCall("validator", err, time.Since(start))
	if err != nil {
		return Verdict{Message: "validator unavailable: " + err.Error()}
	}
	obj, ok := oracle.ExtractObject(raw)
	if !ok {
		return Verdict{Message: noJSONFromChecker}
	}
	message := ""
	if m := stringField(obj["message"]); m != nil {
		message = *m
	}
	return Verdict{
		Valid:    boolField(obj["valid"]),
		Message:  message,
		FixedSQL: sqlField(obj["fixed_sql"]),
	}
}

func stringField(value any) *string {
	text, ok := value.(string)
	if !ok {
		return nil
	}
	return &text
}

// sqlField treats blanks and a literal "null" as no SQL.
func sqlField(value any) *string {
	text, ok := value.(string)
	if !ok {
		return nil
	}
	text = oracle.StripMarkdown(text)
	if text == "" || strings.EqualFold(text, "null") {
		return nil
	}
	return &text
}

func boolField(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(strings.TrimSpace(typed), "true")
	default:
		return false
	}
}

func appendNote(notes *string, note string) *string {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return &note
	}
	combined := fmt.Sprintf("%s | %s", *notes, note)
	return &combined
}
