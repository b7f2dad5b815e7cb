package agent

import (
	"encoding/json"
	"fmt"

	"github.com/querypilot/querypilot/internal/query"
)

// Verdict is the validator's judgement of one SQL candidate.
type Verdict struct {
	Valid    bool    `json:"valid"`
	Message  string  `json:"message"`
	FixedSQL *string `json:"fixed_sql"`
}

// Attempt records one generate/validate cycle. CandidateSQL and
// InitialChecker are set only when the validator's fix was adopted; Checker
// then holds the verdict on the fix.
type Attempt struct {
	Number         int      `json:"attempt"`
	GeneratedSQL   *string  `json:"generated_sql"`
	Notes          *string  `json:"notes"`
	Checker        Verdict  `json:"checker"`
	CandidateSQL   *string  `json:"candidate_sql,omitempty"`
	InitialChecker *Verdict `json:"initial_checker,omitempty"`
}

type Row = map[string]any

// Execution is the outcome of running, skipping or blocking validated SQL.
type Execution struct {
	Columns      []string
	Rows         []Row
	SQLExecuted  string
	Error        string
	ValidatedSQL string
	Skipped      bool
	Reason       string
	SQLToExecute string
}

// Executed reports whether the statement ran without error.
func (e *Execution) Executed() bool {
	return e != nil && !e.Skipped && e.Error == "" && e.SQLExecuted != ""
}

func executionFromResult(result query.Result) *Execution {
	return &Execution{
		Columns:     result.Columns,
		Rows:        result.Records(),
		SQLExecuted: result.SQLExecuted,
	}
}

func (e Execution) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	switch {
	case e.Skipped:
		out["skipped"] = true
		out["reason"] = e.Reason
		if e.SQLToExecute != "" {
			out["sql_to_execute"] = e.SQLToExecute
		}
	case e.Error != "":
		out["error"] = e.Error
		if e.ValidatedSQL != "" {
			out["validated_sql"] = e.ValidatedSQL
		}
		if e.SQLExecuted != "" {
			out["sql_executed"] = e.SQLExecuted
		}
	default:
		rows := e.Rows
		if rows == nil {
			rows = []Row{}
		}
		out["rows"] = rows
		out["columns"] = e.Columns
		out["sql_executed"] = e.SQLExecuted
	}
	return json.Marshal(out)
}

// Resolution is a successful single-request result.
type Resolution struct {
	GeneratedSQL      string     `json:"generated_sql"`
	ValidatedSQL      string     `json:"validated_sql"`
	Notes             *string    `json:"notes"`
	Checker           Verdict    `json:"checker"`
	Attempts          []Attempt  `json:"attempts"`
	RawModelResponses []string   `json:"raw_model_responses"`
	Execution         *Execution `json:"execution"`
}

// Failure is a terminal, non-exceptional failure of the pipeline.
type Failure struct {
	Error             string    `json:"error"`
	Attempts          []Attempt `json:"attempts,omitempty"`
	RawModelResponses []string  `json:"raw_model_responses,omitempty"`
	LastChecker       *Verdict  `json:"last_checker,omitempty"`
}

func exhaustedFailure(maxAttempts int, attempts []Attempt, raws []string, last Verdict) *Failure {
	return &Failure{
		Error:             fmt.Sprintf("Failed to produce a valid SQL after %d attempts.", maxAttempts),
		Attempts:          attempts,
		RawModelResponses: raws,
		LastChecker:       &last,
	}
}

// Result is the resolver's output: exactly one of Resolution or Failure is set.
type Result struct {
	Resolution *Resolution
	Failure    *Failure
}

func (r Result) OK() bool {
	return r.Resolution != nil
}

// PartResult is the result for one sub-request, numbered from 1.
type PartResult struct {
	Index      int
	SubRequest string
	Result     Result
}

func (p PartResult) MarshalJSON() ([]byte, error) {
	return marshalAnnotated(p.Result, annotation{SubRequest: p.SubRequest, SubIndex: p.Index})
}

// Combined is the concatenation of all parts' rows, when their columns match.
type Combined struct {
	Rows     []Row    `json:"combined"`
	Columns  []string `json:"columns,omitempty"`
	Possible bool     `json:"combined_possible"`
	Reason   *string  `json:"reason"`
}

type ComplexResult struct {
	OriginalRequest string       `json:"original_request"`
	SubRequests     []string     `json:"sub_requests"`
	Parts           []PartResult `json:"part_results"`
	Combined        Combined     `json:"combined"`
}

type Kind string

const (
	KindSimple  Kind = "simple"
	KindComplex Kind = "complex"
	KindFailure Kind = "failure"
)

// Outcome is the result of processing one question. Kind selects which of
// Simple, Complex or Failure is set. SubRequest and SubIndex are set when a
// complex request collapsed to a single sub-request.
type Outcome struct {
	Kind       Kind
	Simple     *Resolution
	Complex    *ComplexResult
	Failure    *Failure
	SubRequest string
	SubIndex   int
}

func outcomeFromResult(result Result) Outcome {
	if result.Resolution != nil {
		return Outcome{Kind: KindSimple, Simple: result.Resolution}
	}
	return Outcome{Kind: KindFailure, Failure: result.Failure}
}

func failureOutcome(message string) Outcome {
	return Outcome{Kind: KindFailure, Failure: &Failure{Error: message}}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case KindComplex:
		if o.Complex == nil {
			return nil, fmt.Errorf("complex outcome without result")
		}
		return json.Marshal(struct {
			*ComplexResult
			IsComplex bool `json:"is_complex"`
		}{ComplexResult: o.Complex, IsComplex: true})
	case KindSimple, KindFailure:
		note := annotation{SubRequest: o.SubRequest, SubIndex: o.SubIndex}
		if o.SubIndex > 0 {
			isComplex := false
			note.IsComplex = &isComplex
		}
		return marshalAnnotated(Result{Resolution: o.Simple, Failure: o.Failure}, note)
	default:
		return nil, fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
}

type annotation struct {
	SubRequest string `json:"sub_request,omitempty"`
	SubIndex   int    `json:"sub_index,omitempty"`
	IsComplex  *bool  `json:"is_complex,omitempty"`
}

func marshalAnnotated(result Result, note annotation) ([]byte, error) {
	switch {
	case result.Resolution != nil:
		return json.Marshal(struct {
			*Resolution
			annotation
		}{result.Resolution, note})
	case result.Failure != nil:
		return json.Marshal(struct {
			*Failure
			annotation
		}{result.Failure, note})
	default:
		return nil, fmt.Errorf("result has neither resolution nor failure")
	}
}
