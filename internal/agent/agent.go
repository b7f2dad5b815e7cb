// Package agent turns natural-language questions into validated, safely
// executed read-only SQL.
//
// A question is classified as simple or complex. Simple questions go through
// the Resolver's generate, validate and repair loop. Complex ones are split by
// the Decomposer and each part is resolved by the Orchestrator, which then
// tries to combine the parts' rows.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/querypilot/querypilot/internal/database"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/oracle"
	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/schema"
)

type Options struct {
	Dialect             database.Dialect
	MaxAttempts         int
	ComplexityThreshold int
	MaxParts            int
	RowLimit            int
	PartConcurrency     int
}

type Dependencies struct {
	Schema    schema.Provider
	Generator oracle.Oracle
	// Validator defaults to Generator.
	Validator oracle.Oracle
	Executor  query.Engine
	Logger    *slog.Logger
}

type Agent struct {
	schema       schema.Provider
	resolver     *Resolver
	orchestrator *Orchestrator
	options      Options
	logger       *slog.Logger
}

func New(options Options, deps Dependencies) (*Agent, error) {
	if deps.Schema == nil {
		return nil, fmt.Errorf("schema provider is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator oracle is required")
	}
	if options.Dialect == "" {
		options.Dialect = database.DialectMSSQL
	}
	prompts, err := NewPrompts(options.Dialect)
	if err != nil {
		return nil, err
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = DefaultMaxAttempts
	}
	if options.ComplexityThreshold <= 0 {
		options.ComplexityThreshold = DefaultComplexityThreshold
	}
	if options.MaxParts <= 0 {
		options.MaxParts = DefaultMaxParts
	}
	if options.RowLimit <= 0 {
		options.RowLimit = DefaultRowLimit
	}
	validator := deps.Validator
	if validator == nil {
		validator = deps.Generator
	}
	logger := observability.LoggerOrDiscard(deps.Logger)

	resolver := &Resolver{
		Generator:   deps.Generator,
		Validator:   validator,
		Executor:    deps.Executor,
		Prompts:     prompts,
		MaxAttempts: options.MaxAttempts,
		Logger:      logger,
	}
	return &Agent{
		schema:   deps.Schema,
		resolver: resolver,
		orchestrator: &Orchestrator{
			Decomposer:      &Decomposer{Oracle: deps.Generator, Prompts: prompts, Logger: logger},
			Resolver:        resolver,
			PartConcurrency: options.PartConcurrency,
			Logger:          logger,
		},
		options: options,
		logger:  logger,
	}, nil
}

type Request struct {
	Question string
	Execute  bool
	RowLimit int
	MaxParts int
}

// Process answers one question. It never returns an error: every failure is
// reported as a Failure outcome.
func (a *Agent) Process(ctx context.Context, req Request) Outcome {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return failureOutcome("Empty user request.")
	}
	rowLimit := req.RowLimit
	if rowLimit <= 0 {
		rowLimit = a.options.RowLimit
	}
	maxParts := req.MaxParts
	if maxParts <= 0 {
		maxParts = a.options.MaxParts
	}

	mapping, err := schema.BuildMapping(ctx, a.schema)
	if err != nil {
		a.logger.ErrorContext(ctx, "load_schema_failed", slog.String("error", err.Error()))
		return failureOutcome("load schema: " + err.Error())
	}

	isComplex := IsComplex(question, a.options.ComplexityThreshold)
	a.logger.InfoContext(ctx, "process_request",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Bool("complex", isComplex),
		slog.Int("tables", len(mapping)),
		slog.Bool("execute", req.Execute),
	)
	if !isComplex {
		return outcomeFromResult(a.resolver.Resolve(ctx, question, mapping, req.Execute, rowLimit))
	}
	return a.orchestrator.RunComplex(ctx, question, mapping, req.Execute, rowLimit, maxParts)
}

// IsComplex applies the agent's configured complexity threshold.
func (a *Agent) IsComplex(question string) bool {
	return IsComplex(question, a.options.ComplexityThreshold)
}

func (a *Agent) Schema() schema.Provider {
	return a.schema
}
