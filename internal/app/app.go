// Package app wires configuration into a running question-answering service
// shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/database"
	"github.com/querypilot/querypilot/internal/history"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/oracle"
	querysqldb "github.com/querypilot/querypilot/internal/query/sqldb"
	"github.com/querypilot/querypilot/internal/schema"
	schemasqldb "github.com/querypilot/querypilot/internal/schema/sqldb"
	"github.com/querypilot/querypilot/internal/storage"
	s3store "github.com/querypilot/querypilot/internal/storage/s3"
)

// ErrArchiveDisabled is returned when history archiving is not configured.
var ErrArchiveDisabled = errors.New("history archiving is disabled")

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Agent    *agent.Agent
	Schema   schema.Provider
	History  *history.FileStore
	Archiver *history.Archiver
	now      func() time.Time
}

type options struct {
	oracle  oracle.Oracle
	objects storage.ObjectStore
	now     func() time.Time
}

type Option func(*options)

// WithOracle replaces the configured language-model provider.
func WithOracle(o oracle.Oracle) Option {
	return func(opts *options) { opts.oracle = o }
}

// WithObjectStore replaces the configured archive object store.
func WithObjectStore(store storage.ObjectStore) Option {
	return func(opts *options) { opts.objects = store }
}

func WithClock(now func() time.Time) Option {
	return func(opts *options) { opts.now = now }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	logger = observability.LoggerOrDiscard(logger)

	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, database.Config{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a, err := build(ctx, cfg, logger, db, dialect, o)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger, db *sql.DB, dialect database.Dialect, o options) (*App, error) {
	provider, err := schemasqldb.NewProvider(db, dialect)
	if err != nil {
		return nil, err
	}
	engine, err := querysqldb.NewEngine(db, dialect, cfg.Database.QueryTimeout)
	if err != nil {
		return nil, err
	}

	generator := o.oracle
	if generator == nil {
		generator, err = oracle.New(ctx, oracle.Config{
			Provider:    cfg.AI.Provider,
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize oracle: %w", err)
		}
	}

	pipeline, err := agent.New(agent.Options{
		Dialect:             dialect,
		MaxAttempts:         cfg.Agent.MaxAttempts,
		ComplexityThreshold: cfg.Agent.ComplexityThreshold,
		MaxParts:            cfg.Agent.MaxParts,
		RowLimit:            cfg.Agent.RowLimit,
		PartConcurrency:     cfg.Agent.PartConcurrency,
	}, agent.Dependencies{
		Schema:    provider,
		Generator: generator,
		Executor:  engine,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	historyLog, err := history.NewFileStore(cfg.History.Path)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Agent:   pipeline,
		Schema:  provider,
		History: historyLog,
		now:     o.now,
	}

	if cfg.History.ArchiveEnabled {
		objects := o.objects
		if objects == nil {
			objects, err = s3store.New(ctx, s3store.Config{
				Endpoint:         cfg.ObjectStore.Endpoint,
				Region:           cfg.ObjectStore.Region,
				Bucket:           cfg.ObjectStore.Bucket,
				AccessKeyID:      cfg.ObjectStore.AccessKeyID,
				SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
				UseSSL:           cfg.ObjectStore.UseSSL,
				Prefix:           cfg.ObjectStore.Prefix,
				AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
			})
			if err != nil {
				return nil, fmt.Errorf("initialize object store: %w", err)
			}
		}
		a.Archiver = &history.Archiver{
			Source:  historyLog,
			Objects: objects,
			Prefix:  cfg.History.ArchivePrefix,
			Now:     o.now,
			Logger:  logger,
		}
	}
	return a, nil
}

// Answer is a processed question and, when it was recorded, its 1-based
// history index.
type Answer struct {
	Outcome      agent.Outcome
	HistoryIndex int
}

// Ask processes a question and appends it to the history log. A history
// write failure is logged and does not fail the answer.
func (a *App) Ask(ctx context.Context, req agent.Request) Answer {
	outcome := a.Agent.Process(ctx, req)
	answer := Answer{Outcome: outcome}
	index, err := a.History.Append(history.NewEntry(req.Question, outcome, a.now()))
	if err != nil {
		a.Logger.WarnContext(ctx, "history_append_failed", slog.String("error", err.Error()))
		return answer
	}
	answer.HistoryIndex = index
	return answer
}

// Repeat re-runs history entry index without recording it again.
func (a *App) Repeat(ctx context.Context, index int, req agent.Request) (history.Entry, agent.Outcome, error) {
	entry, err := a.History.Get(index)
	if err != nil {
		return history.Entry{}, agent.Outcome{}, err
	}
	req.Question = entry.Question
	return entry, a.Agent.Process(ctx, req), nil
}

func (a *App) ArchiveHistory(ctx context.Context) (history.ArchiveResult, error) {
	if a.Archiver == nil {
		return history.ArchiveResult{}, ErrArchiveDisabled
	}
	return a.Archiver.Archive(ctx)
}

func (a *App) ListArchives(ctx context.Context) ([]storage.ObjectInfo, error) {
	if a.Archiver == nil {
		return nil, ErrArchiveDisabled
	}
	return a.Archiver.Archives(ctx)
}

func (a *App) Ready(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
