package cli

import (
	"context"
	"io"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/app"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/history"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/schema"
)

// Session is what the commands need from a running application.
type Session interface {
	Ask(ctx context.Context, req agent.Request) app.Answer
	Repeat(ctx context.Context, index int, req agent.Request) (history.Entry, agent.Outcome, error)
	History(limit int) ([]history.Indexed, int)
	Schema() schema.Provider
	ArchiveHistory(ctx context.Context) (history.ArchiveResult, error)
	Close() error
}

// OpenFunc builds a session on demand; commands that need no database never
// call it.
type OpenFunc func(ctx context.Context) (Session, error)

// OpenFromEnv loads configuration from the environment and wires the full
// application. Logs go to logs.
func OpenFromEnv(logs io.Writer) OpenFunc {
	return func(ctx context.Context) (Session, error) {
		cfg, err := config.LoadFromEnv("querypilot")
		if err != nil {
			return nil, err
		}
		logger := observability.NewLogger(cfg, logs)
		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return appSession{App: application}, nil
	}
}

type appSession struct {
	*app.App
}

func (s appSession) History(limit int) ([]history.Indexed, int) {
	return s.App.History.List(limit)
}

func (s appSession) Schema() schema.Provider {
	return s.App.Schema
}
