// Package cli implements the querypilot command line: one-shot questions, an
// interactive loop with history, schema inspection and safety checks.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/history"
	"github.com/querypilot/querypilot/internal/safety"
	"github.com/querypilot/querypilot/internal/schema"
)

type Options struct {
	Open   OpenFunc
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type flags struct {
	execute  bool
	limit    int
	maxParts int
	json     bool
	raw      bool
}

func (f flags) request(question string) agent.Request {
	return agent.Request{Question: question, Execute: f.execute, RowLimit: f.limit, MaxParts: f.maxParts}
}

// Run executes one command line and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func NewRootCommand(opts Options) *cobra.Command {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	var f flags
	c := &commands{opts: opts, flags: &f, out: NewRenderer(stdout)}

	root := &cobra.Command{
		Use:           "querypilot",
		Short:         "Ask questions of a SQL database in plain language",
		Long:          `querypilot turns natural-language questions into validated, read-only SQL, runs it and shows the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	persistent := root.PersistentFlags()
	persistent.BoolVar(&f.execute, "execute", true, "Execute validated SQL")
	persistent.IntVar(&f.limit, "limit", 0, "Row limit per query (0 uses the configured default)")
	persistent.IntVar(&f.maxParts, "max-parts", 0, "Maximum sub-requests for complex questions (0 uses the configured default)")
	persistent.BoolVar(&f.json, "json", false, "Print results as JSON")
	persistent.BoolVar(&f.raw, "raw", false, "Also print raw model responses")

	root.AddCommand(
		&cobra.Command{
			Use:   "ask <question>",
			Short: "Answer one question",
			Args:  minArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withSession(cmd.Context(), func(s Session) error {
					return c.ask(cmd.Context(), s, strings.Join(args, " "))
				})
			},
		},
		&cobra.Command{
			Use:   "repl",
			Short: "Interactive question loop (exit, quit, history N, repeat N)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withSession(cmd.Context(), func(s Session) error {
					return c.repl(cmd.Context(), s, opts.Stdin)
				})
			},
		},
		&cobra.Command{
			Use:   "history [N]",
			Short: "Show the last N questions",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				limit := history.DefaultListLimit
				if len(args) == 1 {
					parsed, err := positiveInt(args[0])
					if err != nil {
						return usageError{err: err}
					}
					limit = parsed
				}
				return c.withSession(cmd.Context(), func(s Session) error {
					return c.history(s, limit)
				})
			},
		},
		&cobra.Command{
			Use:   "repeat <N>",
			Short: "Re-run history entry N without recording it again",
			Args:  minArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := positiveInt(args[0])
				if err != nil {
					return usageError{err: err}
				}
				return c.withSession(cmd.Context(), func(s Session) error {
					return c.repeat(cmd.Context(), s, index)
				})
			},
		},
		&cobra.Command{
			Use:   "schema [table,table...]",
			Short: "Show tables, or the columns of the named tables",
			Args:  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				tables := schema.ParseTableList(strings.Join(args, ","))
				return c.withSession(cmd.Context(), func(s Session) error {
					return c.schema(cmd.Context(), s, tables)
				})
			},
		},
		&cobra.Command{
			Use:   "check <sql>",
			Short: "Run the read-only safety checks on a statement",
			Args:  minArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.check(strings.Join(args, " "))
			},
		},
		&cobra.Command{
			Use:   "archive-history",
			Short: "Export the question history to object storage as parquet",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withSession(cmd.Context(), func(s Session) error {
					result, err := s.ArchiveHistory(cmd.Context())
					if err != nil {
						return err
					}
					if f.json {
						return c.out.JSON(result)
					}
					c.out.Archive(result)
					return nil
				})
			},
		},
	)
	return root
}

type commands struct {
	opts  Options
	flags *flags
	out   *Renderer
}

func (c *commands) withSession(ctx context.Context, fn func(Session) error) error {
	if c.opts.Open == nil {
		return errors.New("no application configured")
	}
	session, err := c.opts.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()
	return fn(session)
}

func (c *commands) ask(ctx context.Context, s Session, question string) error {
	answer := s.Ask(ctx, c.flags.request(question))
	return c.show(answer.Outcome)
}

func (c *commands) repeat(ctx context.Context, s Session, index int) error {
	entry, outcome, err := s.Repeat(ctx, index, c.flags.request(""))
	if err != nil {
		return err
	}
	c.out.Info(fmt.Sprintf("Repeating #%d: %s", index, entry.Question))
	return c.show(outcome)
}

func (c *commands) history(s Session, limit int) error {
	entries, total := s.History(limit)
	if c.flags.json {
		return c.out.JSON(map[string]any{"entries": entries, "total": total})
	}
	c.out.History(entries, total)
	return nil
}

func (c *commands) schema(ctx context.Context, s Session, tables []string) error {
	if len(tables) == 0 {
		mapping, err := schema.BuildMapping(ctx, s.Schema())
		if err != nil {
			return err
		}
		if c.flags.json {
			return c.out.JSON(map[string]any{"tables": mapping})
		}
		c.out.Mapping(mapping)
		return nil
	}
	descriptions, err := schema.Describe(ctx, s.Schema(), tables)
	if err != nil {
		return err
	}
	if c.flags.json {
		return c.out.JSON(map[string]any{"tables": descriptions})
	}
	c.out.Descriptions(descriptions)
	return nil
}

func (c *commands) check(sql string) error {
	err := safety.Check(sql)
	if err == nil {
		c.out.Success("SQL passed the safety checks.")
		return nil
	}
	var violation *safety.Violation
	if errors.As(err, &violation) {
		c.out.Error(fmt.Sprintf("[%s] %s", violation.Rule, violation.Reason))
	} else {
		c.out.Error(err.Error())
	}
	return err
}

func (c *commands) show(outcome agent.Outcome) error {
	if c.flags.json {
		return c.out.JSON(outcome)
	}
	c.out.Outcome(outcome, c.flags.raw)
	return nil
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func positiveInt(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("expected a positive number, got %q", raw)
	}
	return value, nil
}
