package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/querypilot/querypilot/internal/history"
)

const replPrompt = "querypilot> "

// repl reads one question per line until exit, quit or end of input.
// "history [N]" lists entries and "repeat N" re-runs one.
func (c *commands) repl(ctx context.Context, s Session, in io.Reader) error {
	if in == nil {
		return errors.New("no input available for repl")
	}
	c.out.Info("Type a question, 'history [N]', 'repeat N' or 'exit'.")
	scanner := bufio.NewScanner(in)
	for {
		c.out.Prompt(replPrompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, arg, _ := strings.Cut(line, " ")
		switch strings.ToLower(command) {
		case "exit", "quit":
			return nil
		case "history":
			limit := history.DefaultListLimit
			if strings.TrimSpace(arg) != "" {
				parsed, err := positiveInt(arg)
				if err != nil {
					c.out.Error(err.Error())
					continue
				}
				limit = parsed
			}
			if err := c.history(s, limit); err != nil {
				c.out.Error(err.Error())
			}
		case "repeat":
			index, err := positiveInt(arg)
			if err != nil {
				c.out.Error(err.Error())
				continue
			}
			if err := c.repeat(ctx, s, index); err != nil {
				c.out.Error(err.Error())
			}
		default:
			if err := c.ask(ctx, s, line); err != nil {
				c.out.Error(err.Error())
			}
		}
	}
}
