package agent

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/oracle"
	"github.com/querypilot/querypilot/internal/schema"
)

const DefaultMaxParts = 5

const (
	tierOracle        = "oracle"
	tierDeterministic = "deterministic"
	tierIdentity      = "identity"
)

var naiveSplitPattern = regexp.MustCompile(`[;\n]`)

// Decomposer splits a complex request into independent sub-requests. It asks
// the oracle first, falls back to splitting on semicolons and newlines, and
// finally returns the request unchanged.
type Decomposer struct {
	Oracle  oracle.Oracle
	Prompts *Prompts
	Logger  *slog.Logger
}

// Split never returns an empty slice.
func (d *Decomposer) Split(ctx context.Context, request string, mapping schema.Mapping, maxParts int) []string {
	if maxParts <= 0 {
		maxParts = DefaultMaxParts
	}
	parts, tier := d.split(ctx, request, mapping, maxParts)
	observability.IncrementDecomposition(tier)
	observability.LoggerOrDiscard(d.Logger).DebugContext(ctx, "request_decomposed",
		slog.String("tier", tier),
		slog.Int("parts", len(parts)),
	)
	return parts
}

func (d *Decomposer) split(ctx context.Context, request string, mapping schema.Mapping, maxParts int) ([]string, string) {
	if parts := d.askOracle(ctx, request, mapping, maxParts); len(parts) >= 2 {
		return capParts(parts, maxParts), tierOracle
	}
	if parts := naiveSplit(request); len(parts) >= 2 {
		return capParts(parts, maxParts), tierDeterministic
	}
	return []string{request}, tierIdentity
}

func (d *Decomposer) askOracle(ctx context.Context, request string, mapping schema.Mapping, maxParts int) []string {
	if d.Oracle == nil {
		return nil
	}
	prompt, err := promptsOrDefault(d.Prompts).Split(request, mapping, maxParts)
	if err != nil {
		return nil
	}
	start := time.Now()
	raw, err := d.Oracle.Generate(ctx, prompt)
	observability.ObserveOracleCall("decomposer", err, time.Since(start))
	if err != nil {
		observability.LoggerOrDiscard(d.Logger).WarnContext(ctx, "decomposer_oracle_failed", slog.String("error", err.Error()))
		return nil
	}
	value, ok := oracle.ExtractJSON(raw)
	if !ok {
		return nil
	}
	return usableParts(value)
}

// usableParts accepts a JSON array, or an object holding one, and keeps its
// non-blank string and number elements.
func usableParts(value any) []string {
	items, ok := value.([]any)
	if !ok {
		obj, isObj := value.(map[string]any)
		if !isObj {
			return nil
		}
		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if list, isList := obj[key].([]any); isList {
				items = list
				break
			}
		}
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		var text string
		switch typed := item.(type) {
		case string:
			text = typed
		case float64:
			text = strconv.FormatFloat(typed, 'f', -1, 64)
		default:
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return parts
}

func naiveSplit(request string) []string {
	var parts []string
	for _, piece := range naiveSplitPattern.Split(request, -1) {
		if piece = strings.TrimSpace(piece); piece != "" {
			parts = append(parts, piece)
		}
	}
	return parts
}

func capParts(parts []string, maxParts int) []string {
	if len(parts) > maxParts {
		return parts[:maxParts]
	}
	return parts
}
