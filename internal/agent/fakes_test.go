package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/schema"
)

// scriptedOracle replies in order; the last reply repeats once the script runs out.
type scriptedOracle struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (o *scriptedOracle) Generate(_ context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := len(o.prompts)
	o.prompts = append(o.prompts, prompt)
	var err error
	if i < len(o.errs) {
		err = o.errs[i]
	}
	if len(o.replies) == 0 {
		return "", err
	}
	if i >= len(o.replies) {
		i = len(o.replies) - 1
	}
	return o.replies[i], err
}

func (o *scriptedOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prompts)
}

// routedOracle answers by the first rule whose key appears in the prompt.
type routedOracle struct {
	routes   []route
	fallback string
}

type route struct {
	contains string
	reply    string
}

func (o routedOracle) Generate(_ context.Context, prompt string) (string, error) {
	for _, r := range o.routes {
		if strings.Contains(prompt, r.contains) {
			return r.reply, nil
		}
	}
	if o.fallback == "" {
		return "", errors.New("no route")
	}
	return o.fallback, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	results  map[string]query.Result
	errs     map[string]error
	requests []query.Request
}

func (e *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if err := e.errs[req.SQL]; err != nil {
		return query.Result{}, err
	}
	result, ok := e.results[req.SQL]
	if !ok {
		return query.Result{}, errors.New("unexpected sql: " + req.SQL)
	}
	result.SQLExecuted = req.SQL
	return result, nil
}

type fakeSchema struct {
	columns map[string][]schema.Column
	err     error
}

func (f fakeSchema) ListTables(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	tables := make([]string, 0, len(f.columns))
	for table := range f.columns {
		tables = append(tables, table)
	}
	return tables, nil
}

func (f fakeSchema) Columns(_ context.Context, table string) ([]schema.Column, error) {
	columns, ok := f.columns[table]
	if !ok {
		return nil, schema.ErrTableNotFound
	}
	return columns, nil
}

var salesMapping = schema.Mapping{
	"Sales":     {"SaleID", "Region", "Amount", "SaleDate"},
	"Customers": {"CustomerID", "Name", "Region"},
}

func salesSchema() fakeSchema {
	return fakeSchema{columns: map[string][]schema.Column{
		"Sales":     {{Name: "SaleID"}, {Name: "Region"}, {Name: "Amount"}, {Name: "SaleDate"}},
		"Customers": {{Name: "CustomerID"}, {Name: "Name"}, {Name: "Region"}},
	}}
}

func genReply(sql string) string {
	return `{"sql": "` + sql + `", "notes": "ok", "parameters": null}`
}

const validReply = `{"valid": true, "message": "looks good", "fixed_sql": null}`
