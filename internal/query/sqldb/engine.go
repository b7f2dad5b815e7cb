package sqldb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/querypilot/querypilot/internal/database"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/safety"
)

var (
	leadingSelectPattern = regexp.MustCompile(`(?i)^\s*SELECT(\s+DISTINCT)?\b`)
	hasTopPattern        = regexp.MustCompile(`(?i)^\s*SELECT\s+(DISTINCT\s+)?TOP\b`)
	hasOffsetPattern     = regexp.MustCompile(`(?i)\bOFFSET\b`)
	hasLimitPattern      = regexp.MustCompile(`(?i)\bLIMIT\b|\bFETCH\s+(NEXT|FIRST)\b`)
)

type Engine struct {
	db           *sql.DB
	dialect      database.Dialect
	queryTimeout time.Duration
}

func NewEngine(db *sql.DB, dialect database.Dialect, queryTimeout time.Duration) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dialect.DriverName() == "" {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Engine{db: db, dialect: dialect, queryTimeout: queryTimeout}, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if err := safety.Check(request.SQL); err != nil {
		return query.Result{}, fmt.Errorf("refusing to execute: %w", err)
	}
	if request.RowLimit <= 0 {
		return query.Result{}, fmt.Errorf("row limit must be > 0")
	}

	sqlText := ApplyRowLimit(e.dialect, request.SQL, request.RowLimit)
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.run(ctx, sqlText, request.RowLimit)
	observability.ObserveQueryExecution(err, time.Since(start))
	if err != nil {
		return query.Result{}, err
	}
	result.SQLExecuted = sqlText
	return result, nil
}

func (e *Engine) run(ctx context.Context, sqlText string, rowLimit int) (query.Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for len(resultRows) < rowLimit && rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return query.Result{Columns: columns, Rows: resultRows}, nil
}

// ApplyRowLimit adds the dialect's row ceiling unless the statement has one.
// SQL Server gets TOP (n) after a leading SELECT; CTEs and OFFSET ... FETCH
// statements there rely on the scan ceiling alone, since TOP cannot be mixed
// with OFFSET. Other dialects get a trailing LIMIT on the statement itself so
// output column names stay as written.
func ApplyRowLimit(dialect database.Dialect, sqlText string, rowLimit int) string {
	trimmed := stripTrailingSemicolons(sqlText)
	if dialect == database.DialectMSSQL {
		if hasTopPattern.MatchString(trimmed) || hasOffsetPattern.MatchString(trimmed) || !leadingSelectPattern.MatchString(trimmed) {
			return trimmed
		}
		loc := leadingSelectPattern.FindStringSubmatchIndex(trimmed)
		distinct := ""
		if loc[2] >= 0 {
			distinct = " DISTINCT"
		}
		return fmt.Sprintf("SELECT%s TOP (%d)%s", distinct, rowLimit, trimmed[loc[1]:])
	}
	if hasLimitPattern.MatchString(trimmed) {
		return trimmed
	}
	// Newline so a trailing line comment cannot swallow the clause.
	return fmt.Sprintf("%s\nLIMIT %d", trimmed, rowLimit)
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			if utf8.Valid(typed) {
				normalized[i] = string(typed)
			} else {
				normalized[i] = "0x" + hex.EncodeToString(typed)
			}
		case time.Time:
			normalized[i] = typed.UTC().Format(time.RFC3339Nano)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
