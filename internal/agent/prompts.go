package agent

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/querypilot/querypilot/internal/database"
	"github.com/querypilot/querypilot/internal/schema"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type dialectExample struct {
	Request string
	SQL     string
}

type dialectProfile struct {
	Name     string
	Short    string
	Rules    []string
	Examples []dialectExample
}

var dialectProfiles = map[database.Dialect]dialectProfile{
	database.DialectMSSQL: {
		Name:  "Microsoft SQL Server",
		Short: "T-SQL",
		Rules: []string{
			"Use ONLY T-SQL syntax. Never use LIMIT, backticks, \"::type\" casts, ILIKE, USING joins, RETURNING or double-quoted identifiers.",
			"Use TOP (n) instead of LIMIT.",
			"Use GETDATE(), DATEADD(), EOMONTH(), YEAR(), MONTH() and FORMAT(..., 'yyyy-MM') for dates.",
		},
		Examples: []dialectExample{
			{
				Request: "List top 10 customers by total spending.",
				SQL: "SELECT TOP (10) c.CustomerID, c.Name, SUM(o.TotalAmount) AS TotalSpending\n" +
					"FROM Customers c\nJOIN Orders o ON c.CustomerID = o.CustomerID\n" +
					"GROUP BY c.CustomerID, c.Name\nORDER BY TotalSpending DESC",
			},
			{
				Request: "Show monthly sales for 2023.",
				SQL: "SELECT FORMAT(OrderDate, 'yyyy-MM') AS YearMonth, SUM(TotalAmount) AS MonthlySales\n" +
					"FROM Orders\nWHERE YEAR(OrderDate) = 2023\n" +
					"GROUP BY FORMAT(OrderDate, 'yyyy-MM')\nORDER BY YearMonth",
			},
			{
				Request: "Find all employees hired in the last 90 days.",
				SQL: "SELECT EmployeeID, FirstName, LastName, HireDate\nFROM Employees\n" +
					"WHERE HireDate >= DATEADD(DAY, -90, CAST(GETDATE() AS DATE))",
			},
		},
	},
	database.DialectPostgres: {
		Name:  "PostgreSQL",
		Short: "PostgreSQL SQL",
		Rules: []string{
			"Use only PostgreSQL syntax and functions.",
			"Do not add LIMIT or FETCH FIRST; the service applies the row limit.",
		},
	},
	database.DialectMySQL: {
		Name:  "MySQL",
		Short: "MySQL SQL",
		Rules: []string{
			"Use only MySQL 8 syntax and functions.",
			"Do not add LIMIT; the service applies the row limit.",
		},
	},
	database.DialectSQLite: {
		Name:  "SQLite",
		Short: "SQLite SQL",
		Rules: []string{
			"Use only SQLite syntax; use strftime() and date() for dates.",
			"Do not add LIMIT; the service applies the row limit.",
		},
	},
	database.DialectDuckDB: {
		Name:  "DuckDB",
		Short: "DuckDB SQL",
		Rules: []string{
			"Use only DuckDB syntax and functions.",
			"Do not add LIMIT; the service applies the row limit.",
		},
	},
}

// Prompts renders the generator, repair, validator and split prompts for one dialect.
type Prompts struct {
	dialect dialectProfile
}

func NewPrompts(dialect database.Dialect) (*Prompts, error) {
	profile, ok := dialectProfiles[dialect]
	if !ok {
		return nil, fmt.Errorf("no prompts for dialect %q", dialect)
	}
	return &Prompts{dialect: profile}, nil
}

func promptsOrDefault(p *Prompts) *Prompts {
	if p != nil {
		return p
	}
	return &Prompts{dialect: dialectProfiles[database.DialectMSSQL]}
}

type promptData struct {
	Dialect    dialectProfile
	Schema     string
	Request    string
	InvalidSQL string
	Message    string
	SQL        string
	MaxParts   int
}

func (p *Prompts) Generate(request string, mapping schema.Mapping) (string, error) {
	return p.render("generate.tmpl", promptData{Request: request}, mapping)
}

func (p *Prompts) Repair(invalidSQL, message, request string, mapping schema.Mapping) (string, error) {
	return p.render("repair.tmpl", promptData{InvalidSQL: invalidSQL, Message: message, Request: request}, mapping)
}

func (p *Prompts) Validate(sql string, mapping schema.Mapping) (string, error) {
	return p.render("validate.tmpl", promptData{SQL: sql}, mapping)
}

func (p *Prompts) Split(request string, mapping schema.Mapping, maxParts int) (string, error) {
	return p.render("split.tmpl", promptData{Request: request, MaxParts: maxParts}, mapping)
}

func (p *Prompts) render(name string, data promptData, mapping schema.Mapping) (string, error) {
	if mapping == nil {
		mapping = schema.Mapping{}
	}
	schemaJSON, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	data.Dialect = p.dialect
	data.Schema = string(schemaJSON)

	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
