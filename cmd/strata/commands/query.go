package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/coregx/strata"
)

type queryOptions struct {
	table   string
	columns []string
	wheres  []string
	orWhere []string
	orders  []string
	limit   int64
	offset  int64
	count   bool
	explain bool
	run     bool
	dialect string
}

// NewQueryCommand compiles a SELECT from flags. By default it only prints
// the SQL and its bindings; --run executes it.
func NewQueryCommand() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compile a SELECT statement and optionally run it",
		Example: `  strata query --dialect postgres --table users --where "age >= 18" --order "name desc" --limit 10
  strata query --table users --where "status in active,pending" --count --run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.table, "table", "t", "", "table to select from")
	f.StringSliceVarP(&opts.columns, "select", "s", nil, "columns to select")
	f.StringArrayVarP(&opts.wheres, "where", "w", nil, `condition "column op value", joined with AND`)
	f.StringArrayVar(&opts.orWhere, "or-where", nil, `condition "column op value", joined with OR`)
	f.StringArrayVarP(&opts.orders, "order", "o", nil, `ordering "column [asc|desc]"`)
	f.Int64Var(&opts.limit, "limit", -1, "maximum number of rows")
	f.Int64Var(&opts.offset, "offset", -1, "rows to skip")
	f.BoolVar(&opts.count, "count", false, "count matching rows instead of fetching them")
	f.BoolVar(&opts.explain, "explain", false, "with --run, print the query plan instead of rows")
	f.BoolVar(&opts.run, "run", false, "execute the statement")
	f.StringVar(&opts.dialect, "dialect", "", "dialect for a dry run (defaults to --driver, then postgres)")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *queryOptions) error {
	out := cmd.OutOrStdout()

	if !opts.run {
		dialect := opts.dialect
		if dialect == "" {
			dialect, _ = cmd.Flags().GetString(flagDriver)
		}
		if dialect == "" {
			dialect = "postgres"
		}
		if _, ok := strata.LookupDialect(dialect); !ok {
			return fmt.Errorf("unsupported dialect %q", dialect)
		}
		stmt, err := buildStatement(strata.NewStatement(dialect), opts)
		if err != nil {
			return err
		}
		return printSQL(out, stmt, opts.count)
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	stmt, err := buildStatement(db.WithContext(cmd.Context()).Table(opts.table), opts)
	if err != nil {
		return err
	}
	if opts.explain {
		plan, err := stmt.Explain()
		if err != nil {
			return err
		}
		printPlan(out, plan)
		return nil
	}
	if opts.count {
		n, err := stmt.Count()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, n)
		return nil
	}
	rows, err := stmt.GetRows()
	if err != nil {
		return err
	}
	return printRows(out, rows, opts.columns)
}

func buildStatement(stmt *strata.Statement, opts *queryOptions) (*strata.Statement, error) {
	stmt = stmt.Table(opts.table)
	if len(opts.columns) > 0 {
		stmt = stmt.Select(opts.columns...)
	}
	for _, w := range opts.wheres {
		column, op, value, err := parseCondition(w)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where(column, op, value)
	}
	for _, w := range opts.orWhere {
		column, op, value, err := parseCondition(w)
		if err != nil {
			return nil, err
		}
		stmt = stmt.OrWhere(column, op, value)
	}
	for _, o := range opts.orders {
		parts := strings.Fields(o)
		switch len(parts) {
		case 1:
			stmt = stmt.OrderBy(parts[0], "")
		case 2:
			stmt = stmt.OrderBy(parts[0], parts[1])
		default:
			return nil, fmt.Errorf("invalid order %q", o)
		}
	}
	stmt = stmt.Limit(opts.limit).Offset(opts.offset)
	return stmt, stmt.Err()
}

var errConditionFormat = errors.New(`condition must look like "column op value"`)

// parseCondition splits "column op value". Two-word operators such as
// "not in" and "is not" are recognized. List operators take comma
// separated values and "null" means NULL.
func parseCondition(s string) (column, op string, value any, err error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return "", "", nil, fmt.Errorf("%w: %q", errConditionFormat, s)
	}
	column = fields[0]
	op = strings.ToUpper(fields[1])
	rest := fields[2:]
	if len(rest) > 1 {
		switch two := op + " " + strings.ToUpper(rest[0]); two {
		case "NOT IN", "NOT LIKE", "IS NOT":
			op, rest = two, rest[1:]
		}
	}
	raw := strings.Join(rest, " ")

	switch op {
	case "IN", "NOT IN", "BETWEEN":
		var list []any
		for _, item := range strings.Split(raw, ",") {
			list = append(list, parseValue(strings.TrimSpace(item)))
		}
		return column, op, list, nil
	}
	return column, op, parseValue(raw), nil
}

// parseValue converts a literal to int64, float64, bool or nil when it
// looks like one. Quoted literals stay strings.
func parseValue(s string) any {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "true", "false":
		return cast.ToBool(s)
	}
	if n, err := cast.ToInt64E(s); err == nil {
		return n
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	return s
}

func printSQL(out io.Writer, stmt *strata.Statement, count bool) error {
	q := stmt.Build()
	if count {
		q = stmt.CountQuery()
	}
	if err := q.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out, q.SQL())
	if params := q.Params(); len(params) > 0 {
		fmt.Fprintf(out, "-- bindings: %s\n", formatArgs(params))
	}
	return nil
}

func printPlan(out io.Writer, plan *strata.Plan) {
	for _, step := range plan.Steps {
		fmt.Fprintf(out, "-> %s\n", step)
	}
	index := plan.IndexName
	if index == "" {
		index = "none"
	}
	fmt.Fprintf(out, "cost=%s rows=%d index=%s full_scan=%t\n",
		cast.ToString(plan.Cost), plan.EstimatedRows, index, plan.FullScan)
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case nil:
			parts[i] = "NULL"
		case string:
			parts[i] = fmt.Sprintf("%q", v)
		default:
			parts[i] = cast.ToString(v)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func printRows(out io.Writer, rows []strata.Row, selected []string) error {
	columns := rowColumns(rows, selected)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			if v := row[c]; v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = cast.ToString(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "(%d rows)\n", len(rows))
	return nil
}

// rowColumns lists the keys found in rows, in --select order first and
// alphabetically after that.
func rowColumns(rows []strata.Row, selected []string) []string {
	rank := make(map[string]int, len(selected))
	for i, c := range selected {
		if dot := strings.LastIndex(c, "."); dot >= 0 {
			c = c[dot+1:]
		}
		if _, ok := rank[c]; !ok {
			rank[c] = i
		}
	}

	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		ri, iok := rank[columns[i]]
		rj, jok := rank[columns[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return columns[i] < columns[j]
	})
	return columns
}
