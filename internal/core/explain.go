package core

import "github.com/coregx/strata/internal/analyzer"

// Explain runs EXPLAIN for the statement and summarizes the plan.
func (s *Statement) Explain() (*analyzer.Plan, error) {
	return s.explain(false)
}

// ExplainAnalyze executes the statement under EXPLAIN ANALYZE. Only
// PostgreSQL supports it.
func (s *Statement) ExplainAnalyze() (*analyzer.Plan, error) {
	return s.explain(true)
}

func (s *Statement) explain(analyze bool) (*analyzer.Plan, error) {
	name := s.dialect.Name()
	prefix, err := analyzer.Prefix(name, analyze)
	if err != nil {
		return nil, err
	}
	q := s.Build()
	if q.err != nil {
		return nil, q.err
	}
	q.sql = prefix + q.sql

	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return analyzer.Parse(name, out)
}
