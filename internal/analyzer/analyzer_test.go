package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		dialect string
		analyze bool
		want    string
		wantErr bool
	}{
		{"postgres", false, "EXPLAIN (FORMAT JSON) ", false},
		{"postgres", true, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) ", false},
		{"mysql", false, "EXPLAIN FORMAT=JSON ", false},
		{"mysql", true, "", true},
		{"sqlite", false, "EXPLAIN QUERY PLAN ", false},
		{"sqlite", true, "", true},
		{"oracle", false, "", true},
	}
	for _, tt := range tests {
		got, err := Prefix(tt.dialect, tt.analyze)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupported, tt.dialect)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParse_Postgres(t *testing.T) {
	raw := `[{"Plan": {"Node Type": "Nested Loop", "Total Cost": 16.5, "Plan Rows": 3,
		"Actual Rows": 3, "Actual Loops": 1,
		"Plans": [
			{"Node Type": "Seq Scan", "Relation Name": "posts", "Total Cost": 1.1, "Plan Rows": 10,
			 "Actual Rows": 3, "Actual Loops": 1, "Shared Hit Blocks": 2},
			{"Node Type": "Index Scan", "Relation Name": "users", "Index Name": "users_pkey", "Total Cost": 0.3, "Plan Rows": 1,
			 "Actual Rows": 1, "Actual Loops": 3, "Shared Hit Blocks": 6, "Shared Read Blocks": 1}
		]}, "Execution Time": 1.5}]`

	plan, err := Parse("postgres", []map[string]any{{"QUERY PLAN": []byte(raw)}})
	require.NoError(t, err)
	assert.Equal(t, "postgres", plan.Dialect)
	assert.Equal(t, 16.5, plan.Cost)
	assert.Equal(t, int64(3), plan.EstimatedRows)
	assert.True(t, plan.UsesIndex)
	assert.Equal(t, "users_pkey", plan.IndexName)
	assert.True(t, plan.FullScan)
	assert.Equal(t, []string{"Nested Loop", "Seq Scan on posts", "Index Scan on users"}, plan.Steps)
	assert.Equal(t, int64(9), plan.ActualRows)
	assert.Equal(t, int64(8), plan.BuffersHit)
	assert.Equal(t, int64(1), plan.BuffersMiss)
	assert.Equal(t, 1500*time.Microsecond, plan.ActualTime)
	assert.Equal(t, raw, plan.Raw)
}

func TestParse_MySQL(t *testing.T) {
	raw := `{"query_block": {"select_id": 1, "cost_info": {"query_cost": "4.75"},
		"ordering_operation": {"using_filesort": true,
			"nested_loop": [
				{"table": {"table_name": "p", "access_type": "ALL", "rows_examined_per_scan": 12}},
				{"table": {"table_name": "u", "access_type": "eq_ref", "key": "PRIMARY", "rows_examined_per_scan": 1}}
			]}}}`

	plan, err := Parse("mysql", []map[string]any{{"EXPLAIN": raw}})
	require.NoError(t, err)
	assert.Equal(t, 4.75, plan.Cost)
	assert.Equal(t, int64(13), plan.EstimatedRows)
	assert.True(t, plan.UsesIndex)
	assert.Equal(t, "PRIMARY", plan.IndexName)
	assert.True(t, plan.FullScan)
	assert.Equal(t, []string{"ALL on p", "eq_ref on u"}, plan.Steps)
}

func TestParse_SQLite(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		usesIndex bool
		index     string
		fullScan  bool
	}{
		{"scan", []string{"SCAN users"}, false, "", true},
		{"index", []string{"SEARCH users USING INDEX idx_email (email=?)"}, true, "idx_email", false},
		{"covering", []string{"SCAN users USING COVERING INDEX idx_name"}, true, "idx_name", false},
		{"rowid", []string{"SEARCH users USING INTEGER PRIMARY KEY (rowid=?)"}, true, "PRIMARY KEY", false},
		{"join", []string{"SCAN p", "SEARCH u USING INTEGER PRIMARY KEY (rowid=?)"}, true, "PRIMARY KEY", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]map[string]any, len(tt.lines))
			for i, l := range tt.lines {
				rows[i] = map[string]any{"id": int64(i + 2), "parent": int64(0), "notused": int64(0), "detail": l}
			}
			plan, err := Parse("sqlite", rows)
			require.NoError(t, err)
			assert.Equal(t, tt.usesIndex, plan.UsesIndex)
			assert.Equal(t, tt.index, plan.IndexName)
			assert.Equal(t, tt.fullScan, plan.FullScan)
			assert.Equal(t, tt.lines, plan.Steps)
			assert.Zero(t, plan.Cost)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("sqlite", nil)
	assert.Error(t, err)

	_, err = Parse("postgres", []map[string]any{{"QUERY PLAN": "not json"}})
	assert.Error(t, err)

	_, err = Parse("postgres", []map[string]any{{"QUERY PLAN": "[]"}})
	assert.Error(t, err)

	_, err = Parse("oracle", []map[string]any{{"x": 1}})
	assert.ErrorIs(t, err, ErrUnsupported)
}
