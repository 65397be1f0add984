package analyzer

import (
	"encoding/json"

	"github.com/spf13/cast"
)

type myExplain struct {
	QueryBlock myBlock `json:"query_block"`
}

type myBlock struct {
	CostInfo   myCost     `json:"cost_info"`
	Table      *myTable   `json:"table"`
	NestedLoop []myNested `json:"nested_loop"`
	Grouping   *myBlock   `json:"grouping_operation"`
	Ordering   *myBlock   `json:"ordering_operation"`
}

type myNested struct {
	Table *myTable `json:"table"`
}

type myTable struct {
	TableName           string `json:"table_name"`
	AccessType          string `json:"access_type"`
	Key                 string `json:"key"`
	RowsExaminedPerScan int64  `json:"rows_examined_per_scan"`
}

type myCost struct {
	QueryCost string `json:"query_cost"`
}

func parseMySQL(raw string) (*Plan, error) {
	var out myExplain
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	plan := &Plan{Raw: raw}
	plan.Cost = cast.ToFloat64(out.QueryBlock.CostInfo.QueryCost)
	walkMySQL(&out.QueryBlock, plan)
	return plan, nil
}

// walkMySQL visits the table accesses of a block, including the ones nested
// under joins, GROUP BY and ORDER BY.
func walkMySQL(b *myBlock, plan *Plan) {
	if b == nil {
		return
	}
	visitMySQLTable(b.Table, plan)
	for _, n := range b.NestedLoop {
		visitMySQLTable(n.Table, plan)
	}
	walkMySQL(b.Grouping, plan)
	walkMySQL(b.Ordering, plan)
}

func visitMySQLTable(t *myTable, plan *Plan) {
	if t == nil {
		return
	}
	plan.Steps = append(plan.Steps, t.AccessType+" on "+t.TableName)
	if t.Key != "" {
		plan.UsesIndex = true
		if plan.IndexName == "" {
			plan.IndexName = t.Key
		}
	}
	if t.AccessType == "ALL" {
		plan.FullScan = true
	}
	plan.EstimatedRows += t.RowsExaminedPerScan
}
