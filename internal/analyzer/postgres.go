package analyzer

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type pgExplain struct {
	Plan          pgNode  `json:"Plan"`
	ExecutionTime float64 `json:"Execution Time"` // ms
}

type pgNode struct {
	NodeType         string   `json:"Node Type"`
	RelationName     string   `json:"Relation Name"`
	IndexName        string   `json:"Index Name"`
	TotalCost        float64  `json:"Total Cost"`
	PlanRows         int64    `json:"Plan Rows"`
	ActualRows       int64    `json:"Actual Rows"`
	ActualLoops      int64    `json:"Actual Loops"`
	SharedHitBlocks  int64    `json:"Shared Hit Blocks"`
	SharedReadBlocks int64    `json:"Shared Read Blocks"`
	Plans            []pgNode `json:"Plans"`
}

func parsePostgres(raw string) (*Plan, error) {
	var out []pgExplain
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no plan")
	}
	root := out[0]
	plan := &Plan{
		Cost:          root.Plan.TotalCost,
		EstimatedRows: root.Plan.PlanRows,
		Raw:           raw,
	}
	walkPostgres(&root.Plan, plan)
	if root.ExecutionTime > 0 {
		plan.ActualTime = time.Duration(root.ExecutionTime * float64(time.Millisecond))
	}
	return plan, nil
}

func walkPostgres(n *pgNode, plan *Plan) {
	step := n.NodeType
	if n.RelationName != "" {
		step += " on " + n.RelationName
	}
	plan.Steps = append(plan.Steps, step)

	switch {
	case strings.Contains(n.NodeType, "Index"):
		plan.UsesIndex = true
		if plan.IndexName == "" {
			plan.IndexName = n.IndexName
		}
	case n.NodeType == "Seq Scan":
		plan.FullScan = true
	}

	loops := n.ActualLoops
	if loops == 0 {
		loops = 1
	}
	plan.ActualRows += n.ActualRows * loops
	plan.BuffersHit += n.SharedHitBlocks
	plan.BuffersMiss += n.SharedReadBlocks

	for i := range n.Plans {
		walkPostgres(&n.Plans[i], plan)
	}
}
