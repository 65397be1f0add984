package analyzer

import "strings"

// parseSQLite reads EXPLAIN QUERY PLAN detail lines such as
//
//	SCAN users
//	SEARCH users USING INDEX idx_email (email=?)
//	SEARCH users USING INTEGER PRIMARY KEY (rowid=?)
func parseSQLite(lines []string) *Plan {
	plan := &Plan{Steps: lines, Raw: strings.Join(lines, "\n")}
	for _, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.Contains(upper, "USING INTEGER PRIMARY KEY"), strings.Contains(upper, "USING PRIMARY KEY"):
			plan.UsesIndex = true
			setIndex(plan, "PRIMARY KEY")
		case strings.Contains(upper, "USING AUTOMATIC"):
			plan.UsesIndex = true
			setIndex(plan, "AUTOMATIC INDEX")
		case strings.Contains(upper, "INDEX "):
			plan.UsesIndex = true
			setIndex(plan, indexAfter(line, "INDEX "))
		case strings.HasPrefix(upper, "SCAN "):
			plan.FullScan = true
		}
	}
	return plan
}

func setIndex(plan *Plan, name string) {
	if plan.IndexName == "" {
		plan.IndexName = name
	}
}

// indexAfter returns the word following marker, stopping at a space or "(".
func indexAfter(line, marker string) string {
	i := strings.Index(strings.ToUpper(line), marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimSpace(line[i+len(marker):])
	if end := strings.IndexAny(rest, " ("); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
