package topology

import (
	"time"

	"labtopo/internal/entity"
)

// Assemble deduplicates universe by id (first occurrence wins, spec §4.9),
// computes summary counters, and freezes the result into a TopologyReport.
func Assemble(scanID string, subnets []string, universe []*entity.Entity, conflicts []entity.Conflict) *entity.TopologyReport {
	seen := make(map[string]bool, len(universe))
	entities := make([]entity.Entity, 0, len(universe))
	for _, e := range universe {
		if e == nil || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		entities = append(entities, *e)
	}

	summary := entity.Summary{
		ByType:   make(map[entity.Type]int),
		ByStatus: make(map[entity.Status]int),
	}
	for _, e := range entities {
		summary.ByType[e.Type]++
		summary.ByStatus[e.Status]++
	}

	return &entity.TopologyReport{
		Timestamp: time.Now(),
		ScanID:    scanID,
		Subnets:   append([]string(nil), subnets...),
		Entities:  entities,
		Conflicts: append([]entity.Conflict(nil), conflicts...),
		Summary:   summary,
	}
}

// NewScanID formats a time-ordered scan id per spec §6's persisted-state
// layout ("scan-YYYYMMDD-HHMMSS", UTC).
func NewScanID(t time.Time) string {
	return "scan-" + t.UTC().Format("20060102-150405")
}
