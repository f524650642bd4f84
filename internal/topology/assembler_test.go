package topology

import (
	"testing"
	"time"

	"labtopo/internal/entity"
)

func TestAssembleDeduplicatesByIDFirstOccurrenceWins(t *testing.T) {
	first := entity.New("a", "192.168.1.1", entity.TypeRouter)
	first.Name = "first"
	dup := entity.New("a", "192.168.1.1", entity.TypeRouter)
	dup.Name = "duplicate"

	report := Assemble("scan-1", []string{"192.168.1.0/24"}, []*entity.Entity{first, dup}, nil)

	if len(report.Entities) != 1 {
		t.Fatalf("expected dedup down to one entity, got %d", len(report.Entities))
	}
	if report.Entities[0].Name != "first" {
		t.Fatalf("expected first occurrence to win, got %q", report.Entities[0].Name)
	}
}

func TestAssembleIgnoresNilEntities(t *testing.T) {
	e := entity.New("a", "192.168.1.1", entity.TypeRouter)

	report := Assemble("scan-1", nil, []*entity.Entity{e, nil}, nil)

	if len(report.Entities) != 1 {
		t.Fatalf("expected nil entries skipped, got %d", len(report.Entities))
	}
}

func TestAssembleComputesSummaryCounters(t *testing.T) {
	a := entity.New("a", "192.168.1.1", entity.TypeRouter)
	a.Status = entity.StatusReachable
	b := entity.New("b", "192.168.1.2", entity.TypeNas)
	b.Status = entity.StatusReachable
	c := entity.New("c", "192.168.1.3", entity.TypeUnknown)
	c.Status = entity.StatusUnverified

	report := Assemble("scan-1", nil, []*entity.Entity{a, b, c}, nil)

	if report.Summary.ByStatus[entity.StatusReachable] != 2 {
		t.Fatalf("expected 2 reachable, got %d", report.Summary.ByStatus[entity.StatusReachable])
	}
	if report.Summary.ByStatus[entity.StatusUnverified] != 1 {
		t.Fatalf("expected 1 unverified, got %d", report.Summary.ByStatus[entity.StatusUnverified])
	}
	if report.Summary.ByType[entity.TypeRouter] != 1 || report.Summary.ByType[entity.TypeNas] != 1 {
		t.Fatalf("unexpected type tally: %+v", report.Summary.ByType)
	}
}

func TestAssembleCopiesSubnetsAndConflictsDefensively(t *testing.T) {
	subnets := []string{"192.168.1.0/24"}
	conflicts := []entity.Conflict{{Type: entity.ConflictIPMismatch}}

	report := Assemble("scan-1", subnets, nil, conflicts)

	subnets[0] = "mutated"
	conflicts[0].Type = "mutated"

	if report.Subnets[0] != "192.168.1.0/24" {
		t.Fatalf("expected Assemble to copy subnets defensively, got %q", report.Subnets[0])
	}
	if report.Conflicts[0].Type != entity.ConflictIPMismatch {
		t.Fatalf("expected Assemble to copy conflicts defensively, got %q", report.Conflicts[0].Type)
	}
}

func TestNewScanIDFormat(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	got := NewScanID(ts)
	want := "scan-20260305-143000"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
