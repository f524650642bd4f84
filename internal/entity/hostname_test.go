package entity

import (
	"testing"
	"time"
)

func TestHostnameInferenceAddSingleCandidate(t *testing.T) {
	inference := &HostnameInference{}
	now := time.Now()
	inference.AddCandidate("server1.local", SourcePTR, now)

	if len(inference.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(inference.Candidates))
	}
	if inference.Best == nil {
		t.Fatal("expected Best to be set")
	}
	if inference.Best.Hostname != "server1.local" {
		t.Errorf("expected 'server1.local', got %s", inference.Best.Hostname)
	}
	if inference.Best.Confidence != ConfidenceScores[SourcePTR] {
		t.Errorf("expected confidence %f, got %f", ConfidenceScores[SourcePTR], inference.Best.Confidence)
	}
}

func TestHostnameInferenceSelectsHighestConfidence(t *testing.T) {
	inference := &HostnameInference{}
	now := time.Now()

	inference.AddCandidate("ip-derived", SourceIPDerived, now)
	inference.AddCandidate("ptr-hostname", SourcePTR, now)
	inference.AddCandidate("import-hostname", SourceImport, now)

	if len(inference.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(inference.Candidates))
	}
	if inference.Best.Hostname != "ptr-hostname" {
		t.Errorf("expected 'ptr-hostname' to have highest confidence, got %s", inference.Best.Hostname)
	}
	if inference.Best.Source != SourcePTR {
		t.Errorf("expected source %s, got %s", SourcePTR, inference.Best.Source)
	}
}

func TestHostnameInferenceUpdatesExistingCandidateFromSameSource(t *testing.T) {
	inference := &HostnameInference{}
	now := time.Now()

	inference.AddCandidate("hostname1", SourcePTR, now)
	if len(inference.Candidates) != 1 {
		t.Fatalf("expected 1 candidate after first add, got %d", len(inference.Candidates))
	}

	inference.AddCandidate("hostname1", SourcePTR, now.Add(time.Minute))
	if len(inference.Candidates) != 1 {
		t.Fatalf("expected 1 candidate after update, got %d", len(inference.Candidates))
	}
	if !inference.Candidates[0].ObservedAt.Equal(now.Add(time.Minute)) {
		t.Error("expected ObservedAt to be updated")
	}
}

func TestHostnameInferenceIgnoresEmptyHostname(t *testing.T) {
	inference := &HostnameInference{}
	inference.AddCandidate("", SourcePTR, time.Now())
	if len(inference.Candidates) != 0 {
		t.Errorf("expected 0 candidates, got %d", len(inference.Candidates))
	}
}

func TestHostnameInferenceNormalizesHostname(t *testing.T) {
	inference := &HostnameInference{}
	inference.AddCandidate("  Server1.LOCAL  ", SourcePTR, time.Now())
	if len(inference.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(inference.Candidates))
	}
	if inference.Candidates[0].Hostname != "server1.local" {
		t.Errorf("expected normalized hostname 'server1.local', got %s", inference.Candidates[0].Hostname)
	}
}

func TestHostnameInferenceEmptyBeforeAnyCandidate(t *testing.T) {
	inference := &HostnameInference{}
	if got := inference.GetBestHostname(); got != "" {
		t.Errorf("expected empty string, got %s", got)
	}
	if got := inference.GetBestConfidence(); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestExtractShortName(t *testing.T) {
	tests := []struct {
		name     string
		fqdn     string
		expected string
	}{
		{"FQDN with domain", "server1.local", "server1"},
		{"FQDN with multiple levels", "server1.subdomain.example.com", "server1"},
		{"short hostname", "server1", "server1"},
		{"empty string", "", ""},
		{"single character", "s", "s"},
		{"single dot", ".", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractShortName(tt.fqdn); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestConfidenceScores(t *testing.T) {
	if ConfidenceScores[SourceOperatorTruth] != 1.0 {
		t.Errorf("expected operator truth confidence to be 1.0, got %f", ConfidenceScores[SourceOperatorTruth])
	}
	for source, score := range ConfidenceScores {
		if score < 0 || score > 1 {
			t.Errorf("source %s has invalid confidence %f (must be 0-1)", source, score)
		}
	}
	if ConfidenceScores[SourcePTR] < 0.9 {
		t.Errorf("expected PTR confidence >= 0.9, got %f", ConfidenceScores[SourcePTR])
	}
	if ConfidenceScores[SourceUnknown] > 0.1 {
		t.Errorf("expected unknown confidence <= 0.1, got %f", ConfidenceScores[SourceUnknown])
	}
}
