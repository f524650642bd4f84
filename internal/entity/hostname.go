package entity

import (
	"strings"
	"time"
)

// HostnameSource identifies where a HostnameCandidate came from.
type HostnameSource string

const (
	// SourceOperatorTruth is a name an operator asserted directly; it always
	// outranks anything discovered.
	SourceOperatorTruth HostnameSource = "operator_truth"
	// SourcePTR is a reverse-DNS lookup performed by the Port Prober.
	SourcePTR HostnameSource = "ptr"
	// SourceSSHBanner is a hostname parsed out of an SSH banner.
	SourceSSHBanner HostnameSource = "ssh_banner"
	// SourceSMTPBanner is a hostname parsed out of an SMTP banner.
	SourceSMTPBanner HostnameSource = "smtp_banner"
	// SourceAdapter is a name an adapter read directly from the platform it
	// queried (e.g. SNMP's sysName, Unraid's container name).
	SourceAdapter HostnameSource = "adapter"
	// SourceImport is a name carried over from a prior run's history rather
	// than freshly observed.
	SourceImport HostnameSource = "import"
	// SourceIPDerived is a synthesized name with little independent
	// confidence (e.g. a reverse-IP-style hostname some DHCP servers
	// fabricate).
	SourceIPDerived HostnameSource = "ip_derived"
	// SourceUnknown is the fallback for a candidate with no better
	// provenance.
	SourceUnknown HostnameSource = "unknown"
)

// ConfidenceScores ranks HostnameSource reliability: operator truth is
// authoritative, PTR is trustworthy DNS, banners and adapter-reported names
// are the platform's own account, import and ip-derived names are
// progressively weaker guesses.
var ConfidenceScores = map[HostnameSource]float64{
	SourceOperatorTruth: 1.0,
	SourcePTR:           0.95,
	SourceSSHBanner:     0.8,
	SourceSMTPBanner:    0.75,
	SourceAdapter:       0.7,
	SourceImport:        0.5,
	SourceIPDerived:     0.3,
	SourceUnknown:       0.05,
}

// HostnameCandidate is one observed hostname and the confidence its source
// carries.
type HostnameCandidate struct {
	Hostname   string         `json:"hostname"`
	Source     HostnameSource `json:"source"`
	Confidence float64        `json:"confidence"`
	ObservedAt time.Time      `json:"observed_at"`
}

// HostnameInference accumulates HostnameCandidates from multiple sources and
// tracks the highest-confidence one. Held in an Entity's HostnameInference
// field when present.
type HostnameInference struct {
	Candidates []HostnameCandidate `json:"candidates,omitempty"`
	Best       *HostnameCandidate  `json:"best,omitempty"`
}

// AddCandidate records a hostname observation, normalizing it (trim,
// lowercase) and ignoring an empty value. A second observation from the same
// source updates that candidate in place rather than appending a duplicate.
func (h *HostnameInference) AddCandidate(hostname string, source HostnameSource, observedAt time.Time) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return
	}
	confidence := ConfidenceScores[source]

	for i := range h.Candidates {
		if h.Candidates[i].Source == source {
			h.Candidates[i].Hostname = hostname
			h.Candidates[i].Confidence = confidence
			h.Candidates[i].ObservedAt = observedAt
			h.recomputeBest()
			return
		}
	}

	h.Candidates = append(h.Candidates, HostnameCandidate{
		Hostname: hostname, Source: source, Confidence: confidence, ObservedAt: observedAt,
	})
	h.recomputeBest()
}

func (h *HostnameInference) recomputeBest() {
	var best *HostnameCandidate
	for i := range h.Candidates {
		c := &h.Candidates[i]
		if best == nil || c.Confidence > best.Confidence {
			best = c
		}
	}
	h.Best = best
}

// GetBestHostname returns the highest-confidence hostname, or "" if no
// candidate has been recorded.
func (h *HostnameInference) GetBestHostname() string {
	if h.Best == nil {
		return ""
	}
	return h.Best.Hostname
}

// GetBestConfidence returns the highest-confidence score, or 0 if no
// candidate has been recorded.
func (h *HostnameInference) GetBestConfidence() float64 {
	if h.Best == nil {
		return 0
	}
	return h.Best.Confidence
}

// ExtractShortName returns the first label of a dotted hostname, or the
// input unchanged if there is no label boundary to cut at.
func ExtractShortName(fqdn string) string {
	idx := strings.Index(fqdn, ".")
	if idx <= 0 {
		return fqdn
	}
	return fqdn[:idx]
}
