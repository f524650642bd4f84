// Package adapter defines the Adapter Registry (spec §4.3, L2): the uniform
// platform-adapter contract, activation-criteria matching, and
// dependency-ordered selection of which adapters run on which entity.
package adapter

import (
	"context"
	"sync"
	"time"

	"labtopo/internal/entity"
)

// Timeouts carries the deadlines of spec §5 down to adapter code.
type Timeouts struct {
	Ping           time.Duration
	HTTP           time.Duration
	ProbePerPort   time.Duration
	AdapterDefault time.Duration
}

// DefaultTimeouts returns the spec's default deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Ping:           500 * time.Millisecond,
		HTTP:           3000 * time.Millisecond,
		ProbePerPort:   1000 * time.Millisecond,
		AdapterDefault: 5 * time.Second,
	}
}

// Credentials is the opaque (service, key) -> value store of spec §6.
type Credentials interface {
	Get(service, key string) (string, bool)
}

// Hint is an operator pre-label applied before orchestration (spec §6).
type Hint struct {
	IP          string
	Port        int
	Name        string
	Type        entity.Type
	TokenEnvKey string
}

// Context is the ScannerContext passed to every adapter invocation. It
// carries read-mostly scan-wide state; the only writes are the scoped
// "already processed" flags set via MarkOnce (spec §4.5 Proxmox cluster
// dedup, §5 "credentials store... written once to record cluster-already-
// scanned flags").
type Context struct {
	Credentials Credentials
	SweptIPs    map[string]bool
	Timeouts    Timeouts
	Hints       []Hint

	mu    sync.Mutex
	flags map[string]bool
}

// NewContext builds a Context ready for a single scan run.
func NewContext(creds Credentials, sweptIPs map[string]bool, timeouts Timeouts, hints []Hint) *Context {
	return &Context{
		Credentials: creds,
		SweptIPs:    sweptIPs,
		Timeouts:    timeouts,
		Hints:       hints,
		flags:       make(map[string]bool),
	}
}

// IsSwept reports whether ip was found reachable by the Host Sweeper.
func (c *Context) IsSwept(ip string) bool {
	if ip == "" {
		return false
	}
	return c.SweptIPs[ip]
}

// MarkOnce atomically tests-and-sets a scoped flag, returning true the first
// time it is called for key and false on every subsequent call. Used by
// ProxmoxAdapter to skip a cluster already processed in this run.
func (c *Context) MarkOnce(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flags[key] {
		return false
	}
	c.flags[key] = true
	return true
}

// Patch is the atomic mutation an adapter requests the orchestrator apply to
// the entity it scanned (spec §9 design note: "mutation of the entity being
// scanned... reimplement by returning a patch... that the orchestrator
// applies atomically"). All fields are optional; zero value means "no
// change".
type Patch struct {
	NewType         entity.Type
	NewID           string
	NewIP           string
	IPCleared       bool
	StatusUpdate    entity.Status
	MetadataUpdates entity.Metadata

	// NewParentID reassigns the scanned entity's parent. Used only by the
	// UnraidAdapter's "host already classified" path, where the discovered
	// Unraid root must become the parent of the entity already being
	// scanned — the reverse of the normal child-gets-parent-of-scanned
	// direction a Patch otherwise can't express.
	NewParentID string
}

// HasIdentityChange reports whether applying the patch would rewrite the
// entity's id, requiring the orchestrator to rebind already-queued children.
func (p *Patch) HasIdentityChange() bool {
	return p != nil && p.NewID != ""
}

// ScanError is the structured failure payload of a ScanResult.Failure.
type ScanError struct {
	Message string
	Details string
}

// ScanResult is the outcome of one adapter invocation against one entity.
type ScanResult struct {
	OK                bool
	Discovered        []*entity.Entity
	ChildAdapterTypes []string
	Patch             *Patch
	Err               *ScanError
}

// Success builds a successful ScanResult.
func Success(discovered []*entity.Entity, childTypes []string, patch *Patch) ScanResult {
	return ScanResult{OK: true, Discovered: discovered, ChildAdapterTypes: childTypes, Patch: patch}
}

// Failure builds a failed ScanResult.
func Failure(message, details string) ScanResult {
	return ScanResult{Err: &ScanError{Message: message, Details: details}}
}

// ActivationCriteria governs whether a Platform's scan is applicable to an
// entity it doesn't already type-match (spec §4.3 selection rule, step 2).
type ActivationCriteria struct {
	RequiredOpenPorts   []int
	RequiredHTTPHeaders map[string]string // header name -> required substring (case-insensitive)
	RequiredURLPatterns []string          // e.g. "/api2/json/version", probed https-first
	CustomPredicate     func(ctx context.Context, e *entity.Entity, sctx *Context) bool
}

// Platform is the uniform adapter contract (spec §4.5, §6 AdapterContract).
type Platform interface {
	Name() string
	Priority() int
	DependsOn() []string
	OptionalDependsOn() []string
	ActivationCriteria() ActivationCriteria
	Scan(ctx context.Context, e *entity.Entity, sctx *Context) ScanResult
}

// TypeFamily returns the fixed platform family an entity's current type
// belongs to, or "" if none (spec §4.3 selection rule, step 1). An adapter
// whose Name() matches the returned family is included immediately,
// bypassing activation criteria — this lets a previously-promoted entity
// (e.g. a DockerHost revisited after a Patch) continue to attract its own
// adapter on later orchestrator passes.
func TypeFamily(t entity.Type) string {
	switch t {
	case entity.TypeProxmox, entity.TypeProxmoxCluster, entity.TypeProxmoxNode:
		return "Proxmox"
	case entity.TypeDockerHost:
		return "Docker"
	case entity.TypePortainerService:
		return "Portainer"
	case entity.TypeUnraid:
		return "Unraid"
	case entity.TypeRouter, entity.TypeAccessPoint:
		return "Router"
	default:
		return ""
	}
}
