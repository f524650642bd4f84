// Package entity defines the core graph value types for the discovery pipeline:
// Entity, Conflict, and TopologyReport, plus the metadata Value variant they
// carry. It has no dependency on any other package in this module — every
// pipeline stage (sweep, probe, adapter, orchestrator, correlate, conflict,
// diff, topology) depends on entity, never the other way around.
package entity

import "time"

// Type is the platform/role classification of an Entity.
type Type string

const (
	TypeUnknown          Type = "Unknown"
	TypeProxmox          Type = "Proxmox"
	TypeProxmoxCluster   Type = "ProxmoxCluster"
	TypeProxmoxNode      Type = "ProxmoxNode"
	TypePC               Type = "PC"
	TypeVm               Type = "Vm"
	TypeLxc              Type = "Lxc"
	TypeDockerHost       Type = "DockerHost"
	TypeContainer        Type = "Container"
	TypePortainerService Type = "PortainerService"
	TypePortainerStack   Type = "PortainerStack"
	TypeUnraid           Type = "Unraid"
	TypeNas              Type = "Nas"
	TypeService          Type = "Service"
	TypeRouter           Type = "Router"
	TypeAccessPoint      Type = "AccessPoint"
)

// Status is the verification state of an Entity.
type Status string

const (
	StatusReachable   Status = "Reachable"
	StatusUnreachable Status = "Unreachable"
	StatusUnverified  Status = "Unverified"
	StatusConflicting Status = "Conflicting"
	StatusStale       Status = "Stale"
)

// Reserved metadata keys the core interprets or that adapters are expected to
// use consistently so correlation/conflict detection can rely on them.
const (
	MetaDockerID          = "docker_id"
	MetaContainerID       = "container_id"
	MetaContainerImage    = "container_image"
	MetaExposedPorts      = "exposed_ports"
	MetaProxmoxVMID       = "proxmox_vmid"
	MetaProxmoxNode       = "proxmox_node"
	MetaPortainerStackID  = "portainer_stack_id"
	MetaAPIReportedIP     = "api_reported_ip"
	MetaMACAddress        = "mac_address"
	MetaScanError         = "scan_error"
	MetaScanErrorReason   = "scan_error_reason"
	MetaScanException     = "scan_exception"
	MetaContainerIDs      = "container_ids"
	MetaHintTokenEnv      = "hint_token_env"
	MetaReason            = "reason"
	MetaHostnameInference = "hostname_inference"

	// MetaClusterNodeIPs is not one of the core-reserved keys enumerated in
	// spec §6 — it is a ProxmoxAdapter/Correlation-Engine-private
	// bookkeeping key (the cluster's member IPs) the core never interprets
	// beyond correlation pass 4 consuming it.
	MetaClusterNodeIPs = "cluster_node_ips"

	// MetaDHCPLeases is a RouterAdapter/Correlation-Engine-private
	// bookkeeping key: a Mapping of ip -> "mac|hostname|role|isAccessPoint"
	// published on the Router entity itself, consumed only by the mac
	// address enrichment correlation pass.
	MetaDHCPLeases = "dhcp_leases"
)

// NoParent is the distinct sentinel for "root; orchestrator must not
// re-parent" — as opposed to an unset ParentID, which means "not yet
// assigned" and is eligible for the orchestrator to fill in with the
// enqueuing entity's id.
const NoParent = ""

// unsetParent is a private sentinel distinguishing "never assigned" from the
// public NoParent sentinel "explicitly rooted". Entities constructed via New
// start in the unset state so the orchestrator's parent-assignment rule in
// §4.4 step 4 ("if C.parentId is unset...") has something to test against.
const unsetParent = "\x00unset"

// Certificate summarizes a TLS certificate observed during a probe or adapter
// contact.
type Certificate struct {
	IsSelfSigned bool      `json:"is_self_signed"`
	Issuer       string    `json:"issuer,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
}

// Entity is the central record of the topology graph (spec §3.1).
type Entity struct {
	ID          string        `json:"id"`
	IP          string        `json:"ip,omitempty"`
	Type        Type          `json:"type"`
	Name        string        `json:"name,omitempty"`
	ParentID    string        `json:"parent_id"`
	Status      Status        `json:"status"`
	OpenPorts   []int         `json:"open_ports,omitempty"`
	HTTPHeaders HTTPHeaders   `json:"http_headers,omitempty"`
	Certificate *Certificate  `json:"certificate,omitempty"`
	Metadata    Metadata      `json:"metadata,omitempty"`

	// HostnameInference holds confidence-weighted hostname candidates
	// gathered by the port prober's reverse-DNS lookup or by an adapter
	// (spec §3.5). Kept as a dedicated field rather than folded into
	// Metadata's tagged-union Value, which has no struct-valued kind; the
	// MetaHostnameInference key names the conceptual slot for anything
	// that serializes the report and wants a flat lookup.
	HostnameInference *HostnameInference `json:"hostname_inference,omitempty"`
}

// HTTPHeaders maps header name to value, concatenated on duplicates.
type HTTPHeaders map[string]string

// New creates an entity with the parent-unset sentinel, ready for the
// orchestrator to assign a parent when it is enqueued as a child.
func New(id string, ip string, typ Type) *Entity {
	return &Entity{
		ID:       id,
		IP:       ip,
		Type:     typ,
		ParentID: unsetParent,
		Status:   StatusUnverified,
		Metadata: make(Metadata),
	}
}

// ParentUnset reports whether the parent has never been assigned, distinct
// from the explicit NoParent ("root") sentinel.
func (e *Entity) ParentUnset() bool {
	return e.ParentID == unsetParent
}

// IsLogical reports whether the entity represents a grouping rather than an
// addressable endpoint (spec §3.2 invariant 4).
func (e *Entity) IsLogical() bool {
	return e.Type == TypeProxmoxCluster || e.Type == TypePortainerStack
}

// IsEndpoint is the complement of IsLogical (glossary: "endpoint entity").
func (e *Entity) IsEndpoint() bool {
	return !e.IsLogical()
}

// SetMeta sets a metadata key, initializing the map if needed.
func (e *Entity) SetMeta(key string, v Value) {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata[key] = v
}

// Clone returns a deep copy of the entity, safe to mutate independently.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	cp := *e
	if e.OpenPorts != nil {
		cp.OpenPorts = append([]int(nil), e.OpenPorts...)
	}
	if e.HTTPHeaders != nil {
		cp.HTTPHeaders = make(HTTPHeaders, len(e.HTTPHeaders))
		for k, v := range e.HTTPHeaders {
			cp.HTTPHeaders[k] = v
		}
	}
	if e.Certificate != nil {
		c := *e.Certificate
		cp.Certificate = &c
	}
	if e.HostnameInference != nil {
		hi := *e.HostnameInference
		hi.Candidates = append([]HostnameCandidate(nil), e.HostnameInference.Candidates...)
		if e.HostnameInference.Best != nil {
			best := *e.HostnameInference.Best
			hi.Best = &best
		}
		cp.HostnameInference = &hi
	}
	cp.Metadata = e.Metadata.Clone()
	return &cp
}

// HasOpenPort reports whether port is present in OpenPorts.
func (e *Entity) HasOpenPort(port int) bool {
	for _, p := range e.OpenPorts {
		if p == port {
			return true
		}
	}
	return false
}

// AddOpenPort appends port if not already present.
func (e *Entity) AddOpenPort(port int) {
	if !e.HasOpenPort(port) {
		e.OpenPorts = append(e.OpenPorts, port)
	}
}

// ConflictType enumerates the kinds of invariant violation the conflict
// detector can emit (spec §4.7).
type ConflictType string

const (
	ConflictTypeMismatch     ConflictType = "TypeMismatch"
	ConflictUnverifiedEntity ConflictType = "UnverifiedEntity"
	ConflictIPMismatch       ConflictType = "IpMismatch"
)

// Conflict records one detected invariant violation.
type Conflict struct {
	ID               string       `json:"id"`
	IP               string       `json:"ip,omitempty"`
	Type             ConflictType `json:"type"`
	InvolvedEntities []string     `json:"involved_entities"`
	Description      string       `json:"description"`
}

// Summary holds entity counts by type and status.
type Summary struct {
	ByType   map[Type]int   `json:"by_type"`
	ByStatus map[Status]int `json:"by_status"`
}

// TopologyReport is the frozen output of a single discovery run (spec §3.4).
type TopologyReport struct {
	Timestamp time.Time  `json:"timestamp"`
	ScanID    string     `json:"scan_id"`
	Subnets   []string   `json:"subnets"`
	Entities  []Entity   `json:"entities"`
	Conflicts []Conflict `json:"conflicts"`
	Summary   Summary    `json:"summary"`
}

// FindByID returns the entity with the given id, or nil.
func (r *TopologyReport) FindByID(id string) *Entity {
	for i := range r.Entities {
		if r.Entities[i].ID == id {
			return &r.Entities[i]
		}
	}
	return nil
}
