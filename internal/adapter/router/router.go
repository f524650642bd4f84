package router

import (
	"context"
	"fmt"
	"log"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

// Adapter is the RouterAdapter of spec §4.5: priority 5, no dependencies,
// activated only against the operator-designated LAN gateway ip rather than
// by open ports or headers.
type Adapter struct {
	GatewayIP   string
	LeaseSource LeaseSource
}

// New builds a RouterAdapter bound to the LAN gateway ip and a lease
// source. A nil source disables lease publication without disabling router
// promotion itself.
func New(gatewayIP string, source LeaseSource) *Adapter {
	return &Adapter{GatewayIP: gatewayIP, LeaseSource: source}
}

func (a *Adapter) Name() string                { return "Router" }
func (a *Adapter) Priority() int               { return 5 }
func (a *Adapter) DependsOn() []string         { return nil }
func (a *Adapter) OptionalDependsOn() []string { return nil }

func (a *Adapter) ActivationCriteria() adapter.ActivationCriteria {
	return adapter.ActivationCriteria{
		CustomPredicate: func(ctx context.Context, e *entity.Entity, sctx *adapter.Context) bool {
			return a.GatewayIP != "" && e.IP == a.GatewayIP
		},
	}
}

// Scan implements adapter.Platform. It only promotes the entity and
// publishes the lease table as metadata; matching other universe entities
// against that table and seeding AccessPoint entities for unmatched
// lease ips is correlation's job (pass 6, macAddressEnrichment) — the
// adapter contract only gives Scan the single entity it was invoked on, not
// the rest of the universe those leases need to be matched against.
func (a *Adapter) Scan(ctx context.Context, e *entity.Entity, sctx *adapter.Context) adapter.ScanResult {
	patch := &adapter.Patch{NewType: entity.TypeRouter}

	if a.LeaseSource == nil {
		return adapter.Success(nil, nil, patch)
	}

	leases, err := a.LeaseSource.Leases(ctx, e.IP)
	if err != nil {
		log.Printf("router: lease source query failed: %v", err)
		return adapter.Success(nil, nil, patch)
	}

	encoded := make(map[string]string, len(leases))
	for _, l := range leases {
		encoded[l.IP] = fmt.Sprintf("%s|%s|%s|%t", l.MAC, l.Hostname, l.Role, l.IsAccessPoint)
	}
	patch.MetadataUpdates = entity.Metadata{entity.MetaDHCPLeases: entity.Mapping(encoded)}

	return adapter.Success(nil, nil, patch)
}
