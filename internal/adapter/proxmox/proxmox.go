package proxmox

import (
	"context"
	"fmt"
	"log"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

// Adapter is the ProxmoxAdapter of spec §4.5: priority 10, no dependencies.
type Adapter struct {
	Client Client
	SSH    *SSHChannel // optional; nil disables the guest-agent-over-SSH fallback
}

// New builds a ProxmoxAdapter with the default HTTP client.
func New() *Adapter {
	return &Adapter{Client: NewHTTPClient(nil)}
}

func (a *Adapter) Name() string                { return "Proxmox" }
func (a *Adapter) Priority() int               { return 10 }
func (a *Adapter) DependsOn() []string         { return nil }
func (a *Adapter) OptionalDependsOn() []string { return nil }

func (a *Adapter) ActivationCriteria() adapter.ActivationCriteria {
	return adapter.ActivationCriteria{RequiredOpenPorts: []int{8006}}
}

// Scan implements adapter.Platform.
func (a *Adapter) Scan(ctx context.Context, e *entity.Entity, sctx *adapter.Context) adapter.ScanResult {
	token, _ := sctx.Credentials.Get("proxmox", "api_token")

	status, err := a.Client.ClusterStatus(ctx, e.IP, token)
	if err != nil {
		return adapter.Failure("proxmox cluster-status query failed", err.Error())
	}

	if status.Clustered {
		return a.scanCluster(ctx, e, sctx, status, token)
	}
	return a.scanStandalone(ctx, e, sctx, status, token)
}

func (a *Adapter) scanCluster(ctx context.Context, e *entity.Entity, sctx *adapter.Context, status *ClusterStatus, token string) adapter.ScanResult {
	clusterID := fmt.Sprintf("proxmox-cluster-%s", status.Name)

	if !sctx.MarkOnce("proxmox-cluster:" + clusterID) {
		// Already promoted by an earlier entry point this run (spec §4.5:
		// "a cluster already processed... is skipped on later entry
		// points"). Mark this entity identified so pass 4 of correlation
		// can find and reparent it under the cluster.
		return adapter.Success(nil, nil, &adapter.Patch{NewType: entity.TypeProxmox})
	}

	nodeIPs := make([]string, 0, len(status.Nodes))
	for _, n := range status.Nodes {
		nodeIPs = append(nodeIPs, n.IP)
	}

	patch := &adapter.Patch{
		NewType:   entity.TypeProxmoxCluster,
		NewID:     clusterID,
		IPCleared: true,
		MetadataUpdates: entity.Metadata{
			entity.MetaClusterNodeIPs: entity.List(nodeIPs),
		},
	}

	var discovered []*entity.Entity
	for _, n := range status.Nodes {
		discovered = append(discovered, a.scanNode(ctx, e.IP, n, sctx, token)...)
	}

	return adapter.Success(discovered, []string{"Proxmox"}, patch)
}

func (a *Adapter) scanStandalone(ctx context.Context, e *entity.Entity, sctx *adapter.Context, status *ClusterStatus, token string) adapter.ScanResult {
	if len(status.Nodes) == 0 {
		return adapter.Failure("proxmox: no nodes reported", "")
	}
	self := status.Nodes[0]
	self.IP = e.IP

	patch := &adapter.Patch{NewType: entity.TypeProxmoxNode}
	discovered := a.scanGuests(ctx, e.IP, self.Name, e.ID, sctx, token)
	return adapter.Success(discovered, []string{"Proxmox"}, patch)
}

// scanNode emits the ProxmoxNode child for n plus its VM/LXC children.
func (a *Adapter) scanNode(ctx context.Context, apiHost string, n NodeStatus, sctx *adapter.Context, token string) []*entity.Entity {
	nodeID := fmt.Sprintf("proxmox-node-%s", n.Name)
	node := entity.New(nodeID, n.IP, entity.TypeProxmoxNode)
	node.Name = n.Name
	if n.Online {
		node.Status = entity.StatusReachable
	} else {
		node.Status = entity.StatusUnreachable
	}

	out := []*entity.Entity{node}
	out = append(out, a.scanGuests(ctx, apiHost, n.Name, nodeID, sctx, token)...)
	return out
}

func (a *Adapter) scanGuests(ctx context.Context, apiHost, nodeName, parentID string, sctx *adapter.Context, token string) []*entity.Entity {
	var out []*entity.Entity

	vms, err := a.Client.ListVMs(ctx, apiHost, nodeName, token)
	if err != nil {
		log.Printf("proxmox: list VMs on %s failed: %v", nodeName, err)
	}
	for _, vm := range vms {
		out = append(out, a.buildGuestEntity(ctx, apiHost, nodeName, parentID, vm, entity.TypeVm, "proxmox-vm", token))
	}

	lxcs, err := a.Client.ListLXCs(ctx, apiHost, nodeName, token)
	if err != nil {
		log.Printf("proxmox: list LXCs on %s failed: %v", nodeName, err)
	}
	for _, lxc := range lxcs {
		out = append(out, a.buildGuestEntity(ctx, apiHost, nodeName, parentID, lxc, entity.TypeLxc, "proxmox-lxc", token))
	}

	return out
}

func (a *Adapter) buildGuestEntity(ctx context.Context, apiHost, nodeName, parentID string, g Guest, typ entity.Type, idPrefix, token string) *entity.Entity {
	id := fmt.Sprintf("%s-%s-%d", idPrefix, nodeName, g.VMID)
	e := entity.New(id, "", typ)
	e.Name = g.Name
	e.ParentID = parentID
	if g.Running {
		e.Status = entity.StatusUnverified // resolved to Reachable/Unverified by correlation once ip is known
	} else {
		e.Status = entity.StatusUnreachable
	}
	e.SetMeta(entity.MetaProxmoxVMID, entity.String(fmt.Sprintf("%d", g.VMID)))
	e.SetMeta(entity.MetaProxmoxNode, entity.String(nodeName))

	if ip := a.resolveGuestIP(ctx, apiHost, nodeName, g, token); ip != "" {
		e.SetMeta(entity.MetaAPIReportedIP, entity.String(ip))
	}

	return e
}

// resolveGuestIP tries, in order: guest-agent API call, the optional SSH
// side-channel, static ipconfig0 (spec §4.5 "IP extraction for guests").
func (a *Adapter) resolveGuestIP(ctx context.Context, apiHost, nodeName string, g Guest, token string) string {
	if ip, err := a.Client.GuestAgentIP(ctx, apiHost, nodeName, token, g.VMID); err == nil && ip != "" {
		return ip
	}
	if a.SSH != nil {
		if ip := a.SSH.GuestAgentExecIP(ctx, apiHost, g.VMID); ip != "" {
			return ip
		}
	}
	return parseIPConfig(g.IPConfig)
}
