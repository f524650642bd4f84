package proxmox

import (
	"context"
	"errors"
	"testing"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

type fakeClient struct {
	status    *ClusterStatus
	statusErr error
	vms       map[string][]Guest
	lxcs      map[string][]Guest
	guestIPs  map[int]string
}

func (f *fakeClient) ClusterStatus(ctx context.Context, host, apiToken string) (*ClusterStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeClient) ListVMs(ctx context.Context, host, node, apiToken string) ([]Guest, error) {
	return f.vms[node], nil
}

func (f *fakeClient) ListLXCs(ctx context.Context, host, node, apiToken string) ([]Guest, error) {
	return f.lxcs[node], nil
}

func (f *fakeClient) GuestAgentIP(ctx context.Context, host, node, apiToken string, vmid int) (string, error) {
	if ip, ok := f.guestIPs[vmid]; ok {
		return ip, nil
	}
	return "", errors.New("guest agent unavailable")
}

type emptyCredentials struct{}

func (emptyCredentials) Get(service, key string) (string, bool) { return "", false }

func newContext() *adapter.Context {
	return adapter.NewContext(emptyCredentials{}, nil, adapter.DefaultTimeouts(), nil)
}

func TestScanStandalonePromotesToNode(t *testing.T) {
	a := &Adapter{Client: &fakeClient{
		status: &ClusterStatus{Clustered: false, Nodes: []NodeStatus{{Name: "pve1", Online: true}}},
		vms: map[string][]Guest{"pve1": {
			{VMID: 100, Name: "web", Running: true, IPConfig: "ip=192.168.1.80/24,gw=192.168.1.1"},
		}},
	}}
	e := entity.New("host-192.168.1.51", "192.168.1.51", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())

	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if result.Patch == nil || result.Patch.NewType != entity.TypeProxmoxNode {
		t.Fatalf("expected promotion to ProxmoxNode, got %+v", result.Patch)
	}
	if len(result.Discovered) != 1 {
		t.Fatalf("expected 1 discovered VM, got %d", len(result.Discovered))
	}
	vm := result.Discovered[0]
	if vm.ID != "proxmox-vm-pve1-100" {
		t.Fatalf("unexpected vm id: %s", vm.ID)
	}
	if vm.ParentID != e.ID {
		t.Fatalf("expected vm parented under the scanned host, got %q", vm.ParentID)
	}
	if got := vm.Metadata.GetString(entity.MetaAPIReportedIP); got != "192.168.1.80" {
		t.Fatalf("expected api_reported_ip from ipconfig0, got %q", got)
	}
}

func TestScanClusterPromotesAndEmitsNodesAndGuests(t *testing.T) {
	a := &Adapter{Client: &fakeClient{
		status: &ClusterStatus{Clustered: true, Name: "pve", Nodes: []NodeStatus{
			{Name: "pve1", IP: "192.168.1.51", Online: true},
			{Name: "pve2", IP: "192.168.1.52", Online: true},
		}},
		lxcs: map[string][]Guest{"pve1": {{VMID: 200, Name: "ct1", Running: true}}},
	}}
	e := entity.New("host-192.168.1.51", "192.168.1.51", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())

	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if result.Patch == nil || result.Patch.NewType != entity.TypeProxmoxCluster {
		t.Fatalf("expected promotion to ProxmoxCluster, got %+v", result.Patch)
	}
	if result.Patch.NewID != "proxmox-cluster-pve" {
		t.Fatalf("unexpected cluster id: %s", result.Patch.NewID)
	}
	if !result.Patch.IPCleared {
		t.Fatal("expected cluster promotion to clear ip")
	}

	var sawNode1, sawNode2, sawLxc bool
	for _, d := range result.Discovered {
		switch d.ID {
		case "proxmox-node-pve1":
			sawNode1 = true
		case "proxmox-node-pve2":
			sawNode2 = true
		case "proxmox-lxc-pve1-200":
			sawLxc = true
			if d.ParentID != "proxmox-node-pve1" {
				t.Fatalf("expected lxc parented under its node, got %q", d.ParentID)
			}
		}
	}
	if !sawNode1 || !sawNode2 {
		t.Fatalf("expected both cluster member nodes discovered, got %+v", result.Discovered)
	}
	if !sawLxc {
		t.Fatalf("expected the lxc child discovered, got %+v", result.Discovered)
	}
}

func TestScanClusterSkipsAlreadyProcessedClusterOnSecondEntryPoint(t *testing.T) {
	status := &ClusterStatus{Clustered: true, Name: "pve", Nodes: []NodeStatus{
		{Name: "pve1", IP: "192.168.1.51", Online: true},
		{Name: "pve2", IP: "192.168.1.52", Online: true},
	}}
	a := &Adapter{Client: &fakeClient{status: status}}
	sctx := newContext()

	first := entity.New("host-192.168.1.51", "192.168.1.51", entity.TypeUnknown)
	firstResult := a.Scan(context.Background(), first, sctx)
	if !firstResult.OK || firstResult.Patch.NewType != entity.TypeProxmoxCluster {
		t.Fatalf("expected first entry point to promote the cluster, got %+v", firstResult)
	}

	second := entity.New("host-192.168.1.52", "192.168.1.52", entity.TypeUnknown)
	secondResult := a.Scan(context.Background(), second, sctx)
	if !secondResult.OK {
		t.Fatalf("expected success on the skipped entry point, got %+v", secondResult.Err)
	}
	if secondResult.Patch == nil || secondResult.Patch.NewType != entity.TypeProxmox {
		t.Fatalf("expected the second node marked identified (Proxmox) for later reparenting, got %+v", secondResult.Patch)
	}
	if len(secondResult.Discovered) != 0 {
		t.Fatalf("expected no re-discovery on the skipped entry point, got %+v", secondResult.Discovered)
	}
}

func TestScanFailsOnClusterStatusError(t *testing.T) {
	a := &Adapter{Client: &fakeClient{statusErr: errors.New("connection refused")}}
	e := entity.New("host-192.168.1.51", "192.168.1.51", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())
	if result.OK {
		t.Fatal("expected failure")
	}
}

func TestResolveGuestIPPrefersGuestAgentOverIPConfig(t *testing.T) {
	a := &Adapter{Client: &fakeClient{guestIPs: map[int]string{100: "192.168.1.90"}}}
	ip := a.resolveGuestIP(context.Background(), "192.168.1.51", "pve1", Guest{VMID: 100, IPConfig: "ip=192.168.1.80/24"}, "")
	if ip != "192.168.1.90" {
		t.Fatalf("expected guest-agent IP to win, got %q", ip)
	}
}

func TestResolveGuestIPFallsBackToIPConfig(t *testing.T) {
	a := &Adapter{Client: &fakeClient{}}
	ip := a.resolveGuestIP(context.Background(), "192.168.1.51", "pve1", Guest{VMID: 100, IPConfig: "ip=192.168.1.80/24,gw=192.168.1.1"}, "")
	if ip != "192.168.1.80" {
		t.Fatalf("expected ipconfig0 fallback, got %q", ip)
	}
}

func TestResolveGuestIPEmptyWhenNoSourceAvailable(t *testing.T) {
	a := &Adapter{Client: &fakeClient{}}
	ip := a.resolveGuestIP(context.Background(), "192.168.1.51", "pve1", Guest{VMID: 100, IPConfig: "ip=dhcp"}, "")
	if ip != "" {
		t.Fatalf("expected empty ip, got %q", ip)
	}
}
