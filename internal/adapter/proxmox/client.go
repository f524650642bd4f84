// Package proxmox implements the ProxmoxAdapter (spec §4.5, L4): verifies a
// Proxmox VE host, promotes it to a cluster or a standalone node, and
// enumerates its VMs and LXC containers.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// NodeStatus is one cluster member as reported by /cluster/status.
type NodeStatus struct {
	Name   string
	IP     string
	Online bool
}

// ClusterStatus is the parsed result of a cluster-status query.
type ClusterStatus struct {
	Clustered bool
	Name      string
	Nodes     []NodeStatus
}

// Guest is one VM or LXC container as reported by /nodes/<node>/qemu or
// /nodes/<node>/lxc.
type Guest struct {
	VMID     int
	Name     string
	IPConfig string // raw ipconfig0 string, e.g. "ip=192.168.1.80/24,gw=192.168.1.1"
	Running  bool
}

// Client is the pluggable Proxmox API contract (spec §1: "vendor wire
// formats... treated as pluggable adapters"). HTTPClient is the default
// implementation; tests exercise the adapter against a fake.
type Client interface {
	ClusterStatus(ctx context.Context, host, apiToken string) (*ClusterStatus, error)
	ListVMs(ctx context.Context, host, node, apiToken string) ([]Guest, error)
	ListLXCs(ctx context.Context, host, node, apiToken string) ([]Guest, error)
	GuestAgentIP(ctx context.Context, host, node, apiToken string, vmid int) (string, error)
}

// HTTPClient is the default Client, speaking the Proxmox VE REST API
// (api2/json) over HTTPS with a PVEAPIToken bearer header.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient with the given request timeout-bearing
// http.Client (the caller applies context deadlines per spec §5).
func NewHTTPClient(httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	}
	return &HTTPClient{httpClient: httpClient}
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *HTTPClient) get(ctx context.Context, host, apiToken, path string, out interface{}) error {
	url := fmt.Sprintf("https://%s:8006/api2/json%s", host, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if apiToken != "" {
		req.Header.Set("Authorization", "PVEAPIToken="+apiToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxmox: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxmox: %s returned status %d", path, resp.StatusCode)
	}
	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("proxmox: decode %s: %w", path, err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type clusterStatusEntry struct {
	Type    string `json:"type"` // "cluster" or "node"
	Name    string `json:"name"`
	IP      string `json:"ip,omitempty"`
	Online  int    `json:"online,omitempty"`
	Nodes   int    `json:"nodes,omitempty"`
}

// ClusterStatus implements Client.
func (c *HTTPClient) ClusterStatus(ctx context.Context, host, apiToken string) (*ClusterStatus, error) {
	var entries []clusterStatusEntry
	if err := c.get(ctx, host, apiToken, "/cluster/status", &entries); err != nil {
		return nil, err
	}
	status := &ClusterStatus{}
	for _, e := range entries {
		switch e.Type {
		case "cluster":
			status.Clustered = true
			status.Name = e.Name
		case "node":
			status.Nodes = append(status.Nodes, NodeStatus{Name: e.Name, IP: e.IP, Online: e.Online == 1})
		}
	}
	if !status.Clustered {
		// Standalone: synthesize the single local node from /nodes.
		var nodes []struct {
			Node   string `json:"node"`
			Status string `json:"status"`
		}
		if err := c.get(ctx, host, apiToken, "/nodes", &nodes); err != nil {
			return nil, err
		}
		for _, n := range nodes {
			status.Nodes = append(status.Nodes, NodeStatus{Name: n.Node, IP: host, Online: n.Status == "online"})
		}
	}
	return status, nil
}

type guestEntry struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ListVMs implements Client.
func (c *HTTPClient) ListVMs(ctx context.Context, host, node, apiToken string) ([]Guest, error) {
	var entries []guestEntry
	if err := c.get(ctx, host, apiToken, fmt.Sprintf("/nodes/%s/qemu", node), &entries); err != nil {
		return nil, err
	}
	return c.resolveGuests(ctx, host, node, apiToken, "qemu", entries)
}

// ListLXCs implements Client.
func (c *HTTPClient) ListLXCs(ctx context.Context, host, node, apiToken string) ([]Guest, error) {
	var entries []guestEntry
	if err := c.get(ctx, host, apiToken, fmt.Sprintf("/nodes/%s/lxc", node), &entries); err != nil {
		return nil, err
	}
	return c.resolveGuests(ctx, host, node, apiToken, "lxc", entries)
}

func (c *HTTPClient) resolveGuests(ctx context.Context, host, node, apiToken, kind string, entries []guestEntry) ([]Guest, error) {
	out := make([]Guest, 0, len(entries))
	for _, e := range entries {
		var cfg struct {
			IPConfig0 string `json:"ipconfig0"`
		}
		_ = c.get(ctx, host, apiToken, fmt.Sprintf("/nodes/%s/%s/%d/config", node, kind, e.VMID), &cfg)
		out = append(out, Guest{VMID: e.VMID, Name: e.Name, IPConfig: cfg.IPConfig0, Running: e.Status == "running"})
	}
	return out, nil
}

// GuestAgentIP implements Client using the QEMU guest agent's
// network-get-interfaces call, available only for running VMs with the
// guest agent installed.
func (c *HTTPClient) GuestAgentIP(ctx context.Context, host, node, apiToken string, vmid int) (string, error) {
	var result struct {
		Result json.RawMessage `json:"result"`
	}
	path := fmt.Sprintf("/nodes/%s/qemu/%d/agent/network-get-interfaces", node, vmid)
	if err := c.get(ctx, host, apiToken, path, &result); err != nil {
		return "", err
	}
	var ifaces []struct {
		Name        string `json:"name"`
		IPAddresses []struct {
			IPAddress     string `json:"ip-address"`
			IPAddressType string `json:"ip-address-type"`
		} `json:"ip-addresses"`
	}
	if err := json.Unmarshal(result.Result, &ifaces); err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if strings.EqualFold(iface.Name, "lo") {
			continue
		}
		for _, addr := range iface.IPAddresses {
			if addr.IPAddressType == "ipv4" {
				return addr.IPAddress, nil
			}
		}
	}
	return "", nil
}
