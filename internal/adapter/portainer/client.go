// Package portainer implements the PortainerAdapter (spec §4.5, L4):
// verifies a Portainer instance and enumerates its endpoints, stacks, and
// the containers each stack manages.
package portainer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"labtopo/internal/adapter/dockerhost"
)

// Endpoint is a Portainer "environment".
type Endpoint struct {
	ID   int
	Name string
}

// Stack is a Portainer-managed compose stack.
type Stack struct {
	ID   int
	Name string
}

// Client is the pluggable Portainer API contract.
type Client interface {
	VerifyStatus(ctx context.Context, host, port, token string) error
	ListEndpoints(ctx context.Context, host, port, token string) ([]Endpoint, error)
	ListStacks(ctx context.Context, host, port, token string, endpointID int) ([]Stack, error)
	ListEndpointContainers(ctx context.Context, host, port, token string, endpointID int) ([]dockerhost.Container, error)
}

// HTTPClient is the default Client, speaking the Portainer REST API
// (api/...) with an X-API-Key bearer header.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient.
func NewHTTPClient(httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{httpClient: httpClient}
}

func (c *HTTPClient) get(ctx context.Context, host, port, token, path string, out interface{}) error {
	url := fmt.Sprintf("https://%s:%s%s", host, port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("X-API-Key", token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("portainer: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("portainer: %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyStatus implements Client, confirming the instance is a real
// Portainer API (spec: "Verifies via status endpoint; on failure, returns
// Failure").
func (c *HTTPClient) VerifyStatus(ctx context.Context, host, port, token string) error {
	var status struct {
		Version string `json:"Version"`
	}
	if err := c.get(ctx, host, port, token, "/api/status", &status); err != nil {
		return err
	}
	if status.Version == "" {
		return fmt.Errorf("portainer: status response missing version")
	}
	return nil
}

type endpointEntry struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
}

// ListEndpoints implements Client.
func (c *HTTPClient) ListEndpoints(ctx context.Context, host, port, token string) ([]Endpoint, error) {
	var entries []endpointEntry
	if err := c.get(ctx, host, port, token, "/api/endpoints", &entries); err != nil {
		return nil, err
	}
	out := make([]Endpoint, len(entries))
	for i, e := range entries {
		out[i] = Endpoint{ID: e.ID, Name: e.Name}
	}
	return out, nil
}

type stackEntry struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
}

// ListStacks implements Client.
func (c *HTTPClient) ListStacks(ctx context.Context, host, port, token string, endpointID int) ([]Stack, error) {
	var entries []stackEntry
	path := fmt.Sprintf("/api/stacks?filters={\"EndpointID\":%d}", endpointID)
	if err := c.get(ctx, host, port, token, path, &entries); err != nil {
		return nil, err
	}
	out := make([]Stack, len(entries))
	for i, e := range entries {
		out[i] = Stack{ID: e.ID, Name: e.Name}
	}
	return out, nil
}

type endpointContainerEntry struct {
	ID     string `json:"Id"`
	Names  []string
	Image  string
	Labels map[string]string
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// ListEndpointContainers implements Client, proxying the Docker Engine API
// through Portainer's per-endpoint docker passthrough.
func (c *HTTPClient) ListEndpointContainers(ctx context.Context, host, port, token string, endpointID int) ([]dockerhost.Container, error) {
	var entries []endpointContainerEntry
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/json?all=true", endpointID)
	if err := c.get(ctx, host, port, token, path, &entries); err != nil {
		return nil, err
	}
	out := make([]dockerhost.Container, 0, len(entries))
	for _, e := range entries {
		name := e.ID
		if len(e.Names) > 0 && len(e.Names[0]) > 1 {
			name = e.Names[0][1:]
		}
		networks := make(map[string]string, len(e.NetworkSettings.Networks))
		for netName, n := range e.NetworkSettings.Networks {
			networks[netName] = n.IPAddress
		}
		out = append(out, dockerhost.Container{
			ID: e.ID, Name: name, Image: e.Image, Networks: networks, Labels: e.Labels,
		})
	}
	return out, nil
}
