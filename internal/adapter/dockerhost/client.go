// Package dockerhost implements the DockerAdapter (spec §4.5, L4): verifies
// a Docker Engine API endpoint and enumerates its containers.
package dockerhost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Container is one container as reported by the Engine API's
// /containers/json, with networks already flattened to name->ip.
type Container struct {
	ID           string
	Name         string
	Image        string
	Networks     map[string]string
	ExposedPorts []int
	Labels       map[string]string
}

// Client is the pluggable Docker Engine API contract.
type Client interface {
	ListContainers(ctx context.Context, host, port string) ([]Container, error)
}

// HTTPClient is the default Client, speaking the Docker Engine API's plain
// HTTP interface on 2375 (the TLS-only 2376 variant uses the same paths
// over an HTTPS transport supplied by the caller's http.Client).
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

type containerSummary struct {
	ID     string `json:"Id"`
	Names  []string
	Image  string
	Labels map[string]string
	Ports  []struct {
		PrivatePort int    `json:"PrivatePort"`
		Type        string `json:"Type"`
	}
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// ListContainers implements Client.
func (c *HTTPClient) ListContainers(ctx context.Context, host, port string) ([]Container, error) {
	scheme := "http"
	if port == "2376" {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%s/containers/json?all=true", scheme, host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dockerhost: list containers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dockerhost: list containers returned status %d", resp.StatusCode)
	}

	var summaries []containerSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return nil, fmt.Errorf("dockerhost: decode containers: %w", err)
	}

	out := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		name := s.ID
		if len(s.Names) > 0 {
			name = trimLeadingSlash(s.Names[0])
		}
		networks := make(map[string]string, len(s.NetworkSettings.Networks))
		for netName, net := range s.NetworkSettings.Networks {
			networks[netName] = net.IPAddress
		}
		var ports []int
		for _, p := range s.Ports {
			ports = append(ports, p.PrivatePort)
		}
		out = append(out, Container{
			ID: s.ID, Name: name, Image: s.Image,
			Networks: networks, ExposedPorts: ports, Labels: s.Labels,
		})
	}
	return out, nil
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}
