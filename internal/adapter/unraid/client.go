// Package unraid implements the UnraidAdapter (spec §4.5, L4): recognizes an
// Unraid host from its distinctive CSP response header and enumerates the
// containers it runs via Unraid's GraphQL API.
package unraid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CSPHeaderToken is the substring Unraid stamps into its
// Content-Security-Policy response header, used as the adapter's activation
// fingerprint (spec §4.5: "Triggered by HTTP response header containing the
// Unraid CSP token").
const CSPHeaderToken = "unraid"

// Container is one Docker container as reported by Unraid's GraphQL docker
// state query.
type Container struct {
	ID      string
	Name    string
	Image   string
	Running bool
}

// Client is the pluggable Unraid GraphQL API contract.
type Client interface {
	DockerState(ctx context.Context, host, port, apiKey string) ([]Container, error)
}

// HTTPClient is the default Client, speaking Unraid's /graphql endpoint.
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

const dockerStateQuery = `{"query":"{ docker { containers { id names image state } } }"}`

type graphQLResponse struct {
	Data struct {
		Docker struct {
			Containers []struct {
				ID    string   `json:"id"`
				Names []string `json:"names"`
				Image string   `json:"image"`
				State string   `json:"state"`
			} `json:"containers"`
		} `json:"docker"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// DockerState implements Client.
func (c *HTTPClient) DockerState(ctx context.Context, host, port, apiKey string) ([]Container, error) {
	url := fmt.Sprintf("https://%s:%s/graphql", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(dockerStateQuery))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unraid: graphql request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unraid: graphql returned status %d", resp.StatusCode)
	}

	var out graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unraid: decode graphql response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("unraid: graphql error: %s", out.Errors[0].Message)
	}

	containers := make([]Container, 0, len(out.Data.Docker.Containers))
	for _, c := range out.Data.Docker.Containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		containers = append(containers, Container{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			Running: c.State == "RUNNING" || c.State == "running",
		})
	}
	return containers, nil
}
