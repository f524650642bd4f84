package dockerhost

import (
	"context"
	"errors"
	"testing"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

type fakeClient struct {
	containers []Container
	err        error
}

func (f *fakeClient) ListContainers(ctx context.Context, host, port string) ([]Container, error) {
	return f.containers, f.err
}

type emptyCredentials struct{}

func (emptyCredentials) Get(service, key string) (string, bool) { return "", false }

func newContext(swept map[string]bool) *adapter.Context {
	return adapter.NewContext(emptyCredentials{}, swept, adapter.DefaultTimeouts(), nil)
}

func TestScanPromotesHostAndBuildsContainers(t *testing.T) {
	a := &Adapter{Client: &fakeClient{containers: []Container{
		{
			ID:           "abcdef0123456789",
			Name:         "portainer",
			Image:        "portainer/portainer-ce",
			Networks:     map[string]string{"bridge": "172.17.0.2"},
			ExposedPorts: []int{9000},
			Labels:       map[string]string{ComposeProjectLabel: "infra"},
		},
		{
			ID:       "fedcba9876543210",
			Name:     "app",
			Image:    "nginx",
			Networks: map[string]string{"macvlan": "192.168.1.120"},
		},
	}}}
	e := entity.New("host-192.168.1.80", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(2375)

	result := a.Scan(context.Background(), e, newContext(map[string]bool{"192.168.1.120": true}))

	if !result.OK {
		t.Fatalf("expected success, got error %+v", result.Err)
	}
	if result.Patch == nil || result.Patch.NewType != entity.TypeDockerHost {
		t.Fatalf("expected patch promoting to DockerHost, got %+v", result.Patch)
	}
	if len(result.Discovered) != 2 {
		t.Fatalf("expected 2 discovered containers, got %d", len(result.Discovered))
	}

	bridge := result.Discovered[0]
	if bridge.ID != "docker-container-abcdef012345" {
		t.Fatalf("unexpected short-id entity id: %s", bridge.ID)
	}
	if bridge.Status != entity.StatusUnreachable {
		t.Fatalf("expected Unreachable for a bridge-local IP, got %s", bridge.Status)
	}
	if got := bridge.Metadata.GetString("compose_project"); got != "infra" {
		t.Fatalf("expected compose_project metadata, got %+v", bridge.Metadata)
	}

	swept := result.Discovered[1]
	if swept.IP != "192.168.1.120" {
		t.Fatalf("expected first non-empty network IP, got %q", swept.IP)
	}
	if swept.Status != entity.StatusReachable {
		t.Fatalf("expected Reachable for a swept IP, got %s", swept.Status)
	}
}

func TestScanUsesTLSPortWhenOpen(t *testing.T) {
	var seenPort string
	a := &Adapter{Client: clientFunc(func(ctx context.Context, host, port string) ([]Container, error) {
		seenPort = port
		return nil, nil
	})}
	e := entity.New("host-192.168.1.80", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(2376)

	result := a.Scan(context.Background(), e, newContext(nil))
	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if seenPort != "2376" {
		t.Fatalf("expected port 2376 when open, got %q", seenPort)
	}
}

func TestScanFailsOnClientError(t *testing.T) {
	a := &Adapter{Client: &fakeClient{err: errors.New("connection refused")}}
	e := entity.New("host-192.168.1.80", "192.168.1.80", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext(nil))

	if result.OK {
		t.Fatal("expected failure")
	}
	if result.Err == nil || result.Err.Message == "" {
		t.Fatalf("expected a populated ScanError, got %+v", result.Err)
	}
}

func TestUnverifiedWhenIPNotSweptAndNotBridgeLocal(t *testing.T) {
	a := &Adapter{Client: &fakeClient{containers: []Container{
		{ID: "0123456789ab", Name: "mystery", Networks: map[string]string{"custom": "192.168.1.250"}},
	}}}
	e := entity.New("host-192.168.1.80", "192.168.1.80", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext(nil))
	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if result.Discovered[0].Status != entity.StatusUnverified {
		t.Fatalf("expected Unverified, got %s", result.Discovered[0].Status)
	}
}

type clientFunc func(ctx context.Context, host, port string) ([]Container, error)

func (f clientFunc) ListContainers(ctx context.Context, host, port string) ([]Container, error) {
	return f(ctx, host, port)
}
