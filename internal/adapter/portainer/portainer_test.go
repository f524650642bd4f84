package portainer

import (
	"context"
	"errors"
	"testing"

	"labtopo/internal/adapter"
	"labtopo/internal/adapter/dockerhost"
	"labtopo/internal/entity"
)

type fakeClient struct {
	verifyErr  error
	endpoints  []Endpoint
	endpErr    error
	stacks     map[int][]Stack
	containers map[int][]dockerhost.Container
}

func (f *fakeClient) VerifyStatus(ctx context.Context, host, port, token string) error {
	return f.verifyErr
}

func (f *fakeClient) ListEndpoints(ctx context.Context, host, port, token string) ([]Endpoint, error) {
	return f.endpoints, f.endpErr
}

func (f *fakeClient) ListStacks(ctx context.Context, host, port, token string, endpointID int) ([]Stack, error) {
	return f.stacks[endpointID], nil
}

func (f *fakeClient) ListEndpointContainers(ctx context.Context, host, port, token string, endpointID int) ([]dockerhost.Container, error) {
	return f.containers[endpointID], nil
}

type emptyCredentials struct{}

func (emptyCredentials) Get(service, key string) (string, bool) { return "", false }

func newContext() *adapter.Context {
	return adapter.NewContext(emptyCredentials{}, nil, adapter.DefaultTimeouts(), nil)
}

func TestScanEmitsStacksWithBoundContainers(t *testing.T) {
	a := &Adapter{Client: &fakeClient{
		endpoints: []Endpoint{{ID: 1, Name: "local"}},
		stacks:    map[int][]Stack{1: {{ID: 7, Name: "infra"}}},
		containers: map[int][]dockerhost.Container{1: {
			{ID: "abc123", Name: "portainer", Labels: map[string]string{dockerhost.ComposeProjectLabel: "infra"}},
			{ID: "def456", Name: "other", Labels: map[string]string{dockerhost.ComposeProjectLabel: "other-stack"}},
		}},
	}}
	e := entity.New("host-192.168.1.80", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(9000)

	result := a.Scan(context.Background(), e, newContext())

	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if result.Patch == nil || result.Patch.NewType != entity.TypePortainerService {
		t.Fatalf("expected promotion to PortainerService, got %+v", result.Patch)
	}
	if len(result.Discovered) != 1 {
		t.Fatalf("expected 1 stack entity, got %d", len(result.Discovered))
	}
	stack := result.Discovered[0]
	if stack.ID != "portainer-stack-7" {
		t.Fatalf("unexpected stack id: %s", stack.ID)
	}
	if stack.Type != entity.TypePortainerStack {
		t.Fatalf("expected logical PortainerStack type, got %s", stack.Type)
	}
	if stack.ParentID != e.ID {
		t.Fatalf("expected stack parented under the host, got %q", stack.ParentID)
	}
	ids := stack.Metadata[entity.MetaContainerIDs]
	if len(ids.List) != 1 || ids.List[0] != "abc123" {
		t.Fatalf("expected container_ids=[abc123] bound by compose project, got %+v", ids)
	}
}

func TestChoosePortPrefersHighestSecurityFirst(t *testing.T) {
	e := entity.New("e", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(9000)
	e.AddOpenPort(9443)
	if port := choosePort(e); port != "9443" {
		t.Fatalf("expected 9443 preferred over 9000, got %q", port)
	}
}

func TestScanFailsWhenNoPreferredPortOpen(t *testing.T) {
	a := &Adapter{Client: &fakeClient{}}
	e := entity.New("e", "192.168.1.80", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())
	if result.OK {
		t.Fatal("expected failure with no preferred port open")
	}
}

func TestScanFailsWhenVerifyStatusErrors(t *testing.T) {
	a := &Adapter{Client: &fakeClient{verifyErr: errors.New("bad gateway")}}
	e := entity.New("e", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(9000)

	result := a.Scan(context.Background(), e, newContext())
	if result.OK {
		t.Fatal("expected failure when status verification fails")
	}
}

func TestScanFailsWhenEndpointEnumerationErrors(t *testing.T) {
	a := &Adapter{Client: &fakeClient{endpErr: errors.New("forbidden")}}
	e := entity.New("e", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(9000)

	result := a.Scan(context.Background(), e, newContext())
	if result.OK {
		t.Fatal("expected failure when endpoint enumeration fails")
	}
}
