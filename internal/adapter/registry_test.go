package adapter

import (
	"context"
	"testing"

	"labtopo/internal/entity"
)

type fakePlatform struct {
	name              string
	priority          int
	dependsOn         []string
	optionalDependsOn []string
	criteria          ActivationCriteria
}

func (f *fakePlatform) Name() string                           { return f.name }
func (f *fakePlatform) Priority() int                          { return f.priority }
func (f *fakePlatform) DependsOn() []string                    { return f.dependsOn }
func (f *fakePlatform) OptionalDependsOn() []string            { return f.optionalDependsOn }
func (f *fakePlatform) ActivationCriteria() ActivationCriteria { return f.criteria }
func (f *fakePlatform) Scan(ctx context.Context, e *entity.Entity, sctx *Context) ScanResult {
	return Success(nil, nil, nil)
}

type noCredentials struct{}

func (noCredentials) Get(service, key string) (string, bool) { return "", false }

func newTestContext() *Context {
	return NewContext(noCredentials{}, nil, DefaultTimeouts(), nil)
}

func TestRegisterOrdersByPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlatform{name: "B", priority: 20})
	r.Register(&fakePlatform{name: "A", priority: 10})
	r.Register(&fakePlatform{name: "C", priority: 30})

	all := r.All()
	if len(all) != 3 || all[0].Name() != "A" || all[1].Name() != "B" || all[2].Name() != "C" {
		t.Fatalf("expected priority order A,B,C, got %v", names(all))
	}
}

func TestRegisterReplacesExistingName(t *testing.T) {
	r := NewRegistry()
	first := &fakePlatform{name: "A", priority: 10}
	second := &fakePlatform{name: "A", priority: 50}
	r.Register(first)
	r.Register(second)

	if len(r.All()) != 1 {
		t.Fatalf("expected registering the same name twice to replace, got %d entries", len(r.All()))
	}
	if r.All()[0].Priority() != 50 {
		t.Fatalf("expected the replacement's priority, got %d", r.All()[0].Priority())
	}
}

func TestFindApplicableTypeMatchBypassesCriteria(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlatform{name: "Docker", priority: 20, criteria: ActivationCriteria{RequiredOpenPorts: []int{9999}}})
	e := entity.New("host-1", "192.168.1.80", entity.TypeDockerHost)

	matched := r.FindApplicable(context.Background(), e, newTestContext())
	if len(matched) != 1 || matched[0].Name() != "Docker" {
		t.Fatalf("expected type-match to bypass unmet criteria, got %v", names(matched))
	}
}

func TestFindApplicableRequiresOpenPortMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlatform{name: "Docker", priority: 20, criteria: ActivationCriteria{RequiredOpenPorts: []int{2375, 2376}}})
	e := entity.New("host-1", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(2375)

	matched := r.FindApplicable(context.Background(), e, newTestContext())
	if len(matched) != 1 {
		t.Fatalf("expected a match on an open fingerprint port, got %v", names(matched))
	}

	e2 := entity.New("host-2", "192.168.1.81", entity.TypeUnknown)
	e2.AddOpenPort(22)
	if matched2 := r.FindApplicable(context.Background(), e2, newTestContext()); len(matched2) != 0 {
		t.Fatalf("expected no match without any required port open, got %v", names(matched2))
	}
}

func TestFindApplicableRequiresHeaderSubstring(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlatform{name: "Unraid", priority: 35, criteria: ActivationCriteria{
		RequiredHTTPHeaders: map[string]string{"Content-Security-Policy": "unraid"},
	}})
	e := entity.New("host-1", "192.168.1.80", entity.TypeUnknown)
	e.HTTPHeaders = entity.HTTPHeaders{"Content-Security-Policy": "default-src 'self' UNRAID-LOCAL"}

	matched := r.FindApplicable(context.Background(), e, newTestContext())
	if len(matched) != 1 {
		t.Fatalf("expected a case-insensitive substring match, got %v", names(matched))
	}
}

func TestFindApplicableCustomPredicate(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlatform{name: "Router", priority: 5, criteria: ActivationCriteria{
		CustomPredicate: func(ctx context.Context, e *entity.Entity, sctx *Context) bool {
			return e.IP == "192.168.1.1"
		},
	}})

	gateway := entity.New("host-gw", "192.168.1.1", entity.TypeUnknown)
	if matched := r.FindApplicable(context.Background(), gateway, newTestContext()); len(matched) != 1 {
		t.Fatalf("expected the gateway IP to match the custom predicate, got %v", names(matched))
	}

	other := entity.New("host-other", "192.168.1.80", entity.TypeUnknown)
	if matched := r.FindApplicable(context.Background(), other, newTestContext()); len(matched) != 0 {
		t.Fatalf("expected a non-gateway IP not to match, got %v", names(matched))
	}
}

func TestFindApplicableWithNoCriteriaNeverActivates(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlatform{name: "Proxmox", priority: 10})
	e := entity.New("host-1", "192.168.1.80", entity.TypeUnknown)

	if matched := r.FindApplicable(context.Background(), e, newTestContext()); len(matched) != 0 {
		t.Fatalf("expected an adapter with no criteria to require type-match, got %v", names(matched))
	}
}

func TestOrderByDependenciesRespectsHardDeps(t *testing.T) {
	r := NewRegistry()
	docker := &fakePlatform{name: "Docker", priority: 20, criteria: ActivationCriteria{RequiredOpenPorts: []int{2375}}}
	portainer := &fakePlatform{name: "Portainer", priority: 30, dependsOn: []string{"Docker"}, criteria: ActivationCriteria{RequiredOpenPorts: []int{9000}}}
	r.Register(portainer)
	r.Register(docker)

	e := entity.New("host-1", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(2375)
	e.AddOpenPort(9000)

	matched := r.FindApplicable(context.Background(), e, newTestContext())
	if len(matched) != 2 || matched[0].Name() != "Docker" || matched[1].Name() != "Portainer" {
		t.Fatalf("expected Docker before its dependent Portainer, got %v", names(matched))
	}
}

func TestOrderByDependenciesDegradesOnCycle(t *testing.T) {
	r := NewRegistry()
	a := &fakePlatform{name: "A", priority: 10, dependsOn: []string{"B"}, criteria: ActivationCriteria{RequiredOpenPorts: []int{1}}}
	b := &fakePlatform{name: "B", priority: 20, dependsOn: []string{"A"}, criteria: ActivationCriteria{RequiredOpenPorts: []int{2}}}
	r.Register(a)
	r.Register(b)

	e := entity.New("host-1", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(1)
	e.AddOpenPort(2)

	matched := r.FindApplicable(context.Background(), e, newTestContext())
	if len(matched) != 2 {
		t.Fatalf("expected both cyclic adapters still emitted in degraded order, got %v", names(matched))
	}
}

func TestOrderByDependenciesIgnoresAbsentDep(t *testing.T) {
	r := NewRegistry()
	portainer := &fakePlatform{name: "Portainer", priority: 30, dependsOn: []string{"Docker"}, criteria: ActivationCriteria{RequiredOpenPorts: []int{9000}}}
	r.Register(portainer)

	e := entity.New("host-1", "192.168.1.80", entity.TypeUnknown)
	e.AddOpenPort(9000)

	matched := r.FindApplicable(context.Background(), e, newTestContext())
	if len(matched) != 1 || matched[0].Name() != "Portainer" {
		t.Fatalf("expected Portainer to run even though its dep isn't present in this plan, got %v", names(matched))
	}
}
