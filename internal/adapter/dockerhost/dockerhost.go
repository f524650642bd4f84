package dockerhost

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

// ComposeProjectLabel is the label Docker Compose/Portainer stamps on every
// container it manages, used by correlation to bind containers to stacks.
const ComposeProjectLabel = "com.docker.compose.project"

// Adapter is the DockerAdapter of spec §4.5: priority 20, no dependencies.
type Adapter struct {
	Client Client
}

// New builds a DockerAdapter with the default HTTP client.
func New() *Adapter {
	return &Adapter{Client: NewHTTPClient(nil)}
}

func (a *Adapter) Name() string                { return "Docker" }
func (a *Adapter) Priority() int               { return 20 }
func (a *Adapter) DependsOn() []string         { return nil }
func (a *Adapter) OptionalDependsOn() []string { return nil }

func (a *Adapter) ActivationCriteria() adapter.ActivationCriteria {
	return adapter.ActivationCriteria{RequiredOpenPorts: []int{2375, 2376}}
}

// Scan implements adapter.Platform.
func (a *Adapter) Scan(ctx context.Context, e *entity.Entity, sctx *adapter.Context) adapter.ScanResult {
	port := "2375"
	if e.HasOpenPort(2376) {
		port = "2376"
	}

	containers, err := a.Client.ListContainers(ctx, e.IP, port)
	if err != nil {
		return adapter.Failure("docker engine API query failed", err.Error())
	}

	patch := &adapter.Patch{NewType: entity.TypeDockerHost}

	discovered := make([]*entity.Entity, 0, len(containers))
	for _, c := range containers {
		discovered = append(discovered, a.buildContainerEntity(c, sctx))
	}

	return adapter.Success(discovered, []string{"Docker", "Portainer"}, patch)
}

func (a *Adapter) buildContainerEntity(c Container, sctx *adapter.Context) *entity.Entity {
	ip := firstNonEmptyIP(c.Networks)
	shortID := c.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}

	e := entity.New("docker-container-"+shortID, ip, entity.TypeContainer)
	e.Name = c.Name
	e.SetMeta(entity.MetaDockerID, entity.String(c.ID))
	e.SetMeta(entity.MetaContainerID, entity.String(c.ID))
	e.SetMeta(entity.MetaContainerImage, entity.String(c.Image))
	if len(c.ExposedPorts) > 0 {
		e.SetMeta(entity.MetaExposedPorts, entity.List(intsToStrings(c.ExposedPorts)))
	}
	if project, ok := c.Labels[ComposeProjectLabel]; ok {
		e.SetMeta("compose_project", entity.String(project))
	}

	switch {
	case isBridgeLocal(ip):
		e.Status = entity.StatusUnreachable
	case sctx.IsSwept(ip):
		e.Status = entity.StatusReachable
	default:
		e.Status = entity.StatusUnverified
	}

	return e
}

// firstNonEmptyIP picks the first non-empty address from the engine's
// network map (spec §4.5), breaking the map's undefined iteration order by
// visiting network names in sorted order so the chosen IP is stable across
// repeated scans of the same container.
func firstNonEmptyIP(networks map[string]string) string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ip := networks[name]; ip != "" {
			return ip
		}
	}
	return ""
}

func isBridgeLocal(ip string) bool {
	return strings.HasPrefix(ip, "172.") || strings.HasPrefix(ip, "10.")
}

func intsToStrings(ints []int) []string {
	out := make([]string, len(ints))
	for i, v := range ints {
		out[i] = strconv.Itoa(v)
	}
	return out
}
