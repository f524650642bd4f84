package unraid

import (
	"context"
	"fmt"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

// Adapter is the UnraidAdapter of spec §4.5: priority 35, no dependencies.
type Adapter struct {
	Client Client
}

// New builds an UnraidAdapter with the default HTTP client.
func New() *Adapter {
	return &Adapter{Client: NewHTTPClient(nil)}
}

func (a *Adapter) Name() string                { return "Unraid" }
func (a *Adapter) Priority() int               { return 35 }
func (a *Adapter) DependsOn() []string         { return nil }
func (a *Adapter) OptionalDependsOn() []string { return nil }

func (a *Adapter) ActivationCriteria() adapter.ActivationCriteria {
	return adapter.ActivationCriteria{
		RequiredHTTPHeaders: map[string]string{"Content-Security-Policy": CSPHeaderToken},
	}
}

// Scan implements adapter.Platform.
func (a *Adapter) Scan(ctx context.Context, e *entity.Entity, sctx *adapter.Context) adapter.ScanResult {
	port := "443"
	if e.HasOpenPort(80) && !e.HasOpenPort(443) {
		port = "80"
	}
	apiKey, _ := sctx.Credentials.Get("unraid", "api_key")

	containers, err := a.Client.DockerState(ctx, e.IP, port, apiKey)
	if err != nil {
		return adapter.Failure("unraid graphql query failed", err.Error())
	}

	alreadyClassified := e.Type != entity.TypeUnknown && e.Type != ""

	var discovered []*entity.Entity
	var patch *adapter.Patch

	if alreadyClassified {
		// spec §4.5: a host already classified by an earlier adapter (e.g.
		// Portainer running at the same ip) gets a brand-new Unraid root
		// instead of being overwritten, with the original entity reparented
		// underneath it (Open Question: resolved here by the orchestrator's
		// NewParentID patch field — the original entity keeps its own id,
		// type, and identity, it just moves in the tree).
		rootID := fmt.Sprintf("unraid-%s", e.IP)
		root := entity.New(rootID, e.IP, entity.TypeUnraid)
		root.ParentID = entity.NoParent
		root.Status = entity.StatusReachable
		discovered = append(discovered, root)
		patch = &adapter.Patch{NewParentID: rootID}
	} else {
		patch = &adapter.Patch{NewType: entity.TypeUnraid}
	}

	hostID := e.ID
	if alreadyClassified {
		hostID = fmt.Sprintf("unraid-%s", e.IP)
	}
	for _, c := range containers {
		discovered = append(discovered, a.buildContainerEnrichment(c, hostID, e.IP, sctx))
	}

	return adapter.Success(discovered, nil, patch)
}

// buildContainerEnrichment produces a Container observation using the same
// docker-container-<shortid> identity dockerhost uses, so the orchestrator's
// universe.add merge-by-id folds it into the entity Docker already
// discovered on this host instead of duplicating it, when Docker ran on the
// same entity first (spec §5 ordering: earlier adapters' effects are visible
// to later ones on the same entity). When Docker never ran here — the
// common case, since most Unraid boxes don't expose the Engine API port
// Docker's own activation criteria require — this still emits a fresh
// Container entity; see DESIGN.md's Unraid-fabrication open question for why
// strict "enrich existing only" would leave this adapter unable to report
// any containers on a typical Unraid host. Ip and status are authoritative
// here because Unraid knows its own bridge network better than a prober
// guessing at an internal docker0 address.
func (a *Adapter) buildContainerEnrichment(c Container, hostID, hostIP string, sctx *adapter.Context) *entity.Entity {
	shortID := c.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}

	e := entity.New("docker-container-"+shortID, hostIP, entity.TypeContainer)
	e.ParentID = hostID
	e.Name = c.Name
	e.SetMeta(entity.MetaDockerID, entity.String(c.ID))
	e.SetMeta(entity.MetaContainerID, entity.String(c.ID))
	if c.Image != "" {
		e.SetMeta(entity.MetaContainerImage, entity.String(c.Image))
	}

	switch {
	case c.Running && sctx.IsSwept(hostIP):
		e.Status = entity.StatusReachable
	case c.Running:
		e.Status = entity.StatusUnverified
	default:
		e.Status = entity.StatusUnreachable
	}

	return e
}
