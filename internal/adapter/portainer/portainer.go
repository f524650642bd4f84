package portainer

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"labtopo/internal/adapter"
	"labtopo/internal/adapter/dockerhost"
	"labtopo/internal/entity"
)

// preferredPorts is the port preference order of spec §4.5.
var preferredPorts = []int{9443, 9010, 9000}

// Adapter is the PortainerAdapter of spec §4.5: priority 30, optional
// dependency on Docker.
type Adapter struct {
	Client Client
}

// New builds a PortainerAdapter with the default HTTP client.
func New() *Adapter {
	return &Adapter{Client: NewHTTPClient(nil)}
}

func (a *Adapter) Name() string                { return "Portainer" }
func (a *Adapter) Priority() int               { return 30 }
func (a *Adapter) DependsOn() []string         { return nil }
func (a *Adapter) OptionalDependsOn() []string { return []string{"Docker"} }

func (a *Adapter) ActivationCriteria() adapter.ActivationCriteria {
	return adapter.ActivationCriteria{RequiredOpenPorts: preferredPorts}
}

// Scan implements adapter.Platform.
func (a *Adapter) Scan(ctx context.Context, e *entity.Entity, sctx *adapter.Context) adapter.ScanResult {
	port := choosePort(e)
	if port == "" {
		return adapter.Failure("portainer: no preferred port open", "")
	}

	token, _ := sctx.Credentials.Get("portainer", "api_token")

	if err := a.Client.VerifyStatus(ctx, e.IP, port, token); err != nil {
		return adapter.Failure("portainer status verification failed", err.Error())
	}

	endpoints, err := a.Client.ListEndpoints(ctx, e.IP, port, token)
	if err != nil {
		return adapter.Failure("portainer endpoint enumeration failed", err.Error())
	}

	var discovered []*entity.Entity
	for _, ep := range endpoints {
		discovered = append(discovered, a.scanEndpoint(ctx, e, ep, sctx, port, token)...)
	}

	patch := &adapter.Patch{NewType: entity.TypePortainerService}
	return adapter.Success(discovered, []string{"Portainer"}, patch)
}

func (a *Adapter) scanEndpoint(ctx context.Context, host *entity.Entity, ep Endpoint, sctx *adapter.Context, port, token string) []*entity.Entity {
	stacks, err := a.Client.ListStacks(ctx, host.IP, port, token, ep.ID)
	if err != nil {
		log.Printf("portainer: list stacks for endpoint %s failed: %v", ep.Name, err)
		return nil
	}

	containers, err := a.Client.ListEndpointContainers(ctx, host.IP, port, token, ep.ID)
	if err != nil {
		log.Printf("portainer: list containers for endpoint %s failed: %v", ep.Name, err)
	}

	var out []*entity.Entity
	for _, stack := range stacks {
		ids := containerIDsForStack(stack, containers)
		stackEntity := entity.New(fmt.Sprintf("portainer-stack-%d", stack.ID), "", entity.TypePortainerStack)
		stackEntity.Name = stack.Name
		stackEntity.ParentID = host.ID
		stackEntity.Status = entity.StatusReachable
		stackEntity.SetMeta(entity.MetaPortainerStackID, entity.String(strconv.Itoa(stack.ID)))
		if len(ids) > 0 {
			stackEntity.SetMeta(entity.MetaContainerIDs, entity.List(ids))
		}
		out = append(out, stackEntity)
	}
	return out
}

// containerIDsForStack finds every container whose compose-project label
// equals the stack's name (spec §4.5: "Container-to-stack binding uses the
// compose-project label").
func containerIDsForStack(stack Stack, containers []dockerhost.Container) []string {
	var ids []string
	for _, c := range containers {
		if c.Labels[dockerhost.ComposeProjectLabel] == stack.Name {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func choosePort(e *entity.Entity) string {
	for _, p := range preferredPorts {
		if e.HasOpenPort(p) {
			return strconv.Itoa(p)
		}
	}
	return ""
}
