// Package orchestrator implements the Scan Orchestrator (spec §4.4, L3): it
// drives the work queue, selects and runs adapters per entity, applies their
// patches atomically, and produces the raw entity multiset handed to
// correlation.
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

// Orchestrator drains a FIFO queue of entities, running applicable adapters
// on each and enqueuing any children they discover.
type Orchestrator struct {
	registry *adapter.Registry
}

// New creates an Orchestrator bound to a populated adapter.Registry.
func New(registry *adapter.Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// Run executes the algorithm of spec §4.4 against the seed entities
// (typically the probe-fingerprinted hosts) and returns the resulting
// universe — every entity created, mutated in place, in first-discovery
// order. A cancelled ctx stops dequeuing further work; entities already
// in flight are allowed to finish their current adapter, then the loop
// returns with whatever universe has accumulated (spec §5, §8 property 7).
func (o *Orchestrator) Run(ctx context.Context, seeds []*entity.Entity, sctx *adapter.Context) []*entity.Entity {
	queue := newQueue(seeds)
	scanned := make(map[string]bool)
	universe := newUniverse(seeds)

	for {
		select {
		case <-ctx.Done():
			log.Printf("orchestrator: cancelled, returning %d entities scanned so far", len(scanned))
			return universe.list
		default:
		}

		e, ok := queue.pop()
		if !ok {
			break
		}
		if scanned[e.ID] {
			continue
		}
		if e.IP != "" && !sctx.IsSwept(e.IP) {
			// Non-routable or otherwise unswept IP (e.g. a container's
			// internal bridge address like 172.17.x) — do not scan it as
			// an independent entity, but it still occupies a slot in the
			// universe for correlation to reason about.
			scanned[e.ID] = true
			continue
		}

		o.scanOne(ctx, e, sctx, &queue, &universe)
		scanned[e.ID] = true
	}

	return universe.list
}

// scanOne computes the adapter plan for e, runs each adapter serially (so
// later adapters observe earlier ones' mutations, spec §5), applies patches
// atomically, and enqueues discovered children.
func (o *Orchestrator) scanOne(ctx context.Context, e *entity.Entity, sctx *adapter.Context, queue *workQueue, universe *universe) {
	plan := o.registry.FindApplicable(ctx, e, sctx)
	for _, platform := range plan {
		result := o.invoke(ctx, platform, e, sctx)

		if !result.OK {
			e.Status = entity.StatusUnverified
			if result.Err != nil {
				e.SetMeta(entity.MetaScanError, entityString(result.Err.Message))
				if result.Err.Details != "" {
					e.SetMeta(entity.MetaScanErrorReason, entityString(result.Err.Details))
				}
			}
			continue
		}

		oldID := e.ID
		applyPatch(e, result.Patch)
		if oldID != e.ID {
			queue.rebind(oldID, e.ID)
			universe.rebind(oldID, e.ID)
		}

		for _, child := range result.Discovered {
			if child.ParentUnset() {
				child.ParentID = e.ID
			}
			canonical := universe.add(child)
			queue.push(canonical)
		}
	}
}

// invoke runs a single adapter, converting a panic into a Failure result so
// the orchestrator never propagates an adapter exception (spec §4.4 step 6).
func (o *Orchestrator) invoke(ctx context.Context, platform adapter.Platform, e *entity.Entity, sctx *adapter.Context) (result adapter.ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("orchestrator: adapter %s panicked on entity %s: %v", platform.Name(), e.ID, r)
			result = adapter.ScanResult{
				Err: &adapter.ScanError{Message: fmt.Sprintf("panic: %v", r)},
			}
			e.SetMeta(entity.MetaScanException, entityString(fmt.Sprintf("%v", r)))
		}
	}()

	deadline := sctx.Timeouts.AdapterDefault
	scanCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	return platform.Scan(scanCtx, e, sctx)
}

// applyPatch applies an adapter's requested mutation to e in one step,
// avoiding the read/write races spec §9 warns about. A nil patch is a no-op.
func applyPatch(e *entity.Entity, patch *adapter.Patch) {
	if patch == nil {
		return
	}
	if patch.NewType != "" {
		e.Type = patch.NewType
	}
	if patch.NewID != "" {
		e.ID = patch.NewID
	}
	if patch.IPCleared {
		e.IP = ""
	} else if patch.NewIP != "" {
		e.IP = patch.NewIP
	}
	if patch.StatusUpdate != "" {
		e.Status = patch.StatusUpdate
	}
	if patch.NewParentID != "" {
		e.ParentID = patch.NewParentID
	}
	for k, v := range patch.MetadataUpdates {
		e.SetMeta(k, v)
	}
}

func entityString(s string) entity.Value { return entity.String(s) }
