// Package conflict implements the Conflict Detector (spec §4.7, L6): a pass
// over the correlated universe that finds invariant violations and, in the
// Unknown-plus-identified case, performs the merge the invariant allows
// instead of emitting a conflict.
package conflict

import (
	"fmt"

	"github.com/google/uuid"

	"labtopo/internal/entity"
)

// Detect scans entities (already correlated) for invariant violations,
// mutating entities in place to merge Unknown/identified collisions, and
// returns the surviving entity set plus the conflict list (spec §4.7).
// Detect must run after correlation so post-merge invariants are
// authoritative.
func Detect(entities []*entity.Entity) ([]*entity.Entity, []entity.Conflict) {
	removed := make(map[string]bool)
	var conflicts []entity.Conflict

	conflicts = append(conflicts, typeMismatch(entities, removed)...)
	conflicts = append(conflicts, unverifiedEntities(entities)...)
	conflicts = append(conflicts, ipMismatches(entities)...)

	out := make([]*entity.Entity, 0, len(entities))
	for _, e := range entities {
		if e == nil || removed[e.ID] {
			continue
		}
		out = append(out, e)
	}
	return out, conflicts
}

// groupKey is the (ip,port) or ip-only grouping key of spec §4.7.
type groupKey struct {
	ip   string
	port int
}

// typeMismatch groups endpoint entities (everything but PortainerStack and
// ProxmoxCluster) by (ip,port) when the entity has ports, else by ip alone.
// A group with >=2 distinct types is a conflict, unless it resolves to
// exactly one Unknown plus >=1 identified entity, in which case the Unknown
// is merged into the identified one and no conflict is emitted.
func typeMismatch(entities []*entity.Entity, removed map[string]bool) []entity.Conflict {
	groups := make(map[groupKey][]*entity.Entity)
	for _, e := range entities {
		if e == nil || e.IsLogical() {
			continue
		}
		if len(e.OpenPorts) == 0 {
			groups[groupKey{ip: e.IP}] = append(groups[groupKey{ip: e.IP}], e)
			continue
		}
		for _, port := range e.OpenPorts {
			groups[groupKey{ip: e.IP, port: port}] = append(groups[groupKey{ip: e.IP, port: port}], e)
		}
	}

	var conflicts []entity.Conflict
	seenConflict := make(map[string]bool)

	for key, members := range groups {
		if key.ip == "" || len(members) < 2 {
			continue
		}
		types := make(map[entity.Type][]*entity.Entity)
		for _, m := range members {
			types[m.Type] = append(types[m.Type], m)
		}
		if len(types) < 2 {
			continue
		}

		unknowns := types[entity.TypeUnknown]
		nonUnknownTypeCount := len(types)
		if _, ok := types[entity.TypeUnknown]; ok {
			nonUnknownTypeCount--
		}

		if len(unknowns) >= 1 && nonUnknownTypeCount == 1 {
			// Exactly one Unknown plus entities of exactly one other type:
			// merge every Unknown into the first identified entity found.
			var identified *entity.Entity
			for _, m := range members {
				if m.Type != entity.TypeUnknown {
					identified = m
					break
				}
			}
			for _, u := range unknowns {
				if removed[u.ID] || u.ID == identified.ID {
					continue
				}
				mergeOpenPorts(identified, u)
				mergeMetadata(identified, u)
				removed[u.ID] = true
			}
			continue
		}

		// Genuine mismatch among identified types (or multiple Unknowns
		// plus >1 other type): emit one conflict per distinct violating
		// group, deduplicated by the sorted member-id set so (ip,port)
		// fan-out across several ports of the same colliding pair doesn't
		// produce duplicate conflicts.
		ids := memberIDs(members)
		dedupKey := fmt.Sprintf("%v", ids)
		if seenConflict[dedupKey] {
			continue
		}
		seenConflict[dedupKey] = true
		conflicts = append(conflicts, entity.Conflict{
			ID:               uuid.NewString(),
			IP:               key.ip,
			Type:             entity.ConflictTypeMismatch,
			InvolvedEntities: ids,
			Description:      fmt.Sprintf("type mismatch at %s: %v", key.ip, typeNames(types)),
		})
	}

	return conflicts
}

func unverifiedEntities(entities []*entity.Entity) []entity.Conflict {
	var conflicts []entity.Conflict
	for _, e := range entities {
		if e == nil || e.Status != entity.StatusUnverified {
			continue
		}
		conflicts = append(conflicts, entity.Conflict{
			ID:               uuid.NewString(),
			IP:               e.IP,
			Type:             entity.ConflictUnverifiedEntity,
			InvolvedEntities: []string{e.ID},
			Description:      fmt.Sprintf("entity %s could not be verified", e.ID),
		})
	}
	return conflicts
}

func ipMismatches(entities []*entity.Entity) []entity.Conflict {
	var conflicts []entity.Conflict
	for _, e := range entities {
		if e == nil {
			continue
		}
		reported := e.Metadata.GetString(entity.MetaAPIReportedIP)
		if reported == "" || reported == e.IP {
			continue
		}
		conflicts = append(conflicts, entity.Conflict{
			ID:               uuid.NewString(),
			IP:               e.IP,
			Type:             entity.ConflictIPMismatch,
			InvolvedEntities: []string{e.ID},
			Description:      fmt.Sprintf("entity %s reports api ip %s but is tracked at %s", e.ID, reported, e.IP),
		})
	}
	return conflicts
}

func memberIDs(members []*entity.Entity) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

func typeNames(types map[entity.Type][]*entity.Entity) []entity.Type {
	out := make([]entity.Type, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	return out
}

func mergeOpenPorts(dst, src *entity.Entity) {
	for _, p := range src.OpenPorts {
		dst.AddOpenPort(p)
	}
}

func mergeMetadata(dst, src *entity.Entity) {
	for k, v := range src.Metadata {
		if _, exists := dst.Metadata[k]; !exists {
			dst.SetMeta(k, v)
		}
	}
}
