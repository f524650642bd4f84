// Package correlate implements the Correlation Engine (spec §4.6, L5): a
// sequence of idempotent passes over the orchestrator's raw universe that
// reparent, deduplicate, merge observations, and propagate identity across
// adapters.
//
// Each pass is a pure function over a []*entity.Entity slice (spec §9:
// "static methods as collaborators... recast as pure functions over report
// values with no hidden state"); Run threads a single removal set through
// all five so a later pass never resurrects an entity an earlier pass
// already absorbed.
package correlate

import "labtopo/internal/entity"

// Run applies the correlation passes in order, per spec §4.6, and returns
// the surviving entities in their original relative order (plus any
// entities a pass had to create, appended at the end). sweptIPs is the
// reachable-host set from the Host Sweeper, needed by pass 2's
// Reachable/Unverified status decision.
func Run(entities []*entity.Entity, sweptIPs map[string]bool) []*entity.Entity {
	removed := make(map[string]bool)

	stackReparenting(entities, removed)
	vmIPPromotion(entities, removed, sweptIPs)
	portainerIdentification(entities, removed)
	clusterDuplicateSuppression(entities, removed)
	unraidReparenting(entities, removed)
	created := macAddressEnrichment(entities, removed)

	out := make([]*entity.Entity, 0, len(entities)+len(created))
	for _, e := range entities {
		if e == nil || removed[e.ID] {
			continue
		}
		out = append(out, e)
	}
	out = append(out, created...)
	return out
}

// mergeMetadata copies keys from src into dst wherever dst doesn't already
// have them (spec §4.5 Portainer: "enriched in place... metadata merged";
// §4.7 Unknown-merge: "metadata taken where absent").
func mergeMetadata(dst *entity.Entity, src *entity.Entity) {
	for k, v := range src.Metadata {
		if _, exists := dst.Metadata[k]; !exists {
			dst.SetMeta(k, v)
		}
	}
}

// mergeOpenPorts unions src's open ports into dst.
func mergeOpenPorts(dst *entity.Entity, src *entity.Entity) {
	for _, p := range src.OpenPorts {
		dst.AddOpenPort(p)
	}
}

func containsID(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// dockerIDMatches reports whether a container's docker_id matches a
// stack/adapter-reported id by full value or 12-char short prefix (spec
// §4.5 Portainer: "matches by full or 12-char-prefix id").
func dockerIDMatches(containerDockerID, reported string) bool {
	if containerDockerID == "" || reported == "" {
		return false
	}
	if containerDockerID == reported {
		return true
	}
	short := containerDockerID
	if len(short) > 12 {
		short = short[:12]
	}
	reportedShort := reported
	if len(reportedShort) > 12 {
		reportedShort = reportedShort[:12]
	}
	return short == reportedShort
}
