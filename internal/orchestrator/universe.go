package orchestrator

import "labtopo/internal/entity"

// universe is the shared mutable entity list accumulated across the run
// (spec §4.4, §9 "shared mutable entity list"). The orchestrator is the sole
// writer — a single logical driver thread — so no locking is needed; this
// realizes the "single orchestrator task" option of §9 over a mutex-guarded
// list.
type universe struct {
	list []*entity.Entity
}

func newUniverse(seeds []*entity.Entity) universe {
	return universe{list: append([]*entity.Entity(nil), seeds...)}
}

// add appends e, unless an entity with the same id is already present, in
// which case e enriches it in place instead of producing a duplicate (spec
// invariant 1: entity ids are unique within a run). This is how a later
// adapter's observation of an already-discovered entity — e.g. Unraid
// reporting a container Docker already created — becomes "enrichment in
// place" rather than a spurious sibling.
// add returns the canonical entity for e.ID: either e itself, newly
// appended, or the pre-existing entity e was just folded into. Callers must
// queue the returned pointer, not e, so later scanning mutates the one
// object the universe actually tracks.
func (u *universe) add(e *entity.Entity) *entity.Entity {
	if existing := u.findByID(e.ID); existing != nil {
		enrich(existing, e)
		return existing
	}
	u.list = append(u.list, e)
	return e
}

func (u *universe) findByID(id string) *entity.Entity {
	for _, e := range u.list {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// enrich folds src's observation into dst: ip and status are authoritative
// from the newer source (later adapters typically know more, e.g. Unraid
// reporting its container's real ip), metadata only fills gaps so the
// earlier, more specific source keeps precedence.
func enrich(dst, src *entity.Entity) {
	if src.IP != "" {
		dst.IP = src.IP
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if dst.Name == "" && src.Name != "" {
		dst.Name = src.Name
	}
	for _, p := range src.OpenPorts {
		dst.AddOpenPort(p)
	}
	for k, v := range src.Metadata {
		if _, exists := dst.Metadata[k]; !exists {
			dst.SetMeta(k, v)
		}
	}
}

// rebind retargets every entity's ParentID that pointed at oldID, after an
// adapter promotion rewrites an entity's id (spec §9 "identity races").
func (u *universe) rebind(oldID, newID string) {
	for _, e := range u.list {
		if e.ParentID == oldID {
			e.ParentID = newID
		}
	}
}
