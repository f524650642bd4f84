package adapter

import "labtopo/internal/entity"

// ApplyHints implements the "(Hints applied)" phase of spec §2's control
// flow, run once between probing and orchestration. A hint whose ip matches
// an already-discovered entity overrides its name (always) and its type
// (only from Unknown); a hint naming an ip nothing discovered creates a new
// Unverified entity for it, since a hint is itself a creation source (spec
// §3: "An entity is created by... a hint promoting an unknown host").
func ApplyHints(entities []*entity.Entity, hints []Hint) []*entity.Entity {
	byIP := make(map[string]*entity.Entity, len(entities))
	for _, e := range entities {
		if e != nil && e.IP != "" {
			byIP[e.IP] = e
		}
	}

	out := entities
	for _, h := range hints {
		if h.IP == "" {
			continue
		}
		target, ok := byIP[h.IP]
		if !ok {
			target = entity.New(hintEntityID(h), h.IP, entity.TypeUnknown)
			target.Status = entity.StatusUnverified
			byIP[h.IP] = target
			out = append(out, target)
		}

		if h.Name != "" {
			target.Name = h.Name
		}
		if h.Type != "" && target.Type == entity.TypeUnknown {
			target.Type = h.Type
		}
		if h.Port != 0 {
			target.AddOpenPort(h.Port)
		}
		if h.TokenEnvKey != "" {
			target.SetMeta(entity.MetaHintTokenEnv, entity.String(h.TokenEnvKey))
		}
	}

	return out
}

func hintEntityID(h Hint) string {
	return "hint-" + h.IP
}
