package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"labtopo/internal/entity"
)

// Registry holds the set of platform adapters and computes, for a given
// entity, the ordered dependency-satisfied list of adapters to run (spec
// §4.3, L2).
type Registry struct {
	byName    map[string]Platform
	ordered   []Platform // registration order, re-sorted by priority on Register
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Platform)}
}

// Register indexes adapter by name, replacing any adapter previously
// registered under the same name.
func (r *Registry) Register(p Platform) {
	if _, exists := r.byName[p.Name()]; !exists {
		r.ordered = append(r.ordered, p)
	} else {
		for i, existing := range r.ordered {
			if existing.Name() == p.Name() {
				r.ordered[i] = p
				break
			}
		}
	}
	r.byName[p.Name()] = p
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return r.ordered[i].Priority() < r.ordered[j].Priority()
	})
}

// All returns every registered adapter, priority order.
func (r *Registry) All() []Platform {
	return append([]Platform(nil), r.ordered...)
}

// FindApplicable returns the ordered, dependency-satisfied adapter list for
// entity e (spec §4.3 selection rule + dependency resolution).
func (r *Registry) FindApplicable(ctx context.Context, e *entity.Entity, sctx *Context) []Platform {
	var matched []Platform
	family := TypeFamily(e.Type)
	for _, p := range r.ordered {
		if family != "" && p.Name() == family {
			matched = append(matched, p)
			continue
		}
		if r.criteriaMatch(ctx, p, e, sctx) {
			matched = append(matched, p)
		}
	}
	return r.orderByDependencies(matched)
}

// criteriaMatch evaluates an adapter's activation criteria. Per spec §4.3,
// all *configured* criteria must pass (open ports are OR'd among themselves,
// every other configured criterion is AND'd); an adapter with no criteria at
// all never activates this way (it must be reached via type-match).
func (r *Registry) criteriaMatch(ctx context.Context, p Platform, e *entity.Entity, sctx *Context) bool {
	crit := p.ActivationCriteria()
	hasAnyCriteria := len(crit.RequiredOpenPorts) > 0 || len(crit.RequiredHTTPHeaders) > 0 ||
		len(crit.RequiredURLPatterns) > 0 || crit.CustomPredicate != nil
	if !hasAnyCriteria {
		return false
	}

	if len(crit.RequiredOpenPorts) > 0 {
		any := false
		for _, port := range crit.RequiredOpenPorts {
			if e.HasOpenPort(port) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}

	for header, substr := range crit.RequiredHTTPHeaders {
		val, ok := e.HTTPHeaders[header]
		if !ok || !strings.Contains(strings.ToLower(val), strings.ToLower(substr)) {
			return false
		}
	}

	if len(crit.RequiredURLPatterns) > 0 {
		matched := false
		for _, pattern := range crit.RequiredURLPatterns {
			if probeURLPattern(ctx, e.IP, pattern, sctx) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if crit.CustomPredicate != nil && !crit.CustomPredicate(ctx, e, sctx) {
		return false
	}

	return true
}

func probeURLPattern(ctx context.Context, ip, pattern string, sctx *Context) bool {
	client := &http.Client{
		Timeout:   sctx.Timeouts.HTTP,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
	}
	for _, scheme := range []string{"https", "http"} {
		url := fmt.Sprintf("%s://%s%s", scheme, ip, pattern)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}
	return false
}

// orderByDependencies emits matched in an order where each adapter's hard
// dependencies (that are themselves present in matched) already appear
// earlier (spec §4.3 dependency resolution). Falls back to priority order
// with a logged warning when no such order exists (a dependency cycle).
func (r *Registry) orderByDependencies(matched []Platform) []Platform {
	present := make(map[string]bool, len(matched))
	for _, p := range matched {
		present[p.Name()] = true
	}

	emitted := make(map[string]bool, len(matched))
	var out []Platform
	remaining := append([]Platform(nil), matched...)

	for len(remaining) > 0 {
		progressed := false
		var next []Platform
		for _, p := range remaining {
			ready := true
			for _, dep := range p.DependsOn() {
				if present[dep] && !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, p)
				emitted[p.Name()] = true
				progressed = true
			} else {
				next = append(next, p)
			}
		}
		remaining = next
		if !progressed && len(remaining) > 0 {
			log.Printf("adapter: dependency cycle among %v, emitting remainder in priority order", names(remaining))
			out = append(out, remaining...)
			break
		}
	}
	return out
}

func names(ps []Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}
