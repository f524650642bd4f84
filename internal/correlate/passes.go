package correlate

import (
	"strings"

	"labtopo/internal/entity"
)

// stackReparenting is pass 1 (spec §4.6.1): for each PortainerStack whose
// metadata lists container_ids, set each matching Container's parent to the
// stack's id.
func stackReparenting(entities []*entity.Entity, removed map[string]bool) {
	for _, stack := range entities {
		if stack == nil || removed[stack.ID] || stack.Type != entity.TypePortainerStack {
			continue
		}
		ids, ok := stack.Metadata[entity.MetaContainerIDs]
		if !ok || ids.Kind != entity.KindListOfString {
			continue
		}
		for _, c := range entities {
			if c == nil || removed[c.ID] || c.Type != entity.TypeContainer {
				continue
			}
			dockerID := c.Metadata.GetString(entity.MetaDockerID)
			matches := containsID(ids.List, c.ID)
			if !matches {
				for _, reported := range ids.List {
					if dockerIDMatches(dockerID, reported) {
						matches = true
						break
					}
				}
			}
			if matches {
				c.ParentID = stack.ID
			}
		}
	}
}

// vmIPPromotion is pass 2 (spec §4.6.2).
func vmIPPromotion(entities []*entity.Entity, removed map[string]bool, sweptIPs map[string]bool) {
	for _, vm := range entities {
		if vm == nil || removed[vm.ID] {
			continue
		}
		if vm.Type != entity.TypeVm && vm.Type != entity.TypeLxc {
			continue
		}
		if vm.IP != "" {
			continue
		}
		reported := vm.Metadata.GetString(entity.MetaAPIReportedIP)
		if reported == "" {
			continue
		}
		vm.IP = reported
		if sweptIPs[reported] {
			vm.Status = entity.StatusReachable
		} else {
			vm.Status = entity.StatusUnverified
		}
	}

	// Remove Unknown entities at the same IP as a now-IP-bearing VM/Lxc,
	// merging their open ports in if the VM had none.
	for _, vm := range entities {
		if vm == nil || removed[vm.ID] || vm.IP == "" {
			continue
		}
		if vm.Type != entity.TypeVm && vm.Type != entity.TypeLxc {
			continue
		}
		for _, other := range entities {
			if other == nil || removed[other.ID] || other.ID == vm.ID {
				continue
			}
			if other.Type == entity.TypeUnknown && other.IP == vm.IP {
				if len(vm.OpenPorts) == 0 {
					mergeOpenPorts(vm, other)
				}
				removed[other.ID] = true
			}
		}
	}

	// Any DockerHost/PortainerService sharing the VM's IP is reparented
	// under the VM — the host *is* the VM.
	for _, vm := range entities {
		if vm == nil || removed[vm.ID] || vm.IP == "" {
			continue
		}
		if vm.Type != entity.TypeVm && vm.Type != entity.TypeLxc {
			continue
		}
		for _, other := range entities {
			if other == nil || removed[other.ID] || other.ID == vm.ID {
				continue
			}
			if (other.Type == entity.TypeDockerHost || other.Type == entity.TypePortainerService) && other.IP == vm.IP {
				other.ParentID = vm.ID
			}
		}
	}
}

// portainerIdentification is pass 3 (spec §4.6.3): for each PortainerService,
// find a container by IP equality or case-insensitive "portainer" in its
// name, and absorb it into the service entity — the discovered container is
// a duplicate observation of the same running process the host-level
// PortainerService entity already represents (Open Question decision,
// recorded in DESIGN.md).
func portainerIdentification(entities []*entity.Entity, removed map[string]bool) {
	for _, svc := range entities {
		if svc == nil || removed[svc.ID] || svc.Type != entity.TypePortainerService {
			continue
		}
		for _, c := range entities {
			if c == nil || removed[c.ID] || c.ID == svc.ID || c.Type != entity.TypeContainer {
				continue
			}
			ipMatch := svc.IP != "" && c.IP == svc.IP
			nameMatch := strings.Contains(strings.ToLower(c.Name), "portainer")
			if !ipMatch && !nameMatch {
				continue
			}
			mergeMetadata(svc, c)
			if len(svc.OpenPorts) == 0 {
				mergeOpenPorts(svc, c)
			}
			removed[c.ID] = true
			// Only one container should represent the service; stop after
			// the first match so re-running the pass is idempotent (the
			// container no longer exists on the second application).
			break
		}
	}
}

// clusterDuplicateSuppression is pass 4 (spec §4.6.4).
func clusterDuplicateSuppression(entities []*entity.Entity, removed map[string]bool) {
	for _, cluster := range entities {
		if cluster == nil || removed[cluster.ID] || cluster.Type != entity.TypeProxmoxCluster {
			continue
		}
		nodeIPs, ok := cluster.Metadata[entity.MetaClusterNodeIPs]
		if !ok || nodeIPs.Kind != entity.KindListOfString {
			continue
		}
		for _, other := range entities {
			if other == nil || removed[other.ID] || other.ID == cluster.ID {
				continue
			}
			if other.Type != entity.TypeProxmox && other.Type != entity.TypeService {
				continue
			}
			if other.ParentID != entity.NoParent && !other.ParentUnset() {
				continue
			}
			for _, nip := range nodeIPs.List {
				if other.IP == nip {
					other.ParentID = cluster.ID
					other.Status = entity.StatusUnreachable
					other.SetMeta(entity.MetaReason, entity.String("Duplicate cluster node"))
					break
				}
			}
		}
	}
}

// unraidReparenting is pass 5 (spec §4.6.5).
func unraidReparenting(entities []*entity.Entity, removed map[string]bool) {
	for _, host := range entities {
		if host == nil || removed[host.ID] || host.Type != entity.TypeUnraid {
			continue
		}
		for _, c := range entities {
			if c == nil || removed[c.ID] || c.Type != entity.TypeContainer {
				continue
			}
			if c.IP != host.IP {
				continue
			}
			if parent, ok := findByID(entities, c.ParentID); ok && parent.Type == entity.TypePortainerStack {
				parent.ParentID = host.ID
				continue
			}
			c.ParentID = host.ID
		}
	}
}

// macAddressEnrichment is pass 6, supplementing spec §4.5's RouterAdapter
// description ("for every other entity in the universe whose ip matches a
// lease, attaches mac_address... emits new AccessPoint entities... or
// promotes an existing entity at that ip"). The adapter itself only sees
// the router entity it was invoked on, so matching its published lease
// table against the rest of the universe — the same cross-entity,
// ip-keyed shape as pass 2's guest-ip adoption — belongs here. Returns any
// brand-new AccessPoint entities created for leases with no existing
// match.
func macAddressEnrichment(entities []*entity.Entity, removed map[string]bool) []*entity.Entity {
	var created []*entity.Entity

	for _, source := range entities {
		if source == nil || removed[source.ID] {
			continue
		}
		leases, ok := source.Metadata[entity.MetaDHCPLeases]
		if !ok || leases.Kind != entity.KindMapping {
			continue
		}
		// Only a genuine Router owns AccessPoint creation/reparenting; an
		// SNMP device's arp table (the "secondary lease source" of spec
		// §4.5.1) only contributes mac addresses and hostnames.
		isRouter := source.Type == entity.TypeRouter

		for ip, encoded := range leases.Map {
			mac, hostname, role, isAP := decodeLease(encoded)

			matched := false
			for _, e := range entities {
				if e == nil || removed[e.ID] || e.ID == source.ID || e.IP != ip {
					continue
				}
				matched = true
				if mac != "" {
					e.SetMeta(entity.MetaMACAddress, entity.String(mac))
				}
				if hostname != "" && isGenericName(e) {
					e.Name = hostname
				}
				if isRouter && isAP && e.Type != entity.TypeAccessPoint {
					e.Type = entity.TypeAccessPoint
					e.ParentID = source.ID
				}
			}

			if !matched && isRouter && isAP {
				ap := entity.New(accessPointID(ip), ip, entity.TypeAccessPoint)
				ap.ParentID = source.ID
				ap.Status = entity.StatusUnverified
				ap.Name = hostname
				if mac != "" {
					ap.SetMeta(entity.MetaMACAddress, entity.String(mac))
				}
				if role != "" {
					ap.SetMeta(entity.MetaReason, entity.String(role))
				}
				created = append(created, ap)
			}
		}
	}

	return created
}

// decodeLease reverses RouterAdapter's "mac|hostname|role|isAP" encoding.
func decodeLease(encoded string) (mac, hostname, role string, isAP bool) {
	parts := strings.SplitN(encoded, "|", 4)
	if len(parts) > 0 {
		mac = parts[0]
	}
	if len(parts) > 1 {
		hostname = parts[1]
	}
	if len(parts) > 2 {
		role = parts[2]
	}
	if len(parts) > 3 {
		isAP = parts[3] == "true"
	}
	return
}

func isGenericName(e *entity.Entity) bool {
	return e.Name == "" || e.Name == e.IP || strings.EqualFold(e.Name, string(e.Type))
}

func accessPointID(ip string) string {
	return "accesspoint-" + ip
}

func findByID(entities []*entity.Entity, id string) (*entity.Entity, bool) {
	if id == "" {
		return nil, false
	}
	for _, e := range entities {
		if e != nil && e.ID == id {
			return e, true
		}
	}
	return nil, false
}
