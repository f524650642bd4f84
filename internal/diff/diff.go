// Package diff implements the Diff Engine (spec §4.8, L7): it fingerprints
// entities from two TopologyReport snapshots and reports what was added,
// removed, or changed between them.
package diff

import (
	"fmt"
	"sort"

	"labtopo/internal/entity"
)

// ChangeKind enumerates the field a Modified change's primary difference was
// found in, per spec §4.8's listed priority order.
type ChangeKind string

const (
	KindAdded          ChangeKind = "Added"
	KindRemoved        ChangeKind = "Removed"
	KindModifiedIP     ChangeKind = "ModifiedIp"
	KindModifiedStatus ChangeKind = "ModifiedStatus"
	KindModifiedParent ChangeKind = "ModifiedParentId"
	KindModifiedName   ChangeKind = "ModifiedName"
	KindModifiedPorts  ChangeKind = "ModifiedExposedPorts"
)

// Change describes one difference found between the two snapshots.
type Change struct {
	Fingerprint string
	Kind        ChangeKind
	EntityID    string
	Details     string
}

// Report is the result of diffing two TopologyReports.
type Report struct {
	BaselineScanID string
	CurrentScanID  string
	Changes        []Change
}

// Fingerprint computes the stable diff key for e, per spec §4.8's priority
// order.
func Fingerprint(e entity.Entity) string {
	if id := e.Metadata.GetString(entity.MetaDockerID); id != "" {
		return "docker:" + id
	}
	if id := e.Metadata.GetString(entity.MetaProxmoxVMID); id != "" {
		return "proxmox:" + id
	}
	if id := e.Metadata.GetString(entity.MetaPortainerStackID); id != "" {
		return "portainer-stack:" + id
	}
	if e.Name != "" {
		return fmt.Sprintf("%s:%s", e.Type, e.Name)
	}
	return "ip:" + e.IP
}

// Diff compares baseline (older) against current (newer) and returns the
// change list (spec §4.8).
func Diff(baseline, current *entity.TopologyReport) Report {
	report := Report{}
	if baseline != nil {
		report.BaselineScanID = baseline.ScanID
	}
	if current != nil {
		report.CurrentScanID = current.ScanID
	}

	baseByFp := indexByFingerprint(baseline)
	curByFp := indexByFingerprint(current)

	var fps []string
	seen := make(map[string]bool)
	for fp := range baseByFp {
		if !seen[fp] {
			seen[fp] = true
			fps = append(fps, fp)
		}
	}
	for fp := range curByFp {
		if !seen[fp] {
			seen[fp] = true
			fps = append(fps, fp)
		}
	}
	sort.Strings(fps)

	for _, fp := range fps {
		oldE, inBaseline := baseByFp[fp]
		newE, inCurrent := curByFp[fp]

		switch {
		case inCurrent && !inBaseline:
			report.Changes = append(report.Changes, Change{
				Fingerprint: fp, Kind: KindAdded, EntityID: newE.ID,
				Details: fmt.Sprintf("entity added: %s (%s)", newE.ID, newE.Type),
			})
		case inBaseline && !inCurrent:
			report.Changes = append(report.Changes, Change{
				Fingerprint: fp, Kind: KindRemoved, EntityID: oldE.ID,
				Details: fmt.Sprintf("entity removed: %s (%s)", oldE.ID, oldE.Type),
			})
		default:
			if change, changed := compareEntities(fp, oldE, newE); changed {
				report.Changes = append(report.Changes, change)
			}
		}
	}

	return report
}

// compareEntities finds the first-differing field among ip, status,
// parentId, name, exposed_ports, per spec §4.8's listed priority order.
func compareEntities(fp string, oldE, newE *entity.Entity) (Change, bool) {
	if oldE.IP != newE.IP {
		return Change{
			Fingerprint: fp, Kind: KindModifiedIP, EntityID: newE.ID,
			Details: fmt.Sprintf("IP changed: %s → %s", oldE.IP, newE.IP),
		}, true
	}
	if oldE.Status != newE.Status {
		return Change{
			Fingerprint: fp, Kind: KindModifiedStatus, EntityID: newE.ID,
			Details: fmt.Sprintf("status changed: %s → %s", oldE.Status, newE.Status),
		}, true
	}
	if oldE.ParentID != newE.ParentID {
		return Change{
			Fingerprint: fp, Kind: KindModifiedParent, EntityID: newE.ID,
			Details: fmt.Sprintf("parent changed: %s → %s", oldE.ParentID, newE.ParentID),
		}, true
	}
	if oldE.Name != newE.Name {
		return Change{
			Fingerprint: fp, Kind: KindModifiedName, EntityID: newE.ID,
			Details: fmt.Sprintf("name changed: %q → %q", oldE.Name, newE.Name),
		}, true
	}
	oldPorts := oldE.Metadata.GetString(entity.MetaExposedPorts)
	newPorts := newE.Metadata.GetString(entity.MetaExposedPorts)
	if !exposedPortsEqual(oldE, newE) {
		return Change{
			Fingerprint: fp, Kind: KindModifiedPorts, EntityID: newE.ID,
			Details: fmt.Sprintf("exposed ports changed: %s → %s", oldPorts, newPorts),
		}, true
	}
	return Change{}, false
}

// exposedPortsEqual compares the exposed_ports metadata list by set
// equality, per spec §4.8.
func exposedPortsEqual(oldE, newE *entity.Entity) bool {
	oldV, oldOK := oldE.Metadata[entity.MetaExposedPorts]
	newV, newOK := newE.Metadata[entity.MetaExposedPorts]
	if !oldOK && !newOK {
		return true
	}
	if !oldOK || !newOK {
		return false
	}
	return oldV.Equal(newV)
}

func indexByFingerprint(report *entity.TopologyReport) map[string]*entity.Entity {
	out := make(map[string]*entity.Entity)
	if report == nil {
		return out
	}
	for i := range report.Entities {
		e := &report.Entities[i]
		out[Fingerprint(*e)] = e
	}
	return out
}
