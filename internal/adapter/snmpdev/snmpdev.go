// Package snmpdev implements the SNMP adapter (spec §4.5.1 supplement, L4):
// a read-only SNMP GET/walk against devices that answer SNMP but match
// none of the platform-specific adapters — plain switches and access
// points, the teacher pack's one missing device class.
package snmpdev

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

const (
	oidSysDescr     = ".1.3.6.1.2.1.1.1.0"
	oidSysName      = ".1.3.6.1.2.1.1.5.0"
	oidIfDescr      = ".1.3.6.1.2.1.2.2.1.2"
	oidIPNetToMedia = ".1.3.6.1.2.1.4.22.1.2" // ipNetToMediaPhysAddress: ifIndex.ip -> mac
)

// Session is the pluggable SNMP transport, narrowed to the operations this
// adapter needs, so tests can fake a device without a real UDP socket.
type Session interface {
	Get(oid string) (string, error)
	WalkCount(oid string) (int, error)
	WalkARPTable() (map[string]string, error) // ip -> mac
	Close()
}

// Dialer opens a Session against host using the operator-supplied
// community string (spec non-goal: "authenticated intrusive probing" is
// still out; this stays read-only SNMP GET/walk with v2c community
// strings from Credentials).
type Dialer func(ctx context.Context, host, community string, timeout time.Duration) (Session, error)

// Adapter is the SNMP device adapter of spec §4.5.1: priority 40, custom
// predicate (port 161 reachable, or an operator hint naming Router/
// AccessPoint).
type Adapter struct {
	Dial Dialer
}

// New builds an Adapter using the real gosnmp transport.
func New() *Adapter {
	return &Adapter{Dial: dialGoSNMP}
}

func (a *Adapter) Name() string                { return "SNMP" }
func (a *Adapter) Priority() int               { return 40 }
func (a *Adapter) DependsOn() []string         { return nil }
func (a *Adapter) OptionalDependsOn() []string { return nil }

func (a *Adapter) ActivationCriteria() adapter.ActivationCriteria {
	return adapter.ActivationCriteria{
		CustomPredicate: func(ctx context.Context, e *entity.Entity, sctx *adapter.Context) bool {
			if e.HasOpenPort(161) {
				return true
			}
			for _, h := range sctx.Hints {
				if h.IP == e.IP && (h.Type == entity.TypeRouter || h.Type == entity.TypeAccessPoint) {
					return true
				}
			}
			return false
		},
	}
}

// Scan implements adapter.Platform.
func (a *Adapter) Scan(ctx context.Context, e *entity.Entity, sctx *adapter.Context) adapter.ScanResult {
	community, _ := sctx.Credentials.Get("snmp", "community")
	if community == "" {
		community = "public"
	}

	sess, err := a.Dial(ctx, e.IP, community, sctx.Timeouts.HTTP)
	if err != nil {
		return adapter.Failure("snmp session failed", err.Error())
	}
	defer sess.Close()

	sysDescr, err := sess.Get(oidSysDescr)
	if err != nil {
		return adapter.Failure("snmp sysDescr query failed", err.Error())
	}
	sysName, _ := sess.Get(oidSysName)
	ifCount, _ := sess.WalkCount(oidIfDescr)

	metadata := entity.Metadata{
		"sysDescr": entity.String(sysDescr),
		"ifCount":  entity.Int(int64(ifCount)),
	}
	// The ARP (ipNetToMedia) table, where present, becomes a secondary lease
	// source for the mac address enrichment correlation pass (spec §4.5.1).
	if macTable, err := sess.WalkARPTable(); err == nil && len(macTable) > 0 {
		metadata[entity.MetaDHCPLeases] = entity.Mapping(encodeARPAsLeases(macTable))
	}

	patch := &adapter.Patch{MetadataUpdates: metadata}
	if e.Type == entity.TypeUnknown || e.Type == "" {
		patch.NewType = entity.TypeService
	}
	if sysName != "" {
		if e.HostnameInference == nil {
			e.HostnameInference = &entity.HostnameInference{}
		}
		e.HostnameInference.AddCandidate(sysName, entity.SourceAdapter, time.Now())
		if e.Name == "" {
			e.Name = e.HostnameInference.GetBestHostname()
		}
	}

	return adapter.Success(nil, nil, patch)
}

type gosnmpSession struct {
	conn *gosnmp.GoSNMP
}

func dialGoSNMP(ctx context.Context, host, community string, timeout time.Duration) (Session, error) {
	cfg := &gosnmp.GoSNMP{
		Target:    host,
		Port:      161,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
	if err := cfg.Connect(); err != nil {
		return nil, fmt.Errorf("snmpdev: connect to %s: %w", host, err)
	}
	return &gosnmpSession{conn: cfg}, nil
}

func (s *gosnmpSession) Get(oid string) (string, error) {
	result, err := s.conn.Get([]string{oid})
	if err != nil {
		return "", err
	}
	if len(result.Variables) == 0 {
		return "", fmt.Errorf("snmpdev: empty response for %s", oid)
	}
	return valueToString(result.Variables[0].Value), nil
}

func (s *gosnmpSession) WalkCount(oid string) (int, error) {
	count := 0
	err := s.conn.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
		count++
		return nil
	})
	return count, err
}

func (s *gosnmpSession) WalkARPTable() (map[string]string, error) {
	out := make(map[string]string)
	err := s.conn.BulkWalk(oidIPNetToMedia, func(pdu gosnmp.SnmpPDU) error {
		mac, ok := pdu.Value.([]byte)
		if !ok || len(mac) != 6 {
			return nil
		}
		ip := ipFromOIDSuffix(pdu.Name)
		if ip == "" {
			return nil
		}
		out[ip] = fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
		return nil
	})
	return out, err
}

// ipFromOIDSuffix extracts the trailing 4-octet ip address from an
// ipNetToMediaPhysAddress instance oid (...ifIndex.a.b.c.d).
func ipFromOIDSuffix(oid string) string {
	segments := strings.Split(oid, ".")
	if len(segments) < 4 {
		return ""
	}
	return strings.Join(segments[len(segments)-4:], ".")
}

func encodeARPAsLeases(macTable map[string]string) map[string]string {
	out := make(map[string]string, len(macTable))
	for ip, mac := range macTable {
		out[ip] = fmt.Sprintf("%s|||false", mac)
	}
	return out
}

func (s *gosnmpSession) Close() {
	s.conn.Conn.Close()
}

func valueToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
