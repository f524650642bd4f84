package snmpdev

import (
	"context"
	"errors"
	"testing"
	"time"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

type fakeSession struct {
	sysDescr string
	sysName  string
	ifCount  int
	arp      map[string]string
	getErr   error
	closed   bool
}

func (f *fakeSession) Get(oid string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	switch oid {
	case oidSysDescr:
		return f.sysDescr, nil
	case oidSysName:
		return f.sysName, nil
	default:
		return "", errors.New("unknown oid")
	}
}

func (f *fakeSession) WalkCount(oid string) (int, error) { return f.ifCount, nil }
func (f *fakeSession) WalkARPTable() (map[string]string, error) {
	if f.arp == nil {
		return nil, errors.New("no arp table")
	}
	return f.arp, nil
}
func (f *fakeSession) Close() { f.closed = true }

func dialerFor(sess *fakeSession, err error) Dialer {
	return func(ctx context.Context, host, community string, timeout time.Duration) (Session, error) {
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

type emptyCredentials struct{}

func (emptyCredentials) Get(service, key string) (string, bool) { return "", false }

func newContext() *adapter.Context {
	return adapter.NewContext(emptyCredentials{}, nil, adapter.DefaultTimeouts(), nil)
}

func TestActivationCriteriaOnOpenPortOrHint(t *testing.T) {
	a := New()
	crit := a.ActivationCriteria()

	withPort := entity.New("host-1", "192.168.1.10", entity.TypeUnknown)
	withPort.AddOpenPort(161)
	if !crit.CustomPredicate(context.Background(), withPort, newContext()) {
		t.Fatal("expected open port 161 to activate the adapter")
	}

	noPort := entity.New("host-2", "192.168.1.11", entity.TypeUnknown)
	if crit.CustomPredicate(context.Background(), noPort, newContext()) {
		t.Fatal("expected no activation without an open port or hint")
	}

	hinted := entity.New("host-3", "192.168.1.12", entity.TypeUnknown)
	sctx := adapter.NewContext(nil, nil, adapter.DefaultTimeouts(), []adapter.Hint{
		{IP: "192.168.1.12", Type: entity.TypeAccessPoint},
	})
	if !crit.CustomPredicate(context.Background(), hinted, sctx) {
		t.Fatal("expected an AccessPoint hint to activate the adapter")
	}
}

func TestScanPromotesUnknownToService(t *testing.T) {
	sess := &fakeSession{sysDescr: "Cisco IOS", sysName: "switch1", ifCount: 24}
	a := &Adapter{Dial: dialerFor(sess, nil)}
	e := entity.New("host-1", "192.168.1.10", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())

	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if result.Patch.NewType != entity.TypeService {
		t.Fatalf("expected promotion to Service, got %s", result.Patch.NewType)
	}
	if e.Name != "switch1" {
		t.Fatalf("expected sysName to set the entity name, got %q", e.Name)
	}
	if !sess.closed {
		t.Fatal("expected the session to be closed")
	}
	descr, ok := result.Patch.MetadataUpdates["sysDescr"]
	if !ok || descr.Str != "Cisco IOS" {
		t.Fatalf("expected sysDescr metadata, got %+v", result.Patch.MetadataUpdates)
	}
}

func TestScanDoesNotOverrideKnownType(t *testing.T) {
	sess := &fakeSession{sysDescr: "Cisco IOS"}
	a := &Adapter{Dial: dialerFor(sess, nil)}
	e := entity.New("host-1", "192.168.1.10", entity.TypeRouter)

	result := a.Scan(context.Background(), e, newContext())

	if !result.OK {
		t.Fatalf("expected success, got %+v", result.Err)
	}
	if result.Patch.NewType != "" {
		t.Fatalf("expected no type override for an already-typed entity, got %s", result.Patch.NewType)
	}
}

func TestScanPublishesARPTableAsLeases(t *testing.T) {
	sess := &fakeSession{sysDescr: "Cisco IOS", arp: map[string]string{"192.168.1.50": "aa:bb:cc:dd:ee:ff"}}
	a := &Adapter{Dial: dialerFor(sess, nil)}
	e := entity.New("host-1", "192.168.1.10", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())

	leases, ok := result.Patch.MetadataUpdates[entity.MetaDHCPLeases]
	if !ok || leases.Kind != entity.KindMapping {
		t.Fatalf("expected a dhcp_leases mapping from the arp table, got %+v", result.Patch.MetadataUpdates)
	}
	if leases.Map["192.168.1.50"] != "aa:bb:cc:dd:ee:ff|||false" {
		t.Fatalf("unexpected lease encoding: %q", leases.Map["192.168.1.50"])
	}
}

func TestScanFailsWhenDialFails(t *testing.T) {
	a := &Adapter{Dial: dialerFor(nil, errors.New("connection refused"))}
	e := entity.New("host-1", "192.168.1.10", entity.TypeUnknown)

	result := a.Scan(context.Background(), e, newContext())

	if result.OK {
		t.Fatal("expected failure")
	}
}

func TestIPFromOIDSuffix(t *testing.T) {
	got := ipFromOIDSuffix(".1.3.6.1.2.1.4.22.1.2.5.192.168.1.50")
	if got != "192.168.1.50" {
		t.Fatalf("expected 192.168.1.50, got %q", got)
	}
}
