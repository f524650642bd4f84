package sweep

import (
	"errors"
	"testing"

	"labtopo/internal/entity"
)

func TestExpandCIDR(t *testing.T) {
	t.Run("/32 yields exactly the base IP", func(t *testing.T) {
		hosts, err := ExpandCIDR("192.168.1.51/32", 254)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hosts) != 1 || hosts[0] != "192.168.1.51" {
			t.Fatalf("expected [192.168.1.51], got %v", hosts)
		}
	})

	t.Run("/24 yields 254 addresses excluding network and broadcast", func(t *testing.T) {
		hosts, err := ExpandCIDR("192.168.1.0/24", 254)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hosts) != 254 {
			t.Fatalf("expected 254 hosts, got %d", len(hosts))
		}
		for _, h := range hosts {
			if h == "192.168.1.0" || h == "192.168.1.255" {
				t.Fatalf("network/broadcast address leaked: %s", h)
			}
		}
	})

	t.Run("cap limits enumeration on wide prefixes", func(t *testing.T) {
		hosts, err := ExpandCIDR("10.0.0.0/16", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hosts) != 10 {
			t.Fatalf("expected 10 hosts (capped), got %d", len(hosts))
		}
	})

	t.Run("invalid CIDR fails fast", func(t *testing.T) {
		_, err := ExpandCIDR("not-a-cidr", 254)
		if err == nil {
			t.Fatal("expected error for invalid CIDR")
		}
		if !errors.Is(err, entity.ErrInvalidCIDR) {
			t.Fatalf("expected error to wrap entity.ErrInvalidCIDR, got %v", err)
		}
	})

	t.Run("IPv6 is rejected", func(t *testing.T) {
		if _, err := ExpandCIDR("2001:db8::/64", 254); err == nil {
			t.Fatal("expected error for IPv6 CIDR")
		}
	})
}

func TestExpandAll(t *testing.T) {
	t.Run("fails fast on first bad CIDR", func(t *testing.T) {
		_, err := ExpandAll([]string{"192.168.1.0/24", "garbage"}, 254)
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("aggregates multiple subnets", func(t *testing.T) {
		hosts, err := ExpandAll([]string{"192.168.1.0/30", "192.168.2.0/30"}, 254)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hosts) != 4 {
			t.Fatalf("expected 4 hosts total, got %d", len(hosts))
		}
	})
}
