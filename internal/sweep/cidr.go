package sweep

import (
	"encoding/binary"
	"fmt"
	"net"

	"labtopo/internal/entity"
)

// ErrInvalidCIDR is returned when a subnet string cannot be parsed. It wraps
// entity.ErrInvalidCIDR (spec §7 category 1, "fail-fast before any scan"),
// so callers can test for the category with errors.Is(err,
// entity.ErrInvalidCIDR) without caring about the specific CIDR or cause.
type ErrInvalidCIDR struct {
	CIDR string
	Err  error
}

func (e *ErrInvalidCIDR) Error() string {
	return fmt.Sprintf("invalid CIDR %q: %v", e.CIDR, e.Err)
}

func (e *ErrInvalidCIDR) Unwrap() []error { return []error{entity.ErrInvalidCIDR, e.Err} }

// ExpandCIDR returns the host addresses of cidr, excluding network and
// broadcast addresses, capped at maxHosts. A /32 yields exactly the base IP.
// maxHosts <= 0 means "no cap".
func ExpandCIDR(cidr string, maxHosts int) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, &ErrInvalidCIDR{CIDR: cidr, Err: err}
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, &ErrInvalidCIDR{CIDR: cidr, Err: fmt.Errorf("not an IPv4 address")}
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return nil, &ErrInvalidCIDR{CIDR: cidr, Err: fmt.Errorf("not an IPv4 mask")}
	}

	if ones == 32 {
		return []string{ip4.String()}, nil
	}

	base := binary.BigEndian.Uint32(ipnet.IP.To4())
	hostBits := 32 - ones
	total := uint32(1) << uint32(hostBits)
	network := base
	broadcast := base + total - 1

	capHint := int(total - 2)
	if maxHosts > 0 && maxHosts < capHint {
		capHint = maxHosts
	}
	out := make([]string, 0, capHint)
	for addr := network + 1; addr < broadcast; addr++ {
		if maxHosts > 0 && len(out) >= maxHosts {
			break
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], addr)
		out = append(out, net.IP(b[:]).String())
	}
	return out, nil
}

// ExpandAll expands every CIDR in cidrs, failing fast on the first parse
// error (spec §4.1: "CIDR parse failures fail-fast with a descriptive
// error").
func ExpandAll(cidrs []string, maxHostsPerSubnet int) ([]string, error) {
	var all []string
	for _, c := range cidrs {
		hosts, err := ExpandCIDR(c, maxHostsPerSubnet)
		if err != nil {
			return nil, err
		}
		all = append(all, hosts...)
	}
	return all, nil
}
