package sweep

import (
	"context"
	"log"

	nmap "github.com/Ullaakut/nmap/v3"
)

// NmapSweeper discovers reachable hosts with an nmap ping scan (-sn) instead
// of raw TCP connect attempts, for operators who have nmap installed and want
// ARP-assisted host discovery on the local segment. Grounded on the teacher's
// adapter.NmapAdapter scan-building pattern, reused here for the sweep phase
// rather than the service-detection phase.
type NmapSweeper struct {
	// SkipHostDiscovery treats every target as online (-Pn), useful on
	// networks that filter ICMP/ARP probes.
	SkipHostDiscovery bool
}

// Available reports whether the nmap binary can be invoked at all.
func (n *NmapSweeper) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(ctx, nmap.WithTargets("localhost"), nmap.WithListScan())
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// Sweep implements Sweeper using nmap -sn against each candidate individually
// so a single bad target cannot abort the whole sweep.
func (n *NmapSweeper) Sweep(ctx context.Context, candidates []string) []string {
	if len(candidates) == 0 {
		return nil
	}

	opts := []nmap.Option{
		nmap.WithTargets(candidates...),
		nmap.WithPingScan(),
	}
	if n.SkipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		log.Printf("sweep: nmap scanner init failed: %v", err)
		return nil
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		log.Printf("sweep: nmap run failed: %v", err)
		return nil
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("sweep: nmap warnings: %v", *warnings)
	}
	if result == nil {
		return nil
	}

	var out []string
	for _, h := range result.Hosts {
		for _, addr := range h.Addresses {
			if addr.AddrType == "ipv4" {
				out = append(out, addr.Addr)
				break
			}
		}
	}
	return out
}
