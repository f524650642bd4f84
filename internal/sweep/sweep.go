// Package sweep implements the Host Sweeper (spec §4.1, L0): expanding input
// CIDRs to host addresses and probing each for reachability with bounded
// concurrency.
package sweep

import (
	"context"
	"errors"
	"log"
	"net"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config controls sweep behavior (spec §4.1, §5).
type Config struct {
	// MaxHostsPerSubnet caps per-subnet enumeration (default 254).
	MaxHostsPerSubnet int
	// Timeout is the per-host reachability timeout (default 500ms, spec §5).
	Timeout time.Duration
	// Concurrency is the global semaphore width (default 50).
	Concurrency int64
	// ProbePorts are the ports a reachability probe dials when no ICMP
	// capability is available (always true in an unprivileged process).
	ProbePorts []int
}

// DefaultConfig returns the spec's default sweep parameters.
func DefaultConfig() Config {
	return Config{
		MaxHostsPerSubnet: 254,
		Timeout:           500 * time.Millisecond,
		Concurrency:       50,
		ProbePorts:        []int{80, 443, 22, 8080, 8006, 9000},
	}
}

// Sweeper probes a set of IPv4 addresses for reachability.
type Sweeper interface {
	// Sweep returns the subset of candidates that answered, order irrelevant.
	Sweep(ctx context.Context, candidates []string) []string
}

// TCPSweeper approximates an ICMP-equivalent reachability probe with a bounded
// TCP connect attempt, since raw ICMP sockets require elevated privilege this
// process is not assumed to have.
type TCPSweeper struct {
	cfg Config
}

// New creates a TCPSweeper with the given config.
func New(cfg Config) *TCPSweeper {
	return &TCPSweeper{cfg: cfg}
}

// Sweep implements Sweeper.
func (s *TCPSweeper) Sweep(ctx context.Context, candidates []string) []string {
	sem := semaphore.NewWeighted(s.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []string

	for _, ip := range candidates {
		ip := ip
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if s.probe(ctx, ip) {
				mu.Lock()
				out = append(out, ip)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Strings(out)
	return out
}

// probe dials each configured port in turn; any successful connect (or even
// a refused connection, which still proves the host answered at the IP
// layer) marks the host reachable.
func (s *TCPSweeper) probe(ctx context.Context, ip string) bool {
	for _, port := range s.cfg.ProbePorts {
		d := net.Dialer{Timeout: s.cfg.Timeout}
		addr := net.JoinHostPort(ip, strconv.Itoa(port))
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return true
		}
		if isConnRefused(err) {
			return true
		}
	}
	return false
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// SweepSubnets expands subnets and sweeps them, returning the reachable set
// and failing fast on CIDR parse errors.
func SweepSubnets(ctx context.Context, sweeper Sweeper, subnets []string, cfg Config) ([]string, error) {
	candidates, err := ExpandAll(subnets, cfg.MaxHostsPerSubnet)
	if err != nil {
		return nil, err
	}
	log.Printf("sweep: probing %d candidate hosts across %d subnets", len(candidates), len(subnets))
	reachable := sweeper.Sweep(ctx, candidates)
	log.Printf("sweep: %d hosts reachable", len(reachable))
	return reachable, nil
}
