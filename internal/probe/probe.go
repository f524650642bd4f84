// Package probe implements the Port Prober (spec §4.2, L1): for each
// reachable IPv4 address, attempt a TCP connect against the canonical
// fingerprint port set and, if a web port answers, fetch response headers
// and any TLS certificate presented.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"labtopo/internal/entity"
)

// FingerprintPorts is the canonical port set probed on every reachable host
// (spec §4.2).
var FingerprintPorts = []int{22, 80, 443, 2375, 2376, 3000, 5000, 8006, 8080, 9000, 9010, 9443}

// Config controls prober behavior (spec §4.2, §5).
type Config struct {
	// PerPortTimeout bounds a single TCP connect attempt (default 1000ms).
	PerPortTimeout time.Duration
	// Concurrency is the per-host semaphore width across ports (default 10).
	Concurrency int64
	// HTTPTimeout bounds the header-fetch GET (default 3000ms, spec §5).
	HTTPTimeout time.Duration
}

// DefaultConfig returns the spec's default probe parameters.
func DefaultConfig() Config {
	return Config{
		PerPortTimeout: 1000 * time.Millisecond,
		Concurrency:    10,
		HTTPTimeout:    3000 * time.Millisecond,
	}
}

// Prober fingerprints a single host by TCP-connect and optional HTTP GET.
type Prober struct {
	cfg Config
}

// New creates a Prober with the given config.
func New(cfg Config) *Prober {
	return &Prober{cfg: cfg}
}

// ProbeHost fingerprints ip and returns a freshly-created Unknown entity with
// whatever ports and headers it found. Never returns an error: all failures
// are non-fatal per spec §4.2 and simply leave fields unset.
func (p *Prober) ProbeHost(ctx context.Context, ip string) *entity.Entity {
	e := entity.New(ip, ip, entity.TypeUnknown)
	e.Status = entity.StatusReachable

	sem := semaphore.NewWeighted(p.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, port := range FingerprintPorts {
		port := port
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if p.probePort(ctx, ip, port) {
				mu.Lock()
				e.AddOpenPort(port)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if e.HasOpenPort(443) || e.HasOpenPort(80) {
		headers, cert := p.fetchHTTP(ctx, ip, e.HasOpenPort(443))
		if headers != nil {
			e.HTTPHeaders = headers
		}
		if cert != nil {
			e.Certificate = cert
		}
	}

	p.resolveHostname(ctx, ip, e)

	return e
}

// resolveHostname performs a best-effort reverse-DNS (PTR) lookup and
// records it as the highest-confidence hostname candidate on the entity. A
// blank Name adopts the result (spec §3.5).
func (p *Prober) resolveHostname(ctx context.Context, ip string, e *entity.Entity) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.PerPortTimeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, ip)
	if err != nil || len(names) == 0 {
		return
	}

	hostname := strings.TrimSuffix(names[0], ".")
	if e.HostnameInference == nil {
		e.HostnameInference = &entity.HostnameInference{}
	}
	e.HostnameInference.AddCandidate(hostname, entity.SourcePTR, time.Now())

	if e.Name == "" {
		e.Name = entity.ExtractShortName(e.HostnameInference.GetBestHostname())
	}
}

// probePort attempts a single TCP connect with the configured timeout.
func (p *Prober) probePort(ctx context.Context, ip string, port int) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.PerPortTimeout)
	defer cancel()
	d := net.Dialer{}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// fetchHTTP attempts an HTTPS GET of "/" first, falling back to plaintext
// HTTP, capturing response headers and any TLS certificate summary.
func (p *Prober) fetchHTTP(ctx context.Context, ip string, tlsFirst bool) (entity.HTTPHeaders, *entity.Certificate) {
	schemes := []string{"http"}
	if tlsFirst {
		schemes = []string{"https", "http"}
	}

	client := &http.Client{
		Timeout: p.cfg.HTTPTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	for _, scheme := range schemes {
		url := fmt.Sprintf("%s://%s/", scheme, ip)
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.HTTPTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			cancel()
			continue
		}
		headers := make(entity.HTTPHeaders)
		for k, vs := range resp.Header {
			headers[k] = joinHeaderValues(vs)
		}
		var cert *entity.Certificate
		if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
			cert = summarizeCertificate(resp.TLS)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		cancel()
		return headers, cert
	}
	log.Printf("probe: %s: no HTTP(S) response on port 80/443", ip)
	return nil, nil
}

func joinHeaderValues(vs []string) string {
	out := ""
	for i, v := range vs {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

func summarizeCertificate(cs *tls.ConnectionState) *entity.Certificate {
	leaf := cs.PeerCertificates[0]
	selfSigned := leaf.Issuer.String() == leaf.Subject.String()
	return &entity.Certificate{
		IsSelfSigned: selfSigned,
		Issuer:       leaf.Issuer.String(),
		Expiry:       leaf.NotAfter,
		Fingerprint:  fmt.Sprintf("%x", leaf.SerialNumber),
	}
}

// ProbeAll fingerprints every reachable host concurrently, bounded by an
// outer width equal to the number of sweep results (spec §5: "multiple hosts
// probed concurrently (outer width is the number of sweep results)").
func ProbeAll(ctx context.Context, prober *Prober, reachable []string) []*entity.Entity {
	var wg sync.WaitGroup
	out := make([]*entity.Entity, len(reachable))
	for i, ip := range reachable {
		i, ip := i, ip
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = prober.ProbeHost(ctx, ip)
		}()
	}
	wg.Wait()
	return out
}
