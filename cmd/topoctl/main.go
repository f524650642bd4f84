// Command topoctl runs one agentless discovery scan end to end: sweep,
// probe, hint application, adapter orchestration, correlation, conflict
// detection, topology assembly, history persistence, and a diff against the
// previous run. Grounded on cmd/server/main.go's flag-parsing and
// log.Fatalf-on-configuration-error style, without the HTTP server or
// embedded UI those are out of scope here.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labtopo/internal/adapter"
	"labtopo/internal/adapter/dockerhost"
	"labtopo/internal/adapter/portainer"
	"labtopo/internal/adapter/proxmox"
	"labtopo/internal/adapter/router"
	"labtopo/internal/adapter/snmpdev"
	"labtopo/internal/adapter/unraid"
	"labtopo/internal/conflict"
	"labtopo/internal/config"
	"labtopo/internal/correlate"
	"labtopo/internal/credentials"
	"labtopo/internal/diff"
	"labtopo/internal/history"
	"labtopo/internal/orchestrator"
	"labtopo/internal/probe"
	"labtopo/internal/report"
	"labtopo/internal/sweep"
	"labtopo/internal/topology"
)

func main() {
	configPath := flag.String("config", "", "path to labtopo.yaml (defaults to the standard search path)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("topoctl: config: %v", err)
	}
	if resolvedPath != "" {
		log.Printf("topoctl: loaded config from %s", resolvedPath)
	} else {
		log.Printf("topoctl: no config file found, using defaults")
	}
	if len(cfg.Subnets) == 0 {
		log.Fatalf("topoctl: config: no subnets configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openCredentials(cfg)
	if err != nil {
		log.Fatalf("topoctl: credentials: %v", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	if err := run(ctx, cfg, store); err != nil {
		log.Fatalf("topoctl: %v", err)
	}
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func openCredentials(cfg *config.Config) (adapter.Credentials, error) {
	if cfg.CredentialsDBPath == "" {
		return credentials.EnvStore{}, nil
	}
	store, err := credentials.Open(cfg.CredentialsDBPath)
	if err != nil {
		log.Printf("topoctl: credentials db unavailable (%v), falling back to environment", err)
		return credentials.EnvStore{}, nil
	}
	return store, nil
}

func run(ctx context.Context, cfg *config.Config, creds adapter.Credentials) error {
	timeouts := cfg.ToAdapterTimeouts()
	now := time.Now()
	scanID := topology.NewScanID(now)

	sweepCfg := sweep.DefaultConfig()
	sweepCfg.Timeout = timeouts.Ping
	reachable, err := sweep.SweepSubnets(ctx, buildSweeper(cfg, sweepCfg), cfg.Subnets, sweepCfg)
	if err != nil {
		return err
	}

	sweptIPs := make(map[string]bool, len(reachable))
	for _, ip := range reachable {
		sweptIPs[ip] = true
	}

	prober := probe.New(probe.Config{
		PerPortTimeout: timeouts.ProbePerPort,
		Concurrency:    10,
		HTTPTimeout:    timeouts.HTTP,
	})
	seeds := probe.ProbeAll(ctx, prober, reachable)
	seeds = adapter.ApplyHints(seeds, cfg.ToAdapterHints())

	registry := buildRegistry(cfg)
	sctx := adapter.NewContext(creds, sweptIPs, timeouts, cfg.ToAdapterHints())

	universe := orchestrator.New(registry).Run(ctx, seeds, sctx)
	correlated := correlate.Run(universe, sweptIPs)
	surviving, conflicts := conflict.Detect(correlated)
	topo := topology.Assemble(scanID, cfg.Subnets, surviving, conflicts)

	histStore, err := history.NewStore(cfg.HistoryDir, cfg.HistoryRetention)
	if err != nil {
		return err
	}
	defer histStore.Close()

	baseline, err := histStore.Latest(scanID)
	if err != nil {
		log.Printf("topoctl: reading diff baseline failed: %v", err)
	}

	if err := histStore.Save(topo); err != nil {
		log.Printf("topoctl: persisting history failed: %v", err)
	}

	if err := report.WriteTopology(os.Stdout, topo); err != nil {
		return err
	}

	if baseline != nil {
		d := diff.Diff(baseline, topo)
		if err := report.WriteDiff(os.Stderr, d); err != nil {
			log.Printf("topoctl: writing diff report failed: %v", err)
		}
	} else {
		log.Printf("topoctl: no prior run to diff against")
	}

	log.Printf("topoctl: scan %s complete: %d entities, %d conflicts", topo.ScanID, len(topo.Entities), len(topo.Conflicts))
	return nil
}

// buildSweeper selects the L0 host sweeper per config.Config.SweepBackend
// (spec §4.1: "opt-in via config"). Anything other than "nmap" falls back to
// the default TCPSweeper, so an unrecognized value degrades safely rather
// than failing the whole run.
func buildSweeper(cfg *config.Config, sweepCfg sweep.Config) sweep.Sweeper {
	if cfg.SweepBackend == "nmap" {
		return &sweep.NmapSweeper{}
	}
	return sweep.New(sweepCfg)
}

func buildRegistry(cfg *config.Config) *adapter.Registry {
	reg := adapter.NewRegistry()

	if cfg.Adapters.Enabled("Proxmox") {
		reg.Register(proxmox.New())
	}
	if cfg.Adapters.Enabled("Docker") {
		reg.Register(dockerhost.New())
	}
	if cfg.Adapters.Enabled("Portainer") {
		reg.Register(portainer.New())
	}
	if cfg.Adapters.Enabled("Unraid") {
		reg.Register(unraid.New())
	}
	if cfg.Adapters.Enabled("Router") {
		var source router.LeaseSource
		if cfg.Router.LeaseSourceURL != "" {
			source = router.NewHTTPJSONLeaseSource(cfg.Router.LeaseSourceURL, nil)
		}
		reg.Register(router.New(cfg.Router.GatewayIP, source))
	}
	if cfg.Adapters.Enabled("SNMP") {
		reg.Register(snmpdev.New())
	}

	return reg
}
