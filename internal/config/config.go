// Package config loads the run configuration for a discovery scan: the
// target subnets, timeouts, operator hints, and per-adapter toggles (spec
// §6 "internal/config.Config carries SubnetList, Timeouts, and []Hint").
//
// Config file locations, in priority order:
//  1. $LABTOPO_CONFIG
//  2. ./labtopo.yaml
//  3. $XDG_CONFIG_HOME/labtopo/config.yaml
//  4. ~/.config/labtopo/config.yaml
//  5. /etc/labtopo/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"labtopo/internal/adapter"
	"labtopo/internal/entity"
)

// Config is the full run configuration, loaded from YAML.
type Config struct {
	Version  int         `yaml:"version"`
	Subnets  []string    `yaml:"subnets"`
	Timeouts Timeouts    `yaml:"timeouts"`
	Hints    []HintEntry `yaml:"hints"`
	Adapters Adapters    `yaml:"adapters"`
	Router   Router      `yaml:"router"`

	CredentialsDBPath string `yaml:"credentials_db_path"`
	HistoryDir        string `yaml:"history_dir"`
	HistoryRetention  int    `yaml:"history_retention"`

	// SweepBackend selects the L0 host sweeper (spec §4.1): "tcp" (default)
	// for the bounded TCP-connect probe, or "nmap" to shell out to nmap's
	// ping scan for ARP-assisted discovery on networks that filter ICMP.
	SweepBackend string `yaml:"sweep_backend"`
}

// Timeouts mirrors adapter.Timeouts with YAML-friendly duration strings
// (e.g. "500ms") instead of raw nanosecond integers.
type Timeouts struct {
	Ping           string `yaml:"ping"`
	HTTP           string `yaml:"http"`
	ProbePerPort   string `yaml:"probe_per_port"`
	AdapterDefault string `yaml:"adapter_default"`
}

// HintEntry is the YAML form of spec §6's Hint tuple: "(ip, port?, name?,
// type?, tokenEnvKey?)". Type is a plain string in config (e.g. "Router")
// and converted to entity.Type by ToAdapterHints.
type HintEntry struct {
	IP          string `yaml:"ip"`
	Port        int    `yaml:"port,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Type        string `yaml:"type,omitempty"`
	TokenEnvKey string `yaml:"token_env_key,omitempty"`
}

// Adapters toggles which platform adapters the registry wires up. All
// default true; set a field to false to disable that adapter for a run.
type Adapters struct {
	Proxmox   *bool `yaml:"proxmox,omitempty"`
	Docker    *bool `yaml:"docker,omitempty"`
	Portainer *bool `yaml:"portainer,omitempty"`
	Unraid    *bool `yaml:"unraid,omitempty"`
	Router    *bool `yaml:"router,omitempty"`
	SNMP      *bool `yaml:"snmp,omitempty"`
}

// Router carries the RouterAdapter's two operator-supplied knobs: which ip
// is the LAN gateway, and where to fetch its DHCP lease table from (spec
// §9 non-goal: the scraping mechanism itself is an external plugin).
type Router struct {
	GatewayIP      string `yaml:"gateway_ip"`
	LeaseSourceURL string `yaml:"lease_source_url"`
}

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w: %w", entity.ErrConfigInvalid, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w: %w", entity.ErrConfigInvalid, err)
	}
	cfg.applyDefaults()

	return cfg, path, nil
}

// Save writes config to the specified path.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Timeouts: Timeouts{
			Ping:           "500ms",
			HTTP:           "3s",
			ProbePerPort:   "1s",
			AdapterDefault: "5s",
		},
		CredentialsDBPath: "./labtopo-credentials.db",
		HistoryDir:        "./labtopo-history",
		HistoryRetention:  30,
		SweepBackend:      "tcp",
	}
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	defaults := DefaultConfig()
	if c.Timeouts.Ping == "" {
		c.Timeouts.Ping = defaults.Timeouts.Ping
	}
	if c.Timeouts.HTTP == "" {
		c.Timeouts.HTTP = defaults.Timeouts.HTTP
	}
	if c.Timeouts.ProbePerPort == "" {
		c.Timeouts.ProbePerPort = defaults.Timeouts.ProbePerPort
	}
	if c.Timeouts.AdapterDefault == "" {
		c.Timeouts.AdapterDefault = defaults.Timeouts.AdapterDefault
	}
	if c.CredentialsDBPath == "" {
		c.CredentialsDBPath = defaults.CredentialsDBPath
	}
	if c.HistoryDir == "" {
		c.HistoryDir = defaults.HistoryDir
	}
	if c.HistoryRetention == 0 {
		c.HistoryRetention = defaults.HistoryRetention
	}
	if c.SweepBackend == "" {
		c.SweepBackend = defaults.SweepBackend
	}
}

// ToAdapterTimeouts parses the YAML duration strings into adapter.Timeouts,
// falling back to spec §5 defaults for any that fail to parse.
func (c *Config) ToAdapterTimeouts() adapter.Timeouts {
	defaults := adapter.DefaultTimeouts()
	return adapter.Timeouts{
		Ping:           parseDurationOr(c.Timeouts.Ping, defaults.Ping),
		HTTP:           parseDurationOr(c.Timeouts.HTTP, defaults.HTTP),
		ProbePerPort:   parseDurationOr(c.Timeouts.ProbePerPort, defaults.ProbePerPort),
		AdapterDefault: parseDurationOr(c.Timeouts.AdapterDefault, defaults.AdapterDefault),
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ToAdapterHints converts the YAML hint entries into adapter.Hint values.
func (c *Config) ToAdapterHints() []adapter.Hint {
	out := make([]adapter.Hint, len(c.Hints))
	for i, h := range c.Hints {
		out[i] = adapter.Hint{
			IP:          h.IP,
			Port:        h.Port,
			Name:        h.Name,
			Type:        entity.Type(h.Type),
			TokenEnvKey: h.TokenEnvKey,
		}
	}
	return out
}

// Enabled reports whether the named adapter should be wired into the
// registry. Unset toggles default to enabled.
func (a Adapters) Enabled(name string) bool {
	var flag *bool
	switch name {
	case "Proxmox":
		flag = a.Proxmox
	case "Docker":
		flag = a.Docker
	case "Portainer":
		flag = a.Portainer
	case "Unraid":
		flag = a.Unraid
	case "Router":
		flag = a.Router
	case "SNMP":
		flag = a.SNMP
	default:
		return true
	}
	return flag == nil || *flag
}
