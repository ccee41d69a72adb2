package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version    int                  `yaml:"version"`
	Global     GlobalConfig         `yaml:"global"`
	RateLimits map[string]RateLimit `yaml:"rate_limits"`
	Networks   []Network            `yaml:"networks"`
}

type GlobalConfig struct {
	DBPath         string   `yaml:"db_path"`
	CacheTTL       Duration `yaml:"cache_ttl"`
	CacheSweep     Duration `yaml:"cache_sweep"`
	RequestTimeout Duration `yaml:"request_timeout"`
	ScanBlocks     int      `yaml:"scan_blocks"`
}

// RateLimit is a per-family sliding-window bound.
type RateLimit struct {
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

// Network describes one chain. APIURL set means the indexed adapter
// serves it; otherwise RPCURL must be set and the RPC scanner serves it.
type Network struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Family      string `yaml:"family"`
	ChainID     uint64 `yaml:"chain_id"`
	Symbol      string `yaml:"symbol"`
	Decimals    int    `yaml:"decimals"`
	RPCURL      string `yaml:"rpc_url"`
	APIURL      string `yaml:"api_url"`
	APIKey      string `yaml:"api_key"`
	ExplorerURL string `yaml:"explorer_url"`
}

// Indexed reports whether the network has an indexed API configured.
func (n *Network) Indexed() bool { return n.APIURL != "" }

// Duration parses YAML scalars like "5m" or "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Global.DBPath == "" {
		c.Global.DBPath = "chainhist.db"
	}
	if c.Global.CacheTTL <= 0 {
		c.Global.CacheTTL = Duration(5 * time.Minute)
	}
	if c.Global.RequestTimeout <= 0 {
		c.Global.RequestTimeout = Duration(10 * time.Second)
	}
	if c.Global.ScanBlocks <= 0 || c.Global.ScanBlocks > 100 {
		c.Global.ScanBlocks = 100
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Networks) == 0 {
		return errors.New("at least one network is required")
	}

	networkIDs := map[string]struct{}{}
	for i := range c.Networks {
		n := &c.Networks[i]
		if _, exists := networkIDs[n.ID]; exists {
			return fmt.Errorf("duplicate network id: %s", n.ID)
		}
		networkIDs[n.ID] = struct{}{}
		if err := n.Validate(); err != nil {
			return fmt.Errorf("network %s: %w", n.ID, err)
		}
	}

	for family, rl := range c.RateLimits {
		if rl.MaxRequests <= 0 {
			return fmt.Errorf("rate limit %s: max_requests must be positive", family)
		}
		if rl.Window <= 0 {
			return fmt.Errorf("rate limit %s: window must be positive", family)
		}
	}

	return nil
}

func (n *Network) Validate() error {
	if n.ID == "" {
		return errors.New("id is required")
	}
	if n.Name == "" {
		n.Name = n.ID
	}
	if n.Family == "" {
		n.Family = "default"
	}
	if n.Decimals <= 0 {
		n.Decimals = 18
	}
	if n.APIURL == "" && n.RPCURL == "" {
		return errors.New("one of api_url or rpc_url is required")
	}
	if n.APIURL == "" && n.ChainID == 0 {
		return errors.New("chain_id is required for rpc-scanned networks")
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
