package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

type Config struct {
	Protocol ProtocolConfig `toml:"protocol"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`
	Tracing  TracingConfig  `toml:"tracing"`
	Sync     SyncConfig     `toml:"sync"`
	Escrow   EscrowConfig   `toml:"escrow"`
}

// ProtocolConfig holds the agent's chain identity. Every field can be
// overridden from the environment, which wins over the file.
type ProtocolConfig struct {
	RPCURL       string   `toml:"rpc_url" env:"CLAWNET_RPC_URL"`
	ProgramID    string   `toml:"program_id" env:"CLAWNET_PROGRAM_ID"`
	WalletKey    string   `toml:"wallet_key" env:"CLAWNET_WALLET_KEY"`
	AgentName    string   `toml:"agent_name" env:"CLAWNET_AGENT_NAME"`
	Description  string   `toml:"description" env:"CLAWNET_AGENT_DESCRIPTION"`
	Capabilities []string `toml:"capabilities" env:"CLAWNET_CAPABILITIES"`
	AutoRegister bool     `toml:"auto_register" env:"CLAWNET_AUTO_REGISTER"`
	// MasterKey unlocks the credential vault. It is read from the
	// environment only.
	MasterKey string `toml:"-" env:"CLAWNET_MASTER_KEY"`
}

type GatewayConfig struct {
	// Mode is "rpc" for a remote gateway or "simulate" for the in-process
	// ledger.
	Mode      string  `toml:"mode" env:"CLAWNET_GATEWAY_MODE"`
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

type ServerConfig struct {
	Bind          string `toml:"bind"`
	Port          int    `toml:"port" env:"CLAWNET_PORT"`
	AuthToken     string `toml:"auth_token" env:"CLAWNET_AUTH_TOKEN"`
	WebhookSecret string `toml:"webhook_secret" env:"CLAWNET_WEBHOOK_SECRET"`
	PublicURL     string `toml:"public_url" env:"CLAWNET_PUBLIC_URL"`
	// ExposeRPC mounts the simulator's JSON-RPC handler at /rpc.
	ExposeRPC bool `toml:"expose_rpc"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn" env:"CLAWNET_STORE_DSN"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"CLAWNET_LOG_LEVEL"`
	Format string `toml:"format" env:"CLAWNET_LOG_FORMAT"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled" env:"CLAWNET_TRACING_ENABLED"`
	Endpoint string `toml:"endpoint" env:"CLAWNET_TRACING_ENDPOINT"`
}

type SyncConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
	// Cron, when set, replaces Interval with a five-field cron expression.
	Cron string `toml:"cron" env:"CLAWNET_SYNC_CRON"`
}

type EscrowConfig struct {
	Window string `toml:"window"`
	// Anchor records new escrows through the gateway before storing them.
	Anchor bool `toml:"anchor"`
}

func Default() *Config {
	return &Config{
		Protocol: ProtocolConfig{
			RPCURL:       "https://api.devnet.solana.com",
			Capabilities: []string{},
		},
		Gateway: GatewayConfig{
			Mode:      "rpc",
			Timeout:   "30s",
			RateLimit: 10,
			Burst:     5,
		},
		Server: ServerConfig{
			Bind: "loopback",
			Port: 18790,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(DataDir(), "clawnet.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Sync: SyncConfig{
			Enabled:  true,
			Interval: "5m",
		},
		Escrow: EscrowConfig{
			Window: "24h",
		},
	}
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadDotEnv copies variables from ./.env and then <data dir>/.env into the
// process environment. Variables that are already set are left alone, and
// missing files are skipped. It returns the files that were read.
func LoadDotEnv() ([]string, error) {
	var loaded []string
	for _, path := range []string{".env", filepath.Join(DataDir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Load reads path over the defaults, then applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "clawnet.db")
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

func (c *Config) check() error {
	switch c.Gateway.Mode {
	case "rpc", "simulate":
	default:
		return fmt.Errorf("config: gateway.mode must be \"rpc\" or \"simulate\", got %q", c.Gateway.Mode)
	}
	for name, v := range map[string]string{
		"gateway.timeout": c.Gateway.Timeout,
		"sync.interval":   c.Sync.Interval,
		"escrow.window":   c.Escrow.Window,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", name, v)
		}
	}
	if c.Sync.Cron != "" && !gronx.New().IsValid(c.Sync.Cron) {
		return fmt.Errorf("config: sync.cron is not a valid cron expression: %q", c.Sync.Cron)
	}
	return nil
}

func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

// Settings converts the protocol section for protocol.New.
func (p ProtocolConfig) Settings() protocol.Settings {
	caps := make([]string, len(p.Capabilities))
	copy(caps, p.Capabilities)
	return protocol.Settings{
		RPCURL:       p.RPCURL,
		ProgramID:    p.ProgramID,
		WalletKey:    p.WalletKey,
		AgentName:    p.AgentName,
		Capabilities: caps,
		AutoRegister: p.AutoRegister,
	}
}

func (p ProtocolConfig) Identity() protocol.Identity {
	return protocol.Identity{Name: p.AgentName, Description: p.Description}
}

func (p ProtocolConfig) Validate() error {
	return p.Settings().Validate()
}

func (g GatewayConfig) TimeoutDuration() time.Duration {
	return durationOr(g.Timeout, 30*time.Second)
}

func (s SyncConfig) IntervalDuration() time.Duration {
	return durationOr(s.Interval, 5*time.Minute)
}

// Schedule returns the sync job schedule, preferring Cron over Interval.
func (s SyncConfig) Schedule() string {
	if s.Cron != "" {
		return s.Cron
	}
	return "@every " + s.IntervalDuration().String()
}

func (e EscrowConfig) WindowDuration() time.Duration {
	return durationOr(e.Window, protocol.DefaultEscrowWindow)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AdvertisedURL is the base URL peers should use to reach this node.
func (s ServerConfig) AdvertisedURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return "http://" + s.ListenAddr()
}

// ListenAddr resolves the bind mode to a host:port.
func (s ServerConfig) ListenAddr() string {
	host := "127.0.0.1"
	switch s.Bind {
	case "lan", "all":
		host = "0.0.0.0"
	case "", "loopback":
	default:
		host = s.Bind
	}
	return fmt.Sprintf("%s:%d", host, s.Port)
}

func DataDir() string {
	if dir := os.Getenv("CLAWNET_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clawnet"
	}
	return filepath.Join(home, ".clawnet")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "clawnet.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
