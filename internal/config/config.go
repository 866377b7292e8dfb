package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values (production).
const (
	DefaultDomain = "flightdrop.app"
	DefaultSTUN   = "stun:stun.l.google.com:19302"

	DefaultChunkSize          = 256 * 1024
	DefaultBackpressureFactor = 16
	DefaultMemorySinkLimit    = 512 * 1024 * 1024
	DefaultStreamBatchSize    = 2 * 1024 * 1024
	DefaultSendRetries        = 2
	DefaultIdleTimeout        = 30 * time.Second

	DefaultRelayAddr       = ":4000"
	DefaultMemberCap       = 8
	DefaultOwnerDisconnect = "destroy"
)

// Config holds settings for both the CLI and the relay daemon. Precedence
// is CLI flags (via Options) > environment > optional config file > defaults.
type Config struct {
	// Client side.
	Domain       string `mapstructure:"domain"`
	WebSocketURL string `mapstructure:"-"`
	DisplayName  string `mapstructure:"display_name"`

	STUNServer string `mapstructure:"stun_server"`
	TURNServer string `mapstructure:"turn_server"`
	TURNUser   string `mapstructure:"turn_user"`
	TURNPass   string `mapstructure:"turn_pass"`
	ForceRelay bool   `mapstructure:"force_relay"`

	// Transfer engine tunables.
	ChunkSize          int           `mapstructure:"chunk_size"`
	BackpressureFactor int           `mapstructure:"backpressure_factor"`
	MemorySinkLimit    int64         `mapstructure:"memory_sink_limit"`
	StreamBatchSize    int           `mapstructure:"stream_batch_size"`
	SendRetries        int           `mapstructure:"send_retries"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	OutputDir          string        `mapstructure:"output_dir"`

	// Relay daemon.
	RelayAddr       string `mapstructure:"relay_addr"`
	MemberCap       int    `mapstructure:"member_cap"`
	OwnerDisconnect string `mapstructure:"owner_disconnect"`
	Insecure        bool   `mapstructure:"insecure"`
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	Domain          string
	DisplayName     string
	STUNServer      string
	TURNServer      string
	TURNUser        string
	TURNPass        string
	ForceRelay      bool
	OutputDir       string
	ChunkSize       int
	MemorySinkLimit int64
	RelayAddr       string
	MemberCap       int
	OwnerDisconnect string
	Insecure        bool
}

// Load reads configuration from defaults, an optional flightdrop.yaml, the
// FLIGHTDROP_* environment, and finally the flag Options.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigName("flightdrop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(home + "/flightdrop")
	}

	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("display_name", defaultDisplayName())
	v.SetDefault("stun_server", DefaultSTUN)
	v.SetDefault("turn_server", "")
	v.SetDefault("turn_user", "")
	v.SetDefault("turn_pass", "")
	v.SetDefault("force_relay", false)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("backpressure_factor", DefaultBackpressureFactor)
	v.SetDefault("memory_sink_limit", DefaultMemorySinkLimit)
	v.SetDefault("stream_batch_size", DefaultStreamBatchSize)
	v.SetDefault("send_retries", DefaultSendRetries)
	v.SetDefault("idle_timeout", DefaultIdleTimeout)
	v.SetDefault("output_dir", "")
	v.SetDefault("relay_addr", DefaultRelayAddr)
	v.SetDefault("member_cap", DefaultMemberCap)
	v.SetDefault("owner_disconnect", DefaultOwnerDisconnect)
	v.SetDefault("insecure", false)

	v.SetEnvPrefix("FLIGHTDROP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyOptions(&cfg, opts)

	if cfg.OwnerDisconnect != OwnerDisconnectDestroy && cfg.OwnerDisconnect != OwnerDisconnectTransfer {
		return nil, fmt.Errorf("invalid owner_disconnect policy %q", cfg.OwnerDisconnect)
	}
	if cfg.BackpressureFactor < 1 {
		return nil, fmt.Errorf("backpressure_factor must be at least 1, got %d", cfg.BackpressureFactor)
	}

	scheme := "wss"
	if cfg.Insecure {
		scheme = "ws"
	}
	cfg.WebSocketURL = fmt.Sprintf("%s://%s/ws", scheme, cfg.Domain)

	return &cfg, nil
}

// Owner-disconnect policies. The observed upstream behavior is destroy:
// losing the owner tears the whole flight down. Transfer hands the flight
// to the next member instead.
const (
	OwnerDisconnectDestroy  = "destroy"
	OwnerDisconnectTransfer = "transfer"
)

func applyOptions(cfg *Config, opts Options) {
	if opts.Domain != "" {
		cfg.Domain = opts.Domain
	}
	if opts.DisplayName != "" {
		cfg.DisplayName = opts.DisplayName
	}
	if opts.STUNServer != "" {
		cfg.STUNServer = opts.STUNServer
	}
	if opts.TURNServer != "" {
		cfg.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		cfg.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		cfg.TURNPass = opts.TURNPass
	}
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.ChunkSize > 0 {
		cfg.ChunkSize = opts.ChunkSize
	}
	if opts.MemorySinkLimit > 0 {
		cfg.MemorySinkLimit = opts.MemorySinkLimit
	}
	if opts.RelayAddr != "" {
		cfg.RelayAddr = opts.RelayAddr
	}
	if opts.MemberCap > 0 {
		cfg.MemberCap = opts.MemberCap
	}
	if opts.OwnerDisconnect != "" {
		cfg.OwnerDisconnect = opts.OwnerDisconnect
	}
	if opts.Insecure {
		cfg.Insecure = true
	}
}

func defaultDisplayName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "flightdrop"
	}
	return host
}

// GetSTUNServers returns STUN server URLs for the ICE configuration.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if a TURN host is configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns the TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// GetFlightLink returns the shareable URL for a flight code.
func (c *Config) GetFlightLink(code string) string {
	return fmt.Sprintf("https://%s/f/%s", c.Domain, code)
}
