package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/channel"
	"github.com/raysh454/mailtrust/internal/heuristics"
	"github.com/raysh454/mailtrust/internal/lookupcache"
	"github.com/raysh454/mailtrust/internal/providers/dnsauth"
	"github.com/raysh454/mailtrust/internal/providers/ip2whois"
	"github.com/raysh454/mailtrust/internal/providers/mxtoolbox"
	"github.com/raysh454/mailtrust/internal/providers/virustotal"
	"github.com/raysh454/mailtrust/internal/server"
	"github.com/raysh454/mailtrust/internal/snapshot"
	"github.com/raysh454/mailtrust/internal/trigger"
	"github.com/raysh454/mailtrust/internal/webclient"
)

// Environment variables holding provider API keys. A .env file in the working
// directory is loaded first; real environment values win.
const (
	EnvMxToolboxKey  = "MXTOOLBOX_API_KEY"
	EnvIP2WhoisKey   = "IP2WHOIS_API_KEY"
	EnvVirusTotalKey = "VIRUSTOTAL_API_KEY"
)

// Authentication provider kinds.
const (
	AuthMxToolbox = "mxtoolbox"
	AuthDNS       = "dns"
)

// Config is the whole runtime configuration. Zero sections are filled from
// DefaultConfig by LoadConfig.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Channel    ChannelConfig      `yaml:"channel"`
	Trigger    TriggerConfig      `yaml:"trigger"`
	Pipeline   PipelineConfig     `yaml:"pipeline"`
	Aggregator aggregator.Config  `yaml:"aggregator"`
	Providers  ProvidersConfig    `yaml:"providers"`
	Heuristics heuristics.Config  `yaml:"heuristics"`
	Server     server.Config      `yaml:"server"`
	Cache      lookupcache.Config `yaml:"cache"`
	Snapshot   snapshot.Config    `yaml:"snapshot"`
	WebClient  webclient.Config   `yaml:"webclient"`
}

// ChannelConfig selects how scan requests reach the aggregating side.
type ChannelConfig struct {
	Kind string `yaml:"kind"`

	// ServerURL is the aggregating server for the http and ws kinds.
	ServerURL string `yaml:"server_url"`
}

type TriggerConfig struct {
	Delay time.Duration `yaml:"delay"`
}

type ProvidersConfig struct {
	// Auth is AuthMxToolbox or AuthDNS.
	Auth       string            `yaml:"auth"`
	MxToolbox  mxtoolbox.Config  `yaml:"mxtoolbox"`
	DNS        dnsauth.Config    `yaml:"dns"`
	IP2Whois   ip2whois.Config   `yaml:"ip2whois"`
	VirusTotal virustotal.Config `yaml:"virustotal"`
}

// DefaultConfig returns a Config populated with working defaults. API keys are
// left empty.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Channel: ChannelConfig{
			Kind:      channel.KindLocal,
			ServerURL: "http://localhost:8080",
		},
		Trigger: TriggerConfig{
			Delay: trigger.DefaultDelay,
		},
		Pipeline: PipelineConfig{
			SettleDelay: DefaultSettleDelay,
			Timeout:     DefaultRunTimeout,
		},
		Aggregator: aggregator.Config{
			MaxConcurrency:  8,
			ProviderTimeout: 15 * time.Second,
		},
		Providers: ProvidersConfig{
			Auth:       AuthMxToolbox,
			MxToolbox:  mxtoolbox.Config{BaseURL: mxtoolbox.DefaultBaseURL},
			DNS:        dnsauth.Config{Timeout: 5 * time.Second},
			IP2Whois:   ip2whois.Config{BaseURL: ip2whois.DefaultBaseURL},
			VirusTotal: virustotal.Config{BaseURL: virustotal.DefaultBaseURL},
		},
		Server: server.Config{
			ListenAddr:      ":8080",
			MaxBodyBytes:    server.DefaultMaxBodyBytes,
			EvaluateTimeout: 30 * time.Second,
		},
		Cache: lookupcache.Config{
			Enabled: true,
			Path:    defaultCachePath(),
			TTL:     lookupcache.DefaultTTL,
		},
		Snapshot: snapshot.Config{
			Renderer: snapshot.RendererStatic,
			Browser: snapshot.BrowserConfig{
				Width:     1280,
				Height:    1024,
				Timeout:   30 * time.Second,
				IdleAfter: 500 * time.Millisecond,
			},
		},
		WebClient: webclient.Config{
			Timeout: 20 * time.Second,
		},
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mailtrust", "lookups.db")
}

// LoadConfig overlays the YAML file at path (optional) on DefaultConfig, then
// applies API keys from the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills API keys from lookup. Keys already set in the file are kept
// unless the variable is present.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMxToolboxKey); ok {
		c.Providers.MxToolbox.APIKey = v
	}
	if v, ok := lookup(EnvIP2WhoisKey); ok {
		c.Providers.IP2Whois.APIKey = v
	}
	if v, ok := lookup(EnvVirusTotalKey); ok {
		c.Providers.VirusTotal.APIKey = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Channel.Kind {
	case channel.KindLocal:
	case channel.KindHTTP, channel.KindWebSocket:
		if c.Channel.ServerURL == "" {
			errs = append(errs, fmt.Errorf("channel %q needs server_url", c.Channel.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown channel kind %q", c.Channel.Kind))
	}
	if c.Trigger.Delay <= 0 {
		errs = append(errs, errors.New("trigger.delay must be positive"))
	}
	if c.Pipeline.SettleDelay < 0 {
		errs = append(errs, errors.New("pipeline.settle_delay must not be negative"))
	}
	if c.Pipeline.Timeout < 0 {
		errs = append(errs, errors.New("pipeline.timeout must not be negative"))
	}
	if c.Aggregator.MaxConcurrency < 0 {
		errs = append(errs, errors.New("aggregator.max_concurrency must not be negative"))
	}
	switch c.Providers.Auth {
	case AuthMxToolbox, AuthDNS:
	default:
		errs = append(errs, fmt.Errorf("unknown auth provider %q", c.Providers.Auth))
	}
	switch c.Snapshot.Renderer {
	case "", snapshot.RendererStatic, snapshot.RendererBrowser:
	default:
		errs = append(errs, fmt.Errorf("unknown renderer %q", c.Snapshot.Renderer))
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is required when the cache is enabled"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
