package app

import (
	"errors"
	"fmt"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/channel"
	"github.com/raysh454/mailtrust/internal/classifier"
	"github.com/raysh454/mailtrust/internal/heuristics"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/lookupcache"
	"github.com/raysh454/mailtrust/internal/providers/dnsauth"
	"github.com/raysh454/mailtrust/internal/providers/ip2whois"
	"github.com/raysh454/mailtrust/internal/providers/mxtoolbox"
	"github.com/raysh454/mailtrust/internal/providers/virustotal"
	"github.com/raysh454/mailtrust/internal/snapshot"
	"github.com/raysh454/mailtrust/internal/webclient"
)

// Providers groups the three signal-provider families.
type Providers struct {
	Auth         aggregator.AuthProvider
	Registration aggregator.RegistrationProvider
	Reputation   aggregator.ReputationProvider
}

// Components are the long-lived parts shared by every view.
type Components struct {
	WebClient webclient.WebClient

	// Cache is nil when disabled.
	Cache *lookupcache.Cache

	Service  *Service
	Scanner  *heuristics.Scanner
	Renderer snapshot.Renderer

	logger logging.Logger
}

// NewComponents builds the providers from cfg and wires everything else on
// top of them.
func NewComponents(cfg *Config, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	wc, err := webclient.NewNetHTTPClient(cfg.WebClient, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}
	c := &Components{WebClient: wc, logger: logger}

	providers, err := c.buildProviders(cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.wire(cfg, providers); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewComponentsWithProviders wires cfg around caller-supplied providers. The
// lookup cache and webclient are not created.
func NewComponentsWithProviders(cfg *Config, p Providers, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	c := &Components{logger: logger}
	if err := c.wire(cfg, p); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) buildProviders(cfg *Config) (Providers, error) {
	var p Providers
	pc := cfg.Providers

	switch pc.Auth {
	case AuthDNS:
		r, err := dnsauth.New(pc.DNS, c.logger)
		if err != nil {
			return p, fmt.Errorf("new dns auth provider: %w", err)
		}
		p.Auth = r
	default:
		if pc.MxToolbox.APIKey == "" {
			c.logger.Warn("no MxToolbox API key; authentication checks will fail", logging.Field{Key: "env", Value: EnvMxToolboxKey})
		}
		m, err := mxtoolbox.New(pc.MxToolbox, c.WebClient, c.logger)
		if err != nil {
			return p, fmt.Errorf("new mxtoolbox provider: %w", err)
		}
		p.Auth = m
	}

	if pc.IP2Whois.APIKey == "" {
		c.logger.Warn("no IP2WHOIS API key; domain age will be unknown", logging.Field{Key: "env", Value: EnvIP2WhoisKey})
	}
	whois, err := ip2whois.New(pc.IP2Whois, c.WebClient, c.logger)
	if err != nil {
		return p, fmt.Errorf("new ip2whois provider: %w", err)
	}
	p.Registration = whois
	if cfg.Cache.Enabled {
		cache, err := lookupcache.Open(cfg.Cache, c.logger)
		if err != nil {
			return p, fmt.Errorf("open lookup cache: %w", err)
		}
		c.Cache = cache
		p.Registration = cache.Registrations(whois)
	}

	if pc.VirusTotal.APIKey == "" {
		c.logger.Warn("no VirusTotal API key; URL reputation will report errors", logging.Field{Key: "env", Value: EnvVirusTotalKey})
	}
	vt, err := virustotal.New(pc.VirusTotal, c.WebClient, c.logger)
	if err != nil {
		return p, fmt.Errorf("new virustotal provider: %w", err)
	}
	p.Reputation = vt
	return p, nil
}

func (c *Components) wire(cfg *Config, p Providers) error {
	agg, err := aggregator.New(cfg.Aggregator, p.Auth, p.Registration, p.Reputation, c.logger)
	if err != nil {
		return fmt.Errorf("new aggregator: %w", err)
	}
	svc, err := NewService(agg, classifier.New(), c.logger)
	if err != nil {
		return fmt.Errorf("new service: %w", err)
	}
	c.Service = svc
	c.Scanner = heuristics.NewScanner(cfg.Heuristics, c.logger)

	r, err := snapshot.NewRenderer(cfg.Snapshot, c.logger)
	if err != nil {
		return fmt.Errorf("new renderer: %w", err)
	}
	c.Renderer = r
	return nil
}

// NewChannel opens the channel cfg selects. The local kind evaluates with
// c.Service in process.
func (c *Components) NewChannel(cfg ChannelConfig) (channel.Channel, error) {
	switch cfg.Kind {
	case "", channel.KindLocal:
		return channel.NewLocal(c.Service)
	case channel.KindHTTP:
		wc := c.WebClient
		if wc == nil {
			var err error
			if wc, err = webclient.NewNetHTTPClient(webclient.Config{}, c.logger, nil); err != nil {
				return nil, fmt.Errorf("new webclient: %w", err)
			}
		}
		return channel.NewHTTP(cfg.ServerURL, wc, c.logger)
	case channel.KindWebSocket:
		return channel.NewWebSocket(cfg.ServerURL, c.logger)
	default:
		return nil, fmt.Errorf("unknown channel kind %q", cfg.Kind)
	}
}

// Close releases the renderer, the cache and the webclient.
func (c *Components) Close() error {
	var errs []error
	if c.Renderer != nil {
		if err := c.Renderer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close renderer: %w", err))
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if c.WebClient != nil {
		if err := c.WebClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close webclient: %w", err))
		}
	}
	return errors.Join(errs...)
}
