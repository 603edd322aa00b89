package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/utils"
)

// DefaultShortenerDomains are the URL-shortening services counted by
// ShortenedURLCount.
var DefaultShortenerDomains = []string{"bit.ly", "t.co", "goo.gl", "tinyurl.com", "is.gd", "ow.ly"}

var yearRe = regexp.MustCompile(`^\d{4}`)

// Config holds aggregator tuning.
type Config struct {
	// MaxConcurrency bounds in-flight provider calls per scan; 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// ProviderTimeout bounds each provider call; 0 means no timeout. A timeout
	// is normalized like any other transport fault.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// ShortenerDomains replaces DefaultShortenerDomains when non-empty.
	ShortenerDomains []string `yaml:"shortener_domains"`
}

// Aggregator fans provider calls out for one scan and normalizes each answer.
// Provider faults never escape it.
type Aggregator struct {
	cfg        Config
	auth       AuthProvider
	reg        RegistrationProvider
	rep        ReputationProvider
	shorteners map[string]struct{}
	logger     logging.Logger
}

// New wires the three provider families into an Aggregator.
func New(cfg Config, auth AuthProvider, reg RegistrationProvider, rep ReputationProvider, logger logging.Logger) (*Aggregator, error) {
	if auth == nil || reg == nil || rep == nil {
		return nil, errors.New("aggregator: all three providers are required")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	domains := cfg.ShortenerDomains
	if len(domains) == 0 {
		domains = DefaultShortenerDomains
	}
	shorteners := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		shorteners[utils.NormalizeDomain(d)] = struct{}{}
	}
	return &Aggregator{
		cfg:        cfg,
		auth:       auth,
		reg:        reg,
		rep:        rep,
		shorteners: shorteners,
		logger:     logger.With(logging.Field{Key: "component", Value: "aggregator"}),
	}, nil
}

// Aggregate dispatches every provider call for req concurrently, waits for all
// of them and returns the normalized report. It never returns a partial report.
func (a *Aggregator) Aggregate(ctx context.Context, req model.ScanRequest) model.Report {
	report := model.Report{
		SPF:           model.AuthFail,
		DMARC:         model.AuthFail,
		Reputation:    model.ReputationError,
		TotalURLs:     len(req.URLs),
		ShortenedURLs: a.ShortenedURLCount(req.URLs),
	}

	var g errgroup.Group
	a.goSafe(&g, "spf", func() { report.SPF = a.AuthenticationCheck(ctx, model.AuthSPF, req.Domain) })
	a.goSafe(&g, "dmarc", func() { report.DMARC = a.AuthenticationCheck(ctx, model.AuthDMARC, req.Domain) })
	a.goSafe(&g, "registration", func() { report.Domain = a.DomainAgeCheck(ctx, req.Domain) })
	a.goSafe(&g, "reputation", func() { report.Reputation = a.URLReputationCheck(ctx, req.URLs) })
	_ = g.Wait()

	report.URLStatus = model.DeriveURLStatus(report.Reputation, report.ShortenedURLs)

	a.logger.Info("aggregated provider signals",
		logging.Field{Key: "run_id", Value: req.RunID},
		logging.Field{Key: "domain", Value: req.Domain},
		logging.Field{Key: "spf", Value: report.SPF},
		logging.Field{Key: "dmarc", Value: report.DMARC},
		logging.Field{Key: "creation_year", Value: report.Domain.String()},
		logging.Field{Key: "url_status", Value: report.URLStatus},
		logging.Field{Key: "urls", Value: report.TotalURLs})
	return report
}

// AuthenticationCheck maps the provider answer for kind to PASS or FAIL. A
// transport fault, a provider-reported error or an empty pass-list is FAIL.
func (a *Aggregator) AuthenticationCheck(ctx context.Context, kind model.AuthKind, domain string) model.AuthResult {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	rec, err := a.auth.LookupAuth(ctx, kind, domain)
	if err != nil {
		a.fault("auth", string(kind), err)
		return model.AuthFail
	}
	if rec == nil || len(rec.Errors) > 0 || len(rec.Passed) == 0 {
		return model.AuthFail
	}
	return model.AuthPass
}

// DomainAgeCheck extracts the four-digit creation year; anything else,
// including a provider fault, is "Not found".
func (a *Aggregator) DomainAgeCheck(ctx context.Context, domain string) model.DomainAge {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	reg, err := a.reg.LookupRegistration(ctx, domain)
	if err != nil {
		a.fault("registration", "lookup", err)
		return model.DomainAge{}
	}
	return ParseCreationYear(reg)
}

// ParseCreationYear reads a leading four-digit year from the registration date.
func ParseCreationYear(reg *Registration) model.DomainAge {
	if reg == nil {
		return model.DomainAge{}
	}
	m := yearRe.FindString(reg.CreateDate)
	if m == "" {
		return model.DomainAge{}
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return model.DomainAge{}
	}
	return model.DomainAge{Year: year, Found: true}
}

// URLReputationCheck looks every URL up concurrently by its content identifier.
// Malicious wins over Error, which wins over Safe.
func (a *Aggregator) URLReputationCheck(ctx context.Context, urls []string) model.URLReputation {
	type slot struct {
		stats *URLStats
		err   bool
	}
	results := make([]slot, len(urls))
	for i := range results {
		results[i].err = true
	}

	var g errgroup.Group
	if a.cfg.MaxConcurrency > 0 {
		g.SetLimit(a.cfg.MaxConcurrency)
	}
	for i, u := range urls {
		a.goSafe(&g, "url", func() {
			stats, err := a.lookupURL(ctx, u)
			results[i] = slot{stats: stats, err: err != nil}
		})
	}
	_ = g.Wait()

	hasErr := false
	for _, r := range results {
		if r.err {
			hasErr = true
			continue
		}
		if r.stats != nil && (r.stats.Malicious > 0 || r.stats.Suspicious > 0) {
			return model.ReputationMalicious
		}
	}
	if hasErr {
		return model.ReputationError
	}
	return model.ReputationSafe
}

func (a *Aggregator) lookupURL(ctx context.Context, u string) (*URLStats, error) {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	stats, err := a.rep.LookupURL(ctx, ContentID(u))
	switch {
	case errors.Is(err, ErrNotFound):
		return &URLStats{}, nil
	case err != nil:
		a.fault("reputation", "lookup", err)
		return nil, err
	case stats == nil:
		return &URLStats{}, nil
	}
	return stats, nil
}

// ShortenedURLCount counts URLs whose host, minus a leading "www.", is exactly
// a known shortener domain.
func (a *Aggregator) ShortenedURLCount(urls []string) int {
	n := 0
	for _, u := range urls {
		host, ok := utils.Hostname(u)
		if !ok {
			continue
		}
		if _, hit := a.shorteners[host]; hit {
			n++
		}
	}
	return n
}

// ContentID is the stable lookup key for a URL: hex SHA-256 of the string.
func ContentID(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

func (a *Aggregator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.ProviderTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *Aggregator) fault(provider, op string, err error) {
	f := &model.ProviderFault{Provider: provider, Op: op, Err: err}
	a.logger.Warn("provider fault normalized", logging.Field{Key: "error", Value: f.Error()})
}

// goSafe runs fn on g; a panic inside fn is logged and leaves the task's
// default result in place. The task always reports success so the group
// never cancels its siblings.
func (a *Aggregator) goSafe(g *errgroup.Group, task string, fn func()) {
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				a.fault(task, "panic", fmt.Errorf("%v", r))
			}
		}()
		fn()
		return nil
	})
}
