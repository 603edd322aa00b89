// Package dnsauth answers SPF and DMARC lookups straight from DNS TXT
// records, for deployments without an MxToolbox key.
package dnsauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

type Config struct {
	// Nameserver is host:port; empty reads the first server in /etc/resolv.conf.
	Nameserver string        `yaml:"nameserver"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Resolver implements aggregator.AuthProvider over DNS.
type Resolver struct {
	client     *dns.Client
	nameserver string
	logger     logging.Logger
}

func New(cfg Config, logger logging.Logger) (*Resolver, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	ns := cfg.Nameserver
	if ns == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("dnsauth: read resolv.conf: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, errors.New("dnsauth: no nameserver configured")
		}
		ns = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		client: &dns.Client{
			Net:          "udp",
			Timeout:      timeout,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		nameserver: ns,
		logger:     logger.With(logging.Field{Key: "component", Value: "dnsauth"}),
	}, nil
}

// LookupAuth reads the SPF record of domain or the DMARC record at
// _dmarc.domain and grades it the way a lookup service would.
func (r *Resolver) LookupAuth(ctx context.Context, kind model.AuthKind, domain string) (*aggregator.AuthRecord, error) {
	name, prefix := domain, "v=spf1"
	if kind == model.AuthDMARC {
		name, prefix = "_dmarc."+domain, "v=DMARC1"
	}

	txts, err := r.txt(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("dnsauth %s lookup: %w", kind, err)
	}
	var records []string
	for _, t := range txts {
		if hasPrefixFold(t, prefix) {
			records = append(records, t)
		}
	}

	var rec *aggregator.AuthRecord
	if kind == model.AuthDMARC {
		rec = gradeDMARC(records)
	} else {
		rec = gradeSPF(records)
	}
	r.logger.Debug("dns auth lookup answered",
		logging.Field{Key: "kind", Value: kind},
		logging.Field{Key: "domain", Value: domain},
		logging.Field{Key: "records", Value: len(records)})
	return rec, nil
}

func gradeSPF(records []string) *aggregator.AuthRecord {
	rec := &aggregator.AuthRecord{}
	switch len(records) {
	case 0:
		return rec
	case 1:
		rec.Passed = append(rec.Passed, "SPF Record Published")
	default:
		rec.Errors = append(rec.Errors, "Multiple SPF Records")
		return rec
	}
	for _, term := range strings.Fields(records[0]) {
		if strings.EqualFold(term, "+all") || strings.EqualFold(term, "all") {
			rec.Errors = append(rec.Errors, "SPF Record Allows Any Sender")
		}
	}
	return rec
}

func gradeDMARC(records []string) *aggregator.AuthRecord {
	rec := &aggregator.AuthRecord{}
	switch len(records) {
	case 0:
		return rec
	case 1:
		rec.Passed = append(rec.Passed, "DMARC Record Published")
	default:
		rec.Errors = append(rec.Errors, "Multiple DMARC Records")
		return rec
	}
	tags := parseTags(records[0])
	switch p, ok := tags["p"]; {
	case !ok:
		rec.Errors = append(rec.Errors, "DMARC Policy Tag Missing")
	case p != "none" && p != "quarantine" && p != "reject":
		rec.Errors = append(rec.Errors, "DMARC Policy Invalid")
	}
	return rec
}

func parseTags(record string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		tags[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return tags
}

func (r *Resolver) txt(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.nameserver)
	if err != nil {
		return nil, err
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}

	var out []string
	for _, ans := range resp.Answer {
		if rr, ok := ans.(*dns.TXT); ok {
			out = append(out, strings.Join(rr.Txt, ""))
		}
	}
	return out, nil
}

func hasPrefixFold(s, prefix string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
