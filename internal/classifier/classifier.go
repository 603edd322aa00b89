// Package classifier reduces the aggregated provider signals and the content
// finding of one scan to a single trust verdict.
package classifier

import (
	"time"

	"github.com/raysh454/mailtrust/internal/model"
)

// NewDomainYears is the age below which a domain counts as new.
const NewDomainYears = 3

// Classifier applies the verdict precedence. The zero value uses the wall clock.
type Classifier struct {
	now func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock replaces the wall clock used for domain age.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New builds a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify reduces report and finding to a verdict. DANGER outranks CAUTION,
// which outranks SECURE. It never produces ERROR.
func (c *Classifier) Classify(report model.Report, finding model.ContentHeuristicResult) model.Verdict {
	now := c.clock()
	if finding.Reason == "" {
		finding = model.NoFinding()
	}
	status := report.URLStatus
	if status == "" {
		status = model.DeriveURLStatus(report.Reputation, report.ShortenedURLs)
	}

	v := model.Verdict{
		Overall: model.OverallSecure,
		PerSignal: map[string]string{
			model.SignalSPF:           string(report.SPF),
			model.SignalDMARC:         string(report.DMARC),
			model.SignalURLStatus:     string(status),
			model.SignalCreationYear:  report.Domain.String(),
			model.SignalHiddenContent: string(finding.Reason),
		},
		CreationYear: report.Domain.String(),
		TotalURLs:    report.TotalURLs,
		Heuristic:    finding,
		EvaluatedAt:  now.UTC(),
	}
	if report.Domain.Found {
		age := now.Year() - report.Domain.Year
		v.DomainAgeYears = &age
	}

	switch {
	case report.SPF != model.AuthPass,
		report.DMARC != model.AuthPass,
		status == model.URLMalicious,
		finding.Is(model.SeverityDanger):
		v.Overall = model.OverallDanger
	case IsNewDomain(report.Domain, now),
		status == model.URLCaution,
		finding.Is(model.SeverityCaution):
		v.Overall = model.OverallCaution
	}
	return v
}

// IsNewDomain reports whether the domain is younger than NewDomainYears at now.
// An unknown creation year counts as new.
func IsNewDomain(d model.DomainAge, now time.Time) bool {
	if !d.Found {
		return true
	}
	return now.Year()-d.Year < NewDomainYears
}

func (c *Classifier) clock() time.Time {
	if c == nil || c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Classify uses a wall-clock Classifier.
func Classify(report model.Report, finding model.ContentHeuristicResult) model.Verdict {
	return (*Classifier)(nil).Classify(report, finding)
}
