package heuristics

import (
	"math"
	"strings"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/utils"
)

// DefaultTrustedTrackers are email-service domains whose tracking links and
// pixels are expected in legitimate bulk mail.
var DefaultTrustedTrackers = []string{
	"sendgrid.net", "hubspot.com", "mailchimp.com", "klaviyo.com",
	"em.amazon.com", "iterable.com", "braze.com",
}

// Config holds scanner settings.
type Config struct {
	// ExtraTrustedTrackers are appended to whichever allowlist applies.
	ExtraTrustedTrackers []string `yaml:"extra_trusted_trackers"`
}

// Scanner inspects a body snapshot for deception patterns. It is pure: the
// same document always yields the same finding.
type Scanner struct {
	extra  []string
	logger logging.Logger
}

// NewScanner builds a Scanner.
func NewScanner(cfg Config, logger logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	extra := make([]string, 0, len(cfg.ExtraTrustedTrackers))
	for _, d := range cfg.ExtraTrustedTrackers {
		if d = utils.NormalizeDomain(d); d != "" {
			extra = append(extra, d)
		}
	}
	return &Scanner{
		extra:  extra,
		logger: logger.With(logging.Field{Key: "component", Value: "heuristics"}),
	}
}

// Scan runs the checks in priority order and returns the first match:
// deceptive link, then tracking pixel, then invisible text.
func (s *Scanner) Scan(doc *model.Document) model.ContentHeuristicResult {
	if doc == nil {
		return model.NoFinding()
	}
	trackers := s.trackers(doc)

	checks := []func(*model.Document, []string) (model.ContentHeuristicResult, bool){
		deceptiveLink,
		trackingPixel,
		invisibleText,
	}
	for _, check := range checks {
		if res, ok := check(doc, trackers); ok {
			s.logger.Debug("content heuristic matched",
				logging.Field{Key: "reason", Value: res.Reason},
				logging.Field{Key: "severity", Value: res.Severity})
			return res
		}
	}
	return model.NoFinding()
}

func (s *Scanner) trackers(doc *model.Document) []string {
	base := DefaultTrustedTrackers
	if len(doc.TrustedTrackers) > 0 {
		base = doc.TrustedTrackers
	}
	out := make([]string, 0, len(base)+len(s.extra))
	out = append(out, base...)
	return append(out, s.extra...)
}

// deceptiveLink flags an anchor whose visible text names one domain while its
// target points at an unrelated one.
func deceptiveLink(doc *model.Document, trackers []string) (model.ContentHeuristicResult, bool) {
	for _, el := range doc.Elements {
		if el.Tag != "a" {
			continue
		}
		textDomain, ok := utils.DomainFromText(el.Text)
		if !ok {
			continue
		}
		hrefDomain, ok := utils.Hostname(el.Href)
		if !ok || textDomain == hrefDomain {
			continue
		}
		if strings.HasSuffix(hrefDomain, textDomain) {
			continue
		}
		if utils.HasDomainSuffix(hrefDomain, trackers) {
			continue
		}
		return model.Finding(model.ReasonDeceptiveLink, model.SeverityDanger), true
	}
	return model.ContentHeuristicResult{}, false
}

// trackingPixel flags a 1x1 (or smaller) image served from an untrusted domain.
func trackingPixel(doc *model.Document, trackers []string) (model.ContentHeuristicResult, bool) {
	for _, el := range doc.Elements {
		if el.Tag != "img" || !isPixel(el) {
			continue
		}
		if host, ok := utils.Hostname(el.Src); ok && utils.HasDomainSuffix(host, trackers) {
			continue
		}
		return model.Finding(model.ReasonTrackingPixel, model.SeverityInfo), true
	}
	return model.ContentHeuristicResult{}, false
}

func isPixel(el model.Element) bool {
	if r := el.Rendered; r != nil && r.Width <= 1 && r.Height <= 1 {
		return true
	}
	if n := el.Intrinsic; n != nil && n.Width == 1 && n.Height == 1 {
		return true
	}
	return false
}

var textTags = map[string]bool{"p": true, "span": true, "div": true}

// invisibleText flags text a reader cannot see: a font size of at most one
// unit, zero opacity, or hidden visibility.
func invisibleText(doc *model.Document, _ []string) (model.ContentHeuristicResult, bool) {
	for _, el := range doc.Elements {
		if !textTags[el.Tag] || strings.TrimSpace(el.Text) == "" {
			continue
		}
		st := el.Style
		if math.Trunc(st.FontSizePx) <= 1 || st.Opacity == 0 || st.Visibility == "hidden" {
			return model.Finding(model.ReasonInvisibleText, model.SeverityDanger), true
		}
	}
	return model.ContentHeuristicResult{}, false
}
