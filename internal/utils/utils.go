package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// wwwHostRe matches scheme-less link text that starts with "www.", optionally
// followed by a path: "www.bank.co.uk/login".
var wwwHostRe = regexp.MustCompile(`^(?i)www\.(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}(?::\d{1,5})?(?:/\S*)?$`)

// StripWWW removes a single leading "www." label.
func StripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// NormalizeDomain lower-cases a domain, converts IDN to punycode and drops a
// trailing dot. Inputs idna rejects are returned lower-cased.
func NormalizeDomain(d string) string {
	d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
	if d == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(d); err == nil {
		return ascii
	}
	return d
}

// Hostname parses an absolute URL and returns its host, normalized and with a
// leading "www." stripped. ok is false for unparsable or host-less input.
func Hostname(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return "", false
	}
	return StripWWW(NormalizeDomain(u.Hostname())), true
}

// DomainFromText extracts a domain from the visible text of a link when the
// text itself is an address: an absolute URL, or a "www." host whose suffix
// is on the ICANN public suffix list. Dotted words such as "Node.js" or
// "invoice.pdf" are not addresses.
func DomainFromText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return "", false
	}
	if strings.Contains(text, "://") {
		return Hostname(text)
	}
	if !wwwHostRe.MatchString(text) {
		return "", false
	}
	host, ok := Hostname("http://" + text)
	if !ok {
		return "", false
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	if !icann || suffix == host {
		return "", false
	}
	return host, true
}

// HasDomainSuffix reports whether host ends with any of the given domains.
func HasDomainSuffix(host string, domains []string) bool {
	for _, d := range domains {
		if d != "" && strings.HasSuffix(host, d) {
			return true
		}
	}
	return false
}

// ResolveLinks resolves hrefs against base (which may be empty), keeping only
// http-prefixed absolute results, deduplicated in first-seen order.
func ResolveLinks(base string, hrefs []string) []string {
	var baseURL *url.URL
	if base != "" {
		if u, err := url.Parse(base); err == nil {
			baseURL = u
		}
	}

	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, h := range hrefs {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		u, err := url.Parse(h)
		if err != nil {
			continue
		}
		if baseURL != nil {
			u = baseURL.ResolveReference(u)
		}
		s := u.String()
		if !strings.HasPrefix(s, "http") || u.Host == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
