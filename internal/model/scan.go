package model

import (
	"net/url"
	"strings"
)

// ScanRequest is the payload moved from the inspection side to the aggregating
// side for one triggered scan. Build it with NewScanRequest.
type ScanRequest struct {
	RunID     string                 `json:"run_id,omitempty"`
	Domain    string                 `json:"domain"`
	URLs      []string               `json:"urls"`
	Heuristic ContentHeuristicResult `json:"heuristic"`
}

// NewScanRequest normalizes the domain and keeps only absolute, http-prefixed
// URLs with a host, deduplicated in first-seen order. Malformed entries are
// dropped.
func NewScanRequest(domain string, urls []string, finding ContentHeuristicResult) ScanRequest {
	return ScanRequest{
		Domain:    strings.ToLower(strings.TrimSpace(domain)),
		URLs:      CleanURLs(urls),
		Heuristic: finding,
	}
}

// CleanURLs applies the ScanRequest URL invariant to an arbitrary list.
func CleanURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if !strings.HasPrefix(raw, "http") {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}
	return out
}

// Normalized re-applies the invariants; used on payloads received over a channel.
func (r ScanRequest) Normalized() ScanRequest {
	n := NewScanRequest(r.Domain, r.URLs, r.Heuristic)
	n.RunID = r.RunID
	if n.Heuristic.Reason == "" {
		n.Heuristic = NoFinding()
	}
	return n
}

// Run identifies one pipeline invocation, stamped with the sender identity seen
// when it was dispatched.
type Run struct {
	ID             string
	SenderIdentity string
	SenderFound    bool
}
