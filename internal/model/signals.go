package model

import "strconv"

// AuthKind selects which sender-authentication record is checked.
type AuthKind string

const (
	AuthSPF   AuthKind = "spf"
	AuthDMARC AuthKind = "dmarc"
)

// AuthResult is the normalized outcome of an authentication check.
type AuthResult string

const (
	AuthPass AuthResult = "PASS"
	AuthFail AuthResult = "FAIL"
)

// NotFound is how a missing creation year is rendered.
const NotFound = "Not found"

// DomainAge is the normalized registration lookup: the creation year when known.
type DomainAge struct {
	Year  int  `json:"year,omitempty"`
	Found bool `json:"found"`
}

// String renders the four-digit year or "Not found".
func (d DomainAge) String() string {
	if !d.Found {
		return NotFound
	}
	return strconv.Itoa(d.Year)
}

// URLReputation is the aggregate of all per-URL reputation lookups.
type URLReputation string

const (
	ReputationSafe      URLReputation = "Safe"
	ReputationMalicious URLReputation = "Malicious"
	ReputationError     URLReputation = "Error"
)

// URLStatus is the link verdict the classifier consumes.
type URLStatus string

const (
	URLSafe      URLStatus = "Safe"
	URLCaution   URLStatus = "Caution"
	URLMalicious URLStatus = "Malicious"
)

// ProviderFault is a typed failure marker for a single provider call. It never
// leaves the aggregator; callers only see normalized values.
type ProviderFault struct {
	Provider string
	Op       string
	Err      error
}

func (f *ProviderFault) Error() string {
	return f.Provider + " " + f.Op + ": " + f.Err.Error()
}

func (f *ProviderFault) Unwrap() error { return f.Err }

// Report is the aggregator's normalized output for one ScanRequest.
type Report struct {
	SPF           AuthResult    `json:"spf"`
	DMARC         AuthResult    `json:"dmarc"`
	Domain        DomainAge     `json:"domain_age"`
	Reputation    URLReputation `json:"url_reputation"`
	ShortenedURLs int           `json:"shortened_urls"`
	TotalURLs     int           `json:"total_urls"`
	URLStatus     URLStatus     `json:"url_status"`
}

// DeriveURLStatus folds reputation and shortener count into one link status.
// A reputation lookup error does not raise the status on its own.
func DeriveURLStatus(rep URLReputation, shortened int) URLStatus {
	switch {
	case rep == ReputationMalicious:
		return URLMalicious
	case shortened > 0:
		return URLCaution
	default:
		return URLSafe
	}
}
