package aggregator

import (
	"context"
	"errors"

	"github.com/raysh454/mailtrust/internal/model"
)

// ErrNotFound is returned by a ReputationProvider when the URL has never been
// seen. The aggregator treats it as zero indicators.
var ErrNotFound = errors.New("aggregator: url not previously seen")

// AuthRecord is an authentication-record provider's answer for one check.
type AuthRecord struct {
	Passed []string
	Errors []string
}

// AuthProvider looks up SPF or DMARC records for a domain.
type AuthProvider interface {
	LookupAuth(ctx context.Context, kind model.AuthKind, domain string) (*AuthRecord, error)
}

// Registration is the part of a registration lookup the aggregator reads.
type Registration struct {
	// CreateDate is provider-formatted; only a leading four-digit year is used.
	CreateDate string
}

// RegistrationProvider performs a WHOIS-equivalent lookup.
type RegistrationProvider interface {
	LookupRegistration(ctx context.Context, domain string) (*Registration, error)
}

// URLStats are the analysis counters a reputation provider reports for a URL.
type URLStats struct {
	Malicious  int
	Suspicious int
}

// ReputationProvider looks up a URL by its content identifier.
type ReputationProvider interface {
	LookupURL(ctx context.Context, id string) (*URLStats, error)
}
