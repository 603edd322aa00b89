// Package ip2whois answers domain registration lookups through the IP2WHOIS
// v2 API.
package ip2whois

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/webclient"
)

const DefaultBaseURL = "https://api.ip2whois.com/v2"

// ErrLookup is returned when the API reports an error message.
var ErrLookup = errors.New("ip2whois: lookup error")

type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Client implements aggregator.RegistrationProvider.
type Client struct {
	baseURL string
	apiKey  string
	wc      webclient.WebClient
	logger  logging.Logger
}

func New(cfg Config, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if wc == nil {
		return nil, errors.New("ip2whois: webclient is required")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		wc:      wc,
		logger:  logger.With(logging.Field{Key: "component", Value: "ip2whois"}),
	}, nil
}

type whoisResponse struct {
	Domain       string `json:"domain"`
	CreateDate   string `json:"create_date"`
	ErrorMessage string `json:"error_message"`
	Error        *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_message"`
	} `json:"error"`
}

// URL builds the lookup address for domain.
func (c *Client) URL(domain string) string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", domain)
	return c.baseURL + "?" + q.Encode()
}

// LookupRegistration fetches the registration record for domain.
func (c *Client) LookupRegistration(ctx context.Context, domain string) (*aggregator.Registration, error) {
	resp, err := c.wc.Get(ctx, c.URL(domain))
	if err != nil {
		return nil, fmt.Errorf("ip2whois lookup: %w", err)
	}

	var body whoisResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		if !resp.OK() {
			return nil, fmt.Errorf("ip2whois lookup: unexpected status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("ip2whois lookup: decode: %w", err)
	}
	if msg := body.errorMessage(); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrLookup, msg)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("ip2whois lookup: unexpected status %d", resp.StatusCode)
	}

	c.logger.Debug("registration lookup answered",
		logging.Field{Key: "domain", Value: domain},
		logging.Field{Key: "create_date", Value: body.CreateDate})
	return &aggregator.Registration{CreateDate: body.CreateDate}, nil
}

func (r whoisResponse) errorMessage() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if r.Error != nil {
		if r.Error.Message != "" {
			return r.Error.Message
		}
		return fmt.Sprintf("error code %d", r.Error.Code)
	}
	return ""
}
