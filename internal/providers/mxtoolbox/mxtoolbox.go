// Package mxtoolbox answers SPF and DMARC lookups through the MxToolbox
// lookup API.
package mxtoolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/webclient"
)

const DefaultBaseURL = "https://api.mxtoolbox.com/api/v1/lookup"

// ErrFault is returned when the API answers with a Fault instead of a result.
var ErrFault = errors.New("mxtoolbox: fault")

type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Client implements aggregator.AuthProvider.
type Client struct {
	baseURL string
	apiKey  string
	wc      webclient.WebClient
	logger  logging.Logger
}

func New(cfg Config, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if wc == nil {
		return nil, errors.New("mxtoolbox: webclient is required")
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
		logger:  logger.With(logging.Field{Key: "component", Value: "mxtoolbox"}),
	}, nil
}

type lookupEntry struct {
	Name string `json:"Name"`
	Info string `json:"Info"`
}

type lookupResponse struct {
	Passed []lookupEntry   `json:"Passed"`
	Failed []lookupEntry   `json:"Failed"`
	Errors []lookupEntry   `json:"Errors"`
	Fault  json.RawMessage `json:"Fault,omitempty"`
}

// LookupAuth runs the spf or dmarc lookup for domain.
func (c *Client) LookupAuth(ctx context.Context, kind model.AuthKind, domain string) (*aggregator.AuthRecord, error) {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, kind, url.PathEscape(domain))
	req := &webclient.Request{
		Method:  http.MethodGet,
		URL:     u,
		Headers: http.Header{"Authorization": []string{c.apiKey}},
	}
	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mxtoolbox %s lookup: %w", kind, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("mxtoolbox %s lookup: unexpected status %d", kind, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("mxtoolbox %s lookup: decode: %w", kind, err)
	}
	if len(body.Fault) > 0 && string(body.Fault) != "null" {
		return nil, fmt.Errorf("%w: %s", ErrFault, strings.Trim(string(body.Fault), `"`))
	}

	rec := &aggregator.AuthRecord{
		Passed: names(body.Passed),
		Errors: names(body.Errors),
	}
	c.logger.Debug("auth lookup answered",
		logging.Field{Key: "kind", Value: kind},
		logging.Field{Key: "domain", Value: domain},
		logging.Field{Key: "passed", Value: len(rec.Passed)},
		logging.Field{Key: "failed", Value: len(body.Failed)},
		logging.Field{Key: "errors", Value: len(rec.Errors)})
	return rec, nil
}

func names(entries []lookupEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name
		if n == "" {
			n = e.Info
		}
		out = append(out, n)
	}
	return out
}
