// Package virustotal answers URL reputation lookups through the VirusTotal
// v3 URL object endpoint.
package virustotal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/webclient"
)

const DefaultBaseURL = "https://www.virustotal.com/api/v3"

type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Client implements aggregator.ReputationProvider.
type Client struct {
	baseURL string
	apiKey  string
	wc      webclient.WebClient
	logger  logging.Logger
}

func New(cfg Config, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if wc == nil {
		return nil, errors.New("virustotal: webclient is required")
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
		logger:  logger.With(logging.Field{Key: "component", Value: "virustotal"}),
	}, nil
}

type urlObject struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// LookupURL fetches the analysis stats of the URL object with the given id.
// A 404 means the URL was never submitted and maps to aggregator.ErrNotFound.
func (c *Client) LookupURL(ctx context.Context, id string) (*aggregator.URLStats, error) {
	req := &webclient.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/urls/" + id,
		Headers: http.Header{"X-Apikey": []string{c.apiKey}},
	}
	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("virustotal lookup: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, aggregator.ErrNotFound
	}
	if !resp.OK() {
		return nil, fmt.Errorf("virustotal lookup: API error: %d", resp.StatusCode)
	}

	var obj urlObject
	if err := json.Unmarshal(resp.Body, &obj); err != nil {
		return nil, fmt.Errorf("virustotal lookup: decode: %w", err)
	}
	st := obj.Data.Attributes.LastAnalysisStats
	c.logger.Debug("url reputation answered",
		logging.Field{Key: "id", Value: id},
		logging.Field{Key: "malicious", Value: st.Malicious},
		logging.Field{Key: "suspicious", Value: st.Suspicious})
	return &aggregator.URLStats{Malicious: st.Malicious, Suspicious: st.Suspicious}, nil
}
