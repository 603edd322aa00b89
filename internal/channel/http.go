package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/webclient"
)

// HTTP posts the request as JSON to the aggregating server.
type HTTP struct {
	endpoint string
	wc       webclient.WebClient
	logger   logging.Logger
}

// NewHTTP targets baseURL (scheme://host[:port]).
func NewHTTP(baseURL string, wc webclient.WebClient, logger logging.Logger) (*HTTP, error) {
	if baseURL == "" {
		return nil, errors.New("channel: server URL is required")
	}
	if wc == nil {
		return nil, errors.New("channel: webclient is required")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &HTTP{
		endpoint: strings.TrimRight(baseURL, "/") + ScanPath,
		wc:       wc,
		logger:   logger.With(logging.Field{Key: "component", Value: "http_channel"}),
	}, nil
}

func (h *HTTP) Send(ctx context.Context, req model.ScanRequest) (*model.Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := h.wc.Do(ctx, &webclient.Request{
		Method:  http.MethodPost,
		URL:     h.endpoint,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("post scan: %w", err)
	}
	if !resp.OK() {
		var e Envelope
		_ = json.Unmarshal(resp.Body, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, e.Error)
	}

	var v model.Verdict
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	if err := checkRunID(req, &v); err != nil {
		return nil, err
	}
	h.logger.Debug("verdict received", logging.Field{Key: "run_id", Value: v.RunID}, logging.Field{Key: "overall", Value: v.Overall})
	return &v, nil
}

func (h *HTTP) Close() error { return h.wc.Close() }
