package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// WebSocket dials the aggregating server for every request and exchanges
// exactly one frame each way.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
	logger logging.Logger
}

// NewWebSocket targets baseURL; http(s) schemes are rewritten to ws(s).
func NewWebSocket(baseURL string, logger logging.Logger) (*WebSocket, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("channel: invalid server URL %q", baseURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("channel: unsupported scheme %q", u.Scheme)
	}
	u.Path += WSScanPath
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &WebSocket{
		url:    u.String(),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With(logging.Field{Key: "component", Value: "ws_channel"}),
	}, nil
}

func (w *WebSocket) Send(ctx context.Context, req model.ScanRequest) (*model.Verdict, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	// unblock reads when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read verdict: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if env.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, env.Error)
	}
	if env.Verdict == nil {
		return nil, errors.New("read verdict: empty frame")
	}
	if err := checkRunID(req, env.Verdict); err != nil {
		return nil, err
	}
	w.logger.Debug("verdict received", logging.Field{Key: "run_id", Value: env.Verdict.RunID}, logging.Field{Key: "overall", Value: env.Verdict.Overall})
	return env.Verdict, nil
}

func (w *WebSocket) Close() error { return nil }
