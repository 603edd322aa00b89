// Package snapshot turns a message into the read-only snapshot the content
// heuristics inspect: sender identity, flattened body elements with computed
// style and geometry, and the body's hyperlinks.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// Renderer kinds.
const (
	RendererStatic  = "static"
	RendererBrowser = "browser"
)

// Renderer lays out an HTML body and reports every element with its computed
// style, in document order.
type Renderer interface {
	Render(ctx context.Context, body string) (*model.Document, error)
	Close() error
}

type Config struct {
	Renderer string `yaml:"renderer"`

	// TrustedTrackers replaces the scanner's default allowlist when non-empty.
	TrustedTrackers []string `yaml:"trusted_trackers"`

	Browser BrowserConfig `yaml:"browser"`
}

type BrowserConfig struct {
	// ExecPath overrides chromedp's browser discovery.
	ExecPath string `yaml:"exec_path"`

	Width  int64 `yaml:"width"`
	Height int64 `yaml:"height"`

	// Timeout bounds one render, browser start included.
	Timeout time.Duration `yaml:"timeout"`

	// IdleAfter is how long the network must stay quiet before the page is
	// considered loaded.
	IdleAfter time.Duration `yaml:"idle_after"`
}

// NewRenderer builds the renderer named by cfg.Renderer; empty means static.
func NewRenderer(cfg Config, logger logging.Logger) (Renderer, error) {
	switch cfg.Renderer {
	case "", RendererStatic:
		return NewStatic(cfg, logger), nil
	case RendererBrowser:
		return NewBrowser(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown renderer %q", cfg.Renderer)
	}
}
