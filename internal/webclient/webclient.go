package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient is the HTTP surface the signal providers and the HTTP channel use.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Config controls construction of the default client.
type Config struct {
	Timeout time.Duration `yaml:"timeout"`

	// MaxBodyBytes caps how much of a response body is read; 0 means 4 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}
