package server

import "time"

// DefaultMaxBodyBytes caps a scan request body.
const DefaultMaxBodyBytes = 1 << 20

type Config struct {
	// ListenAddr is the HTTP listen address of the aggregating side. The CLI
	// uses the in-process channel by default and does not need the network.
	ListenAddr string `yaml:"listen_addr"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// EvaluateTimeout bounds one evaluation; 0 means none.
	EvaluateTimeout time.Duration `yaml:"evaluate_timeout"`
}
