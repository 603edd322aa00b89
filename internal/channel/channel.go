// Package channel carries a scan request from the inspection side to the
// aggregating side and brings the verdict back: one request, one response
// per call.
package channel

import (
	"context"
	"errors"

	"github.com/raysh454/mailtrust/internal/model"
)

// Kinds accepted by New.
const (
	KindLocal     = "local"
	KindHTTP      = "http"
	KindWebSocket = "ws"
)

// Paths served by the aggregating side.
const (
	ScanPath   = "/v1/scan"
	WSScanPath = "/v1/ws/scan"
)

// ErrRemote wraps an error reported by the aggregating side.
var ErrRemote = errors.New("remote evaluation failed")

// Channel moves one ScanRequest and returns its Verdict.
type Channel interface {
	Send(ctx context.Context, req model.ScanRequest) (*model.Verdict, error)
	Close() error
}

// Evaluator is the aggregating side: it turns a request into a verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.ScanRequest) (*model.Verdict, error)
}

// Envelope is the WebSocket response frame.
type Envelope struct {
	Verdict *model.Verdict `json:"verdict,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Local calls an Evaluator in process.
type Local struct {
	eval Evaluator
}

func NewLocal(eval Evaluator) (*Local, error) {
	if eval == nil {
		return nil, errors.New("channel: evaluator is required")
	}
	return &Local{eval: eval}, nil
}

func (l *Local) Send(ctx context.Context, req model.ScanRequest) (*model.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.eval.Evaluate(ctx, req.Normalized())
}

func (l *Local) Close() error { return nil }

// checkRunID rejects a verdict answering a different run.
func checkRunID(req model.ScanRequest, v *model.Verdict) error {
	if v == nil {
		return errors.New("empty verdict")
	}
	if req.RunID != "" && v.RunID != "" && v.RunID != req.RunID {
		return errors.New("verdict answers run " + v.RunID + ", expected " + req.RunID)
	}
	return nil
}
