package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/mailtrust/internal/channel"
	"github.com/raysh454/mailtrust/internal/heuristics"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

const (
	// DefaultSettleDelay gives the message body time to finish rendering
	// before it is snapshotted.
	DefaultSettleDelay = 1500 * time.Millisecond

	DefaultRunTimeout = 60 * time.Second
)

// Pipeline precondition faults. Their messages are shown to the reader.
var (
	ErrSenderNotFound  = errors.New("could not find sender email")
	ErrBodyUnavailable = errors.New("could not read message body")
)

const msgUnexpected = "the scan failed unexpectedly"

// errChannel marks a failure to move the request or its verdict.
type errChannel struct{ err error }

func (e *errChannel) Error() string { return "scan channel failed: " + e.err.Error() }
func (e *errChannel) Unwrap() error { return e.err }

// Presenter shows scan progress and results to the reader.
type Presenter interface {
	Scanning(runID string)
	Present(v *model.Verdict)
}

// SnapshotSource is the view of the currently displayed message.
type SnapshotSource interface {
	SenderIdentity() (string, bool)
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

type PipelineConfig struct {
	// SettleDelay is waited after the Scanning placeholder and before the
	// snapshot is taken.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// Timeout bounds a run after the settle delay; 0 means none.
	Timeout time.Duration `yaml:"timeout"`
}

// Pipeline runs one triggered scan end to end for one view.
type Pipeline struct {
	cfg       PipelineConfig
	source    SnapshotSource
	scanner   *heuristics.Scanner
	channel   channel.Channel
	presenter Presenter
	logger    logging.Logger
}

func NewPipeline(cfg PipelineConfig, source SnapshotSource, scanner *heuristics.Scanner, ch channel.Channel, presenter Presenter, logger logging.Logger) (*Pipeline, error) {
	if source == nil || ch == nil || presenter == nil {
		return nil, errors.New("app: pipeline needs a source, a channel and a presenter")
	}
	if scanner == nil {
		scanner = heuristics.NewScanner(heuristics.Config{}, logger)
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		scanner:   scanner,
		channel:   ch,
		presenter: presenter,
		logger:    logger.With(logging.Field{Key: "component", Value: "pipeline"}),
	}, nil
}

// Fire adapts Run to trigger.FireFunc.
func (p *Pipeline) Fire(ctx context.Context) func(model.Run) {
	return func(run model.Run) { p.Run(ctx, run) }
}

// Run executes run and presents its outcome. It returns the presented
// verdict, or nil when the run was abandoned: the context ended during the
// settle delay, or the view moved to another sender before the verdict came
// back.
func (p *Pipeline) Run(ctx context.Context, run model.Run) (presented *model.Verdict) {
	logger := p.logger.With(logging.Field{Key: "run_id", Value: run.ID})
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan panicked", logging.Field{Key: "panic", Value: fmt.Sprint(r)})
			presented = model.ErrorVerdict(msgUnexpected)
			presented.RunID = run.ID
			p.presenter.Present(presented)
		}
	}()

	p.presenter.Scanning(run.ID)

	v, err := p.evaluate(ctx, run, logger)
	switch {
	case err == nil && v == nil:
		return nil
	case err != nil:
		v = p.errorVerdict(err, logger)
	}
	v.RunID = run.ID
	p.presenter.Present(v)
	return v
}

func (p *Pipeline) evaluate(ctx context.Context, run model.Run, logger logging.Logger) (*model.Verdict, error) {
	if !run.SenderFound || run.SenderIdentity == "" {
		return nil, ErrSenderNotFound
	}

	if p.cfg.SettleDelay > 0 {
		t := time.NewTimer(p.cfg.SettleDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			logger.Debug("run abandoned while settling")
			return nil, nil
		}
	}
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if snap.SenderIdentity == "" {
		return nil, ErrSenderNotFound
	}
	if snap.SenderIdentity != run.SenderIdentity {
		logger.Info("view changed before snapshot",
			logging.Field{Key: "sender", Value: run.SenderIdentity},
			logging.Field{Key: "current_sender", Value: snap.SenderIdentity})
		return nil, nil
	}
	if snap.Body == nil {
		return nil, ErrBodyUnavailable
	}

	finding := p.scanner.Scan(snap.Body)
	req := model.NewScanRequest(snap.Domain(), snap.Links, finding)
	req.RunID = run.ID
	logger.Info("scan dispatched",
		logging.Field{Key: "domain", Value: req.Domain},
		logging.Field{Key: "urls", Value: len(req.URLs)},
		logging.Field{Key: "heuristic", Value: finding.Reason})

	v, err := p.channel.Send(ctx, req)
	if err != nil {
		return nil, &errChannel{err: err}
	}

	// a view with no readable sender is mid-rewrite, not a different message
	if current, found := p.source.SenderIdentity(); found && current != run.SenderIdentity {
		logger.Info("discarding stale verdict",
			logging.Field{Key: "sender", Value: run.SenderIdentity},
			logging.Field{Key: "current_sender", Value: current})
		return nil, nil
	}
	return v, nil
}

func (p *Pipeline) errorVerdict(err error, logger logging.Logger) *model.Verdict {
	var chErr *errChannel
	switch {
	case errors.Is(err, ErrSenderNotFound), errors.Is(err, ErrBodyUnavailable):
		logger.Info("scan precondition failed", logging.Field{Key: "error", Value: err.Error()})
		return model.ErrorVerdict(err.Error())
	case errors.As(err, &chErr):
		logger.Warn("scan channel failed", logging.Field{Key: "error", Value: chErr.err.Error()})
		return model.ErrorVerdict(chErr.Error())
	default:
		logger.Error("scan failed", logging.Field{Key: "error", Value: err.Error()})
		return model.ErrorVerdict(msgUnexpected)
	}
}
