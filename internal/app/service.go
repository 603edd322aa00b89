package app

import (
	"context"
	"errors"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/classifier"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// ErrEmptyDomain rejects a request without a sender domain.
var ErrEmptyDomain = errors.New("domain is required")

// Service is the aggregating side: fan out to providers, then classify.
// It implements channel.Evaluator.
type Service struct {
	agg    *aggregator.Aggregator
	cls    *classifier.Classifier
	logger logging.Logger
}

func NewService(agg *aggregator.Aggregator, cls *classifier.Classifier, logger logging.Logger) (*Service, error) {
	if agg == nil {
		return nil, errors.New("app: aggregator is required")
	}
	if cls == nil {
		cls = classifier.New()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Service{
		agg:    agg,
		cls:    cls,
		logger: logger.With(logging.Field{Key: "component", Value: "service"}),
	}, nil
}

// Evaluate never returns a partial verdict: provider faults are already
// normalized by the aggregator, so the only errors are a bad request or a
// cancelled context.
func (s *Service) Evaluate(ctx context.Context, req model.ScanRequest) (*model.Verdict, error) {
	req = req.Normalized()
	if req.Domain == "" {
		return nil, ErrEmptyDomain
	}

	report := s.agg.Aggregate(ctx, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := s.cls.Classify(report, req.Heuristic)
	v.RunID = req.RunID

	s.logger.Debug("classified",
		logging.Field{Key: "run_id", Value: req.RunID},
		logging.Field{Key: "domain", Value: req.Domain},
		logging.Field{Key: "overall", Value: v.Overall})
	return &v, nil
}
