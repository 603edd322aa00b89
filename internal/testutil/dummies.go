// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of recorded warnings.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── Providers ─────────────────────────────────────────────────────────

// ErrTransport is the canned transport failure used by the fake providers.
var ErrTransport = errors.New("dummy transport failure")

// FakeAuth implements aggregator.AuthProvider. Records are keyed by kind;
// a kind listed in Fail returns ErrTransport.
type FakeAuth struct {
	Records map[model.AuthKind]*aggregator.AuthRecord
	Fail    map[model.AuthKind]bool
	Delay   time.Duration
	Calls   atomic.Int32
}

// PassingAuth returns a FakeAuth where both SPF and DMARC pass.
func PassingAuth() *FakeAuth {
	return &FakeAuth{Records: map[model.AuthKind]*aggregator.AuthRecord{
		model.AuthSPF:   {Passed: []string{"SPF Record Published"}},
		model.AuthDMARC: {Passed: []string{"DMARC Record Published"}},
	}}
}

func (f *FakeAuth) LookupAuth(ctx context.Context, kind model.AuthKind, _ string) (*aggregator.AuthRecord, error) {
	f.Calls.Add(1)
	if err := sleep(ctx, f.Delay); err != nil {
		return nil, err
	}
	if f.Fail[kind] {
		return nil, ErrTransport
	}
	return f.Records[kind], nil
}

// FakeRegistration implements aggregator.RegistrationProvider.
type FakeRegistration struct {
	CreateDate string
	Err        error
	Delay      time.Duration
	Calls      atomic.Int32
}

func (f *FakeRegistration) LookupRegistration(ctx context.Context, _ string) (*aggregator.Registration, error) {
	f.Calls.Add(1)
	if err := sleep(ctx, f.Delay); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &aggregator.Registration{CreateDate: f.CreateDate}, nil
}

// FakeReputation implements aggregator.ReputationProvider keyed by URL; the
// fake hashes its keys the same way the aggregator does. URLs absent from
// Stats and Errs answer aggregator.ErrNotFound.
type FakeReputation struct {
	Stats map[string]aggregator.URLStats
	Errs  map[string]error
	Delay time.Duration
	Calls atomic.Int32
}

func (f *FakeReputation) LookupURL(ctx context.Context, id string) (*aggregator.URLStats, error) {
	f.Calls.Add(1)
	if err := sleep(ctx, f.Delay); err != nil {
		return nil, err
	}
	for u, err := range f.Errs {
		if aggregator.ContentID(u) == id {
			return nil, err
		}
	}
	for u, s := range f.Stats {
		if aggregator.ContentID(u) == id {
			out := s
			return &out, nil
		}
	}
	return nil, aggregator.ErrNotFound
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient with canned responses keyed
// by URL. Unknown URLs get a 404. Set FailURLs[url] to force a transport error.
type DummyWebClient struct {
	Responses map[string]*webclient.Response
	FailURLs  map[string]bool

	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, ErrTransport
	}
	if resp, ok := d.Responses[req.URL]; ok {
		out := *resp
		out.Request = req
		out.FetchedAt = time.Now()
		return &out, nil
	}
	return &webclient.Response{Request: req, StatusCode: 404, FetchedAt: time.Now()}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// LastRequest returns the most recent request, or nil.
func (d *DummyWebClient) LastRequest() *webclient.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Requests) == 0 {
		return nil
	}
	return d.Requests[len(d.Requests)-1]
}

// ─── Evaluator ─────────────────────────────────────────────────────────

// FakeEvaluator implements channel.Evaluator. It echoes the request's RunID
// into a copy of Verdict (SECURE when nil) or returns Err.
type FakeEvaluator struct {
	Verdict *model.Verdict
	Err     error
	Delay   time.Duration

	mu       sync.Mutex
	requests []model.ScanRequest
}

func (f *FakeEvaluator) Evaluate(ctx context.Context, req model.ScanRequest) (*model.Verdict, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := sleep(ctx, f.Delay); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	v := model.Verdict{Overall: model.OverallSecure, Heuristic: req.Heuristic, TotalURLs: len(req.URLs)}
	if f.Verdict != nil {
		v = *f.Verdict
	}
	v.RunID = req.RunID
	return &v, nil
}

// Requests returns the requests seen so far.
func (f *FakeEvaluator) Requests() []model.ScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ScanRequest(nil), f.requests...)
}
