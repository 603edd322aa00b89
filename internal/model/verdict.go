package model

import "time"

// Overall is the single trust verdict for a message.
type Overall string

const (
	OverallSecure  Overall = "SECURE"
	OverallCaution Overall = "CAUTION"
	OverallDanger  Overall = "DANGER"
	OverallError   Overall = "ERROR"
)

// Per-signal keys used in Verdict.PerSignal.
const (
	SignalSPF           = "spf"
	SignalDMARC         = "dmarc"
	SignalURLStatus     = "url_status"
	SignalCreationYear  = "creation_year"
	SignalHiddenContent = "hidden_content"
)

// Verdict is what the presentation collaborator renders.
type Verdict struct {
	RunID          string                 `json:"run_id,omitempty"`
	Overall        Overall                `json:"overall"`
	PerSignal      map[string]string      `json:"per_signal,omitempty"`
	DomainAgeYears *int                   `json:"domain_age_years,omitempty"`
	CreationYear   string                 `json:"creation_year,omitempty"`
	TotalURLs      int                    `json:"total_urls"`
	Heuristic      ContentHeuristicResult `json:"heuristic"`
	Error          string                 `json:"error,omitempty"`
	EvaluatedAt    time.Time              `json:"evaluated_at"`
}

// ErrorVerdict is the pipeline-level fault report. It is not a severity
// computed from signals.
func ErrorVerdict(msg string) *Verdict {
	return &Verdict{
		Overall:     OverallError,
		Error:       msg,
		Heuristic:   NoFinding(),
		EvaluatedAt: time.Now().UTC(),
	}
}

// IsError reports whether the verdict is a pipeline fault report.
func (v *Verdict) IsError() bool {
	return v != nil && v.Overall == OverallError
}
