package model

// HeuristicReason names the deception pattern a content scan found.
type HeuristicReason string

const (
	ReasonOK            HeuristicReason = "OK"
	ReasonDeceptiveLink HeuristicReason = "Deceptive Link Found"
	ReasonTrackingPixel HeuristicReason = "Tracking Pixel"
	ReasonInvisibleText HeuristicReason = "Invisible Text Found"
)

// Severity grades a content finding.
type Severity string

const (
	SeverityOK      Severity = "OK"
	SeverityInfo    Severity = "INFO"
	SeverityCaution Severity = "CAUTION"
	SeverityDanger  Severity = "DANGER"
)

// ContentHeuristicResult is the single dominant finding of a content scan.
type ContentHeuristicResult struct {
	Detected bool            `json:"detected"`
	Reason   HeuristicReason `json:"reason"`
	Severity Severity        `json:"severity"`
}

// NoFinding is the result of a clean scan.
func NoFinding() ContentHeuristicResult {
	return ContentHeuristicResult{Detected: false, Reason: ReasonOK, Severity: SeverityOK}
}

// Finding builds a detected result.
func Finding(reason HeuristicReason, sev Severity) ContentHeuristicResult {
	return ContentHeuristicResult{Detected: true, Reason: reason, Severity: sev}
}

// Is reports whether the result was detected at the given severity.
func (r ContentHeuristicResult) Is(sev Severity) bool {
	return r.Detected && r.Severity == sev
}
