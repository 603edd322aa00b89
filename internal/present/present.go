// Package present renders verdicts for the reader.
package present

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/raysh454/mailtrust/internal/classifier"
	"github.com/raysh454/mailtrust/internal/model"
)

// Signal icons.
const (
	IconOK      = "✔"
	IconFail    = "✖"
	IconWarning = "⚠"
)

// Text writes a status panel per verdict. Copies made with Labeled share the
// writer and its lock.
type Text struct {
	w     io.Writer
	mu    *sync.Mutex
	label string
}

func NewText(w io.Writer) *Text {
	return &Text{w: w, mu: &sync.Mutex{}}
}

// Labeled returns a presenter that prefixes its output with label, used when
// several messages are watched at once.
func (t *Text) Labeled(label string) *Text {
	return &Text{w: t.w, mu: t.mu, label: label}
}

func (t *Text) Scanning(runID string) {
	t.write(t.prefix() + "Scanning...\n")
}

func (t *Text) Present(v *model.Verdict) {
	t.write(t.prefix() + Render(v))
}

func (t *Text) prefix() string {
	if t.label == "" {
		return ""
	}
	return "[" + t.label + "] "
}

func (t *Text) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, s)
}

// Render formats v as the multi-line status panel.
func Render(v *model.Verdict) string {
	var b strings.Builder
	if v == nil {
		v = model.ErrorVerdict("no verdict")
	}
	fmt.Fprintf(&b, "%s\n", v.Overall)
	if v.IsError() {
		fmt.Fprintf(&b, "  %s %s\n", IconFail, v.Error)
		return b.String()
	}

	spf := v.PerSignal[model.SignalSPF]
	dmarc := v.PerSignal[model.SignalDMARC]
	status := model.URLStatus(v.PerSignal[model.SignalURLStatus])

	fmt.Fprintf(&b, "  %s SPF: %s\n", authIcon(spf), spf)
	fmt.Fprintf(&b, "  %s DMARC: %s\n", authIcon(dmarc), dmarc)
	fmt.Fprintf(&b, "  %s Hidden Content: %s\n", heuristicIcon(v.Heuristic), v.Heuristic.Reason)
	fmt.Fprintf(&b, "  %s Links (%d): %s\n", urlIcon(status), v.TotalURLs, status)
	fmt.Fprintf(&b, "  %s Domain Age: %s\n", ageIcon(v), DomainAge(v))
	return b.String()
}

// DomainAge renders "YYYY (N years old)", or "N/A" when the creation year is unknown.
func DomainAge(v *model.Verdict) string {
	if v.DomainAgeYears == nil || v.CreationYear == "" || v.CreationYear == model.NotFound {
		return "N/A"
	}
	return fmt.Sprintf("%s (%d years old)", v.CreationYear, *v.DomainAgeYears)
}

func authIcon(r string) string {
	if model.AuthResult(r) == model.AuthPass {
		return IconOK
	}
	return IconFail
}

func heuristicIcon(h model.ContentHeuristicResult) string {
	switch {
	case h.Is(model.SeverityDanger):
		return IconFail
	case h.Is(model.SeverityCaution):
		return IconWarning
	default:
		return IconOK
	}
}

func urlIcon(s model.URLStatus) string {
	switch s {
	case model.URLMalicious:
		return IconFail
	case model.URLCaution:
		return IconWarning
	default:
		return IconOK
	}
}

func ageIcon(v *model.Verdict) string {
	if v.DomainAgeYears == nil || *v.DomainAgeYears < classifier.NewDomainYears {
		return IconWarning
	}
	return IconOK
}

// JSON writes one JSON object per verdict.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// Scanning writes nothing; consumers of the stream only see verdicts.
func (j *JSON) Scanning(string) {}

func (j *JSON) Present(v *model.Verdict) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(v)
}
