package model

import "strings"

// Snapshot is a read-only view of the currently displayed message.
type Snapshot struct {
	// SenderIdentity is the sender in local@domain form; empty when not located.
	SenderIdentity string `json:"sender_identity"`

	// Body is nil when the message body is unavailable.
	Body *Document `json:"body,omitempty"`

	// Links are the body's hyperlinks: absolute, http-prefixed, deduplicated.
	Links []string `json:"links"`
}

// Domain returns the substring after the last '@' of the sender identity.
func (s *Snapshot) Domain() string {
	return SenderDomain(s.SenderIdentity)
}

// SenderDomain returns the substring after the last '@'.
func SenderDomain(identity string) string {
	return identity[strings.LastIndex(identity, "@")+1:]
}

// Document is the message body's element tree flattened in document order,
// each element carrying its computed style and geometry.
type Document struct {
	Elements []Element `json:"elements"`

	// TrustedTrackers is the resolved allowlist of tracking-service domains.
	// Empty means the scanner's default list applies.
	TrustedTrackers []string `json:"trusted_trackers,omitempty"`
}

// Element is one node of the body snapshot.
type Element struct {
	Tag   string        `json:"tag"`
	Text  string        `json:"text"`
	Href  string        `json:"href,omitempty"`
	Src   string        `json:"src,omitempty"`
	Style ComputedStyle `json:"style"`

	// Rendered and Intrinsic are nil when the size is unknown.
	Rendered  *Size `json:"rendered,omitempty"`
	Intrinsic *Size `json:"intrinsic,omitempty"`
}

// ComputedStyle holds the few style properties the content heuristics read.
type ComputedStyle struct {
	FontSizePx float64 `json:"font_size_px"`
	Opacity    float64 `json:"opacity"`
	Visibility string  `json:"visibility"`
}

// DefaultStyle is the computed style of an unstyled element.
func DefaultStyle() ComputedStyle {
	return ComputedStyle{FontSizePx: 16, Opacity: 1, Visibility: "visible"}
}

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
