package heuristics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raysh454/mailtrust/internal/heuristics"
	"github.com/raysh454/mailtrust/internal/model"
)

func link(text, href string) model.Element {
	return model.Element{Tag: "a", Text: text, Href: href, Style: model.DefaultStyle()}
}

func img(src string, rendered, intrinsic *model.Size) model.Element {
	return model.Element{Tag: "img", Src: src, Style: model.DefaultStyle(), Rendered: rendered, Intrinsic: intrinsic}
}

func text(tag, body string, mutate func(*model.ComputedStyle)) model.Element {
	st := model.DefaultStyle()
	if mutate != nil {
		mutate(&st)
	}
	return model.Element{Tag: tag, Text: body, Style: st}
}

func scan(els ...model.Element) model.ContentHeuristicResult {
	return heuristics.NewScanner(heuristics.Config{}, nil).Scan(&model.Document{Elements: els})
}

func TestScan_NilDocument(t *testing.T) {
	t.Parallel()
	assert.Equal(t, model.NoFinding(), heuristics.NewScanner(heuristics.Config{}, nil).Scan(nil))
}

func TestScan_CleanDocument(t *testing.T) {
	t.Parallel()
	got := scan(
		link("Click here", "https://evil.example/login"),
		link("https://paypal.com", "https://www.paypal.com/signin"),
		img("https://cdn.example/logo.png", &model.Size{Width: 120, Height: 40}, &model.Size{Width: 240, Height: 80}),
		text("p", "Hello there", nil),
	)
	assert.Equal(t, model.NoFinding(), got)
}

// ─── Deceptive link ────────────────────────────────────────────────────

func TestScan_DeceptiveLink(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		el       model.Element
		detected bool
	}{
		{"text url differs from target", link("https://paypal.com/login", "https://paypa1-secure.example/login"), true},
		{"www text differs", link("www.paypal.com", "http://attacker.example"), true},
		{"target is subdomain of text", link("https://example.com", "https://login.example.com/x"), false},
		{"same domain with www", link("www.example.com", "https://example.com"), false},
		{"trusted tracker target", link("https://shop.example", "https://u123.ct.sendgrid.net/ls/click?x=1"), false},
		{"non-domain text", link("Sign in", "https://attacker.example"), false},
		{"unparsable target", link("https://example.com", "::not a url"), false},
		{"bare domain text is not compared", link("paypal.com", "http://attacker.example"), false},
		{"dotted product name", link("Node.js", "https://nodejs.org/en"), false},
		{"file name", link("invoice.pdf", "https://files.dropbox.com/s/abc/invoice.pdf"), false},
		{"framework name", link("ASP.NET", "https://dotnet.microsoft.com/apps/aspnet"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scan(tt.el)
			if tt.detected {
				assert.Equal(t, model.Finding(model.ReasonDeceptiveLink, model.SeverityDanger), got)
			} else {
				assert.False(t, got.Detected)
			}
		})
	}
}

// ─── Tracking pixel ────────────────────────────────────────────────────

func TestScan_TrackingPixel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		el       model.Element
		detected bool
	}{
		{"rendered 1x1", img("https://track.example/p.gif", &model.Size{Width: 1, Height: 1}, nil), true},
		{"rendered 0x0", img("https://track.example/p.gif", &model.Size{}, nil), true},
		{"intrinsic 1x1 rendered larger", img("https://track.example/p.gif", &model.Size{Width: 20, Height: 20}, &model.Size{Width: 1, Height: 1}), true},
		{"rendered 1x10 is not a pixel", img("https://track.example/p.gif", &model.Size{Width: 1, Height: 10}, nil), false},
		{"unknown size", img("https://track.example/p.gif", nil, nil), false},
		{"trusted tracker", img("https://open.mailchimp.com/p.gif", &model.Size{Width: 1, Height: 1}, nil), false},
		{"relative source is untrusted", img("/p.gif", &model.Size{Width: 1, Height: 1}, nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scan(tt.el)
			if tt.detected {
				assert.Equal(t, model.Finding(model.ReasonTrackingPixel, model.SeverityInfo), got)
			} else {
				assert.False(t, got.Detected)
			}
		})
	}
}

// ─── Invisible text ────────────────────────────────────────────────────

func TestScan_InvisibleText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		el       model.Element
		detected bool
	}{
		{"font size 1", text("span", "hidden words", func(s *model.ComputedStyle) { s.FontSizePx = 1 }), true},
		{"font size 1.9 truncates to 1", text("div", "hidden words", func(s *model.ComputedStyle) { s.FontSizePx = 1.9 }), true},
		{"font size 2", text("div", "tiny words", func(s *model.ComputedStyle) { s.FontSizePx = 2 }), false},
		{"zero opacity", text("p", "ghost", func(s *model.ComputedStyle) { s.Opacity = 0 }), true},
		{"hidden visibility", text("p", "ghost", func(s *model.ComputedStyle) { s.Visibility = "hidden" }), true},
		{"whitespace only", text("p", "  \n ", func(s *model.ComputedStyle) { s.Opacity = 0 }), false},
		{"other tag ignored", text("td", "ghost", func(s *model.ComputedStyle) { s.Opacity = 0 }), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scan(tt.el)
			if tt.detected {
				assert.Equal(t, model.Finding(model.ReasonInvisibleText, model.SeverityDanger), got)
			} else {
				assert.False(t, got.Detected)
			}
		})
	}
}

// ─── Priority ──────────────────────────────────────────────────────────

func TestScan_PriorityDeceptiveLinkBeatsPixel(t *testing.T) {
	t.Parallel()
	got := scan(
		img("https://track.example/p.gif", &model.Size{Width: 1, Height: 1}, nil),
		text("span", "ghost", func(s *model.ComputedStyle) { s.Opacity = 0 }),
		link("https://bank.example", "https://attacker.example"),
	)
	assert.Equal(t, model.Finding(model.ReasonDeceptiveLink, model.SeverityDanger), got)
}

func TestScan_PriorityPixelBeatsInvisibleText(t *testing.T) {
	t.Parallel()
	got := scan(
		text("span", "ghost", func(s *model.ComputedStyle) { s.Opacity = 0 }),
		img("https://track.example/p.gif", &model.Size{Width: 1, Height: 1}, nil),
	)
	assert.Equal(t, model.Finding(model.ReasonTrackingPixel, model.SeverityInfo), got)
}

// ─── Allowlist ─────────────────────────────────────────────────────────

func TestScan_DocumentAllowlistReplacesDefault(t *testing.T) {
	t.Parallel()
	s := heuristics.NewScanner(heuristics.Config{}, nil)
	doc := &model.Document{
		TrustedTrackers: []string{"mytracker.example"},
		Elements: []model.Element{
			img("https://pixel.mytracker.example/o.gif", &model.Size{Width: 1, Height: 1}, nil),
		},
	}
	assert.False(t, s.Scan(doc).Detected)

	doc.Elements = []model.Element{img("https://open.mailchimp.com/p.gif", &model.Size{Width: 1, Height: 1}, nil)}
	assert.True(t, s.Scan(doc).Detected, "default list no longer applies")
}

func TestScan_ExtraTrackersExtendAllowlist(t *testing.T) {
	t.Parallel()
	s := heuristics.NewScanner(heuristics.Config{ExtraTrustedTrackers: []string{"Links.Corp.Example"}}, nil)
	doc := &model.Document{Elements: []model.Element{
		link("https://partner.example", "https://t.links.corp.example/c/123"),
	}}
	assert.False(t, s.Scan(doc).Detected)

	plain := heuristics.NewScanner(heuristics.Config{}, nil)
	assert.True(t, plain.Scan(doc).Detected)
}
