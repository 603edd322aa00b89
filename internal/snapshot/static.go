package snapshot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// Static computes styles from inline style attributes only, inheriting
// font-size and visibility down the tree. Image geometry comes from width and
// height attributes or inline pixel sizes; intrinsic size is never known.
type Static struct {
	trackers []string
	logger   logging.Logger
}

func NewStatic(cfg Config, logger logging.Logger) *Static {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Static{
		trackers: cfg.TrustedTrackers,
		logger:   logger.With(logging.Field{Key: "component", Value: "static_renderer"}),
	}
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true, "head": true}

func (s *Static) Render(ctx context.Context, body string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}

	out := &model.Document{TrustedTrackers: s.trackers}
	var walk func(sel *goquery.Selection, parent model.ComputedStyle)
	walk = func(sel *goquery.Selection, parent model.ComputedStyle) {
		sel.Children().Each(func(_ int, c *goquery.Selection) {
			tag := goquery.NodeName(c)
			if skipTags[tag] {
				return
			}
			decl := parseDeclarations(c.AttrOr("style", ""))
			style := computeStyle(parent, decl)

			el := model.Element{Tag: tag, Text: c.Text(), Style: style}
			switch tag {
			case "a":
				el.Href = strings.TrimSpace(c.AttrOr("href", ""))
			case "img":
				el.Src = strings.TrimSpace(c.AttrOr("src", ""))
				el.Rendered = imageSize(c, decl)
			}
			out.Elements = append(out.Elements, el)

			// opacity is not inherited
			inherited := style
			inherited.Opacity = 1
			walk(c, inherited)
		})
	}
	walk(doc.Find("body"), model.DefaultStyle())

	s.logger.Debug("rendered body", logging.Field{Key: "elements", Value: len(out.Elements)})
	return out, nil
}

func (s *Static) Close() error { return nil }

// BaseURL returns the href of the body's <base> element, if any.
func BaseURL(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("base[href]").First().AttrOr("href", ""))
}

// parseDeclarations splits an inline style attribute into lower-cased
// property/value pairs. Later declarations win.
func parseDeclarations(style string) map[string]string {
	decl := make(map[string]string)
	for _, part := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		decl[strings.ToLower(strings.TrimSpace(prop))] = strings.ToLower(val)
	}
	return decl
}

func computeStyle(parent model.ComputedStyle, decl map[string]string) model.ComputedStyle {
	st := parent
	if v, ok := decl["font-size"]; ok {
		if px, ok := fontSizePx(v, parent.FontSizePx); ok {
			st.FontSizePx = px
		}
	}
	if v, ok := decl["opacity"]; ok {
		if o, ok := parseOpacity(v); ok {
			st.Opacity = o
		}
	}
	if v, ok := decl["visibility"]; ok {
		switch v {
		case "hidden", "collapse", "visible":
			st.Visibility = v
		}
	}
	return st
}

var fontKeywords = map[string]float64{
	"xx-small": 9, "x-small": 10, "small": 13, "medium": 16,
	"large": 18, "x-large": 24, "xx-large": 32, "xxx-large": 48,
}

func fontSizePx(v string, parent float64) (float64, bool) {
	if px, ok := fontKeywords[v]; ok {
		return px, true
	}
	switch v {
	case "smaller":
		return parent / 1.2, true
	case "larger":
		return parent * 1.2, true
	}
	units := []struct {
		suffix string
		scale  func(n float64) float64
	}{
		{"px", func(n float64) float64 { return n }},
		{"pt", func(n float64) float64 { return n * 4 / 3 }},
		{"rem", func(n float64) float64 { return n * 16 }},
		{"em", func(n float64) float64 { return n * parent }},
		{"%", func(n float64) float64 { return n * parent / 100 }},
	}
	for _, u := range units {
		if num, ok := strings.CutSuffix(v, u.suffix); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
			if err != nil || n < 0 {
				return 0, false
			}
			return u.scale(n), true
		}
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && n == 0 {
		return 0, true
	}
	return 0, false
}

func parseOpacity(v string) (float64, bool) {
	pct := strings.HasSuffix(v, "%")
	n, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil {
		return 0, false
	}
	if pct {
		n /= 100
	}
	return min(max(n, 0), 1), true
}

// imageSize reads the rendered size of an img. Inline pixel sizes win over
// attributes; display:none renders at 0x0. Both dimensions must be known.
func imageSize(c *goquery.Selection, decl map[string]string) *model.Size {
	if decl["display"] == "none" {
		return &model.Size{}
	}
	w, wok := dimension(decl["width"], c.AttrOr("width", ""))
	h, hok := dimension(decl["height"], c.AttrOr("height", ""))
	if !wok || !hok {
		return nil
	}
	return &model.Size{Width: w, Height: h}
}

func dimension(css, attr string) (float64, bool) {
	if num, ok := strings.CutSuffix(strings.TrimSpace(css), "px"); ok {
		if n, err := strconv.ParseFloat(num, 64); err == nil {
			return n, true
		}
	}
	if css == "0" {
		return 0, true
	}
	attr = strings.TrimSuffix(strings.TrimSpace(attr), "px")
	if attr == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(attr, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
