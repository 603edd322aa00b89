package present_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/mailtrust/internal/classifier"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/present"
)

func fixedClock() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

func classify(t *testing.T, r model.Report, f model.ContentHeuristicResult) *model.Verdict {
	t.Helper()
	v := classifier.New(classifier.WithClock(fixedClock)).Classify(r, f)
	return &v
}

func TestRender_Secure(t *testing.T) {
	t.Parallel()
	v := classify(t, model.Report{
		SPF: model.AuthPass, DMARC: model.AuthPass,
		Domain:     model.DomainAge{Year: 2010, Found: true},
		Reputation: model.ReputationSafe,
		TotalURLs:  4,
	}, model.NoFinding())

	out := present.Render(v)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "SECURE", lines[0])
	assert.Contains(t, out, "✔ SPF: PASS")
	assert.Contains(t, out, "✔ DMARC: PASS")
	assert.Contains(t, out, "✔ Hidden Content: OK")
	assert.Contains(t, out, "✔ Links (4): Safe")
	assert.Contains(t, out, "✔ Domain Age: 2010 (15 years old)")
}

func TestRender_Danger(t *testing.T) {
	t.Parallel()
	v := classify(t, model.Report{
		SPF: model.AuthFail, DMARC: model.AuthPass,
		Reputation:    model.ReputationSafe,
		ShortenedURLs: 1,
		TotalURLs:     2,
	}, model.Finding(model.ReasonDeceptiveLink, model.SeverityDanger))

	out := present.Render(v)
	assert.True(t, strings.HasPrefix(out, "DANGER\n"))
	assert.Contains(t, out, "✖ SPF: FAIL")
	assert.Contains(t, out, "✖ Hidden Content: Deceptive Link Found")
	assert.Contains(t, out, "⚠ Links (2): Caution")
	assert.Contains(t, out, "⚠ Domain Age: N/A")
}

func TestRender_YoungDomainWarns(t *testing.T) {
	t.Parallel()
	v := classify(t, model.Report{
		SPF: model.AuthPass, DMARC: model.AuthPass,
		Domain: model.DomainAge{Year: 2024, Found: true},
	}, model.Finding(model.ReasonTrackingPixel, model.SeverityInfo))

	out := present.Render(v)
	assert.True(t, strings.HasPrefix(out, "CAUTION\n"))
	assert.Contains(t, out, "⚠ Domain Age: 2024 (1 years old)")
	assert.Contains(t, out, "✔ Hidden Content: Tracking Pixel")
}

func TestRender_Error(t *testing.T) {
	t.Parallel()
	out := present.Render(model.ErrorVerdict("could not find sender email"))
	assert.Equal(t, "ERROR\n  ✖ could not find sender email\n", out)

	assert.Contains(t, present.Render(nil), "ERROR")
}

func TestText_ScanningThenVerdict(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := present.NewText(&buf).Labeled("inbox/1.eml")

	p.Scanning("run-1")
	p.Present(model.ErrorVerdict("boom"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[inbox/1.eml] Scanning...\n"))
	assert.Contains(t, out, "[inbox/1.eml] ERROR\n")
}

func TestJSON_OneLinePerVerdict(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := present.NewJSON(&buf)

	p.Scanning("ignored")
	p.Present(&model.Verdict{RunID: "a", Overall: model.OverallSecure})
	p.Present(model.ErrorVerdict("x"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first model.Verdict
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "a", first.RunID)
	assert.Equal(t, model.OverallSecure, first.Overall)

	var second model.Verdict
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "x", second.Error)
}
