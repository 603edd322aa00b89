package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raysh454/mailtrust/internal/utils"
)

// ─── Hostname ──────────────────────────────────────────────────────────

func TestHostname(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://www.Example.com/path", "example.com", true},
		{"http://bit.ly/x", "bit.ly", true},
		{"http://notbit.ly/x", "notbit.ly", true},
		{"https://sub.www.example.com", "sub.www.example.com", true},
		{"http://example.com:8080/a", "example.com", true},
		{"example.com", "", false},
		{"/relative", "", false},
		{"http://%zz", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := utils.Hostname(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

// ─── DomainFromText ────────────────────────────────────────────────────

func TestDomainFromText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://www.paypal.com/signin", "paypal.com", true},
		{"  www.bank.co.uk/login ", "bank.co.uk", true},
		{"www.PayPal.com", "paypal.com", true},
		{"paypal.com", "", false},
		{"Node.js", "", false},
		{"invoice.pdf", "", false},
		{"ASP.NET", "", false},
		{"www.report.pdf", "", false},
		{"Click here", "", false},
		{"Download", "", false},
		{"v1.2", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := utils.DomainFromText(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "example.com", utils.NormalizeDomain(" Example.COM. "))
	assert.Equal(t, "xn--bcher-kva.example", utils.NormalizeDomain("bücher.example"))
	assert.Equal(t, "", utils.NormalizeDomain("  "))
}

func TestHasDomainSuffix(t *testing.T) {
	t.Parallel()
	trackers := []string{"sendgrid.net", "em.amazon.com"}
	assert.True(t, utils.HasDomainSuffix("u123.ct.sendgrid.net", trackers))
	assert.True(t, utils.HasDomainSuffix("em.amazon.com", trackers))
	assert.False(t, utils.HasDomainSuffix("amazon.com", trackers))
	assert.False(t, utils.HasDomainSuffix("evil.example", nil))
}

// ─── ResolveLinks ──────────────────────────────────────────────────────

func TestResolveLinks(t *testing.T) {
	t.Parallel()
	got := utils.ResolveLinks("https://mail.example/msg/1", []string{
		"https://a.example/x",
		"/inbox",
		"mailto:bob@example.com",
		"https://a.example/x",
		"",
		"tel:+100",
	})
	assert.Equal(t, []string{"https://a.example/x", "https://mail.example/inbox"}, got)
}

func TestResolveLinks_NoBaseDropsRelative(t *testing.T) {
	t.Parallel()
	got := utils.ResolveLinks("", []string{"/inbox", "http://b.example"})
	assert.Equal(t, []string{"http://b.example"}, got)
}
