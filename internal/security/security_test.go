package security

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	s := NewInputSanitizer(SanitizerConfig{Enabled: true, MaxStringLength: 20})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Smith J", "Smith J"},
		{"inline markup", "<i>C. elegans</i> locomotion", "C. elegans locomotion"},
		{"entities kept as text", "A &amp; B", "A & B"},
		{"whitespace collapsed", "  a \n\t b  ", "a b"},
		{"control chars", "a\x00b\x07c", "abc"},
		{"script dropped", "<script>alert(1)</script>ok", "ok"},
		{"truncated", "0123456789abcdefghijXYZ", "0123456789abcdefghij"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SanitizeString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeStrictMode(t *testing.T) {
	s := NewInputSanitizer(SanitizerConfig{Enabled: true, MaxStringLength: 3, StrictMode: true})
	_, err := s.SanitizeString("abcd")
	assert.Error(t, err)

	_, err = s.SanitizeString("a\xffb")
	assert.Error(t, err)
}

func TestSanitizeDisabled(t *testing.T) {
	s := NewInputSanitizer(SanitizerConfig{Enabled: false})
	got, err := s.SanitizeString("<b>x</b>")
	require.NoError(t, err)
	assert.Equal(t, "<b>x</b>", got)
}

func TestSanitizeStringsAndURL(t *testing.T) {
	s := NewInputSanitizer(SanitizerConfig{Enabled: true})

	got, err := s.SanitizeStrings([]string{"a", "  ", "<b></b>", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	u, err := s.SanitizeURL(" https://doi.org/10.1/x ")
	require.NoError(t, err)
	assert.Equal(t, "https://doi.org/10.1/x", u)

	_, err = s.SanitizeURL("javascript:alert(1)")
	assert.Error(t, err)
	_, err = s.SanitizeURL("/relative")
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Enabled:             true,
		RequestsPerSecond:   1000,
		BurstSize:           1000,
		IPLimitEnabled:      true,
		IPRequestsPerSecond: 0.001,
		IPBurstSize:         1,
	})
	defer rl.Stop()

	req := httptest.NewRequest("GET", "/api/v1/documents", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	_, ok := rl.Check(req)
	assert.True(t, ok)
	reason, ok := rl.Check(req)
	assert.False(t, ok)
	assert.Equal(t, "IP rate limit exceeded", reason)

	other := httptest.NewRequest("GET", "/api/v1/documents", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.9")
	assert.Equal(t, "10.0.0.2", ClientIP(other))
	_, ok = rl.Check(other)
	assert.True(t, ok)

	stats := rl.GetStats()
	assert.Equal(t, 2, stats["ip_limiters_count"])
}

func TestOutboundLimiter(t *testing.T) {
	ol := NewOutboundLimiter(map[string]float64{"pubmed": 1, "free": 0}, 0, 1)
	ctx := context.Background()

	require.NoError(t, ol.Wait(ctx, "free"))
	require.NoError(t, ol.Wait(ctx, "other"))
	require.NoError(t, ol.Wait(ctx, "pubmed"))

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, ol.Wait(short, "pubmed"))

	var nilLimiter *OutboundLimiter
	assert.NoError(t, nilLimiter.Wait(ctx, "x"))
}
