package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		allow []string
		ok    bool
	}{
		{name: "empty", raw: "  "},
		{name: "unparseable", raw: "://bad"},
		{name: "no host", raw: "https:///path"},
		{name: "https", raw: "https://slack.com/oauth/v2/authorize", ok: true},
		{name: "plain http remote", raw: "http://slack.com/oauth"},
		{name: "plain http loopback", raw: "http://127.0.0.1:8765/callback", ok: true},
		{name: "localhost", raw: "http://localhost:9000/x", ok: true},
		{name: "javascript", raw: "javascript:alert(1)"},
		{name: "file", raw: "file:///etc/passwd"},
		{name: "allowlisted", raw: "https://slack.com/a", allow: []string{"slack.com"}, ok: true},
		{name: "allowlisted subdomain", raw: "https://api.slack.com/a", allow: []string{"slack.com"}, ok: true},
		{name: "lookalike", raw: "https://evilslack.com/a", allow: []string{"slack.com"}},
		{name: "loopback bypasses allowlist", raw: "http://127.0.0.1/a", allow: []string{"slack.com"}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(tt.raw, tt.allow)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsafeEndpoint)
			}
		})
	}
}
