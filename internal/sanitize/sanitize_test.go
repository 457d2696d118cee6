package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "spent 45 on tacos", "spent 45 on tacos"},
		{"tags stripped", "<b>spent</b> 45 <script>alert(1)</script>", "spent 45"},
		{"attributes stripped", `<a href="javascript:x()">link</a>`, "link"},
		{"entities kept readable", "rent & utilities", "rent & utilities"},
		{"trimmed", "  hola  ", "hola"},
		{"entity-encoded tags stripped", "&lt;script&gt;alert(1)&lt;/script&gt;tacos", "tacos"},
		{"entity-encoded markup stripped", "&lt;b onclick=x()&gt;rent&lt;/b&gt;", "rent"},
		{"double-encoded tags stripped", "&amp;lt;img src=x onerror=alert(1)&amp;gt;coffee", "coffee"},
		{"bare angle brackets kept", "a < b", "a < b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Input(tt.in))
		})
	}
}

func TestInput_Truncates(t *testing.T) {
	long := strings.Repeat("ñ", MaxChatLength+50)
	got := Input(long)
	assert.Equal(t, MaxChatLength, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestEmail(t *testing.T) {
	got, err := Email("  Friend@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "friend@example.com", got)

	got, err = Email("<b>a@b.co</b>")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", got)

	got, err = Email("&lt;b&gt;a@b.co&lt;/b&gt;")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", got)

	for _, bad := range []string{"", "no-at.example.com", "a@b", "a b@c.com", "@c.com"} {
		_, err := Email(bad)
		assert.ErrorIs(t, err, ErrInvalidEmail, bad)
	}
}
