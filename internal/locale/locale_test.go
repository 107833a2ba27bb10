package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates the language-to-locale mapping used at registration and in settings.
// Scope: Unit Test
// Expected: nl maps to nl-BE, fr to fr-BE, everything else to en.
// Test Case ID: LOC-01
func TestLocale_Match(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nl", "nl-BE"},
		{"nl-NL", "nl-BE"},
		{"fr", "fr-BE"},
		{"fr-BE", "fr-BE"},
		{"en", "en"},
		{"en-US", "en"},
		{"ja", "en"},
		{"", "en"},
		{"not a tag!", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.in))
		})
	}
}

// TestPurpose: Validates request locale precedence.
// Scope: Unit Test
// Expected: Cookie beats profile, profile beats Accept-Language.
// Test Case ID: LOC-02
func TestLocale_Resolve(t *testing.T) {
	assert.Equal(t, "fr-BE", Resolve("fr", "nl-BE", "en-US"))
	assert.Equal(t, "nl-BE", Resolve("", "nl-BE", "fr"))
	assert.Equal(t, "fr-BE", Resolve("", "", "fr-CH, en;q=0.5"))
	assert.Equal(t, "en", Resolve("", "", ""))
}

func TestLocale_IsSupported(t *testing.T) {
	assert.True(t, IsSupported("nl-BE"))
	assert.False(t, IsSupported("nl"))
	assert.Len(t, Supported(), 3)
}
