package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jazz", "jazz"},
		{"Science Fiction", "science-fiction"},
		{"Sci-Fi/Fantasy", "sci-fi-fantasy"},
		{"Café Society", "cafe-society"},
		{"  --Rock (ID: 42)--  ", "rock-id-42"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "Free Jazz", Name("  Free \n\t <b>Jazz</b> "))
	assert.Equal(t, "", Name("   "))
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "plain text", Description("  plain text "))
	assert.Equal(t, "", Description(""))

	got := Description("<p>Born in <strong>New Orleans</strong>.</p>")
	assert.Equal(t, "Born in **New Orleans**.", got)
}
