package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Hello World", want: "hello-world"},
		{in: "  5 Ways to Automate Invoicing!  ", want: "5-ways-to-automate-invoicing"},
		{in: "Café Déjà Vu", want: "cafe-deja-vu"},
		{in: "RPA -- vs -- AI", want: "rpa-vs-ai"},
		{in: "---", want: ""},
		{in: "日本語 title", want: "title"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Make(tc.in))
		})
	}
}

func TestMakeTruncates(t *testing.T) {
	out := Make(strings.Repeat("abc ", 40))
	assert.LessOrEqual(t, len(out), maxLen)
	assert.False(t, strings.HasSuffix(out, "-"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("hello-world"))
	assert.False(t, Valid("Hello World"))
	assert.False(t, Valid(""))
}
