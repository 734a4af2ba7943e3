package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCode(t *testing.T) {
	code := NewCode()
	assert.True(t, strings.HasPrefix(code, "TRK-"))
	assert.Len(t, code, 12)
	assert.Equal(t, strings.ToUpper(code), code)

	// Practically unique across calls.
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		c := NewCode()
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

func TestNewReference(t *testing.T) {
	ref := NewReference("DEP")
	assert.True(t, strings.HasPrefix(ref, "DEP-"))
	assert.NotEqual(t, ref, NewReference("DEP"))
}
