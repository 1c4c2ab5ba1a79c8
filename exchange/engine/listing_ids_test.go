package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeGeneratorFormat(t *testing.T) {
	g := NewCodeGenerator()

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	for _, r := range code {
		assert.True(t, (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7'),
			"unexpected character %q in code %s", r, code)
	}
}

func TestCodeGeneratorUniqueness(t *testing.T) {
	g := NewCodeGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
