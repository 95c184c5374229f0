package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownRenderer(t *testing.T) {
	for _, color := range []bool{true, false} {
		r, err := MarkdownRenderer(60, color)
		require.NoError(t, err)
		out, err := r.Render("# dang\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
		require.NoError(t, err)
		assert.Contains(t, out, "dang")
	}
}
