package log

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dang/internal/logging"
)

func TestSetupOnce(t *testing.T) {
	dir := t.TempDir()
	first := Setup(logging.Options{ToFile: true, Dir: dir})
	require.NotNil(t, first)
	assert.True(t, Initialized())

	second := Setup(logging.Options{Level: "debug"})
	assert.Same(t, first, second)
	assert.NotNil(t, slog.Default())
}

func TestRecoverPanic(t *testing.T) {
	cleaned := false
	func() {
		defer RecoverPanic("test", func() { cleaned = true })
		panic("boom")
	}()
	assert.True(t, cleaned)
}
