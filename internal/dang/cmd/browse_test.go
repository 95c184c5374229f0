package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowser(t *testing.T) *browseModel {
	t.Helper()
	s := openFixture(t, fixture(t))
	m := newBrowseModel(s.waver, s.image.Syms)
	return &m
}

func TestBrowse_Stepping(t *testing.T) {
	m := newTestBrowser(t)

	handled, cmd := m.handleKey("n")
	require.True(t, handled)
	assert.Nil(t, cmd)
	assert.Equal(t, uint32(0x84), m.w.PC())

	m.handleKey("right")
	assert.Equal(t, uint32(0x88), m.w.PC())

	m.handleKey("p")
	assert.Equal(t, uint32(0x84), m.w.PC())

	m.handleKey("b")
	m.handleKey("left")
	assert.Equal(t, uint32(0x80), m.w.PC())
	assert.Equal(t, "start of recording", m.status)

	m.handleKey("c")
	assert.Equal(t, uint32(0x94), m.w.PC())
	assert.Equal(t, "end of recording", m.status)

	m.handleKey("r")
	assert.Equal(t, uint32(0x80), m.w.PC())
}

func TestBrowse_Breakpoints(t *testing.T) {
	m := newTestBrowser(t)
	m.handleKey("n")
	m.handleKey("n")
	m.handleKey(" ")
	assert.Equal(t, []uint32{0x88}, m.w.Breakpoints())
	assert.Contains(t, m.code.View(), "●>")

	m.handleKey("r")
	m.handleKey("c")
	assert.Equal(t, uint32(0x88), m.w.PC())
	assert.Equal(t, "breakpoint at 0x00000088", m.status)

	m.handleKey("space")
	assert.Empty(t, m.w.Breakpoints())
}

func TestBrowse_Registers(t *testing.T) {
	m := newTestBrowser(t)
	m.handleKey("n")
	regs := m.registers()
	assert.Contains(t, regs, "x1   00000001")
	assert.Contains(t, regs, "pc   00000084")
	assert.Equal(t, 33, len(strings.Split(regs, "\n")))
}

func TestBrowse_Symbols(t *testing.T) {
	m := newTestBrowser(t)

	m.handleKey("tab")
	assert.Equal(t, viewSymbols, m.mode)
	assert.Contains(t, m.View(), "_start")

	handled, _ := m.handleKey("j")
	assert.False(t, handled, "navigation goes to the list")

	m.handleKey("enter")
	assert.Equal(t, viewTrace, m.mode)
	assert.Equal(t, "end of recording", m.status, "_start is behind the cursor")
	assert.Empty(t, m.w.Breakpoints(), "temporary breakpoint is removed")

	m.handleKey("tab")
	m.handleKey("esc")
	assert.Equal(t, viewTrace, m.mode)
}

func TestBrowse_View(t *testing.T) {
	m := newTestBrowser(t)
	view := m.View()
	assert.Contains(t, view, "dang")
	assert.Contains(t, view, "step 0")
	assert.Contains(t, view, "0x00000080")

	_, cmd := m.handleKey("q")
	assert.NotNil(t, cmd)
}
