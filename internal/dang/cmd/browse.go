package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"dang/internal/dang/styles"
	"dang/internal/elfx"
	"dang/internal/replay"
	"dang/internal/signals"
	"dang/internal/ui/colorize"
)

var browseCmd = &cobra.Command{
	Use:   "browse [waveform]",
	Short: "Step through a replay in the terminal",
	Long: `Open an interactive view of the replay: disassembly around the pc on the
left, registers on the right. Registers written by the last step are
highlighted. Step forward and backward, set breakpoints and run to them, or
jump to a function from the symbol list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	addInputFlags(browseCmd)
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd, args)
	if err != nil {
		return err
	}
	s, err := openSession(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	program := tea.NewProgram(
		newBrowseModel(s.waver, s.image.Syms),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	if _, err := program.Run(); err != nil {
		slog.Error("TUI run error", "error", err)
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

type viewMode int

const (
	viewTrace viewMode = iota
	viewSymbols
)

type symbolItem struct {
	sym elfx.Symbol
}

func (i symbolItem) FilterValue() string { return i.sym.String() }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(symbolItem)
	if !ok {
		return
	}
	indicator, addrStyle := " ", styles.Muted
	if index == m.Index() {
		indicator, addrStyle = ">", styles.Current
	}
	fmt.Fprintf(w, " %s  %s  %s", indicator, addrStyle.Render(fmt.Sprintf("%08x", i.sym.Addr)), i.sym)
}

// registerWidth is the width of the register column.
const registerWidth = 22

type browseModel struct {
	w           *replay.Waver
	code        viewport.Model
	symbolsList list.Model
	mode        viewMode
	prev        replay.Registers
	status      string
	width       int
	height      int
}

func newBrowseModel(w *replay.Waver, syms []elfx.Symbol) browseModel {
	vp := viewport.New()
	vp.SetWidth(80 - registerWidth)
	vp.SetHeight(22)

	var items []list.Item
	for _, s := range syms {
		if s.Func {
			items = append(items, symbolItem{sym: s})
		}
	}
	symbolsList := list.New(items, itemDelegate{}, 80, 22)
	symbolsList.SetShowStatusBar(false)
	symbolsList.SetFilteringEnabled(true)
	symbolsList.Title = "Functions"
	symbolsList.Styles.Title = styles.Header.MarginLeft(2)

	m := browseModel{
		w:           w,
		code:        vp,
		symbolsList: symbolsList,
		prev:        w.Registers(),
		width:       80,
		height:      24,
	}
	m.refresh()
	return m
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.code.SetWidth(max(20, msg.Width-registerWidth))
		m.code.SetHeight(max(1, msg.Height-2))
		m.symbolsList.SetWidth(msg.Width)
		m.symbolsList.SetHeight(max(1, msg.Height-2))
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.mode == viewSymbols && m.symbolsList.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		if handled, cmd := m.handleKey(msg.String()); handled {
			return m, cmd
		}
	}

	if m.mode == viewSymbols {
		m.symbolsList, cmd = m.symbolsList.Update(msg)
	} else {
		m.code, cmd = m.code.Update(msg)
	}
	return m, cmd
}

// handleKey applies one key press. It reports false for keys the active
// view's component should receive.
func (m *browseModel) handleKey(key string) (bool, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		return true, tea.Quit
	case "tab":
		if m.mode == viewTrace {
			m.mode = viewSymbols
		} else {
			m.mode = viewTrace
		}
		return true, nil
	}

	if m.mode == viewSymbols {
		switch key {
		case "esc":
			m.mode = viewTrace
			return true, nil
		case "enter":
			if item, ok := m.symbolsList.SelectedItem().(symbolItem); ok {
				m.mode = viewTrace
				m.runTo(item.sym.Addr)
			}
			return true, nil
		}
		return false, nil
	}

	switch key {
	case "n", "s", "right":
		m.move(replay.ModeStep{})
	case "p", "b", "left":
		m.move(replay.ModeReverseStep{})
	case "c":
		m.move(replay.ModeContinue{})
	case "C":
		m.move(replay.ModeReverseContinue{})
	case " ", "space":
		pc := m.w.PC()
		if m.w.RemoveBreakpoint(pc) {
			m.status = fmt.Sprintf("breakpoint removed at 0x%08x", pc)
		} else {
			m.w.AddBreakpoint(pc)
			m.status = fmt.Sprintf("breakpoint set at 0x%08x", pc)
		}
		m.refresh()
	case "r":
		m.prev = m.w.Registers()
		m.w.Reset()
		m.status = "reset to first instruction"
		m.refresh()
	default:
		return false, nil
	}
	return true, nil
}

// move runs the replay in mode and records why it stopped.
func (m *browseModel) move(mode replay.ExecMode) {
	m.prev = m.w.Registers()
	m.w.SetMode(mode)
	ev := m.w.Run(func() bool { return false })
	switch ev.Event {
	case replay.EventHalted:
		m.status = "end of recording"
	case replay.EventHistoryBegin:
		m.status = "start of recording"
	case replay.EventBreak:
		m.status = fmt.Sprintf("breakpoint at 0x%08x", m.w.PC())
	default:
		m.status = ""
	}
	m.refresh()
}

// runTo continues to addr with a temporary breakpoint.
func (m *browseModel) runTo(addr uint32) {
	had := m.w.RemoveBreakpoint(addr)
	m.w.AddBreakpoint(addr)
	m.move(replay.ModeContinue{})
	if !had {
		m.w.RemoveBreakpoint(addr)
	}
}

func (m *browseModel) refresh() {
	m.code.SetContent(m.listing(max(1, m.code.Height())))
}

// listing disassembles from the start of the current function when the pc
// is near it, else from the pc.
func (m *browseModel) listing(lines int) string {
	pc := m.w.PC()
	start := pc
	if sym, ok := m.w.SymbolAt(pc); ok && pc-sym.Addr <= 4*uint32(lines/2) {
		start = sym.Addr
	}
	bps := make(map[uint32]bool)
	for _, a := range m.w.Breakpoints() {
		bps[a] = true
	}

	var sb strings.Builder
	for _, inst := range m.w.Disassemble(start, lines) {
		marker := "  "
		switch {
		case inst.VA == pc && bps[inst.VA]:
			marker = "●>"
		case inst.VA == pc:
			marker = " >"
		case bps[inst.VA]:
			marker = "● "
		}
		line := colorize.InstructionLine(m.w.Describe(inst))
		if inst.VA == pc && colorize.Enabled() {
			marker = styles.Current.Render(marker)
		}
		sb.WriteString(marker + " " + line + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m browseModel) registers() string {
	cur := m.w.Registers()
	var sb strings.Builder
	for i := 0; i < replay.NumGPRs; i++ {
		value := "--------"
		if cur.Known[i] {
			value = fmt.Sprintf("%08x", cur.Values[i])
		}
		line := fmt.Sprintf("%-4s %s", signals.GPRName(i), value)
		if cur.Known[i] && (!m.prev.Known[i] || m.prev.Values[i] != cur.Values[i]) {
			line = styles.Changed.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	fmt.Fprintf(&sb, "%-4s %08x", "pc", cur.Values[replay.NumGPRs])
	return sb.String()
}

func (m browseModel) header() string {
	c := m.w.Cursor()
	title := styles.Title.Render("dang")
	info := fmt.Sprintf(" step %d  time %d  idx %d  %d left", c.Step, c.Time, c.Idx, m.w.Remaining())
	if m.status != "" {
		info += "  " + styles.Symbol.Render(m.status)
	}
	return title + info
}

func (m browseModel) View() string {
	var body string
	var menu string
	switch m.mode {
	case viewSymbols:
		body = m.symbolsList.View()
		menu = " Enter: run to function • /: filter • Esc/Tab: trace • Q: quit "
	default:
		regs := lipgloss.NewStyle().Width(registerWidth).PaddingLeft(2).Render(m.registers())
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.code.View(), regs)
		menu = " N: step • P: back • C/Shift+C: continue/reverse • Space: breakpoint • R: reset • Tab: functions • Q: quit "
	}
	return m.header() + "\n" + body + "\n" + styles.Menu.Width(m.width).Render(menu)
}
