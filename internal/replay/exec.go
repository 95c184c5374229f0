package replay

import "fmt"

// Event is why a step or run stopped.
type Event int

const (
	EventDoneStep Event = iota
	EventHalted
	EventBreak
	EventHistoryBegin
)

func (e Event) String() string {
	switch e {
	case EventDoneStep:
		return "step"
	case EventHalted:
		return "halted"
	case EventBreak:
		return "breakpoint"
	case EventHistoryBegin:
		return "history-begin"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// ExecMode is how Run resumes: ModeStep, ModeContinue, ModeRangeStep,
// ModeReverseStep or ModeReverseContinue.
type ExecMode interface {
	isExecMode()
}

type (
	ModeStep     struct{}
	ModeContinue struct{}
	// ModeRangeStep steps while pc stays within [Start, End).
	ModeRangeStep struct {
		Start, End uint32
	}
	ModeReverseStep     struct{}
	ModeReverseContinue struct{}
)

func (ModeStep) isExecMode()            {}
func (ModeContinue) isExecMode()        {}
func (ModeRangeStep) isExecMode()       {}
func (ModeReverseStep) isExecMode()     {}
func (ModeReverseContinue) isExecMode() {}

// RunEvent is the outcome of Run: either a stop Event or, with IncomingData
// set, an interruption because the debugger has something to say.
type RunEvent struct {
	Event        Event
	IncomingData bool
}

func (w *Waver) SetMode(m ExecMode) { w.mode = m }

func (w *Waver) Mode() ExecMode { return w.mode }

// Run resumes in the current mode. Continuing modes call poll every
// PollInterval steps and stop early when it returns true.
func (w *Waver) Run(poll func() bool) RunEvent {
	switch m := w.mode.(type) {
	case ModeStep:
		return RunEvent{Event: w.Step()}
	case ModeReverseStep:
		return RunEvent{Event: w.ReverseStep()}
	case ModeContinue:
		return w.run(w.Step, nil, poll)
	case ModeReverseContinue:
		return w.run(w.ReverseStep, nil, poll)
	case ModeRangeStep:
		inRange := func(pc uint32) bool { return pc >= m.Start && pc < m.End }
		return w.run(w.Step, inRange, poll)
	default:
		panic(fmt.Sprintf("replay: unknown exec mode %T", m))
	}
}

func (w *Waver) run(step func() Event, keepGoing func(uint32) bool, poll func() bool) RunEvent {
	for n := 1; ; n++ {
		if ev := step(); ev != EventDoneStep {
			return RunEvent{Event: ev}
		}
		if keepGoing != nil && !keepGoing(w.PC()) {
			return RunEvent{Event: EventDoneStep}
		}
		if poll != nil && n%w.pollInterval == 0 && poll() {
			return RunEvent{IncomingData: true}
		}
	}
}
