package terminal

import (
	"fmt"
	"time"
)

// StepKind identifies what one script step does.
type StepKind string

const (
	// StepWrite writes literal bytes to the controller side of the terminal.
	StepWrite StepKind = "write"
	// StepWait accumulates output until the step's window elapses.
	StepWait StepKind = "wait"
)

// Keystrokes understood by the interactive CLI.
const (
	KeyEnter  = "\r"
	KeyEscape = "\x1b"
)

const (
	// UsageCommand opens the usage panel.
	UsageCommand = "/usage"
	// ExitCommand asks the CLI to quit.
	ExitCommand = "/exit"
)

const (
	// StartupWait lets the CLI draw its first screen before any input.
	StartupWait = 5 * time.Second
	// KeystrokeWait separates keystrokes so the UI can react to each one.
	KeystrokeWait = 300 * time.Millisecond
	// UsageLoadWait covers the usage panel fetching and rendering its numbers.
	UsageLoadWait = 8 * time.Second
	// ExitWait gives /exit time to take effect before teardown.
	ExitWait = 1 * time.Second
)

// Step is one scripted action against the terminal.
type Step struct {
	Kind   StepKind
	Input  string
	Window time.Duration
}

// Write returns a step that sends input to the terminal.
func Write(input string) Step {
	return Step{Kind: StepWrite, Input: input}
}

// Wait returns a step that collects output for up to window.
func Wait(window time.Duration) Step {
	return Step{Kind: StepWait, Window: window}
}

func (s Step) String() string {
	switch s.Kind {
	case StepWrite:
		return fmt.Sprintf("write %q", s.Input)
	case StepWait:
		return fmt.Sprintf("wait %s", s.Window)
	default:
		return fmt.Sprintf("unknown step %q", string(s.Kind))
	}
}

// DefaultScript opens the usage panel, lets it load, then backs out and exits.
// Force-termination follows the last step as part of session teardown.
func DefaultScript() []Step {
	return []Step{
		Wait(StartupWait),
		Write(UsageCommand + KeyEnter),
		Wait(KeystrokeWait),
		Write(KeyEnter),
		Wait(UsageLoadWait),
		Write(KeyEscape),
		Wait(KeystrokeWait),
		Write(ExitCommand + KeyEnter),
		Wait(ExitWait),
	}
}

// TotalWait is the upper bound a script spends collecting output.
func TotalWait(script []Step) time.Duration {
	var total time.Duration
	for _, step := range script {
		if step.Kind == StepWait && step.Window > 0 {
			total += step.Window
		}
	}
	return total
}
