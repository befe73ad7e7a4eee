package notifications

import (
	"fmt"
	"os"
	"runtime"
)

// TerminalChannel flashes the process's own terminal title via an ANSI
// OSC escape sequence. Only meaningful when stdout is an attached
// terminal, checked fresh on every send since a long-running process
// may be reattached or redirected between blockers.
type TerminalChannel struct{}

// NewTerminalChannel builds a terminal-title channel.
func NewTerminalChannel() *TerminalChannel {
	return &TerminalChannel{}
}

func (t *TerminalChannel) Name() string { return "terminal" }

func (t *TerminalChannel) ShouldNotify(n Notification) bool {
	return isTerminal() && supportsTitleEscape()
}

func (t *TerminalChannel) Send(n Notification) error {
	if !isTerminal() {
		return fmt.Errorf("stdout is not attached to a terminal")
	}
	if !supportsTitleEscape() {
		return fmt.Errorf("terminal title manipulation not supported on %s", runtime.GOOS)
	}
	title := fmt.Sprintf("CodeFRAME blocked: %s", n.Question)
	fmt.Printf("\033]0;%s\007", title)
	return nil
}

func supportsTitleEscape() bool {
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		return true
	default:
		return false
	}
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
