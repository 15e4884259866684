package util

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether fd is attached to a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ShowProgress reports whether the scan and extraction progress bars are
// drawn: stdout must be a terminal and --quiet must be off.
func ShowProgress() bool {
	return IsTerminal(os.Stdout.Fd()) && !IsQuiet()
}

// ProgressBarWidth sizes a progress bar to a third of the terminal,
// between 20 and 60 columns. Without a terminal 80 columns are assumed.
func ProgressBarWidth() int {
	cols, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		cols = 80
	}
	return barWidth(cols)
}

func barWidth(cols int) int {
	return min(max(cols/3, 20), 60)
}
