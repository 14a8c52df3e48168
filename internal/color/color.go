package color

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
)

// Enabled controls whether the helpers emit escape codes. It defaults to
// whether stderr, where the log package writes, is a terminal.
var Enabled = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func paint(code, s string) string {
	if !Enabled {
		return s
	}
	return fmt.Sprintf("%s%s%s", code, s, Reset)
}

func BlueString(s string) string {
	return paint(Blue, s)
}

func YellowString(s string) string {
	return paint(Yellow, s)
}

func GreenString(s string) string {
	return paint(Green, s)
}

func RedString(s string) string {
	return paint(Red, s)
}
