package render

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Console is the process terminal prepared for the dashboard
type Console struct {
	Input   io.Reader
	Options TerminalOptions

	fd    int
	state *term.State
}

// UseColor resolves a color mode (auto, always, never) for a stdout that
// is or is not a terminal
func UseColor(mode string, isTerminal bool) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal && !color.NoColor
	}
}

// OpenConsole inspects stdin and stdout. Key input and raw mode are only
// used when stdin is a terminal; otherwise the dashboard just draws.
func OpenConsole(colorMode string) (*Console, error) {
	outFD := int(os.Stdout.Fd())
	outIsTerminal := term.IsTerminal(outFD)

	console := &Console{
		fd: int(os.Stdin.Fd()),
		Options: TerminalOptions{
			Color: UseColor(colorMode, outIsTerminal),
			Clear: outIsTerminal,
		},
	}

	if outIsTerminal {
		if width, _, err := term.GetSize(outFD); err == nil {
			console.Options.Width = width
		}
	}

	if !term.IsTerminal(console.fd) {
		return console, nil
	}

	state, err := term.MakeRaw(console.fd)
	if err != nil {
		return nil, err
	}
	console.state = state
	console.Input = os.Stdin
	console.Options.Raw = true
	return console, nil
}

// Close restores the terminal mode changed by OpenConsole
func (c *Console) Close() error {
	if c.state == nil {
		return nil
	}
	state := c.state
	c.state = nil
	return term.Restore(c.fd, state)
}
