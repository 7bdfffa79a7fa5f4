package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/courial/internal/client/otp"
	"golang.org/x/term"
)

// Terminal seams; tests replace them to avoid touching a real tty.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	makeRaw      = term.MakeRaw
	restoreTerm  = term.Restore
)

// ErrAborted is returned when the user leaves the code prompt.
var ErrAborted = errors.New("aborted")

// Key bytes understood by the code prompt.
const (
	keyCtrlC     = 0x03
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword prints prompt to w and reads a secret from the terminal
// without echo. A newline is printed after the read to keep the UI tidy.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// withRawTerminal puts fd into raw mode for the duration of fn when fd is
// a terminal. Otherwise fn runs as is.
func withRawTerminal(fd int, fn func() error) error {
	if fd < 0 || !isTerminal(fd) {
		return fn()
	}
	state, err := makeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer func() { _ = restoreTerm(fd, state) }()
	return fn()
}

// runOTPPrompt drives entry from single key presses read from r until the
// code is accepted. Digits fill the focused box, backspace clears it, 'r'
// asks for a new code, Enter submits and 'q' or Ctrl-C gives up.
func runOTPPrompt(ctx context.Context, r io.Reader, w io.Writer, entry *otp.Entry) error {
	in := bufio.NewReader(r)
	renderOTP(w, entry.View())

	for {
		if err := ctx.Err(); err != nil {
			fmt.Fprint(w, "\r\n")
			return err
		}
		b, err := in.ReadByte()
		if err != nil {
			fmt.Fprint(w, "\r\n")
			if errors.Is(err, io.EOF) {
				return ErrAborted
			}
			return err
		}

		v := entry.View()
		switch {
		case b >= '0' && b <= '9':
			// A rejected code leaves its message in the view.
			_ = entry.Type(ctx, v.Focus, rune(b))
		case b == keyBackspace || b == keyDelete:
			_ = entry.Backspace(v.Focus)
		case b == '\r' || b == '\n':
			_ = entry.Submit(ctx)
		case b == 'r' || b == 'R':
			if _, err := entry.Resend(ctx); err != nil {
				renderOTP(w, entry.View())
				continue
			}
		case b == 'q' || b == 'Q' || b == keyCtrlC:
			fmt.Fprint(w, "\r\n")
			return ErrAborted
		default:
			continue
		}

		v = entry.View()
		renderOTP(w, v)
		if v.State == otp.Accepted {
			fmt.Fprint(w, "\r\n")
			return nil
		}
	}
}

// renderOTP redraws the prompt line.
func renderOTP(w io.Writer, v otp.View) {
	var b strings.Builder
	b.WriteString("\r\x1b[2K")
	for i, d := range v.Digits {
		if d == "" {
			d = "_"
		}
		if i == v.Focus && v.State != otp.Accepted {
			fmt.Fprintf(&b, "[%s]", d)
		} else {
			fmt.Fprintf(&b, " %s ", d)
		}
	}
	switch {
	case v.State == otp.Accepted:
		b.WriteString("  verified")
	case v.Error != "":
		b.WriteString("  " + v.Error)
	case v.Cooldown > 0:
		fmt.Fprintf(&b, "  resend in %ds", v.Cooldown)
	default:
		b.WriteString("  press r to resend")
	}
	fmt.Fprint(w, b.String())
}
