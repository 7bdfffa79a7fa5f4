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
	"github.com/spf13/cobra"
)

// ErrNoPhone is returned when no phone number was given.
var ErrNoPhone = errors.New("phone number is required")

// NewVerifyCommand signs in with a one-time code sent to a phone number.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Sign in with a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				in := cmd.InOrStdin()
				fd := -1
				if f, ok := in.(*os.File); ok {
					fd = int(f.Fd())
				}
				r := bufio.NewReader(in)
				if phone == "" {
					p, err := GetSimpleText(r, "Phone number", a.out)
					if err != nil {
						return err
					}
					phone = p
				}
				return a.Verify(ctx, phone, r, fd)
			})
		},
	}
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "phone number to send the code to")
	return cmd
}

// Verify sends a code to phone, reads it from in and, once accepted,
// signs the session in and runs a foreground pass. fd is the terminal
// behind in, or -1.
func (a *App) Verify(ctx context.Context, phone string, in io.Reader, fd int) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrNoPhone
	}
	if err := a.store.Hydrate(ctx); err != nil {
		return err
	}

	challenge := otp.NewChallenge(a.gate, phone, a.metrics)
	if err := challenge.Send(ctx); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	if a.gate.Mode() == otp.ModeSandbox {
		fmt.Fprintln(a.out, "sandbox mode: any six digits are accepted")
	}
	fmt.Fprintf(a.out, "code sent to %s\n", phone)

	entry := otp.NewEntry(a.clock, a.config.ResendCooldown, challenge.Verify, challenge.Send)
	entry.Start()
	defer entry.Stop()

	err := withRawTerminal(fd, func() error { return runOTPPrompt(ctx, in, a.out, entry) })
	if err != nil {
		return err
	}

	token, err := a.backend.SignIn(ctx, phone)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := a.orch.SignIn(ctx, phone, token); err != nil {
		return err
	}
	return a.Bootstrap(ctx)
}
