package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/config"
	"github.com/dmitrijs2005/courial/internal/client/navigation"
	"github.com/spf13/cobra"
)

const flagGroup = "group"

// NewRunCommand keeps the session in the foreground until interrupted.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stay in the foreground, re-running effects and printing redirects until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := navigation.ParseGroup(group)
			if err != nil {
				return err
			}
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.Run(ctx, g)
			})
		},
	}
	cmd.Flags().StringVar(&group, flagGroup, "", "screen group the user starts on (onboarding, auth, app)")
	return cmd
}

// Run foregrounds the session starting from group, then follows every
// session change and retries effects every RetryInterval until ctx is done.
// It backgrounds the session on the way out and prints the effect totals.
func (a *App) Run(ctx context.Context, group navigation.Group) error {
	a.watchRedirects(a.out)
	defer a.watchRedirects(nil)

	a.orch.SetGroup(group)
	res, err := a.orch.Foreground(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if res.Migrated {
		fmt.Fprintln(a.out, "migrated legacy user id")
	}
	if !res.Redirect {
		fmt.Fprintln(a.out, "route:          (stay)")
	}

	interval := a.config.RetryInterval
	if interval <= 0 {
		interval = config.DefaultRetryInterval
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.orch.Run(ctx) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var loopErr error
loop:
	for {
		select {
		case <-ctx.Done():
			loopErr = <-runErr
			break loop
		case err := <-runErr:
			loopErr = err
			break loop
		case <-ticker.C:
			a.orch.Evaluate(ctx)
		}
	}

	a.orch.Background()
	a.orch.Wait()
	a.log.Info(context.WithoutCancel(ctx), "session backgrounded", "group", string(a.orch.Group()))

	fmt.Fprintf(a.out, "group:          %s\n", groupOrNone(a.orch.Group()))
	a.printEffects()

	if loopErr != nil && !errors.Is(loopErr, context.Canceled) && !errors.Is(loopErr, context.DeadlineExceeded) {
		return loopErr
	}
	return nil
}

func (a *App) printEffects() {
	summary := a.metrics.EffectSummary()
	if len(summary) == 0 {
		fmt.Fprintln(a.out, "effects:        none")
		return
	}
	parts := make([]string, 0, len(summary))
	for _, c := range summary {
		parts = append(parts, fmt.Sprintf("%s/%s=%d", c.Effect, c.Outcome, c.Count))
	}
	fmt.Fprintf(a.out, "effects:        %s\n", strings.Join(parts, " "))
}

func groupOrNone(g navigation.Group) string {
	if g == navigation.GroupNone {
		return "none"
	}
	return string(g)
}
