package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewBootstrapCommand runs one foreground pass.
func NewBootstrapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Load the session, run pending effects and print where the user belongs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.Bootstrap(ctx)
			})
		},
	}
}

// Bootstrap runs Foreground, waits for the effects it started and prints
// the outcome.
func (a *App) Bootstrap(ctx context.Context) error {
	res, err := a.orch.Foreground(ctx)
	if err != nil {
		return err
	}
	a.orch.Wait()

	if res.Migrated {
		fmt.Fprintln(a.out, "migrated legacy user id")
	}
	if res.Redirect {
		fmt.Fprintf(a.out, "route:          %s\n", res.Route)
	} else {
		fmt.Fprintln(a.out, "route:          (stay)")
	}
	printSession(a.out, a.store.Snapshot())
	return nil
}

// NewOnboardCommand marks onboarding done.
func NewOnboardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Mark onboarding as complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				if err := a.store.Hydrate(ctx); err != nil {
					return err
				}
				if err := a.orch.CompleteOnboarding(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "onboarding complete")
				return nil
			})
		},
	}
}

// NewStatusCommand pings the backend and prints the stored session.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backend and show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.Status(ctx)
			})
		},
	}
}

// Status prints backend reachability and the stored session.
func (a *App) Status(ctx context.Context) error {
	if err := a.store.Hydrate(ctx); err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()
	if err := a.backend.Ping(pingCtx); err != nil {
		fmt.Fprintf(a.out, "backend:        offline (%v)\n", err)
	} else {
		fmt.Fprintln(a.out, "backend:        online")
	}
	printSession(a.out, a.store.Snapshot())
	return nil
}

// NewLogoutCommand clears the session.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				if err := a.store.Hydrate(ctx); err != nil {
					return err
				}
				if err := a.orch.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "signed out")
				return nil
			})
		},
	}
}
