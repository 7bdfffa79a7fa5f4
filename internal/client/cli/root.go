package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/courial/internal/client/config"
	"github.com/dmitrijs2005/courial/internal/cryptox"
	"github.com/dmitrijs2005/courial/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions is shared by every subcommand.
type RootOptions struct {
	Config *config.Config
	Log    logging.Logger

	// newApp builds the App; tests replace it.
	newApp func(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*App, error)
}

// NewRootCommand creates the courial command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{newApp: defaultNewApp}

	cmd := &cobra.Command{
		Use:           "courial",
		Short:         "Courial client",
		Long:          "Bootstraps a Courial session, signs in with a one-time code and reports session state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Log = logging.NewTextLogger(cmd.ErrOrStderr(), cfg.Verbose)
			return nil
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewBootstrapCommand(opts))
	cmd.AddCommand(NewOnboardCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	return cmd
}

func defaultNewApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*App, error) {
	if opts.Config.StorageSecret == "" && isTerminal(int(os.Stdin.Fd())) {
		secret, err := GetPassword(cmd.ErrOrStderr(), "Storage secret: ")
		if err != nil {
			return nil, fmt.Errorf("read storage secret: %w", err)
		}
		opts.Config.StorageSecret = string(secret)
		cryptox.Wipe(secret)
	}
	return NewApp(ctx, opts.Config, opts.Log, cmd.OutOrStdout())
}

// withApp runs fn against a freshly built App and closes it afterwards.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := opts.newApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}
