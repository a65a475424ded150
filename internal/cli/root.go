package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/cartrecovery/internal/carts"
)

// Backend is the subset of carts.Service the operator commands need.
type Backend interface {
	Stats(ctx context.Context) (carts.Stats, error)
	Sweep(ctx context.Context) ([]carts.Transition, error)
	Get(ctx context.Context, identity string) (*carts.CartSession, error)
}

// Env is what an Opener hands to a command.
type Env struct {
	Backend  Backend
	Currency string
	Close    func() error
}

// Opener connects to the configured store. Called once per command run.
type Opener func(ctx context.Context) (*Env, error)

type RootOptions struct {
	Format string
}

// NewRootCommand builds the cartctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cartctl",
		Short:         "Inspect and maintain abandoned cart sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json|yaml)")

	cmd.AddCommand(newStatsCommand(opts, open))
	cmd.AddCommand(newSweepCommand(opts, open))
	cmd.AddCommand(newShowCommand(opts, open))
	return cmd
}

func withEnv(cmd *cobra.Command, open Opener, fn func(env *Env) error) (err error) {
	if open == nil {
		return errors.New("no backend configured")
	}
	env, err := open(cmd.Context())
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	if env.Close != nil {
		defer func() {
			if closeErr := env.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
	}
	return fn(env)
}

func newStatsCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print recovery statistics after sweeping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(env *Env) error {
				stats, err := env.Backend.Stats(cmd.Context())
				if err != nil {
					return err
				}
				view, err := newStatsView(stats, env.Currency)
				if err != nil {
					return err
				}
				return Printer{Format: opts.Format, Writer: cmd.OutOrStdout()}.Print(view)
			})
		},
	}
}

func newSweepCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Apply time-based abandon and expire transitions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(env *Env) error {
				transitions, err := env.Backend.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return Printer{Format: opts.Format, Writer: cmd.OutOrStdout()}.Print(newSweepView(transitions))
			})
		},
	}
}

func newShowCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email>",
		Short: "Show the current session for an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(env *Env) error {
				session, err := env.Backend.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if session == nil {
					return fmt.Errorf("no cart session for %s", args[0])
				}
				view, err := newSessionView(*session, env.Currency)
				if err != nil {
					return err
				}
				return Printer{Format: opts.Format, Writer: cmd.OutOrStdout()}.Print(view)
			})
		},
	}
}
