package cli

import (
	"context"
	"fmt"
	"time"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status <contest-id>",
		Short:         "Show status and schedule of a contest",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.app()
			if err != nil {
				return err
			}

			view, err := a.contests.GetStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), opts.Format, view)
		},
	}
}

// adminCommand is the shape of every single-target admin operation.
type adminCommand func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error)

func newAdminCommand(opts *RootOptions, use, short string, run adminCommand) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.app()
			if err != nil {
				return err
			}

			res, err := run(a, cmd.Context(), opts.Operator, id, opts.clock())
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, res)
		},
	}
}

// NewForceLockCommand creates the force-lock command.
func NewForceLockCommand(opts *RootOptions) *cobra.Command {
	return newAdminCommand(opts, "force-lock <contest-id>", "Lock a SCHEDULED contest now",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.ForceLock(ctx, operator, id, now)
		})
}

// NewForceLiveCommand creates the force-live command.
func NewForceLiveCommand(opts *RootOptions) *cobra.Command {
	return newAdminCommand(opts, "force-live <contest-id>", "Start a LOCKED contest now",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.ForceLive(ctx, operator, id, now)
		})
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(opts *RootOptions) *cobra.Command {
	return newAdminCommand(opts, "cancel <contest-id>", "Cancel a non-terminal contest",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.Cancel(ctx, operator, id, now)
		})
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(opts *RootOptions) *cobra.Command {
	return newAdminCommand(opts, "settle <contest-id>", "Complete and settle a LIVE contest now",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.Settle(ctx, operator, id, now)
		})
}

// NewCancelTemplateCommand creates the cancel-template command.
func NewCancelTemplateCommand(opts *RootOptions) *cobra.Command {
	return newAdminCommand(opts, "cancel-template <template-id>", "Cancel a template and all its open contests",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.CancelTemplate(ctx, operator, id, now)
		})
}

// NewMarkErrorCommand creates the mark-error command.
func NewMarkErrorCommand(opts *RootOptions) *cobra.Command {
	var reason string
	cmd := newAdminCommand(opts, "mark-error <contest-id>", "Park a contest in ERROR",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.MarkError(ctx, operator, id, reason, now)
		})
	cmd.Flags().StringVar(&reason, "reason", "", "why the contest is parked")
	return cmd
}

// NewResolveErrorCommand creates the resolve-error command.
func NewResolveErrorCommand(opts *RootOptions) *cobra.Command {
	var target string
	cmd := newAdminCommand(opts, "resolve-error <contest-id>", "Move a contest out of ERROR",
		func(a *app, ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
			return a.admin.ResolveError(ctx, operator, id, models.ContestStatus(target), now)
		})
	cmd.Flags().StringVar(&target, "target", "", "COMPLETE or CANCELLED")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass: lock, start and complete every contest
that is due at --now (default: the current time).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := opts.clock()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --now %q: %w", at, err)
				}
				now = parsed.UTC()
			}

			a, err := opts.app()
			if err != nil {
				return err
			}

			report := a.reconciler.Tick(cmd.Context(), now)
			if err := writeReport(cmd.OutOrStdout(), opts.Format, report); err != nil {
				return err
			}
			return report.Err
		},
	}

	cmd.Flags().StringVar(&at, "now", "", "reconcile as of this RFC3339 instant")
	return cmd
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}
