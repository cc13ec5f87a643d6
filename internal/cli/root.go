package cli

import (
	"fmt"
	"os"
	"time"

	"contest-lifecycle/internal/config"
	"contest-lifecycle/internal/database"
	"contest-lifecycle/internal/jobs"
	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/services"
	"contest-lifecycle/internal/settlement"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Operator string
	Format   string // "json" | "text"

	open  func() (*gorm.DB, error)
	clock func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for contestctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		open:  openConfiguredDB,
		clock: func() time.Time { return time.Now().UTC() },
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contestctl",
		Short: "Operator commands for the contest lifecycle",
		Long: `Operator commands for the contest lifecycle.

Every command that changes a contest goes through the same transition
primitives as the reconciliation loop and is recorded in the admin log.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Operator == "" {
				return fmt.Errorf("--operator is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Operator, "operator", defaultOperator(), "operator recorded in the admin log")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewForceLockCommand(opts))
	cmd.AddCommand(NewForceLiveCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewMarkErrorCommand(opts))
	cmd.AddCommand(NewResolveErrorCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewCancelTemplateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func defaultOperator() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "contestctl"
}

func openConfiguredDB() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := database.Connect(cfg); err != nil {
		return nil, err
	}
	if err := database.Migrate(database.GetDB()); err != nil {
		return nil, err
	}
	return database.GetDB(), nil
}

// app is the service graph a command runs against.
type app struct {
	admin      *services.AdminService
	contests   *services.ContestService
	reconciler *jobs.Reconciler
}

func (o *RootOptions) app() (*app, error) {
	db, err := o.open()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repo := repository.NewRepository(db)
	snapshots := settlement.NewSnapshotStore(db)
	machine := lifecycle.NewMachine(db, settlement.NewEngine(), snapshots)

	return &app{
		admin:      services.NewAdminService(machine, repo),
		contests:   services.NewContestService(repo, machine, snapshots),
		reconciler: jobs.NewReconciler(machine, time.Minute),
	}, nil
}
