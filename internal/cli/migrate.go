package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sagra-pos/internal/database"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Dir    string
	DryRun bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the SQL migrations of the migrations directory that the shared
database has not recorded yet, in file name order.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "migrations directory (overrides database.migrations)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list the migration files without applying them")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	e, err := opts.setup("migrate", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	dir := e.cfg.Database.Migrations
	if opts.Dir != "" {
		dir = opts.Dir
	}
	fsys := os.DirFS(dir)

	if opts.DryRun {
		files, err := database.MigrationFiles(fsys)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list migrations", err)
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	db, _, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, fsys); err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
	return nil
}
