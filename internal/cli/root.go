// Package cli implements the sagra-pos command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sagra-pos/internal/config"
	"sagra-pos/internal/database"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/repository"
	"sagra-pos/internal/ticket"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command of the till.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sagra-pos",
		Short: "Point of sale for festival food stands",
		Long: `Point of sale for festival food stands.

Each till takes orders against a menu loaded from a spreadsheet, tracks the
daily portions of limited dishes and sends tickets to the kitchen. Tills keep
working offline and replay their writes once the shared store is back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewKitchenCommand(opts))
	cmd.AddCommand(NewAlertsCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPortionsCommand(opts))
	cmd.AddCommand(NewCounterCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// env is what every command builds from the global flags.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	rollover ledger.Rollover
	renderer ticket.Renderer
}

func (o *RootOptions) setup(service string, logOut io.Writer) (*env, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}

	return &env{
		cfg:      cfg,
		log:      logger.NewWithWriter(service, logOut, level),
		rollover: ledger.Rollover{Location: loc, Hour: cfg.Portions.RolloverHour},
		renderer: ticket.Renderer{EventName: cfg.Event.Name, Location: loc},
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM, or when the command's
// own context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// connect waits for the shared database and returns the repository of the
// configured event. Admin commands cannot run offline.
func (e *env) connect(ctx context.Context) (*database.DB, *repository.Repository, error) {
	db, err := database.New(ctx, e.cfg, e.log, 3)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "database unreachable", err)
	}
	return db, repository.New(db, e.cfg.Event.ID), nil
}
