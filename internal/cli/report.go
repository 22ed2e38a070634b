package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/database"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
	"sagra-pos/internal/repository"
	"sagra-pos/internal/services/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Day    string
	Format string
	Fresh  bool
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the sales report of a business day",
		Long: `Print the quantities sold per dish and the takings of a business day,
split by payment mode, next to the running totals of the event.

When the shared database is unreachable the last aggregation cached on this
till is printed instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Day, "day", "", "business day as YYYY-MM-DD (default: current)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format (text|json)")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "ignore the cached aggregation")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	if opts.Format != "text" && opts.Format != "json" {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown format %q: use text or json", opts.Format))
	}

	e, err := opts.setup("report", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, err := cache.Open(e.cfg.Cache.Path)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open local cache", err)
	}
	defer store.Close()

	db, err := database.Open(e.cfg, e.log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure database", err)
	}
	defer db.Close()

	ttl := e.cfg.Report.CacheTTL
	if opts.Fresh {
		ttl = 0
	}
	service := report.NewService(repository.New(db, e.cfg.Event.ID), store, e.rollover, e.cfg.Event.ID, ttl, e.log)

	rep, generatedAt, err := service.Report(ctx, opts.Day, logger.GenerateRequestID())
	var verr models.ValidationError
	switch {
	case errors.As(err, &verr):
		return WrapExitError(ExitCommandError, "invalid --day", err)
	case err != nil:
		return WrapExitError(ExitFailure, "failed to build report", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	out.Write(report.Render(rep))
	fmt.Fprintf(out, "\nGenerated %s\n", generatedAt.In(e.renderer.Location).Format("02/01/2006 15:04"))
	return nil
}
