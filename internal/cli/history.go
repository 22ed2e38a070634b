package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sagra-pos/internal/models"
	"sagra-pos/internal/services/report"
)

// HistoryOptions holds flags for the history subcommands.
type HistoryOptions struct {
	*RootOptions
	DryRun bool
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Maintain the stored order history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Store payment mode and total on legacy orders",
		Long: `Rewrite orders stored without a payment mode or total so they carry the
values the report attributes to them: cash for a missing or unknown mode,
the sum of the order lines for a missing total.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryBackfill(cmd, opts)
		},
	}
	backfill.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without writing")
	cmd.AddCommand(backfill)

	return cmd
}

// pendingBackfill returns the normalized form of every record that needs
// rewriting.
func pendingBackfill(records []models.HistoryRecord) []models.HistoryRecord {
	var out []models.HistoryRecord
	for _, rec := range records {
		if normalized, changed := report.Normalize(rec); changed {
			out = append(out, normalized)
		}
	}
	return out
}

func runHistoryBackfill(cmd *cobra.Command, opts *HistoryOptions) error {
	e, err := opts.setup("history", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	db, repo, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := repo.ListHistory(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read history", err)
	}

	pending := pendingBackfill(records)
	out := cmd.OutOrStdout()
	for _, rec := range pending {
		fmt.Fprintf(out, "%s\t%s\t%d\n", rec.ID, rec.PaymentMode, *rec.TotalCents)
		if opts.DryRun {
			continue
		}
		if err := repo.UpdateHistory(ctx, rec); err != nil {
			return WrapExitError(ExitFailure, "backfill interrupted", err)
		}
	}

	verb := "Updated"
	if opts.DryRun {
		verb = "Would update"
	}
	fmt.Fprintf(out, "%s %d of %d orders.\n", verb, len(pending), len(records))
	return nil
}
