package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/catalog"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// PortionsOptions holds flags shared by the portions subcommands.
type PortionsOptions struct {
	*RootOptions
	Day string
}

// NewPortionsCommand creates the portions command group.
func NewPortionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PortionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "portions",
		Short: "Inspect or reset the daily portion counters",
		Long: `Inspect or reset the daily portion counters stored in the shared
database. Without --day the current business day is used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Day, "day", "", "business day as YYYY-MM-DD")

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the counters of a business day",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortionsShow(cmd, opts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reset every counter to the limits of the menu",
		Long: `Load the menu and overwrite the counters of the business day with its
daily limits. Running tills pick the new counters up on their next reload.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortionsReload(cmd, opts)
		},
	})

	return cmd
}

func (o *PortionsOptions) businessDay(r ledger.Rollover) (string, error) {
	if o.Day == "" {
		return r.BusinessDay(time.Now()), nil
	}
	if _, err := time.Parse("2006-01-02", o.Day); err != nil {
		return "", NewExitError(ExitCommandError, "--day must be formatted as YYYY-MM-DD")
	}
	return o.Day, nil
}

func runPortionsShow(cmd *cobra.Command, opts *PortionsOptions) error {
	e, err := opts.setup("portions", cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	day, err := opts.businessDay(e.rollover)
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

	portions, err := repo.LoadPortions(ctx, day)
	if errors.Is(err, models.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No counters for %s.\n", day)
		return nil
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load portions", err)
	}

	return writePortions(cmd.OutOrStdout(), *portions)
}

func runPortionsReload(cmd *cobra.Command, opts *PortionsOptions) error {
	e, err := opts.setup("portions", cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	day, err := opts.businessDay(e.rollover)
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

	sheets := e.cfg.Sheets
	loader := catalog.NewLoader(catalog.NewSheetsClient(sheets.BaseURL, sheets.APIKey, sheets.SheetID, sheets.Timeout), store, sheets.Range, e.log)
	menu, err := loader.Load(ctx, logger.GenerateRequestID())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load menu", err)
	}

	db, repo, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	portions := ledger.FreshPortions(day, menu.Catalog)
	if err := repo.SavePortions(ctx, portions); err != nil {
		return WrapExitError(ExitFailure, "failed to save portions", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Counters of %s reset from the %s menu.\n", day, menu.Source)
	return writePortions(cmd.OutOrStdout(), portions)
}

// writePortions prints the limited counters of p, sorted by key.
func writePortions(w io.Writer, p models.DailyPortions) error {
	keys := make([]string, 0, len(p.Items))
	for key, counter := range p.Items {
		if counter.IsLimited {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Business day %s\n", p.BusinessDay)
	fmt.Fprintln(tw, "ITEM\tREMAINING\tTHRESHOLD\tSTATE")
	for _, key := range keys {
		counter := p.Items[key]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", key, counter.Remaining, counter.CriticalThreshold, portionState(counter))
	}
	return tw.Flush()
}

func portionState(c models.PortionCounter) string {
	switch {
	case c.Remaining == 0:
		return "sold out"
	case c.Scarce():
		return "scarce"
	default:
		return "ok"
	}
}
