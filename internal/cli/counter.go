package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewCounterCommand creates the counter command group.
func NewCounterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "counter",
		Short:         "Manage the shared order number counter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Set the number the next order will get",
		Long: `Overwrite the order number counter of the event. The next order
confirmed by any online till gets <value>; numbers wrap after 9999.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCounterSet(cmd, rootOpts, args[0])
		},
	})

	return cmd
}

func parseCounterValue(arg string) (int, error) {
	value, err := strconv.Atoi(arg)
	if err != nil || value < 0 || value > 9999 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid counter value %q: must be between 0 and 9999", arg))
	}
	return value, nil
}

func runCounterSet(cmd *cobra.Command, opts *RootOptions, arg string) error {
	value, err := parseCounterValue(arg)
	if err != nil {
		return err
	}

	e, err := opts.setup("counter", cmd.ErrOrStderr())
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

	if err := repo.SetOrderCounter(ctx, value); err != nil {
		return WrapExitError(ExitFailure, "failed to set counter", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Next order number of %s: %04d\n", e.cfg.Event.ID, value)
	return nil
}
