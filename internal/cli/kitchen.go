package cli

import (
	"os"

	"github.com/spf13/cobra"

	"sagra-pos/internal/messaging"
	"sagra-pos/internal/services/kitchen"
	"sagra-pos/internal/services/notification"
)

// KitchenOptions holds flags for the kitchen command.
type KitchenOptions struct {
	*RootOptions
	Name     string
	Prefetch int
	SpoolDir string
}

// NewKitchenCommand creates the kitchen command.
func NewKitchenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KitchenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "kitchen",
		Short: "Print kitchen tickets published by the tills",
		Long: `Consume the kitchen queue and spool every ticket to the printer
directory, one file per order with as many copies as the till asked for.

Several workers may share the queue; each ticket is printed once.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKitchen(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "kitchen", "worker name, used as consumer tag")
	cmd.Flags().IntVar(&opts.Prefetch, "prefetch", 0, "RabbitMQ prefetch count (overrides rabbitmq.prefetch)")
	cmd.Flags().StringVar(&opts.SpoolDir, "spool-dir", "", "spool directory (overrides printer.spool_dir)")

	return cmd
}

func runKitchen(cmd *cobra.Command, opts *KitchenOptions) error {
	if opts.Name == "" {
		return NewExitError(ExitCommandError, "--name must not be empty")
	}

	e, err := opts.setup("kitchen-worker", os.Stdout)
	if err != nil {
		return err
	}
	cfg := e.cfg
	if opts.Prefetch > 0 {
		cfg.RabbitMQ.Prefetch = opts.Prefetch
	}
	if opts.SpoolDir != "" {
		cfg.Printer.SpoolDir = opts.SpoolDir
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	conn, err := messaging.New(cfg, e.log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to RabbitMQ", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, e.log, messaging.KitchenQueue, opts.Name, cfg.RabbitMQ.Prefetch)
	printer := kitchen.NewSpoolPrinter(cfg.Printer.SpoolDir, e.renderer, e.log)

	if err := kitchen.NewWorker(opts.Name, consumer, printer, e.log).Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "kitchen worker failed", err)
	}
	return nil
}

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show scarcity alerts of limited dishes",
		Long: `Subscribe to the notifications exchange and print a line each time a
limited dish reaches its critical threshold. Logs go to stderr so the
alerts can be piped on their own.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(cmd, rootOpts)
		},
	}

	return cmd
}

func runAlerts(cmd *cobra.Command, opts *RootOptions) error {
	e, err := opts.setup("notification-subscriber", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	conn, err := messaging.New(e.cfg, e.log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to RabbitMQ", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, e.log, messaging.NotificationsQueue, "alerts", e.cfg.RabbitMQ.Prefetch)
	subscriber := notification.NewSubscriber(consumer, cmd.OutOrStdout(), e.renderer.Location, e.log)

	if err := subscriber.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "notification subscriber failed", err)
	}
	return nil
}
