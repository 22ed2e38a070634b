package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/catalog"
	"sagra-pos/internal/database"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/messaging"
	"sagra-pos/internal/outbox"
	"sagra-pos/internal/repository"
	"sagra-pos/internal/services/kitchen"
	"sagra-pos/internal/services/order"
	"sagra-pos/internal/services/report"
	"sagra-pos/internal/services/tracking"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the till",
		Long: `Run the till: the order screen API, the outbox drainer and the
report endpoint.

The till starts even when the shared database or the broker are down. Order
numbers then carry the offline prefix and remote writes wait in the local
outbox until the database answers again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "HTTP port (overrides server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	e, err := opts.setup("till", os.Stdout)
	if err != nil {
		return err
	}
	cfg, log := e.cfg, e.log
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	requestID := logger.GenerateRequestID()

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open local cache", err)
	}
	defer store.Close()

	db, err := database.Open(cfg, log)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to configure database", err)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.Ping(pingCtx); err != nil {
		log.Error("db_unreachable", "Database unreachable, starting offline", requestID, err, nil)
	} else {
		log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)
	}
	pingCancel()

	repo := repository.New(db, cfg.Event.ID)

	drainer := outbox.NewDrainer(store, cfg.Cache.DrainInterval, log)
	order.RegisterReplayHandlers(drainer, repo, repo)

	deps := order.Deps{
		Store:   order.NewStore(ledger.New(nil)),
		Menu:    catalog.NewLoader(catalog.NewSheetsClient(cfg.Sheets.BaseURL, cfg.Sheets.APIKey, cfg.Sheets.SheetID, cfg.Sheets.Timeout), store, cfg.Sheets.Range, log),
		Counter: order.NewCounterIssuer(repo, store, cfg.Event.OfflinePrefix, log),
		History: repo,
		Outbox:  drainer,
		Pending: drainer,
		Remote:  repo,
	}
	deps.Portions = order.NewPortionSync(repo, store, drainer, e.rollover, log)

	conn, err := messaging.Dial(cfg, log, 1)
	if err != nil {
		log.Error("rabbitmq_unreachable", "RabbitMQ unreachable, kitchen tickets will not be published", requestID, err, nil)
	} else {
		defer conn.Close()
		log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)
		deps.Publisher = messaging.NewPublisher(conn, log)
	}

	if cfg.Printer.Enabled {
		deps.Printer = kitchen.NewSpoolPrinter(cfg.Printer.SpoolDir, e.renderer, log)
	}

	// the ledger outlives ctx until in-flight requests are drained
	storeCtx, stopStore := context.WithCancel(context.Background())
	defer stopStore()
	go func() {
		_ = deps.Store.Run(storeCtx)
	}()

	service := order.NewService(deps, order.Options{
		EventID:       cfg.Event.ID,
		KitchenCopies: cfg.Printer.Copies,
		PrintLocally:  cfg.Printer.Enabled,
	}, log)

	if res, err := service.LoadMenu(ctx, requestID); err != nil {
		log.Error("menu_load_failed", "Failed to load menu, retry with POST /menu/reload", requestID, err, nil)
	} else {
		log.Info("menu_loaded", fmt.Sprintf("Loaded %d menu items", len(res.Catalog)), requestID, map[string]interface{}{
			"source": res.Source,
		})
	}

	reports := report.NewService(repo, store, e.rollover, cfg.Event.ID, cfg.Report.CacheTTL, log)
	reportHandler := report.NewHandler(reports, log)
	trackingHandler := tracking.NewHandler(tracking.NewService(repo, e.rollover, log), log)
	handler := order.NewHandler(service, e.renderer, cfg.Server.RequestTimeout, log)

	go drainer.Run(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRoutes(reportHandler.RegisterRoutes, trackingHandler.RegisterRoutes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("service_started", fmt.Sprintf("Till started on port %d", cfg.Server.Port), requestID, map[string]interface{}{
			"port":  cfg.Server.Port,
			"event": cfg.Event.ID,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
	case err := <-serverErr:
		cancel()
		return WrapExitError(ExitFailure, "HTTP server failed", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "failed to shut down HTTP server", err)
	}

	log.Info("service_stopped", "Till stopped gracefully", requestID, nil)
	return nil
}
