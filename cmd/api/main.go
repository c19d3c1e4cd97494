package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrcbstmnte/park-n-go/internal/app"
	"github.com/mrcbstmnte/park-n-go/internal/clock"
	"github.com/mrcbstmnte/park-n-go/internal/config"
	"github.com/mrcbstmnte/park-n-go/internal/storage/postgres"
	transporthttp "github.com/mrcbstmnte/park-n-go/internal/transport/http"
	"github.com/mrcbstmnte/park-n-go/migrations"
	"github.com/mrcbstmnte/park-n-go/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logging.Setup()
	cfg := config.Load()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to db", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		slog.Error("db ping", "err", err)
		os.Exit(1)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		slog.Error("apply migrations", "err", err)
		os.Exit(1)
	}

	tx := postgres.NewTxRunner(pool)
	lotRepo := postgres.NewLotRepository(pool)
	slotRepo := postgres.NewSlotRepository(pool)
	vehicleRepo := postgres.NewVehicleRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)

	invoiceSvc := app.NewInvoiceService(tx, lotRepo, slotRepo, vehicleRepo, invoiceRepo, cfg.Rates, clock.NewSystem())
	adminSvc := app.NewAdminService(tx, lotRepo, clock.NewSystem())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", transporthttp.MetricsHandler())
	mux.Handle("/lots", transporthttp.HandleLots(adminSvc))
	mux.Handle("/lots/", transporthttp.HandleLotSubresources(adminSvc))
	mux.Handle("/slots/", transporthttp.HandleSlotByID(adminSvc))
	mux.Handle("/invoices", transporthttp.HandleOpenInvoice(invoiceSvc))
	mux.Handle("/invoices/", transporthttp.HandleInvoiceByID(invoiceSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(
		transporthttp.CORS(cfg.CORSOrigins, transporthttp.Metrics(mux)),
		slog.Default(),
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	slog.Info("api listening", "port", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
		}
	case <-stopCtx.Done():
		slog.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server shutdown error", "err", err)
	}
	slog.Info("server stopped")
}
