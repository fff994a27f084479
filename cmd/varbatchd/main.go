// Command varbatchd runs the variant annotation batching service: the HTTP
// binding in internal/httpapi backed by the submission façade, the batch
// processor, the pending registry, and the MySQL cache store.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genomeannotate/varbatch/internal/batch"
	"github.com/genomeannotate/varbatch/internal/cache"
	"github.com/genomeannotate/varbatch/internal/config"
	"github.com/genomeannotate/varbatch/internal/httpapi"
	"github.com/genomeannotate/varbatch/internal/logging"
	"github.com/genomeannotate/varbatch/internal/registry"
	"github.com/genomeannotate/varbatch/internal/submission"
	"github.com/genomeannotate/varbatch/internal/vep"
)

func main() {
	if err := innerMain(); err != nil {
		log.Fatal(err)
	}
}

func innerMain() error {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	if err := cache.Migrate(cfg.MigrationsSourceURL(), cfg.MigrateDatabaseURL()); err != nil {
		return err
	}

	store, err := cache.Open(cfg.DataSourceName(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := registry.New()
	vepClient := vep.NewClient(cfg.VEPEndpoint, &http.Client{Timeout: cfg.VEPTimeout + 5*time.Second})

	proc := batch.NewProcessor(batch.Config{
		MaxBatchSize:      cfg.MaxBatchSize,
		MaxWaitTime:       cfg.MaxWaitTime,
		MaxWorkers:        cfg.MaxWorkers,
		MaxRetries:        cfg.MaxRetries,
		VEPTimeout:        cfg.VEPTimeout,
		TerminalRetention: cfg.TerminalRetention,
		SweepInterval:     cfg.TerminalRetention / 2,
		MLModelPath:       cfg.MLModelPath,
	}, reg, store, vepClient, logger)

	facade := submission.New(store, reg, proc, logger)

	handler := httpapi.NewHandler(&httpapi.Server{Facade: facade, Registry: reg, Store: store})
	server := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str(`addr`, cfg.ListenAddr).Log(`listening`)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info().Log(`shutting down`)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Err().Err(err).Log(`http shutdown error`)
		}
		if err := proc.Shutdown(shutdownCtx); err != nil {
			logger.Err().Err(err).Log(`batch processor shutdown error`)
		}
	}

	return nil
}
