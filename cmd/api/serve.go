package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"voting-ledger/api"
	"voting-ledger/config"
	"voting-ledger/event"
	"voting-ledger/registry"
	"voting-ledger/service"
	"voting-ledger/storage"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the voting API server",
		RunE:  serveRun,
	}
}

func serveRun(cmd *cobra.Command, _ []string) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logger := commonRun(cfg, os.Stdout)

	reg, err := loadRegistry(cfg.Election, time.Now())
	if err != nil {
		return err
	}
	session := reg.Session()
	logger.Info("election loaded",
		"session", session.ID,
		"candidates", reg.Len(),
		"start", session.StartTime,
		"end", session.EndTime,
		"contract", session.BlockchainContractAddress,
	)

	eventBus := event.NewEventBus(prometheus.DefaultRegisterer, logger)
	defer eventBus.Stop()
	subscribeLogging(eventBus, logger)

	ledger, err := service.NewVotingService(reg,
		service.WithEventBus(eventBus),
		service.WithPromRegistry(prometheus.DefaultRegisterer),
		service.WithDifficulty(cfg.Ledger.Difficulty),
	)
	if err != nil {
		return fmt.Errorf("failed to create voting service: %w", err)
	}

	var store *storage.JSONStore
	if cfg.Storage.Dir != "" {
		store, err = storage.NewJSONStore(cfg.Storage.Dir, cfg.Storage.Keep, logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
	}

	server, err := api.NewServer(cfg.Server, api.Deps{
		Ledger:     ledger,
		Store:      store,
		EventBus:   eventBus,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	if store != nil && cfg.Storage.ExportInterval > 0 {
		go runPeriodicExport(ctx, server, cfg.Storage.ExportInterval, logger)
	}

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}

	ledger.EndSession()
	if cfg.Storage.ExportOnShutdown && store != nil {
		path, err := server.ExportChain()
		if err != nil {
			logger.Error("failed to export audit chain", "err", err)
		} else {
			logger.Info("audit chain exported", "path", path, "votes", ledger.Size())
		}
	}
	logger.Info("server stopped")
	return nil
}

func loadRegistry(cfg config.ElectionConfig, now time.Time) (*registry.Registry, error) {
	catalog := registry.DefaultCatalog(now, cfg.Duration)
	if cfg.CatalogPath != "" {
		var err error
		catalog, err = registry.LoadCatalog(cfg.CatalogPath, now, cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("failed to load election catalog: %w", err)
		}
	}
	reg, err := registry.New(catalog)
	if err != nil {
		return nil, fmt.Errorf("invalid election catalog: %w", err)
	}
	return reg, nil
}

// subscribeLogging writes ledger events to the log. The handlers run on the
// bus's goroutines, never on the cast path.
func subscribeLogging(eventBus *event.EventBus, logger *slog.Logger) {
	logger = logger.With("component", "ledger")
	eventBus.SubscribeFunc(service.VoteCastEventType, func(evt event.Event) {
		if data, ok := evt.Data.(service.VoteCastEvent); ok {
			logger.Info("vote recorded",
				"voteID", data.Vote.ID,
				"candidate", data.Vote.CandidateID,
				"block", data.Vote.BlockNumber,
				"total", data.TotalVotes,
			)
		}
	})
	eventBus.SubscribeFunc(service.VoteRejectedEventType, func(evt event.Event) {
		if data, ok := evt.Data.(service.VoteRejectedEvent); ok {
			logger.Debug("vote rejected",
				"candidate", data.CandidateID,
				"reason", data.Reason,
			)
		}
	})
	eventBus.SubscribeFunc(service.SessionEndedEventType, func(evt event.Event) {
		if data, ok := evt.Data.(service.SessionEndedEvent); ok {
			logger.Info("voting session ended",
				"session", data.SessionID,
				"total", data.TotalVotes,
			)
		}
	})
}

func runPeriodicExport(ctx context.Context, server *api.Server, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := server.ExportChain(); err != nil {
				logger.Error("periodic export failed", "err", err)
			}
		}
	}
}
