package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_ledger/internal/adapters/directory"
	"review_ledger/internal/adapters/observability"
	"review_ledger/internal/app"
	"review_ledger/internal/shared"
	mysqlrepo "review_ledger/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, "registrar")
	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	log.Info().
		Str("base", cfg.DirectoryBase).
		Int("workers", cfg.Workers).
		Int("locations", len(cfg.LocationIDs)).
		Msg("registrar starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := mysqlrepo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	repo := mysqlrepo.New(db)

	client, err := directory.New(cfg.DirectoryBase, cfg.DirectoryKey, cfg.DirectoryRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize directory client")
	}
	svc := app.NewRegistrySyncService(client, repo)

	users, usersErr := svc.SyncUsers(ctx)
	if usersErr != nil {
		log.Error().Err(usersErr).Int("users", users).Msg("user sync failed")
	} else {
		log.Info().Int("users", users).Msg("user sync ok")
	}

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, id := range cfg.LocationIDs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("location sync interrupted")
			break
		}

		wg.Add(1)
		go func(locationID uint64) {
			defer wg.Done()
			defer sem.Release(1)

			if err := svc.SyncLocation(ctx, locationID); err != nil {
				failed.Add(1)
				log.Warn().Uint64("location_id", locationID).Err(err).Msg("location sync failed")
				return
			}
			log.Debug().Uint64("location_id", locationID).Msg("location sync ok")
		}(id)
	}

	wg.Wait()
	log.Info().Int64("failed", failed.Load()).Msg("registry sync completed")
	if usersErr != nil || failed.Load() > 0 {
		os.Exit(1)
	}
}
