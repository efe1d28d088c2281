package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"review_ledger/internal/adapters/clock"
	server "review_ledger/internal/adapters/http_server"
	"review_ledger/internal/adapters/observability"
	redisad "review_ledger/internal/adapters/redis"
	"review_ledger/internal/adapters/registrycache"
	"review_ledger/internal/app"
	"review_ledger/internal/shared"
	mysqlrepo "review_ledger/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, "api")

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	if err := mysqlrepo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, reads fall through to MySQL")
	}
	views := app.NewViewCache(cache, cfg.CacheTTL)
	clk := clock.NewInterval(cfg.ClockGenesis, cfg.ClockInterval)

	ledger := app.NewLedgerService(registrycache.New(repo, cfg.RegistryTTL), repo, views, clk)
	if err := ledger.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("ledger restore failed")
	}
	q := app.NewQueryService(repo, views)

	// http
	auth, err := server.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		log.Warn().Err(err).Msg("authentication disabled, write routes will answer 401")
		auth = nil
	}
	srv := server.New(auth)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(server.NewHandlers(ledger, q))

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Int64("height", clk.Now()).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
