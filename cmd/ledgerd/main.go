// Package main runs the ledger daemon: the message substrate with the token
// and registry contracts installed, persistent stores, the HTTP API with its
// transaction feed, and a periodic consistency audit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"jetton-ledger/internal/api"
	"jetton-ledger/internal/config"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/observability"
	"jetton-ledger/internal/registry"
	"jetton-ledger/internal/storage"
	chstore "jetton-ledger/internal/storage/clickhouse"
	"jetton-ledger/internal/storage/memory"
	"jetton-ledger/internal/storage/migrations"
	pgstore "jetton-ledger/internal/storage/postgres"
	"jetton-ledger/internal/storage/sqlite"
	"jetton-ledger/internal/verification"
	"jetton-ledger/internal/vm"
)

const serviceName = "jetton-ledger"

// stores holds the selected storage backends.
type stores struct {
	accounts storage.AccountStore
	txs      storage.TransactionStore
	label    string

	// analytics is the optional ClickHouse trace store.
	analytics *chstore.TransactionStore

	cleanup func()
}

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	env, err := config.ParseEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	flag.StringVar(&env.HTTPAddr, "http-addr", env.HTTPAddr, "HTTP API listen address")
	flag.StringVar(&env.Storage, "storage", env.Storage, "Storage backend: memory, sqlite or postgres")
	flag.StringVar(&env.SQLitePath, "sqlite-path", env.SQLitePath, "SQLite database file")
	flag.StringVar(&env.PostgresDSN, "postgres-dsn", env.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&env.ClickhouseDSN, "clickhouse-dsn", env.ClickhouseDSN, "ClickHouse connection string for trace analytics (optional)")
	flag.StringVar(&env.APIToken, "api-token", env.APIToken, "Bearer token required on mutating API routes (optional)")
	flag.StringVar(&env.ProtocolFile, "protocol", env.ProtocolFile, "TOML file overriding fees, reserve and registry opcodes")
	flag.BoolVar(&env.AutoMigrate, "migrate", env.AutoMigrate, "Apply database migrations on startup")
	flag.StringVar(&env.LogLevel, "log-level", env.LogLevel, "Log level")
	flag.StringVar(&env.LogFormat, "log-format", env.LogFormat, "Log format: json or console")
	flag.StringVar(&env.OTelEndpoint, "otel-endpoint", env.OTelEndpoint, "OTLP/HTTP trace endpoint (optional)")
	flag.DurationVar(&env.SupplyCheckInterval, "check-interval", env.SupplyCheckInterval, "Consistency audit interval (0 disables)")
	flag.Parse()

	if err := env.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(env.LogLevel, env.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(env, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ledger stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(env config.Env, logger *zap.Logger) error {
	protocol, err := config.LoadProtocol(env.ProtocolFile)
	if err != nil {
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, env.OTelEndpoint, env.OTelSampleRatio)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracing(sctx)
	}()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, env.MetricsNamespace)

	st, err := createStores(ctx, env, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer st.cleanup()
	accounts := observability.InstrumentAccounts(st.accounts, metrics, st.label)
	txs := observability.InstrumentTransactions(st.txs, metrics, st.label)

	deriver, err := idhash.NewDeriver(env.AddressCacheSize)
	if err != nil {
		return err
	}
	hub := api.NewHub(nil, metrics, logger.Named("feed"))

	opts := []vm.Option{
		vm.WithFees(protocol.VMFees()),
		vm.WithLogger(logger.Named("vm")),
		vm.WithDeriver(deriver),
		vm.WithObserver(metrics),
		vm.WithChannelObserver(metrics),
		vm.WithTracer(otel.Tracer(serviceName + "/vm")),
		vm.WithTraceSink(vm.StoreSink(txs)),
		vm.WithTraceSink(hub),
	}
	if st.analytics != nil {
		opts = append(opts, vm.WithTraceSink(vm.StoreSink(
			observability.InstrumentTransactions(st.analytics, metrics, "clickhouse"))))
	}
	machine, err := vm.New(ctx, accounts, opts...)
	if err != nil {
		return fmt.Errorf("create machine: %w", err)
	}
	jetton.Install(machine, protocol.Jetton())
	registry.Install(machine, protocol.Registry)
	resumed, err := machine.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume outbox: %w", err)
	}
	if resumed > 0 {
		logger.Info("replaying undelivered messages", zap.Int("messages", resumed))
	}

	serverOpts := []api.Option{
		api.WithLogger(logger.Named("api")),
		api.WithMetrics(metrics),
		api.WithHub(hub),
		api.WithRegistryOpcodes(protocol.Registry),
		api.WithAuthToken(env.APIToken),
	}
	if st.analytics != nil {
		serverOpts = append(serverOpts, api.WithExitCodeStats(st.analytics))
	}
	httpServer := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           api.NewServer(machine, accounts, txs, serverOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", env.HTTPAddr), zap.String("storage", env.Storage))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if env.SupplyCheckInterval > 0 {
		verifier := verification.New(verification.Options{
			Accounts: accounts,
			Txs:      txs,
			Deriver:  deriver,
			Pending:  machine.Pending,
			Metrics:  metrics,
			Logger:   logger.Named("verifier"),
		})
		go func() {
			if err := verifier.Run(ctx, env.SupplyCheckInterval); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("verifier: %w", err)
			}
		}()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
	case runErr = <-errCh:
	}
	cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-done:
		}
	}()

	sctx, scancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
	defer scancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hub.Close()
	if err := machine.Close(sctx); err != nil {
		logger.Warn("machine shutdown; undelivered messages stay in the outbox",
			zap.Error(err), zap.Int("pending", machine.Pending()))
	}
	return runErr
}

// createStores opens the configured backends and applies migrations.
func createStores(ctx context.Context, env config.Env, logger *zap.Logger) (*stores, error) {
	st := &stores{cleanup: func() {}}

	switch env.Storage {
	case config.StorageMemory:
		st.accounts = memory.NewAccountStore()
		st.txs = memory.NewTransactionStore()
		st.label = "memory"

	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, env.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.accounts = sqlite.NewAccountStore(db)
		st.txs = sqlite.NewTransactionStore(db)
		st.label = "sqlite"
		st.cleanup = func() { _ = db.Close() }

	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, env.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if env.AutoMigrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		st.accounts = pgstore.NewAccountStore(pool)
		st.txs = pgstore.NewTransactionStore(pool)
		st.label = "postgres"
		st.cleanup = pool.Close
	}

	if env.ClickhouseDSN == "" {
		return st, nil
	}

	var (
		conn *chstore.Conn
		err  error
	)
	if env.AutoMigrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, env.ClickhouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, env.ClickhouseDSN)
	}
	if err != nil {
		st.cleanup()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	st.analytics = chstore.NewTransactionStore(conn)
	primary := st.cleanup
	st.cleanup = func() {
		_ = conn.Close()
		primary()
	}
	logger.Info("clickhouse trace analytics enabled")
	return st, nil
}
