package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"flasharb/config"
	"flasharb/core/events"
	"flasharb/core/state"
	"flasharb/native/fees"
	"flasharb/native/lender"
	"flasharb/native/registry"
	"flasharb/native/settlement"
	"flasharb/native/venue"
	"flasharb/observability"
	"flasharb/observability/logging"
	"flasharb/rpc"
	"flasharb/storage"
)

const authTokenEnv = "FLASHARB_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FLASHARB_ENV"))
	logger := logging.Setup("flasharbd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}

	authToken := strings.TrimSpace(os.Getenv(authTokenEnv))
	if authToken == "" {
		authToken = cfg.AuthToken
	}
	if authToken == "" {
		logger.Error("RPC auth token not configured", slog.String("env", authTokenEnv))
		os.Exit(1)
	}
	logger.Info("RPC auth token loaded", logging.MaskField("token", authToken))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data directory", slog.Any("error", err))
		os.Exit(1)
	}
	store, err := storage.NewStore(filepath.Join(cfg.DataDir, "flasharb.db"), nil)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	node, err := buildNode(cfg, store, logger)
	if err != nil {
		logger.Error("Failed to assemble settlement node", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node.engine, node.registry, node.feePolicy, node.recorder, logger, authToken, cfg.RateLimitRPS)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving JSON-RPC", slog.String("addr", cfg.ListenAddress), slog.String("env", env))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", slog.Any("error", err))
	}
}

type settlementNode struct {
	engine    *settlement.Engine
	registry  *registry.Registry
	feePolicy *fees.Manager
	recorder  *events.Recorder
}

// buildNode wires the ledger, access registry, fee manager, lender pool, and
// settlement engine into a running unit. Registry state persists in bbolt;
// ledger balances are process-local and funded through the pool.
func buildNode(cfg *config.Config, store *storage.Store, logger *slog.Logger) (*settlementNode, error) {
	ledger := state.NewLedger()

	reg, err := registry.NewRegistry(store, cfg.AdminAddress(), cfg.TreasuryAddress())
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	feePolicy := fees.NewManager()
	persisted, found, err := store.FeePolicy()
	if err != nil {
		return nil, fmt.Errorf("fee policy: %w", err)
	}
	if !found {
		persisted = fees.Policy{
			Enabled:   cfg.Fees.Enabled,
			FeeBps:    cfg.Fees.FeeBps,
			Recipient: cfg.FeeRecipientAddress(),
		}
	}
	if persisted.Enabled {
		if err := feePolicy.Configure(persisted); err != nil {
			return nil, fmt.Errorf("fee policy: %w", err)
		}
	}
	// Runtime fee changes over RPC survive restarts.
	feePolicy.SetPersistFunc(store.PutFeePolicy)

	pool, err := lender.NewPool(cfg.LenderAddress(), ledger, cfg.Lender.PremiumBps)
	if err != nil {
		return nil, fmt.Errorf("lender pool: %w", err)
	}

	engine, err := settlement.NewEngine(cfg.EngineAddress(), ledger, reg, feePolicy, pool)
	if err != nil {
		return nil, fmt.Errorf("settlement engine: %w", err)
	}
	pool.SetReceiver(engine)

	recorder := events.NewRecorder(1024)
	emitter := events.LogEmitter{
		Logger: logger,
		Next: observability.CycleObserver{
			Metrics: observability.Metrics(),
			Next:    recorder,
		},
	}
	engine.SetEmitter(emitter)
	reg.SetEmitter(emitter)

	for _, target := range cfg.Venues {
		addr, err := config.ParseVenueAddress(target)
		if err != nil {
			return nil, fmt.Errorf("venue: %w", err)
		}
		swap, err := venue.NewSwap(addr, ledger)
		if err != nil {
			return nil, fmt.Errorf("venue: %w", err)
		}
		engine.RegisterVenue(addr, swap)
		logger.Info("registered swap venue", slog.String("address", addr.Hex()))
	}

	return &settlementNode{engine: engine, registry: reg, feePolicy: feePolicy, recorder: recorder}, nil
}
