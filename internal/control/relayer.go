package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/relayer/internal/core/config"
	redisclient "github.com/vietddude/relayer/internal/infra/redis"
	"github.com/vietddude/relayer/internal/infra/rpc"
	"github.com/vietddude/relayer/internal/infra/storage"
	filestore "github.com/vietddude/relayer/internal/infra/storage/file"
	"github.com/vietddude/relayer/internal/infra/storage/postgres"
	"github.com/vietddude/relayer/internal/relaying/executor"
	"github.com/vietddude/relayer/internal/relaying/health"
	"github.com/vietddude/relayer/internal/relaying/pipeline"
)

// Relayer is the application struct that wires the connector, store,
// executor and pipeline together and manages their lifecycle.
type Relayer struct {
	cfg *config.AppConfig
	log *slog.Logger

	connector    *rpc.Connector
	pipeline     *pipeline.Pipeline
	healthServer *health.Server
	store        storage.ProcessedStore
	db           *postgres.DB
	redisClient  *redisclient.Client
	grpcExec     *executor.GRPCExecutor

	done chan error
}

// NewRelayer initializes all dependencies. Connection exhaustion and
// binding failures here are fatal and propagate to the process boundary.
func NewRelayer(ctx context.Context, cfg *config.AppConfig) (*Relayer, error) {
	log := slog.Default()

	r := &Relayer{
		cfg:  cfg,
		log:  log,
		done: make(chan error, 1),
	}

	// 1. Source chain connection (retrying; fatal on exhaustion)
	connector, err := rpc.Connect(ctx,
		cfg.Source.RPCURL, cfg.Source.ConnectRetries, cfg.Source.RetryDelay, log)
	if err != nil {
		return nil, err
	}
	r.connector = connector

	// 2. Contract binding (misconfiguration; fatal, never retried)
	contract, err := connector.Contract(cfg.Source.ContractAddress, rpc.TokensLocked)
	if err != nil {
		return nil, err
	}
	log.Info("bound bridge contract",
		"address", contract.Address(), "event", rpc.TokensLocked.Name)

	// 3. Durable state store
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		r.db = db

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		r.store = postgres.NewStore(db)
		log.Info("using PostgreSQL state store")
	} else {
		r.store = filestore.New(cfg.State.Path, log)
		log.Info("using file state store", "path", cfg.State.Path)
	}

	// 4. Dead-letter queue (required for the deadletter failure policy)
	var deadLetter pipeline.DeadLetterSink
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		r.redisClient = rc
		deadLetter = rc
	}
	if cfg.Pipeline.OnFailure == "deadletter" && deadLetter == nil {
		return nil, fmt.Errorf("pipeline.on_failure=deadletter requires redis.url")
	}

	// 5. Relay executor
	var exec executor.Executor
	switch cfg.Executor.Type {
	case "grpc":
		gexec, err := executor.NewGRPC(ctx, cfg.Executor.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to init grpc executor: %w", err)
		}
		r.grpcExec = gexec
		exec = gexec
	default:
		exec = executor.NewSimulated(log, cfg.Executor.Delay)
	}

	// 6. Pipeline
	r.pipeline = pipeline.New(pipeline.Config{
		Source:       contract,
		Probe:        connector,
		Store:        r.store,
		Executor:     exec,
		DeadLetter:   deadLetter,
		PollInterval: cfg.Pipeline.PollInterval,
		OnFailure:    pipeline.FailurePolicy(cfg.Pipeline.OnFailure),
		MaxRetries:   cfg.Pipeline.MaxRetries,
		Log:          log,
	})

	// 7. Health/metrics server
	r.healthServer = health.NewServer(connector, r.pipeline.State, r.store, cfg.Server.Port)

	return r, nil
}

// Start launches the health server and the relay loop.
func (r *Relayer) Start(ctx context.Context) error {
	go func() {
		if err := r.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("health server failed", "error", err)
		}
	}()

	go func() {
		r.done <- r.pipeline.Run(ctx)
	}()

	r.log.Info("relayer started",
		"contract", r.cfg.Source.ContractAddress,
		"chain_id", r.connector.ChainID(),
		"port", r.cfg.Server.Port)
	return nil
}

// Done delivers the relay loop's exit result. A non-nil value means the
// loop terminated on its own (lost connectivity) and the process should
// exit with an error status.
func (r *Relayer) Done() <-chan error {
	return r.done
}

// Stop shuts everything down, letting an in-flight cycle finish first.
func (r *Relayer) Stop(ctx context.Context) error {
	_ = r.pipeline.Stop()

	if err := r.healthServer.Stop(ctx); err != nil {
		r.log.Warn("health server shutdown failed", "error", err)
	}
	if r.grpcExec != nil {
		_ = r.grpcExec.Close()
	}
	if r.redisClient != nil {
		_ = r.redisClient.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}

	return nil
}
