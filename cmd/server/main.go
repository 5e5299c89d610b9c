// Command server runs the trust assessment orchestrator: the HTTP API, the
// agent communication channels, and the assessment pipeline behind them.
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

	"github.com/jackc/pgx/v5/pgxpool"

	"trustplane/internal/agentcomm"
	agentmetrics "trustplane/internal/agentcomm/metrics"
	"trustplane/internal/assessment/adapters"
	"trustplane/internal/assessment/consolidator"
	"trustplane/internal/assessment/credit"
	"trustplane/internal/assessment/events"
	assessmetrics "trustplane/internal/assessment/metrics"
	"trustplane/internal/assessment/orchestrator"
	"trustplane/internal/assessment/ports"
	"trustplane/internal/assessment/registry"
	"trustplane/internal/assessment/store/cache"
	"trustplane/internal/assessment/store/history"
	"trustplane/internal/platform/config"
	"trustplane/internal/platform/httpserver"
	"trustplane/internal/platform/kafka"
	"trustplane/internal/platform/logger"
	platformmetrics "trustplane/internal/platform/metrics"
	"trustplane/internal/platform/redis"
	httptransport "trustplane/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Agent channels. Direct and broker channels are optional; the in-process
	// channel always exists so embedded agents work without configuration.
	var (
		channels  []agentcomm.Channel
		direct    *agentcomm.DirectChannel
		authority *agentcomm.TokenAuthority
	)
	if cfg.Transport.EnableDirectChannel {
		authority = agentcomm.NewTokenAuthority(cfg.Transport.AgentAuthSigningKey)
		direct = agentcomm.NewDirectChannel(authority, time.Duration(cfg.Transport.SendTimeoutSeconds)*time.Second)
		channels = append(channels, direct)
	}
	if cfg.Kafka.Enabled() {
		broker, err := agentcomm.NewBrokerChannel(ctx, cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("broker channel: %w", err)
		}
		channels = append(channels, broker)
	}
	channels = append(channels, agentcomm.NewInprocChannel())

	comm, err := agentcomm.New(agentcomm.OrchestratorID, channels,
		agentcomm.WithLogger(log),
		agentcomm.WithMetrics(agentmetrics.New()),
		agentcomm.WithDefaultTTL(cfg.Transport.DefaultMessageTTLSeconds),
	)
	if err != nil {
		return fmt.Errorf("communicator: %w", err)
	}
	if err := comm.Initialize(ctx); err != nil {
		return fmt.Errorf("communicator: %w", err)
	}
	defer comm.Close()

	// Agent registry, fed by registration and heartbeat messages. An agent
	// that misses three heartbeat intervals is reported as stale.
	staleAfter := 3 * time.Duration(cfg.Transport.AgentHeartbeatIntervalSeconds) * time.Second
	agents := registry.New(registry.WithLogger(log), registry.WithStaleAfter(staleAfter))
	var endpoints registry.DirectEndpoints
	if direct != nil {
		endpoints = direct
	}
	registry.NewHandlers(agents, endpoints).Attach(comm)
	platformmetrics.RegisterProcessGauges(agents.Count, comm.PendingCount)

	// Credit bureaus. The deterministic local providers stand in until real
	// bureau integrations are configured.
	creditSvc, err := credit.New([]ports.CreditProvider{
		adapters.LocalCreditProvider{ProviderName: "serasa", BaseScore: 550},
		adapters.LocalCreditProvider{ProviderName: "spc", BaseScore: 500},
		adapters.LocalCreditProvider{ProviderName: "boa-vista", BaseScore: 450},
	}, credit.WithLogger(log))
	if err != nil {
		return fmt.Errorf("credit service: %w", err)
	}

	// Domain evaluators: registered agents take precedence, the local
	// heuristics keep assessments flowing when none are registered.
	agentTimeout := time.Duration(cfg.Transport.SendTimeoutSeconds) * time.Second
	identity := &adapters.IdentityEvaluatorWithFallback{
		Remote: &adapters.RemoteIdentityEvaluator{Messenger: comm, Directory: agents, Timeout: agentTimeout},
		Local:  adapters.LocalIdentityEvaluator{},
	}
	fraud := &adapters.FraudEngineWithFallback{
		Remote: &adapters.RemoteFraudEngine{Messenger: comm, Directory: agents, Timeout: agentTimeout},
		Local:  adapters.LocalFraudEngine{},
	}
	risk := &adapters.RiskEngineWithFallback{
		Remote: &adapters.RemoteRiskEngine{Messenger: comm, Directory: agents, Timeout: agentTimeout},
		Local:  adapters.LocalRiskEngine{},
	}

	// Response cache: Redis when configured, in-memory otherwise.
	var respCache ports.ResponseCache
	if cfg.Cache.EnableResultCaching {
		redisClient, err := redis.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if redisClient != nil {
			defer redisClient.Close()
			respCache, err = cache.NewRedis(redisClient)
			if err != nil {
				return fmt.Errorf("redis cache: %w", err)
			}
			log.Info("result cache backed by redis")
		} else {
			respCache = cache.NewMemory()
			log.Info("result cache in memory, configure TP_REDIS_URL for shared caching")
		}
	}

	// Assessment history, optional.
	var historyStore ports.HistoryStore
	if cfg.Postgres.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		pg, err := history.NewPostgres(pool)
		if err != nil {
			return fmt.Errorf("history store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
		historyStore = pg
	}

	// Completion events, published when Kafka is configured.
	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("event producer: %w", err)
		}
		defer producer.Close()
		if err := producer.EnsureTopics(ctx, cfg.Kafka.EventTopic); err != nil {
			return fmt.Errorf("event topic: %w", err)
		}
		publisher, err = events.New(producer, cfg.Kafka.EventTopic, events.WithLogger(log))
		if err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		DefaultTimeout: time.Duration(cfg.Orchestrator.DefaultTimeoutSeconds) * time.Second,
		Parallel:       cfg.Orchestrator.EnableParallelProcessing,
		MaxConcurrent:  cfg.Orchestrator.MaxConcurrentRequests,
		EnableCaching:  cfg.Cache.EnableResultCaching,
		CacheTTL:       cfg.Cache.TTL(),
		EnabledRegions: cfg.Orchestrator.EnabledRegions,
	}, orchestrator.Deps{
		Identity:     identity,
		Credit:       creditSvc,
		Fraud:        fraud,
		Compliance:   adapters.LocalComplianceChecker{},
		Risk:         risk,
		Consolidator: consolidator.New(consolidator.WithTrustScoreThreshold(cfg.Orchestrator.TrustScoreThreshold)),
		Cache:        respCache,
		Events:       publisher,
		History:      historyStore,
		Agents:       agents,
	}, orchestrator.WithLogger(log), orchestrator.WithMetrics(assessmetrics.New()))
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	var (
		sink      httptransport.MessageSink
		validator httptransport.TokenValidator
	)
	if direct != nil {
		sink = direct
		validator = authority
	}
	handler := httptransport.New(orch, sink, validator, log)
	srv := httpserver.New(cfg.Addr, handler.Router())

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
