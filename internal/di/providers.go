package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"SignalCoord/internal/domain/repository"
	domsvc "SignalCoord/internal/domain/service"
	"SignalCoord/internal/handler/api"
	mid "SignalCoord/internal/middleware"
	internalrepo "SignalCoord/internal/repository"
	"SignalCoord/internal/service/arbiter"
	"SignalCoord/internal/usecase"
	"SignalCoord/pkg/cache"
	"SignalCoord/pkg/config"
	xhttp "SignalCoord/pkg/http"
	pkgkafka "SignalCoord/pkg/kafka"
	applogger "SignalCoord/pkg/logger"
	"SignalCoord/pkg/metrics"
	"SignalCoord/pkg/server"
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreate),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(log)))
	return consumer, nil
}

// ProvideCache connects to Redis when enabled. Otherwise an in-process cache
// is used and reliability does not survive a restart.
func ProvideCache(cfg *config.Config, log *applogger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, reliability kept in memory")
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(64)), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideReliabilityStore keeps the reliability snapshot in the cache.
func ProvideReliabilityStore(c cache.Service, cfg *config.Config) repository.ReliabilityStore {
	return internalrepo.NewCacheReliabilityStore(c, cfg.Redis.SnapshotTTL)
}

// ProvideArbiter returns the HTTP oracle client, or nil when no URL is set.
func ProvideArbiter(cfg *config.Config, log *applogger.Logger) (domsvc.Arbiter, error) {
	if cfg.Arbiter.URL == "" {
		log.Warn("no arbitration oracle configured, conflicts resolve to hold")
		return nil, nil
	}
	a, err := arbiter.New(arbiter.Config{
		URL:             cfg.Arbiter.URL,
		APIKey:          cfg.Arbiter.APIKey,
		Model:           cfg.Arbiter.Model,
		Temperature:     cfg.Arbiter.Temperature,
		HTTPTimeout:     cfg.Arbiter.HTTPTimeout,
		BreakerFailures: cfg.Arbiter.BreakerFailures,
		BreakerCooldown: cfg.Arbiter.BreakerCooldown,
	}, log.With(applogger.String("component", "arbiter")))
	if err != nil {
		return nil, fmt.Errorf("arbiter: %w", err)
	}
	return a, nil
}

// ProvideDecisionHub creates the WebSocket decision stream, or nil when disabled.
func ProvideDecisionHub(cfg *config.Config, log *applogger.Logger) *internalrepo.DecisionHub {
	if !cfg.WebSocket.Enabled {
		return nil
	}
	return internalrepo.NewDecisionHub(log,
		internalrepo.WithHubSendBuffer(cfg.WebSocket.SendBuffer),
		internalrepo.WithHubPingInterval(cfg.WebSocket.PingInterval),
	)
}

// ProvideDecisionBus fans decisions out to Kafka and the WebSocket hub,
// whichever are configured.
func ProvideDecisionBus(producer *pkgkafka.Producer, hub *internalrepo.DecisionHub) repository.DecisionBus {
	var buses []repository.DecisionBus
	if producer != nil {
		buses = append(buses, internalrepo.NewKafkaDecisionBus(producer))
	}
	if hub != nil {
		buses = append(buses, hub)
	}
	return internalrepo.NewFanoutBus(buses...)
}

// ProvideCoordinator creates the decision coordinator.
func ProvideCoordinator(
	cfg *config.Config,
	bus repository.DecisionBus,
	arb domsvc.Arbiter,
	store repository.ReliabilityStore,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Coordinator {
	cc := cfg.Coordinator
	return usecase.NewCoordinator(usecase.CoordinatorConfig{
		ConsensusThreshold: cc.ConsensusThreshold,
		MinAgents:          cc.MinAgents,
		ScoreDecay:         cc.ScoreDecay,
		ReturnsWindow:      cc.ReturnsWindow,
		ConflictTimeout:    cc.ConflictTimeout,
		ConfidenceFloor:    cc.ConfidenceFloor,
		BufferCapacity:     cc.BufferCapacity,
		DecisionWindow:     cc.DecisionWindow,
		PublishTimeout:     cc.PublishTimeout,
		Topic:              cc.Topic,
	}, usecase.CoordinatorDeps{
		Bus:     bus,
		Arbiter: arb,
		Store:   store,
		Metrics: m,
		Logger:  log.With(applogger.String("component", "coordinator")),
	})
}

// ProvideIntakePipeline puts validation and per-agent throttling in front of
// the coordinator's buffer.
func ProvideIntakePipeline(coord *usecase.Coordinator, m repository.Metrics, cfg *config.Config) *mid.IntakePipeline {
	return mid.NewIntakePipeline(coord, m,
		mid.WithAgentRate(cfg.Intake.AgentRate, cfg.Intake.AgentBurst),
	)
}

// ProvideCycleRunner creates the periodic cycle driver.
func ProvideCycleRunner(coord *usecase.Coordinator, cfg *config.Config, log *applogger.Logger) *usecase.CycleRunner {
	return usecase.NewCycleRunner(coord, cfg.Coordinator.CycleInterval, log)
}

// ProvideHTTPHandler creates the coordinator API handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	coord *usecase.Coordinator,
	pipe *mid.IntakePipeline,
	hub *internalrepo.DecisionHub,
) *api.CoordinatorEchoHandler {
	var stream api.StreamServer
	if hub != nil {
		stream = hub
	}
	return api.NewCoordinatorEchoHandler(log, coord, pipe, stream)
}

// ProvideHTTPServer creates the Echo server with the API routes.
func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, h *api.CoordinatorEchoHandler) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithSlowRequestThreshold(cfg.Server.SlowRequest),
		xhttp.WithServerLogger(log.With(applogger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	coord *usecase.Coordinator,
	runner *usecase.CycleRunner,
	httpServer *xhttp.Server,
	pipe *mid.IntakePipeline,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	bus repository.DecisionBus,
	c cache.Service,
	m repository.Metrics,
) *server.App {
	opts := []server.Option{
		server.WithCloser("decision_bus", bus),
		server.WithCloser("cache", c),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer,
			usecase.NewKafkaSignalsHandler(cfg.Kafka.SignalsTopic, pipe, m),
			usecase.NewKafkaOutcomesHandler(cfg.Kafka.OutcomesTopic, coord, m),
		))
	}
	if producer != nil && cfg.Logging.CollectTopic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Logging.CollectEvery,
			Topic:        cfg.Logging.CollectTopic,
			Publisher:    producer,
		})
	}
	return server.New(cfg, log, coord, runner, httpServer, opts...)
}
