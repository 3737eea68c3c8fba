package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
	"google.golang.org/grpc"
	"gorm.io/gorm"
)

type Runtime struct {
	cfg       Config
	logger    *slog.Logger
	db        *gorm.DB
	redis     *redis.Client
	repos     postgres.Repositories
	publisher ports.EventPublisher
	service   *application.Service
	closers   []io.Closer
}

// Option adjusts runtime construction.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends process logs to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

func NewRuntime(ctx context.Context, configPath string, opts ...Option) (*Runtime, error) {
	o := options{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(o.logOutput, cfg.Environment, cfg.LogLevel, cfg.ServiceID)
	slog.SetDefault(logger)
	metrics.Init()

	policy := connectPolicy(cfg)
	var db *gorm.DB
	err = waitFor(ctx, logger, "postgres", policy, func(ctx context.Context) error {
		var connErr error
		db, connErr = postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		return connErr
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	var redisClient *redis.Client
	err = waitFor(ctx, logger, "redis", policy, func(ctx context.Context) error {
		var connErr error
		redisClient, connErr = cache.Connect(ctx, cfg.RedisURL)
		return connErr
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	appender, err := eventadapter.SelectAppender(redisClient, cfg.StreamMode, cfg.StreamMaxLen)
	if err != nil {
		_ = redisClient.Close()
		_ = sqlDB.Close()
		return nil, err
	}
	streamPublisher := eventadapter.NewStreamPublisher(appender, cfg.StreamName, cfg.PublishTimeout, logger)
	var publisher ports.EventPublisher = streamPublisher
	if cfg.LegacyPubSubChannel != "" {
		publisher = eventadapter.NewChannelMirror(streamPublisher, redisClient, cfg.LegacyPubSubChannel, logger)
	}
	logger.InfoContext(ctx, "event stream publisher ready",
		"stream", streamPublisher.Stream(),
		"mode", streamPublisher.Mode(),
		"legacy_channel", cfg.LegacyPubSubChannel,
	)

	closers := []io.Closer{redisClient, sqlDB}
	relay := ports.MessagePublisher(eventadapter.NewLoggingPublisher(logger))
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			"notes.created": cfg.KafkaTopicNoteCreated,
		})
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka relay disabled, using logging publisher", "error", pubErr)
		} else {
			relay = kafkaPublisher
			closers = append([]io.Closer{kafkaPublisher}, closers...)
		}
	}

	repos := postgres.NewRepositories(db)
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName: cfg.ServiceID,
			Retry: application.RetryPolicy{
				MaxRetries:   cfg.PublishMaxRetries,
				InitialDelay: cfg.PublishInitialBackoff,
				MaxDelay:     cfg.PublishMaxBackoff,
				Multiplier:   2.0,
				JitterFactor: 0.2,
			},
			IdempotencyTTL: cfg.IdempotencyTTL,
			EventDedupTTL:  cfg.EventDedupTTL,
		},
		Notes:       repos.Notes,
		Cache:       cache.NewReadCache(redisClient, cfg.CacheKey, cfg.CacheTTL, logger),
		Publisher:   publisher,
		Outbox:      repos.Outbox,
		Idempotency: repos.Idempotency,
		EventDedup:  repos.EventDedup,
		Relay:       relay,
		Logger:      logger,
	})

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		repos:     repos,
		publisher: publisher,
		service:   service,
		closers:   closers,
	}, nil
}

func (r *Runtime) Config() Config { return r.cfg }

func (r *Runtime) Logger() *slog.Logger { return r.logger }

func (r *Runtime) Service() *application.Service { return r.service }

func (r *Runtime) Redis() redis.UniversalClient { return r.redis }

func (r *Runtime) Migrate(ctx context.Context) error {
	return postgres.RunMigrations(ctx, r.db)
}

func (r *Runtime) Close() {
	for _, closer := range r.closers {
		_ = closer.Close()
	}
}

func (r *Runtime) pingPostgres(ctx context.Context) error { return postgres.Ping(ctx, r.db) }

func (r *Runtime) pingRedis(ctx context.Context) error { return r.redis.Ping(ctx).Err() }

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := httpadapter.NewHandler(r.service, map[string]httpadapter.ReadinessCheck{
		"postgres": r.pingPostgres,
		"redis":    r.pingRedis,
	}, r.logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthReporter := grpcadapter.NewHealthReporter(map[string]grpcadapter.Check{
		"postgres": r.pingPostgres,
		"redis":    r.pingRedis,
	}, r.cfg.HealthCheckInterval, r.logger)
	grpcadapter.Register(grpcServer, healthReporter)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.Close()
		return err
	}

	errCh := make(chan error, 2)
	go healthReporter.Run(ctx)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	r.logger.InfoContext(ctx, "notes api listening", "http_port", r.cfg.HTTPPort, "grpc_port", r.cfg.GRPCPort)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", runErr)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	r.Close()
	return runErr
}

// RunWorker redelivers queued events and processes the notes stream until
// the process is signalled.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	consumer := eventadapter.NewStreamConsumer(r.redis, r.cfg.StreamName, r.cfg.ConsumerGroup, r.cfg.ConsumerName, r.cfg.ConsumerBlock)
	if err := waitFor(ctx, r.logger, "redis consumer group", connectPolicy(r.cfg), consumer.EnsureGroup); err != nil {
		return err
	}
	outbox := eventadapter.NewOutboxWorker(r.logger, r.repos.Outbox, r.publisher, r.cfg.OutboxPollInterval, r.cfg.OutboxBatchSize)
	processor := eventadapter.NewConsumerWorker(r.logger, consumer, r.service, r.cfg.ConsumerPollInterval, r.cfg.ConsumerBatchSize)

	r.logger.InfoContext(ctx, "notes worker started",
		"stream", r.cfg.StreamName,
		"group", r.cfg.ConsumerGroup,
		"consumer", r.cfg.ConsumerName,
	)
	// Close runs deferred, after both loops have returned.
	return runLoops(ctx, outbox.Run, processor.Run)
}
