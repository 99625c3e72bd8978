package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vietddude/ingester/internal/core/config"
	"github.com/vietddude/ingester/internal/core/worker"
	"github.com/vietddude/ingester/internal/indexing/emitter"
	"github.com/vietddude/ingester/internal/indexing/health"
	"github.com/vietddude/ingester/internal/indexing/indexer"
	"github.com/vietddude/ingester/internal/indexing/metrics"
	redisclient "github.com/vietddude/ingester/internal/infra/redis"
	"github.com/vietddude/ingester/internal/infra/storage"
	"github.com/vietddude/ingester/internal/infra/storage/memory"
	"github.com/vietddude/ingester/internal/infra/storage/postgres"
	"github.com/vietddude/ingester/internal/ingestion"
)

// Ingester is the main application struct that manages the pipeline lifecycle.
type Ingester struct {
	cfg          Config
	client       *ingestion.Client
	metrics      *metrics.IngestionMetrics
	pipelines    []*indexer.Pipeline
	pruner       *worker.Pruner
	emitter      emitter.Emitter
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the application configuration.
type Config struct {
	Port      int
	GRPCPort  int
	Ingestion config.IngestionConfig
	Pipelines []config.PipelineConfig
	Database  postgres.Config
	Redis     redisclient.Config
	Logger    *slog.Logger
}

// ConfigFromApp maps the loaded application config onto the control config.
func ConfigFromApp(cfg *config.AppConfig) Config {
	return Config{
		Port:      cfg.Server.Port,
		GRPCPort:  cfg.Server.GRPCPort,
		Ingestion: cfg.Ingestion,
		Pipelines: cfg.Pipelines,
		Database:  cfg.Database,
		Redis:     cfg.Redis,
	}
}

type repositories struct {
	cursors     storage.CursorRepository
	checkpoints storage.CheckpointRepository
	failed      storage.FailedCheckpointRepository
}

// NewIngester creates a new Ingester instance with all dependencies initialized.
func NewIngester(cfg Config) (*Ingester, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// 1. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 2. Ingestion client
	opts := []ingestion.Option{
		ingestion.WithLogger(log),
		ingestion.WithRequestTimeout(cfg.Ingestion.RequestTimeout),
	}
	client, err := ingestion.NewClient(cfg.Ingestion.RemoteStoreURL, m, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion client: %w", err)
	}

	ing := &Ingester{
		cfg:     cfg,
		client:  client,
		metrics: m,
		emitter: emitter.NewLogEmitter(log, slog.LevelDebug),
		log:     log,
	}

	// 3. Storage
	repos, err := ing.initStorage()
	if err != nil {
		return nil, err
	}

	// 4. Pipelines
	sources := make([]health.StatusSource, 0, len(cfg.Pipelines))
	for _, pc := range cfg.Pipelines {
		p := indexer.NewPipeline(indexer.Config{
			Name:            pc.Name,
			Fetcher:         client,
			Emitter:         ing.emitter,
			CursorRepo:      repos.cursors,
			CheckpointRepo:  repos.checkpoints,
			FailedRepo:      repos.failed,
			Metrics:         m,
			Logger:          log,
			StartCheckpoint: pc.StartCheckpoint,
			EndCheckpoint:   pc.EndCheckpoint,
			Concurrency:     pc.Concurrency,
			PollInterval:    pc.PollInterval,
			FetchTimeout:    pc.FetchTimeout,
		})
		ing.pipelines = append(ing.pipelines, p)
		sources = append(sources, p)
	}

	// 5. Pruner
	if cfg.Ingestion.RetentionPeriod > 0 {
		ing.pruner = worker.NewPruner(cfg.Ingestion.RetentionPeriod, repos.checkpoints, log)
	}

	// 6. Health
	ing.healthMon = health.NewMonitor(sources, repos.failed, health.DefaultThresholds())
	if ing.db != nil {
		ing.healthMon.AddCheck("postgres", ing.db.Health)
	}
	if ing.redisClient != nil {
		ing.healthMon.AddCheck("redis", ing.redisClient.Health)
	}
	ing.healthServer = health.NewServer(ing.healthMon, cfg.Port, reg)
	if cfg.GRPCPort > 0 {
		ing.grpcServer = health.NewGRPCServer(ing.healthMon, cfg.GRPCPort)
	}

	return ing, nil
}

func (i *Ingester) initStorage() (*repositories, error) {
	repos := &repositories{}

	if i.cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), i.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		i.db = db
		repos.cursors = postgres.NewCursorRepo(db)
		repos.checkpoints = postgres.NewCheckpointRepo(db)
		repos.failed = postgres.NewFailedCheckpointRepo(db)
		i.log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		repos.cursors = memory.NewCursorRepo(store)
		repos.checkpoints = memory.NewCheckpointRepo(store)
		repos.failed = memory.NewFailedRepo(store)
		i.log.Info("Using Memory storage")
	}

	if i.cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(i.cfg.Redis)
		if err != nil {
			i.log.Warn("Failed to connect to Redis, keeping failed checkpoints in primary storage", "error", err)
		} else {
			i.redisClient = rc
			repos.failed = redisclient.NewFailedCheckpointRepo(rc)
			i.log.Info("Using Redis for failed checkpoints")
		}
	}

	return repos, nil
}

// Client returns the ingestion client.
func (i *Ingester) Client() *ingestion.Client {
	return i.client
}

// Registry returns the metrics registry served on /metrics.
func (i *Ingester) Registry() *prometheus.Registry {
	return i.metrics.Registry
}

// Status returns the status of every pipeline.
func (i *Ingester) Status() []indexer.Status {
	out := make([]indexer.Status, 0, len(i.pipelines))
	for _, p := range i.pipelines {
		out = append(out, p.GetStatus())
	}
	return out
}

// Health returns the current health report.
func (i *Ingester) Health(ctx context.Context) *health.HealthReport {
	return i.healthMon.CheckHealth(ctx)
}

// Start starts the pipelines and their supporting services. It does not block.
func (i *Ingester) Start(ctx context.Context) error {
	ctx, i.cancel = context.WithCancel(ctx)

	// Start Health Server
	go func() {
		if err := i.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.log.Error("Health server failed", "error", err)
		}
	}()

	if i.grpcServer != nil {
		go func() {
			if err := i.grpcServer.Start(); err != nil {
				i.log.Error("gRPC health server failed", "error", err)
			}
		}()
		go i.grpcServer.Sync(ctx, 10*time.Second)
	}

	// Start DB Metrics Collector
	if i.db != nil {
		i.db.StartMetricsCollector(ctx, i.metrics.DBConnectionPoolUsage)
	}

	for _, p := range i.pipelines {
		i.log.Info("Starting pipeline", "pipeline", p.Name())
		i.wg.Add(1)
		go func(p *indexer.Pipeline) {
			defer i.wg.Done()
			if err := p.Start(ctx); err != nil {
				i.log.Error("Pipeline failed", "pipeline", p.Name(), "error", err)
			}
		}(p)
	}

	if i.pruner != nil {
		i.log.Info("Starting pruner", "retention", i.cfg.Ingestion.RetentionPeriod)
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.pruner.Start(ctx)
		}()
	}

	return nil
}

// Wait blocks until every pipeline has returned.
func (i *Ingester) Wait() {
	i.wg.Wait()
}

// Stop stops the pipelines and releases resources.
func (i *Ingester) Stop(ctx context.Context) error {
	i.log.Info("Stopping Ingester...")

	for _, p := range i.pipelines {
		_ = p.Stop()
	}
	if i.cancel != nil {
		i.cancel()
	}

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		i.log.Warn("Timed out waiting for pipelines to stop")
	}

	var errs []error
	if err := i.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop health server: %w", err))
	}
	if i.grpcServer != nil {
		i.grpcServer.Stop()
	}
	if err := i.emitter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close emitter: %w", err))
	}
	if i.redisClient != nil {
		if err := i.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}

	return errors.Join(errs...)
}
