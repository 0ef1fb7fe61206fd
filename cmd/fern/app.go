package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/importoperation"
	"github.com/Ramsey-B/fern/internal/repositories/lead"
	"github.com/Ramsey-B/fern/internal/repositories/normalizationjob"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/executor"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/ledger"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/normalization"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/undo"
)

// app owns the connections and services shared by every command.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer

	dlq        *redis.DeadLetterQueue
	lineage    *graph.LineageService
	ledger     *ledger.Ledger
	importer   *importer.Service
	undo       *undo.Controller
	merging    *merging.Service
	normalizer *normalization.Service
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.New(logger, cfg.StartupMaxAttempts),
	}

	var stopTracing func(context.Context) error
	a.startup.Add(&startup.Func{
		Name: "tracing",
		OnStart: func(ctx context.Context) error {
			var err error
			stopTracing, err = tracing.Setup(ctx, tracing.Config{
				ServiceName: cfg.AppName,
				Exporter:    cfg.Tracing.Exporter,
				SampleRatio: cfg.Tracing.SampleRatio,
				OTLP: exporters.OTLPConfig{
					Endpoint: cfg.Tracing.Endpoint,
					Protocol: cfg.Tracing.Protocol,
					Insecure: cfg.Tracing.Insecure,
					Timeout:  cfg.Tracing.Timeout,
				},
			})
			return err
		},
		OnStop: func(ctx context.Context) error {
			if stopTracing == nil {
				return nil
			}
			return stopTracing(ctx)
		},
	})

	a.startup.Add(&startup.Func{
		Name: "database",
		OnStart: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.ConnectionConfig{
				Host:            cfg.Database.Host,
				Port:            cfg.Database.Port,
				User:            cfg.Database.UserName,
				Password:        cfg.Database.Password,
				Name:            cfg.Database.Name,
				SSLMode:         cfg.Database.SSLMode,
				MaxOpenConns:    cfg.Database.MaxOpenConns,
				MaxIdleConns:    cfg.Database.MaxIdleConns,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		OnStop: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	if cfg.Redis.Enabled {
		a.startup.Add(&startup.Func{
			Name: "redis",
			OnStart: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.Redis.Host,
					Port:     cfg.Redis.Port,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				}, logger)
				if err != nil {
					return err
				}
				a.redis = client
				a.dlq = redis.NewDeadLetterQueue(client, cfg.Redis.DLQStream, logger)
				return nil
			},
			OnStop: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if cfg.GraphDB.Enabled {
		a.startup.Add(&startup.Func{
			Name: "graph",
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDB.Host,
					Port:     cfg.GraphDB.Port,
					Username: cfg.GraphDB.User,
					Password: cfg.GraphDB.Password,
				}, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if a.graph == nil {
					return nil
				}
				return a.graph.Close(ctx)
			},
		})
	}

	if cfg.Kafka.ProducerEnabled {
		a.startup.Add(&startup.Func{
			Name: "kafka-producer",
			OnStart: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.Kafka.Brokers,
					Topic:        cfg.Kafka.EventsTopic,
					BatchSize:    cfg.Kafka.BatchSize,
					BatchTimeout: cfg.Kafka.BatchTimeout,
					RequiredAcks: cfg.Kafka.RequiredAcks,
					Compression:  cfg.Kafka.Compression,
				}, logger)
				return nil
			},
			OnStop: func(context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	a.startup.Add(&startup.Func{
		Name:     "services",
		Requires: a.infrastructure(),
		OnStart: func(context.Context) error {
			a.build()
			return nil
		},
	})

	return a
}

// infrastructure lists the registered connection dependencies.
func (a *app) infrastructure() []string {
	names := []string{"tracing", "database"}
	if a.cfg.Redis.Enabled {
		names = append(names, "redis")
	}
	if a.cfg.GraphDB.Enabled {
		names = append(names, "graph")
	}
	if a.cfg.Kafka.ProducerEnabled {
		names = append(names, "kafka-producer")
	}
	return names
}

// build wires repositories into services. Optional collaborators stay nil
// interfaces when their backend is disabled.
func (a *app) build() {
	leads := lead.NewRepository(a.db, a.logger)
	operations := importoperation.NewRepository(a.db, a.logger)
	jobs := normalizationjob.NewRepository(a.db, a.logger)

	engine := matching.NewEngine(matching.EngineConfig{
		FuzzyThreshold: a.cfg.Matching.FuzzyThreshold,
		EnableFuzzy:    a.cfg.Matching.EnableFuzzy,
	})

	a.ledger = ledger.New(a.logger, operations, ledger.Config{
		CreateAttempts:   a.cfg.Import.LedgerCreateAttempts,
		CreateRetryDelay: a.cfg.Import.LedgerRetryDelay,
	})
	exec := executor.New(a.logger, leads, executor.Config{
		BatchSize:   a.cfg.Import.BatchSize,
		Parallelism: a.cfg.Import.Parallelism,
	})
	a.normalizer = normalization.NewService(a.logger, leads, jobs, a.cfg.Normalization.PageSize)

	var locker importer.Locker
	if a.redis != nil {
		locker = redis.NewLocker(a.redis, a.cfg.Redis.LockPrefix)
	}

	var (
		importLineage importer.Lineage
		undoLineage   undo.Lineage
		mergeLineage  merging.Lineage
	)
	if a.graph != nil {
		a.lineage = graph.NewLineageService(a.graph, a.logger)
		importLineage, undoLineage, mergeLineage = a.lineage, a.lineage, a.lineage
	}

	var (
		importEvents importer.Events
		undoEvents   undo.Events
		mergeEvents  merging.Events
	)
	if a.producer != nil {
		emitter := events.NewEmitter(a.producer, a.logger)
		importEvents, undoEvents, mergeEvents = emitter, emitter, emitter
	}

	a.importer = importer.NewService(a.logger, leads, engine, a.ledger, exec, a.normalizer, locker, importLineage, importEvents, importer.Config{
		LockTTL: a.cfg.Import.LockTTL,
	})
	a.undo = undo.NewController(a.logger, leads, a.ledger, undoLineage, undoEvents, locker, undo.Config{
		Window:                a.cfg.Undo.Window,
		ModificationTolerance: a.cfg.Undo.ModificationTolerance,
		PageSize:              a.cfg.Undo.PageSize,
		DeleteBatchSize:       a.cfg.Undo.DeleteBatchSize,
		LockTTL:               a.cfg.Undo.LockTTL,
	})
	a.merging = merging.NewService(a.logger, leads, engine, mergeLineage, mergeEvents)
}

func (a *app) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return fmt.Errorf("start fern: %w", err)
	}
	return nil
}

func (a *app) Stop(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("Shutdown finished with errors")
	}
}

// run starts the app for a one-shot command and stops it afterwards.
func run(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a := newApp(cfg, logger)
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(context.WithoutCancel(ctx))
	return fn(ctx, a)
}
