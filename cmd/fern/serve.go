package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/startup"
)

const shutdownTimeout = 30 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the maps-import consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a := newApp(cfg, logger)

		serverRequires := []string{"services"}
		if serveMigrate {
			a.startup.Add(&startup.Func{
				Name:     "migrations",
				Requires: []string{"database"},
				OnStart:  func(context.Context) error { return a.migrate() },
			})
			serverRequires = append(serverRequires, "migrations")
		}

		var srv *server.Server
		a.startup.Add(&startup.Func{
			Name:     "http-server",
			Requires: serverRequires,
			OnStart: func(ctx context.Context) error {
				srv = a.newServer()
				return srv.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				if srv == nil {
					return nil
				}
				return srv.Stop(ctx)
			},
		})

		if cfg.Kafka.ConsumerEnabled {
			var consumer *kafka.Consumer
			a.startup.Add(&startup.Func{
				Name:     "maps-import-consumer",
				Requires: serverRequires,
				OnStart: func(ctx context.Context) error {
					var onFailure kafka.FailureHandler
					if a.dlq != nil {
						onFailure = importer.ParkFailed(a.dlq)
					}
					consumer = kafka.NewConsumer(kafka.ConsumerConfig{
						Brokers:       cfg.Kafka.Brokers,
						Topic:         cfg.Kafka.MapsImportTopic,
						ConsumerGroup: cfg.Kafka.ConsumerGroup,
					}, logger, a.importer.HandleMessage, onFailure)
					return consumer.Start(ctx)
				},
				OnStop: func(context.Context) error {
					if consumer == nil {
						return nil
					}
					return consumer.Stop()
				},
			})
		}

		if err := a.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		logger.Info("Shutting down")

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.Stop(stopCtx)
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func (a *app) newServer() *server.Server {
	checks := map[string]handlers.PingFunc{
		"database": a.db.PingContext,
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	if a.graph != nil {
		checks["graph"] = a.graph.VerifyConnectivity
	}
	health := handlers.NewHealthChecker(a.cfg.Version, checks)

	routes := []server.Routes{
		handlers.NewImportHandler(a.importer, a.ledger, a.undo),
		handlers.NewDuplicateHandler(a.merging),
		handlers.NewNormalizationHandler(a.normalizer),
	}
	if a.dlq != nil {
		routes = append(routes, handlers.NewDLQHandler(a.dlq))
	}
	if a.lineage != nil {
		routes = append(routes, handlers.NewLineageHandler(a.lineage))
	}

	return server.New(a.logger, server.Config{
		ServiceName:       a.cfg.AppName,
		Port:              a.cfg.Port,
		ReadTimeout:       a.cfg.HTTPServer.ReadTimeout,
		WriteTimeout:      a.cfg.HTTPServer.WriteTimeout,
		IdleTimeout:       a.cfg.HTTPServer.IdleTimeout,
		ReadHeaderTimeout: a.cfg.HTTPServer.ReadHeaderTimeout,
		MaxHeaderBytes:    a.cfg.HTTPServer.MaxHeaderBytes,
		BodyLimit:         a.cfg.HTTPServer.BodyLimit,
	}, health, routes...)
}
