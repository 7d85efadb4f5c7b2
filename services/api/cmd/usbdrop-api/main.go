package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"usbdrop/pkg/bus"
	"usbdrop/pkg/canary"
	"usbdrop/pkg/config"
	"usbdrop/pkg/db"
	"usbdrop/pkg/geoip"
	gos3 "usbdrop/pkg/s3"
	"usbdrop/pkg/slack"
	"usbdrop/pkg/telemetry"
	"usbdrop/services/api"
	"usbdrop/services/builder"
	"usbdrop/services/ingest"
)

func main() {
	if err := run("usbdrop-api"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
			}
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	orm, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}

	eventBus, err := bus.Connect(cfg.Bus.URL)
	if err != nil {
		logger.Printf("WARN %s: event bus unavailable: %v", serviceName, err)
	}
	defer eventBus.Close()

	var s3Client *gos3.Client
	if cfg.Packages.Bucket != "" {
		s3Client, err = gos3.NewClientFromEnv()
		if err != nil {
			logger.Printf("WARN %s: package storage unavailable: %v", serviceName, err)
			s3Client = nil
		}
	}

	registry, err := canary.NewClient(cfg.Canary.ServerURL, cfg.Canary.FactoryAuth, cfg.Canary.Timeout)
	if err != nil {
		return fmt.Errorf("create registry client: %w", err)
	}

	var builderOpts []builder.Option
	if cfg.Canary.RedirectBase != "" {
		builderOpts = append(builderOpts, builder.WithRedirectBase(cfg.Canary.RedirectBase))
	}
	b, err := builder.New(orm, registry, cfg.Canary.AlertEmail, logger, builderOpts...)
	if err != nil {
		return fmt.Errorf("create builder: %w", err)
	}

	geo := geoip.NewClient(cfg.Geo.APIURL, cfg.Geo.Timeout)
	notifier := slack.NewNotifier(cfg.Slack.WebhookURL, cfg.Slack.Timeout, logger)

	pipeline := ingest.New(orm, geo, notifier, eventBus, cfg.Ingest, logger)
	go pipeline.Run(ctx)

	if err := api.SeedSystemProfiles(ctx, orm, logger); err != nil {
		return fmt.Errorf("seed profiles: %w", err)
	}

	apiLayer, err := api.New(&api.Store{DB: pool, ORM: orm, S3: s3Client, Bus: eventBus}, b, pipeline, api.Config{
		PackagesBucket: cfg.Packages.Bucket,
	}, logger)
	if err != nil {
		return fmt.Errorf("create api: %w", err)
	}

	routes, err := apiLayer.Routes()
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.MetricsPort),
		Handler: promhttp.Handler(),
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: middleware(routes),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
		}
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	errCh := make(chan error, 2)

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()

	logger.Printf("INFO http listening on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
