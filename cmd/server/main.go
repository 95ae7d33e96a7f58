package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/ai"
	"github.com/meridian-mfg/pricewatch/internal/bom"
	"github.com/meridian-mfg/pricewatch/internal/config"
	"github.com/meridian-mfg/pricewatch/internal/erp"
	"github.com/meridian-mfg/pricewatch/internal/gate"
	httpapi "github.com/meridian-mfg/pricewatch/internal/interfaces/http"
	"github.com/meridian-mfg/pricewatch/internal/mail"
	"github.com/meridian-mfg/pricewatch/internal/monitoring"
	"github.com/meridian-mfg/pricewatch/internal/notify"
	"github.com/meridian-mfg/pricewatch/internal/pipeline"
	"github.com/meridian-mfg/pricewatch/internal/report"
	"github.com/meridian-mfg/pricewatch/internal/repository"
	"github.com/meridian-mfg/pricewatch/internal/vendorcache"
	"github.com/meridian-mfg/pricewatch/internal/worker"
	"github.com/meridian-mfg/pricewatch/pkg/database"
	"github.com/meridian-mfg/pricewatch/pkg/utils"
)

const ingestQueueSize = 256

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	epicor := erp.NewEpicorClient(erp.EpicorConfig{
		BaseURL: cfg.Epicor.BaseURL,
		APIKey:  cfg.Epicor.APIKey,
		Timeout: cfg.Epicor.Timeout,
	}, logger)

	cache := vendorcache.New(epicor, cfg.Verification.CacheTTL, cfg.Verification.DomainMatching, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cache.Refresh(ctx); err != nil {
		// Startup proceeds on an empty cache; the refresher retries and
		// unverified senders park in the review queue meanwhile.
		logger.Warn("Initial vendor cache refresh failed", zap.Error(err))
		metrics.CacheRefreshes.WithLabelValues("failed").Inc()
	} else {
		metrics.CacheRefreshes.WithLabelValues("ok").Inc()
	}

	emailRepo := repository.NewEmailRepository(db.DB, logger)
	stateRepo := repository.NewStateRepository(db.DB, logger)
	impactRepo := repository.NewImpactRepository(db, logger)

	bodyStore, err := mail.NewBodyStore(filepath.Join(filepath.Dir(cfg.Database.Path), "bodies"))
	if err != nil {
		return err
	}
	attachments := mail.NewAttachmentReader(5, logger)

	aiConfig := ai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
	}
	detector := ai.NewDetector(aiConfig, logger)
	extractor := ai.NewExtractor(aiConfig, logger)

	analyzer := bom.NewAnalyzer(epicor, epicor, epicor, epicor, stateRepo, impactRepo,
		bom.Thresholds{
			CriticalRatio: cfg.Impact.CriticalRatio,
			HighRatio:     cfg.Impact.HighRatio,
			MediumRatio:   cfg.Impact.MediumRatio,
		}, metrics, logger)

	var notifier pipeline.Notifier = notify.NopNotifier{}
	if cfg.Lark.Enabled {
		notifier = notify.NewLarkNotifier(notify.Config{
			AppID:        cfg.Lark.AppID,
			AppSecret:    cfg.Lark.AppSecret,
			ReviewChatID: cfg.Lark.ReviewChatID,
		}, logger)
	}

	processor := pipeline.NewProcessor(pipeline.Deps{
		Emails:    emailRepo,
		States:    stateRepo,
		Impacts:   impactRepo,
		Bodies:    bodyStore,
		Gate:      gate.New(cache, cfg.Verification.Enabled),
		Detector:  detector,
		Extractor: extractor,
		Analyzer:  analyzer,
		PriceSync: epicor,
		Notifier:  notifier,
		Metrics:   metrics,
	}, logger)

	aggregator := bom.NewAggregator(emailRepo, impactRepo)

	ingestWorker := worker.NewIngestWorker(processor, ingestQueueSize, logger)
	refresher := worker.NewCacheRefresher(cache, cfg.Verification.RefreshInterval, metrics, logger)
	workers := worker.NewManager(logger, refresher, ingestWorker)

	if err := workers.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer workers.Stop()

	handlers := httpapi.NewHandlers(processor, analyzer, aggregator, cache,
		attachments, report.NewExcelExporter(), ingestWorker, logger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, handlers, registry, logger)

	return server.Start(ctx)
}
