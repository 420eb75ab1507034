package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"threatrelay/config"
	"threatrelay/internal/agents"
	"threatrelay/internal/alerts"
	"threatrelay/internal/api"
	"threatrelay/internal/containment"
	"threatrelay/internal/correlation"
	"threatrelay/internal/handler"
	inputredis "threatrelay/internal/input/redis"
	"threatrelay/internal/intel"
	"threatrelay/internal/logger"
	"threatrelay/internal/metrics"
	"threatrelay/internal/output/threatjson"
	"threatrelay/internal/pipeline"
	"threatrelay/internal/rules"
	"threatrelay/internal/scheduler"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("threatrelay.yml"); err == nil {
		return "threatrelay.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "threatrelay.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "threatrelay.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.ThreatRelay.Integration.Mode == "" {
		cfg.ThreatRelay.Integration.Mode = "passive"
	}
	if cfg.ThreatRelay.Integration.ThreatThreshold <= 0 {
		cfg.ThreatRelay.Integration.ThreatThreshold = 3
	}

	if cfg.ThreatRelay.Store.Addr == "" {
		cfg.ThreatRelay.Store.Addr = "127.0.0.1:6379"
	}
	if cfg.ThreatRelay.Store.KeyPrefix == "" {
		cfg.ThreatRelay.Store.KeyPrefix = "threatrelay"
	}

	if cfg.ThreatRelay.Intake.Key == "" {
		cfg.ThreatRelay.Intake.Key = "detector_findings"
	}
	if cfg.ThreatRelay.Intake.Workers <= 0 {
		cfg.ThreatRelay.Intake.Workers = 4
	}
	if cfg.ThreatRelay.Intake.BlockTimeout == 0 {
		cfg.ThreatRelay.Intake.BlockTimeout = 5 * time.Second
	}

	if cfg.ThreatRelay.Scheduler.PollInterval <= 0 {
		cfg.ThreatRelay.Scheduler.PollInterval = time.Minute
	}
	if cfg.ThreatRelay.Scheduler.MaxParallel <= 0 {
		cfg.ThreatRelay.Scheduler.MaxParallel = 4
	}
	if cfg.ThreatRelay.Scheduler.PassTimeout <= 0 {
		cfg.ThreatRelay.Scheduler.PassTimeout = 2 * time.Minute
	}

	if cfg.ThreatRelay.Agents.Timeout <= 0 {
		cfg.ThreatRelay.Agents.Timeout = 2 * time.Minute
	}

	if cfg.ThreatRelay.Intel.Timeout <= 0 {
		cfg.ThreatRelay.Intel.Timeout = 10 * time.Second
	}
	if cfg.ThreatRelay.Intel.CacheTTL <= 0 {
		cfg.ThreatRelay.Intel.CacheTTL = 5 * time.Minute
	}

	if cfg.ThreatRelay.Alerts.Timeout <= 0 {
		cfg.ThreatRelay.Alerts.Timeout = 10 * time.Second
	}

	if cfg.ThreatRelay.Journal.Path == "" {
		cfg.ThreatRelay.Journal.Path = "output/threats.jsonl"
	}

	if cfg.ThreatRelay.API.Addr == "" {
		cfg.ThreatRelay.API.Addr = ":8085"
	}

	if cfg.ThreatRelay.Logging.Level == "" {
		cfg.ThreatRelay.Logging.Level = "info"
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}

	// Optional .env for the legacy deployment variables.
	godotenv.Load()

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.ThreatRelay.Logging.Enabled, cfg.ThreatRelay.Logging.Level, cfg.ThreatRelay.Logging.File, cfg.ThreatRelay.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Infof("ThreatRelay starting")
	logger.Infof("Config loaded from: %s", configPath)
	logger.Infof("Integration mode: %s (threshold %d, auto-correlate %v)",
		cfg.ThreatRelay.Integration.Mode,
		cfg.ThreatRelay.Integration.ThreatThreshold,
		cfg.ThreatRelay.Integration.AutoCorrelate,
	)

	m := metrics.New()

	recordStore, err := correlation.NewRedisStore(correlation.RedisConfig{
		Addr:      cfg.ThreatRelay.Store.Addr,
		Password:  cfg.ThreatRelay.Store.Password,
		DB:        cfg.ThreatRelay.Store.DB,
		KeyPrefix: cfg.ThreatRelay.Store.KeyPrefix,
	})
	if err != nil {
		logger.Errorf("Failed to create correlation store: %v", err)
		log.Fatalf("Failed to create correlation store: %v", err)
	}
	defer recordStore.Close()

	scheduleStore, err := scheduler.NewRedisStore(scheduler.RedisConfig{
		Addr:      cfg.ThreatRelay.Store.Addr,
		Password:  cfg.ThreatRelay.Store.Password,
		DB:        cfg.ThreatRelay.Store.DB,
		KeyPrefix: cfg.ThreatRelay.Store.KeyPrefix,
	})
	if err != nil {
		logger.Errorf("Failed to create schedule store: %v", err)
		log.Fatalf("Failed to create schedule store: %v", err)
	}
	defer scheduleStore.Close()

	var intelSource correlation.IntelSource
	if cfg.ThreatRelay.Intel.URL != "" {
		feed, err := intel.NewFeed(intel.FeedConfig{
			URL:      cfg.ThreatRelay.Intel.URL,
			Timeout:  cfg.ThreatRelay.Intel.Timeout,
			CacheTTL: cfg.ThreatRelay.Intel.CacheTTL,
			Headers:  cfg.ThreatRelay.Intel.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create intel feed: %v", err)
			log.Fatalf("Failed to create intel feed: %v", err)
		}
		intelSource = feed
		logger.Infof("Threat intel feed: %s (cache TTL %s)", cfg.ThreatRelay.Intel.URL, cfg.ThreatRelay.Intel.CacheTTL)
	} else {
		logger.Warnf("No intel feed configured; correlations score against an empty indicator list")
	}

	recorder := correlation.NewRecorder(recordStore, intelSource)

	var engine rules.Engine
	if cfg.ThreatRelay.Rules.Enabled {
		if strings.TrimSpace(cfg.ThreatRelay.Rules.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; finding tagging disabled")
		} else {
			sigmaEngine, stats, err := rules.NewSigmaEngine(cfg.ThreatRelay.Rules.Path)
			if err != nil {
				logger.Errorf("Failed to load Sigma rules from %s: %v", cfg.ThreatRelay.Rules.Path, err)
				log.Fatalf("Failed to load Sigma rules: %v", err)
			}
			engine = sigmaEngine
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
				stats.Loaded,
				stats.SkippedComplex,
				stats.SkippedInvalid,
				stats.TotalFiles,
			)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; finding tagging is effectively disabled")
			}
		}
	}

	var webhook *alerts.WebhookSender
	if cfg.ThreatRelay.Alerts.WebhookURL != "" {
		webhook, err = alerts.NewWebhookSender(alerts.WebhookConfig{
			URL:     cfg.ThreatRelay.Alerts.WebhookURL,
			Timeout: cfg.ThreatRelay.Alerts.Timeout,
			Headers: cfg.ThreatRelay.Alerts.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create webhook sender: %v", err)
			log.Fatalf("Failed to create webhook sender: %v", err)
		}
		logger.Infof("Alert webhook: %s", cfg.ThreatRelay.Alerts.WebhookURL)
	}

	var email *alerts.EmailSender
	if cfg.ThreatRelay.Alerts.Email.To != "" {
		email, err = alerts.NewEmailSender(alerts.EmailConfig{
			SMTPAddr: cfg.ThreatRelay.Alerts.Email.SMTPAddr,
			From:     cfg.ThreatRelay.Alerts.Email.From,
			To:       cfg.ThreatRelay.Alerts.Email.To,
		})
		if err != nil {
			logger.Errorf("Failed to create email sender: %v", err)
			log.Fatalf("Failed to create email sender: %v", err)
		}
		logger.Infof("Alert email: %s", cfg.ThreatRelay.Alerts.Email.To)
	}
	if webhook == nil && email == nil {
		logger.Warnf("No alert sinks configured; critical and high threats are logged only")
	}
	dispatcher := alerts.NewDispatcher(webhook, email)

	executor, err := containment.NewExecutor(cfg.ThreatRelay.Integration.Mode, nil)
	if err != nil {
		logger.Errorf("Failed to create containment executor: %v", err)
		log.Fatalf("Failed to create containment executor: %v", err)
	}

	var journal handler.Journal
	if cfg.ThreatRelay.Journal.Enabled {
		w, err := threatjson.NewWriter(cfg.ThreatRelay.Journal.Path)
		if err != nil {
			logger.Errorf("Failed to create threat journal: %v", err)
			log.Fatalf("Failed to create threat journal: %v", err)
		}
		defer w.Close()
		journal = w
	}

	h := handler.New(handler.Config{
		Mode:            cfg.ThreatRelay.Integration.Mode,
		ThreatThreshold: cfg.ThreatRelay.Integration.ThreatThreshold,
		AutoCorrelate:   cfg.ThreatRelay.Integration.AutoCorrelate,
	}, recorder, dispatcher, executor, engine, journal, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var poller *scheduler.Poller
	if cfg.ThreatRelay.Scheduler.Enabled {
		if cfg.ThreatRelay.Agents.URL == "" {
			log.Fatalf("Scheduler enabled but agents.url is empty")
		}
		agentExec, err := agents.NewHTTPExecutor(agents.HTTPConfig{
			URL:     cfg.ThreatRelay.Agents.URL,
			Timeout: cfg.ThreatRelay.Agents.Timeout,
			Headers: cfg.ThreatRelay.Agents.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create agent executor: %v", err)
			log.Fatalf("Failed to create agent executor: %v", err)
		}

		poller = scheduler.NewPoller(scheduleStore, agentExec, h, scheduler.PollerConfig{
			MaxParallel: cfg.ThreatRelay.Scheduler.MaxParallel,
			PassTimeout: cfg.ThreatRelay.Scheduler.PassTimeout,
		}, m)

		go func() {
			ticker := time.NewTicker(cfg.ThreatRelay.Scheduler.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := poller.PollOnce(ctx); err != nil && ctx.Err() == nil {
						logger.Errorf("Poll pass failed: %v", err)
					}
				}
			}
		}()
		logger.Infof("Scheduler running: poll interval %s, max parallel %d",
			cfg.ThreatRelay.Scheduler.PollInterval, cfg.ThreatRelay.Scheduler.MaxParallel)
	}

	var intake *pipeline.IntakePipeline
	if cfg.ThreatRelay.Intake.Enabled {
		consumer, err := inputredis.NewConsumer(inputredis.Config{
			Addr:         cfg.ThreatRelay.Store.Addr,
			Password:     cfg.ThreatRelay.Store.Password,
			DB:           cfg.ThreatRelay.Store.DB,
			Key:          cfg.ThreatRelay.Intake.Key,
			BlockTimeout: cfg.ThreatRelay.Intake.BlockTimeout,
		})
		if err != nil {
			logger.Errorf("Failed to create finding consumer: %v", err)
			log.Fatalf("Failed to create finding consumer: %v", err)
		}

		intake = pipeline.NewIntakePipeline(consumer, h, cfg.ThreatRelay.Intake.Workers, m)
		go func() {
			if err := intake.Run(ctx); err != nil && err != context.Canceled {
				logger.Errorf("Intake pipeline error: %v", err)
			}
		}()
		logger.Infof("Finding intake running: key %s, workers %d",
			cfg.ThreatRelay.Intake.Key, cfg.ThreatRelay.Intake.Workers)
	}

	if cfg.ThreatRelay.API.Enabled {
		server := api.NewServer(scheduleStore, recordStore, poller)
		go func() {
			if err := server.Serve(ctx, cfg.ThreatRelay.API.Addr); err != nil {
				logger.Errorf("Operator API error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if intake != nil {
		if err := intake.Close(); err != nil {
			logger.Errorf("Error closing intake pipeline: %v", err)
		}
	}

	logger.Infof("ThreatRelay stopped")
}
