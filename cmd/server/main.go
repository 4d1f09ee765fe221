package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetwatch/api/server"
	"fleetwatch/internal/alerting"
	"fleetwatch/internal/config"
	"fleetwatch/internal/database"
	"fleetwatch/internal/elasticsearch"
	"fleetwatch/internal/kvstore"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/mission"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/orchestrator"
	"fleetwatch/internal/snapshot"

	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "etc/config.yaml", "Path to configuration file")
	eventLogDir = flag.String("eventlog", "logs", "Directory for alert event logs")
	version     = "1.0.0"
)

func main() {
	flag.Parse()

	// Prefer the config file; fall back to environment variables
	var cfg *config.Config
	if _, err := os.Stat(*configFile); err == nil {
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Printf("Failed to load config from file: %v\n", err)
			fmt.Println("Falling back to environment variables...")
			cfg = config.Load()
		}
	} else {
		fmt.Println("Config file not found, loading from environment variables...")
		cfg = config.Load()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting FleetWatch",
		zap.String("version", version),
		zap.String("config_file", *configFile),
	)

	if err := database.InitDB(database.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	logger.Info("Database initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.DBName),
	)

	var esClient *elasticsearch.Client
	if cfg.Elasticsearch.Enabled {
		var err error
		esClient, err = elasticsearch.NewClient(cfg.Elasticsearch)
		if err != nil {
			logger.Fatal("Failed to initialize Elasticsearch", zap.Error(err))
		}
		if err := esClient.CreateIndexTemplate(); err != nil {
			logger.Warn("Failed to create index template", zap.Error(err))
		}
	} else {
		logger.Info("Elasticsearch is disabled")
	}

	// Pull snapshots from the introspection API when configured, otherwise
	// accept pushed snapshots over the HTTP API
	var provider snapshot.Provider
	var push *snapshot.PushProvider
	if cfg.Introspection.BaseURL != "" {
		provider = snapshot.NewHTTPProvider(cfg.Introspection.BaseURL,
			time.Duration(cfg.Introspection.TimeoutSeconds)*time.Second)
		logger.Info("Snapshot source: introspection API",
			zap.String("base_url", cfg.Introspection.BaseURL))
	} else {
		push = snapshot.NewPushProvider()
		provider = push
		logger.Info("Snapshot source: push mode")
	}

	dispatcher := mission.NewHTTPDispatcher(cfg.Mission.BaseURL,
		time.Duration(cfg.Mission.TimeoutSeconds)*time.Second)

	var slack *notify.SlackNotifier
	if cfg.Slack.Enabled {
		slack = notify.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel)
		logger.Info("Slack notifications enabled")
	}

	alertManager := alerting.NewManager(
		alerting.Config{
			Interval:    time.Duration(cfg.Evaluation.IntervalSeconds) * time.Second,
			EventLogDir: *eventLogDir,
		},
		alerting.Deps{
			Rules:      alerting.DBRuleSource{},
			Provider:   provider,
			Dispatcher: dispatcher,
			Store:      kvstore.NewDBStore(database.GetDB()),
			ES:         esClient,
			Slack:      slack,
		},
	)
	alertManager.Start()
	defer alertManager.Stop()

	sessions := orchestrator.NewSessionManager(dispatcher,
		cfg.Orchestrator.Repairable, cfg.Orchestrator.MaxLoops)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	go func() {
		httpServer := server.NewServer(alertManager, sessions, push, esClient, *eventLogDir, *configFile, cfg)
		logger.Info("Starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.Run(httpAddr); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("FleetWatch is running",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("eval_interval_seconds", cfg.Evaluation.IntervalSeconds),
	)

	sig := <-sigChan
	logger.Info("Received signal, shutting down...", zap.String("signal", sig.String()))

	logger.Info("FleetWatch stopped")
}
