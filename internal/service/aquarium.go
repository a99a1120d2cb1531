package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aquarium-monitor/internal/alert"
	"aquarium-monitor/internal/bridge"
	"aquarium-monitor/internal/common/database"
	commonmqtt "aquarium-monitor/internal/common/mqtt"
	commonredis "aquarium-monitor/internal/common/redis"
	"aquarium-monitor/internal/config"
	"aquarium-monitor/internal/control"
	"aquarium-monitor/internal/feeder"
	httpapi "aquarium-monitor/internal/http"
	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/monitor"
	"aquarium-monitor/internal/notify"
	"aquarium-monitor/internal/repository"
	"aquarium-monitor/internal/store"
	"aquarium-monitor/internal/subscription"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Dependencies external connections. DB, MQTT and Push are optional.
type Dependencies struct {
	Redis *redis.Client
	DB    *sql.DB
	MQTT  bridge.Client
	Push  notify.PushSender
}

// AquariumService wires the store, monitor, feeders, MQTT bridge and HTTP API
type AquariumService struct {
	config *config.Config
	logger *zap.Logger
	deps   Dependencies

	store         *store.Store
	monitor       *monitor.Monitor
	notifier      *notify.Notifier
	bridge        *bridge.Bridge
	feedRepo      *repository.FeedHistoryRepository
	telemetryRepo *repository.TelemetryRepository
	devices       *deviceRegistry
	router        *httpapi.Router
	server        *httpapi.Server

	closers []func()
}

// NewAquariumService connects Redis, and Postgres and MQTT when enabled
func NewAquariumService(cfg *config.Config, logger *zap.Logger) (*AquariumService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. Redis
	redisClient, err := commonredis.Connect(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	deps := Dependencies{Redis: redisClient}
	var closers []func()

	// 2. Postgres
	if cfg.Persistence.Enabled {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			redisClient.Close()
			return nil, err
		}
		deps.DB = db
	}

	// 3. MQTT
	if cfg.Bridge.Enabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			database.Close(deps.DB)
			redisClient.Close()
			return nil, err
		}
		deps.MQTT = mqttClient
		closers = append(closers, mqttClient.Disconnect)
	}

	// 4. Push
	if cfg.Push.Enabled {
		deps.Push = notify.NewExpoPushClient(cfg.Push.URL, cfg.Push.Timeout, logger)
	}

	s, err := New(cfg, logger, deps)
	if err != nil {
		for _, c := range closers {
			c()
		}
		database.Close(deps.DB)
		redisClient.Close()
		return nil, err
	}
	s.closers = append(s.closers, closers...)
	return s, nil
}

// New assembles the service from already connected dependencies
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*AquariumService, error) {
	if deps.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	evaluator, err := alert.NewEvaluatorFromConfig(cfg.Alert.AmmoniaWarnSeverity)
	if err != nil {
		return nil, err
	}

	s := &AquariumService{
		config: cfg,
		logger: logger,
		deps:   deps,
		store: store.New(deps.Redis, store.Options{
			KeyPrefix:     cfg.Store.StateKeyPrefix,
			StateSuffix:   cfg.Store.StateSuffix,
			ChangesSuffix: cfg.Store.ChangesSuffix,
		}, logger),
		devices: &deviceRegistry{units: make(map[string]*deviceUnit)},
	}

	s.notifier = notify.NewNotifier(deps.Redis, notify.Options{
		Cooldown:     cfg.Alert.Cooldown,
		DedupePrefix: cfg.Alert.DedupePrefix,
		Stream:       cfg.Alert.Stream,
		StreamMaxLen: cfg.Alert.StreamMaxLen,
		PushTokens:   cfg.Push.Tokens,
	}, deps.Push, logger)

	monitorOpts := []monitor.Option{
		monitor.WithStaleAfter(cfg.Monitor.StaleAfter),
		monitor.WithAlertSink(s.notifier),
	}
	if deps.DB != nil {
		s.feedRepo = repository.NewFeedHistoryRepository(deps.DB, logger)
		s.telemetryRepo = repository.NewTelemetryRepository(deps.DB, logger)
		monitorOpts = append(monitorOpts, monitor.WithTelemetrySink(s.telemetryRepo))
	}

	subs := subscription.NewManager(func(deviceID string) subscription.Source {
		return s.store.Document(deviceID)
	}, logger)
	s.monitor = monitor.New(subs, evaluator, logger, monitorOpts...)

	if deps.MQTT != nil {
		s.bridge = bridge.New(deps.MQTT, func(deviceID string) bridge.Writer {
			return s.store.Document(deviceID)
		}, bridge.Topics{
			TelemetryFormat: cfg.Bridge.TelemetryTopicFormat,
			FeedCommand:     cfg.Bridge.FeedCommandTopic,
			FeedSchedule:    cfg.Bridge.FeedScheduleTopic,
			FeedStatus:      cfg.Bridge.FeedStatusTopic,
		}, cfg.MQTT.QoS, logger)
		s.bridge.OnFeedStatus(s.handleFeedStatus)
	}

	for _, id := range cfg.DeviceIDs {
		s.devices.units[id] = s.newDeviceUnit(id)
	}

	var feedHistory httpapi.FeedHistoryLister
	var telemetry httpapi.TelemetryLister
	if s.feedRepo != nil {
		feedHistory = s.feedRepo
		telemetry = s.telemetryRepo
	}
	handler := httpapi.NewDeviceHandler(s.monitor, s.devices, feedHistory, telemetry, s.notifier, logger)
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterDeviceRoutes(handler)
	s.server = httpapi.NewServer(cfg.HTTP.Addr, s.router, logger)

	return s, nil
}

func (s *AquariumService) newDeviceUnit(deviceID string) *deviceUnit {
	facade := control.NewFacade(s.store.Document(deviceID), s.logger)

	feed := func(ctx context.Context, amount float64, _ models.FeedType) error {
		if err := facade.TriggerFeed(ctx); err != nil {
			return err
		}
		if s.bridge != nil {
			if err := s.bridge.PublishFeedCommand(ctx, deviceID, amount); err != nil {
				return fmt.Errorf("failed to publish feed command: %w", err)
			}
		}
		return nil
	}

	opts := []feeder.Option{
		feeder.WithHistoryCapacity(s.config.Feed.HistoryLimit),
		feeder.WithScheduleObserver(&autoFeedSync{facade: facade, logger: s.logger}),
	}
	if s.feedRepo != nil {
		opts = append(opts, feeder.WithHistoryRecorder(s.feedRepo))
	}
	if s.bridge != nil {
		opts = append(opts, feeder.WithScheduleObserver(s.bridge))
	}

	scheduler := feeder.NewScheduler(deviceID, models.FeedSchedule{
		Name:            "Default",
		IntervalMinutes: s.config.Feed.IntervalMinutes,
		FeedAmount:      s.config.Feed.Amount,
	}, feed, s.logger, opts...)

	return &deviceUnit{facade: facade, scheduler: scheduler}
}

func (s *AquariumService) handleFeedStatus(msg bridge.FeedStatusMessage) {
	fields := []zap.Field{
		zap.String("device_id", msg.DeviceID),
		zap.Bool("success", msg.Success),
		zap.String("timestamp", msg.Timestamp),
	}
	if msg.Amount != nil {
		fields = append(fields, zap.Float64("amount", *msg.Amount))
	}
	if msg.Success {
		s.logger.Info("Feeder reported feed", fields...)
		return
	}
	s.logger.Warn("Feeder reported failure", append(fields, zap.String("error", msg.Error))...)
}

// Handler the HTTP API
func (s *AquariumService) Handler() http.Handler {
	return s.router
}

// Start starts every component and then serves HTTP until Stop
func (s *AquariumService) Start(ctx context.Context) error {
	if err := s.startComponents(ctx); err != nil {
		return err
	}
	if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *AquariumService) startComponents(ctx context.Context) error {
	s.logger.Info("Starting aquarium service",
		zap.Strings("device_ids", s.config.DeviceIDs),
		zap.Bool("persistence", s.deps.DB != nil),
		zap.Bool("bridge", s.bridge != nil),
	)

	if s.deps.DB != nil {
		if err := repository.EnsureSchema(ctx, s.deps.DB); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	if s.bridge != nil {
		if err := s.bridge.Start(ctx, s.config.DeviceIDs); err != nil {
			return fmt.Errorf("failed to start MQTT bridge: %w", err)
		}
	}

	for _, id := range s.config.DeviceIDs {
		if err := s.monitor.Watch(ctx, id); err != nil {
			return fmt.Errorf("failed to watch device %s: %w", id, err)
		}
	}

	if s.config.Feed.AutoStart {
		for id, u := range s.devices.units {
			sched := u.scheduler.Schedule()
			sched.Enabled = true
			if _, err := u.scheduler.SetSchedule(sched); err != nil {
				return fmt.Errorf("failed to arm feed schedule for %s: %w", id, err)
			}
		}
	}
	return nil
}

// Stop stops serving and releases every connection
func (s *AquariumService) Stop() error {
	s.logger.Info("Stopping aquarium service")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error("Failed to stop MQTT bridge", zap.Error(err))
		}
	}

	for _, u := range s.devices.units {
		u.scheduler.Close()
	}
	s.monitor.Close()

	for _, c := range s.closers {
		c()
	}

	if err := database.Close(s.deps.DB); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := commonredis.Close(s.deps.Redis); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	return nil
}
