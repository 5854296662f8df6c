package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"booklending/internal/api"
	"booklending/internal/bot"
	"booklending/internal/config"
	"booklending/internal/fees"
	"booklending/internal/lending"
	"booklending/internal/locker"
	"booklending/internal/storage"
	"booklending/internal/storage/ch"
	"booklending/internal/storage/pg"
	"booklending/internal/storage/stubs"
)

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      storage.Storage
	locker  locker.Locker
	closers []func() error
	service *lending.Service
	api     *api.Server
	bot     *bot.Bot
	server  *http.Server
}

// New loads .env and the environment and creates a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		app.logger.Debug("No .env file found, using system environment variables")
	}
	return app, nil
}

// NewWithConfig creates and initializes a new application instance
func NewWithConfig(cfg *config.Config) (*App, error) {
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting Library Lending service...")

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initLocker(ctx); err != nil {
		app.closeResources()
		return nil, err
	}
	if err := app.initService(); err != nil {
		app.closeResources()
		return nil, err
	}
	if err := app.initBot(); err != nil {
		app.closeResources()
		return nil, err
	}
	app.initHTTPServer()

	return app, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// initDatabase initializes the database connection
func (a *App) initDatabase(ctx context.Context) error {
	var db storage.Storage
	switch a.config.StorageDriver {
	case config.DriverMock:
		a.logger.Info("Using mock database")
		db = stubs.NewMockDB()

	case config.DriverPostgres:
		a.logger.Info("Connecting to Postgres", zap.Int32("max_conns", a.config.PostgresMaxConns))
		poolConfig, err := pg.PoolConfig(a.config.PostgresDSN, a.config.PostgresMaxConns)
		if err != nil {
			return err
		}
		postgresDB, err := pg.NewPostgresDB(ctx, poolConfig, pg.WithLogger(a.logger.Named("postgres")))
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		db = postgresDB

	default:
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	}

	if err := db.Initialize(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully", zap.String("driver", a.config.StorageDriver))

	a.db = db
	return nil
}

// initLocker picks the borrow lock: shared through Redis when configured, process-local otherwise
func (a *App) initLocker(ctx context.Context) error {
	if a.config.RedisAddr == "" {
		if a.config.StorageDriver == config.DriverClickHouse {
			a.logger.Warn("REDIS_ADDR not set; borrows are only serialized within this instance")
		}
		a.locker = locker.NewMemoryLocker()
		return nil
	}

	redisLocker, err := locker.NewRedisLocker(ctx, a.config.RedisAddr, a.config.RedisPassword, a.logger.Named("locker"))
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.logger.Info("Using Redis borrow lock", zap.String("addr", a.config.RedisAddr))

	a.locker = redisLocker
	a.closers = append(a.closers, redisLocker.Close)
	return nil
}

// initService builds the lending service and its fee schedule
func (a *App) initService() error {
	schedule, err := fees.Load(a.config.FeeTiersFile, a.config.MinDaysLate)
	if err != nil {
		return fmt.Errorf("failed to load fee schedule: %w", err)
	}
	if a.config.FeeTiersFile != "" {
		a.logger.Info("Loaded fee schedule", zap.String("file", a.config.FeeTiersFile), zap.Int("tiers", len(schedule.Tiers())))
	}

	a.service = lending.NewService(a.db,
		lending.WithSchedule(schedule),
		lending.WithLocker(a.locker, a.config.BorrowLockTTL),
		lending.WithLogger(a.logger.Named("lending")),
	)
	return nil
}

// initBot initializes the Telegram bot if a token is configured
func (a *App) initBot() error {
	if a.config.TelegramToken == "" {
		a.logger.Info("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
		return nil
	}

	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.service, a.config.AllowedUserIDs, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int64s("allowed_users", a.config.AllowedUserIDs))

	a.bot = telegramBot
	return nil
}

// initHTTPServer initializes the HTTP server for the API, health checks and webhook
func (a *App) initHTTPServer() {
	a.api = api.NewServer(a.service, a.logger.Named("http"))
	router := a.api.Router()

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Library Lending service is running (bot: %s)", a.botMode())
	}).Methods(http.MethodGet)

	// Webhook endpoint (only used in webhook mode)
	if a.bot != nil && a.config.WebhookMode {
		router.HandleFunc(bot.WebhookPath, a.handleWebhook).Methods(http.MethodPost)
	}

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.api,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := jsoniter.NewDecoder(r.Body).Decode(&update); err != nil {
		a.logger.Warn("Error decoding webhook update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Process update in background to respond quickly to Telegram
	go a.bot.HandleUpdate(update)

	w.WriteHeader(http.StatusOK)
}

func (a *App) botMode() string {
	switch {
	case a.bot == nil:
		return "disabled"
	case a.config.WebhookMode:
		return "webhook"
	default:
		return "polling"
	}
}

// Handler returns the HTTP handler serving the API
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if a.bot != nil {
		if a.config.WebhookMode {
			if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
				_ = a.Shutdown()
				return fmt.Errorf("failed to setup webhook: %w", err)
			}
			a.logger.Info("Webhook configured. Bot will receive updates via HTTP endpoint", zap.String("path", bot.WebhookPath))
		} else {
			go func() {
				if err := a.bot.Start(); err != nil {
					a.logger.Error("Bot polling stopped", zap.Error(err))
				}
			}()
		}
	}

	select {
	case <-sigChan:
		a.logger.Info("Shutting down...")
	case err := <-serverErr:
		a.logger.Error("HTTP server error", zap.Error(err))
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if a.bot != nil {
		a.bot.Stop()
	}

	err := a.closeResources()
	if err != nil {
		a.logger.Error("Error closing resources", zap.Error(err))
	} else {
		a.logger.Info("Shutdown complete")
	}
	_ = a.logger.Sync()
	return err
}

func (a *App) closeResources() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
