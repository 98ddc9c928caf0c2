package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kirkhezir/church-app-sub002/internal/api"
	"github.com/kirkhezir/church-app-sub002/internal/repository/postgres"
	"github.com/kirkhezir/church-app-sub002/internal/scheduler"
	schedulerjobs "github.com/kirkhezir/church-app-sub002/internal/scheduler/jobs"
	"github.com/kirkhezir/church-app-sub002/internal/service"
	"github.com/kirkhezir/church-app-sub002/internal/sse"
	jwtutil "github.com/kirkhezir/church-app-sub002/pkg/jwt"
	loggerpkg "github.com/kirkhezir/church-app-sub002/pkg/logger"
	"github.com/kirkhezir/church-app-sub002/pkg/mailer"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		WriteRateLimit  int           `mapstructure:"write_rate_limit"`
	} `mapstructure:"server"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Log struct {
		Level         string `mapstructure:"level"`
		Encoding      string `mapstructure:"encoding"`
		RecentEntries int    `mapstructure:"recent_entries"`
	} `mapstructure:"log"`
	Security struct {
		JWTPublicKey      string `mapstructure:"jwt_public_key"`
		JWTPublicKeyFile  string `mapstructure:"jwt_public_key_file"`
		InternalToken     string `mapstructure:"internal_token"`
		InternalTokenFile string `mapstructure:"internal_token_file"`
	} `mapstructure:"security"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	Notification struct {
		BatchSize   int           `mapstructure:"batch_size"`
		BatchDelay  time.Duration `mapstructure:"batch_delay"`
		SendTimeout time.Duration `mapstructure:"send_timeout"`
	} `mapstructure:"notification"`
	Email struct {
		Provider             string `mapstructure:"provider"`
		FromAddress          string `mapstructure:"from_address"`
		FromName             string `mapstructure:"from_name"`
		ReplyTo              string `mapstructure:"reply_to"`
		PostmarkServerToken  string `mapstructure:"postmark_server_token"`
		PostmarkAccountToken string `mapstructure:"postmark_account_token"`
		SendGridAPIKey       string `mapstructure:"sendgrid_api_key"`
	} `mapstructure:"email"`
	Portal struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"portal"`
}

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			if err := runMigrateCommand(); err != nil {
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, recentLogs, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	if !strings.EqualFold(cfg.App.Env, "development") {
		gin.SetMode(gin.ReleaseMode)
	}

	dbPool, err := newDBPool(context.Background(), cfg)
	if err != nil {
		logger.Fatal("connect database failed", zap.Error(err))
	}
	defer dbPool.Close()

	jwtPublicKey, err := jwtutil.LoadPublicKey(cfg.Security.JWTPublicKey, cfg.Security.JWTPublicKeyFile)
	if err != nil {
		logger.Fatal("load jwt public key failed", zap.Error(err))
	}

	announcementRepo := postgres.NewAnnouncementRepository(dbPool)
	memberRepo := postgres.NewMemberRepository(dbPool)

	gateway, err := mailer.New(mailer.Config{
		Provider:             cfg.Email.Provider,
		FromAddress:          cfg.Email.FromAddress,
		FromName:             cfg.Email.FromName,
		ReplyTo:              cfg.Email.ReplyTo,
		PostmarkServerToken:  cfg.Email.PostmarkServerToken,
		PostmarkAccountToken: cfg.Email.PostmarkAccountToken,
		SendGridAPIKey:       cfg.Email.SendGridAPIKey,
	}, logger.Named("mailer"))
	if err != nil {
		logger.Fatal("init mail gateway failed", zap.Error(err))
	}

	dispatcher, err := service.NewNotificationDispatcher(
		service.NewRecipientSelector(memberRepo),
		gateway,
		service.DispatcherConfig{
			BatchSize:     cfg.Notification.BatchSize,
			BatchDelay:    cfg.Notification.BatchDelay,
			SendTimeout:   cfg.Notification.SendTimeout,
			PortalBaseURL: cfg.Portal.BaseURL,
		},
		logger.Named("notifications"),
	)
	if err != nil {
		logger.Fatal("init notification dispatcher failed", zap.Error(err))
	}

	streamHub := sse.NewHub(logger.Named("stream"))
	defer streamHub.Close()

	announcementSvc := service.NewAnnouncementService(announcementRepo, memberRepo, dispatcher, logger.Named("announcements")).
		WithPublisher(streamHub)

	statsJob := schedulerjobs.NewAnnouncementStatsJob(announcementRepo, logger)
	statsJob.Collect()

	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		AnnouncementStatsJob: statsJob,
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Logger:         logger.Named("http"),
		AllowOrigins:   cfg.CORS.AllowOrigins,
		JWTPublicKey:   jwtPublicKey,
		InternalToken:  cfg.Security.InternalToken,
		WriteRateLimit: cfg.Server.WriteRateLimit,
		ReadyTimeout:   cfg.Database.PingTimeout,
		DB:             dbPool,
		LogStore:       recentLogs,
		Announcements:  announcementSvc,
		Stream:         streamHub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("server started",
		zap.String("addr", srv.Addr),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
		zap.String("email_provider", cfg.Email.Provider),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Open streams would otherwise hold Shutdown until the deadline.
	streamHub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}

	// Runs in flight keep going; shutdown only waits for them up to the deadline.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("notification dispatches still running at shutdown", zap.Error(err))
	}
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHURCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "CHURCH_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.write_rate_limit", 30)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.recent_entries", 500)
	v.SetDefault("security.jwt_public_key", "")
	v.SetDefault("security.jwt_public_key_file", "")
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("notification.batch_size", service.DefaultNotificationBatchSize)
	v.SetDefault("notification.batch_delay", service.DefaultNotificationBatchDelay.String())
	v.SetDefault("notification.send_timeout", service.DefaultNotificationSendTimeout.String())
	v.SetDefault("email.provider", mailer.ProviderLog)
	v.SetDefault("email.from_address", "")
	v.SetDefault("email.from_name", "")
	v.SetDefault("email.reply_to", "")
	v.SetDefault("email.postmark_server_token", "")
	v.SetDefault("email.postmark_account_token", "")
	v.SetDefault("email.sendgrid_api_key", "")
	v.SetDefault("portal.base_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Security.InternalToken) == "" && strings.TrimSpace(cfg.Security.InternalTokenFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Security.InternalTokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read security.internal_token_file failed: %w", err)
		}
		cfg.Security.InternalToken = strings.TrimSpace(string(raw))
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be greater than 0")
	}
	if cfg.Database.PingTimeout <= 0 {
		return errors.New("database.ping_timeout must be greater than 0")
	}

	if len(cfg.CORS.AllowOrigins) == 0 {
		return errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range cfg.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return errors.New("cors.allow_origins must not contain wildcard *")
		}
	}

	if cfg.Notification.BatchSize <= 0 {
		return errors.New("notification.batch_size must be greater than 0")
	}
	if cfg.Notification.BatchDelay < 0 {
		return errors.New("notification.batch_delay must not be negative")
	}
	if cfg.Notification.SendTimeout <= 0 {
		return errors.New("notification.send_timeout must be greater than 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Email.Provider)) {
	case "", mailer.ProviderLog:
	case mailer.ProviderPostmark, mailer.ProviderSendGrid:
		if strings.TrimSpace(cfg.Email.FromAddress) == "" {
			return errors.New("email.from_address is required for real providers")
		}
	default:
		return fmt.Errorf("email.provider %q is not supported", cfg.Email.Provider)
	}

	return nil
}

func newLogger(cfg Config) (*zap.Logger, *loggerpkg.RecentLogStore, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger failed: %w", err)
	}

	store := loggerpkg.NewRecentLogStore(cfg.Log.RecentEntries, zapcore.InfoLevel)
	return loggerpkg.Tee(logger, store), store, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

func runMigrateCommand() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	migrationDir := "/migrations"
	if _, statErr := os.Stat(migrationDir); statErr != nil {
		migrationDir = "./migrations"
	}

	if err := runMigrateUp("file://"+migrationDir, cfg.Database.URL); err != nil {
		return err
	}

	fmt.Println("migrations applied successfully")
	return nil
}

func runMigrateUp(sourceURL, databaseURL string) error {
	migrator, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations failed: %w", err)
	}
	return nil
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	port := strings.TrimSpace(os.Getenv("CHURCH_SERVER_PORT"))
	if port == "" {
		port = "8080"
	}

	resp, err := client.Get("http://localhost:" + port + "/health/ready")
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}
