package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GitHubConfig holds the GitHub App credentials. Token is an optional
// personal access token used instead of the App installation, mainly for
// local development and the CLI.
type GitHubConfig struct {
	AppID          int64
	InstallationID int64
	WebhookSecret  string
	PrivateKeyPath string
	Token          string
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServiceConfig holds the address and credential of one external service.
type ServiceConfig struct {
	URL   string
	Token string
}

// RedisConfig holds the task queue connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	LogLevel   slog.Level

	GitHub GitHubConfig
	DB     DBConfig
	Redis  RedisConfig

	BuildFarm   ServiceConfig
	TestFarm    ServiceConfig
	SyncService ServiceConfig

	// CommentCommandPrefix is the word a comment line must start with to be
	// recognized as a bot command.
	CommentCommandPrefix string

	// PackageConfigDir is where per-package .release-warden.yml files live
	// when they are not fetched from the repositories themselves.
	PackageConfigDir string

	RetryLimit        int
	StalenessCutoff   time.Duration
	ReconcileInterval time.Duration
	MaxWorkers        int
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("GITHUB_PRIVATE_KEY_PATH", "keys/release-warden-app.private-key.pem")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "warden")
	viper.SetDefault("DB_NAME", "warden")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("BUILD_FARM_URL", "http://localhost:8081")
	viper.SetDefault("TEST_FARM_URL", "http://localhost:8082")
	viper.SetDefault("SYNC_SERVICE_URL", "http://localhost:8083")
	viper.SetDefault("COMMENT_COMMAND_PREFIX", "/warden")
	viper.SetDefault("PACKAGE_CONFIG_DIR", "packages")
	viper.SetDefault("RETRY_LIMIT", 2)
	viper.SetDefault("STALENESS_CUTOFF", "336h")
	viper.SetDefault("RECONCILE_INTERVAL", "10m")
	viper.SetDefault("MAX_WORKERS", 5)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", "error", err)
		}
	}

	if viper.GetInt64("GITHUB_APP_ID") == 0 {
		return nil, fmt.Errorf("GITHUB_APP_ID must be set")
	}
	if viper.GetString("GITHUB_WEBHOOK_SECRET") == "" {
		return nil, fmt.Errorf("GITHUB_WEBHOOK_SECRET must be set")
	}

	// Parse the log level string into a slog.Level type.
	var logLevel slog.Level
	logLevelStr := strings.ToLower(viper.GetString("LOG_LEVEL"))
	switch logLevelStr {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return &Config{
		ServerPort: viper.GetString("SERVER_PORT"),
		LogLevel:   logLevel,
		GitHub: GitHubConfig{
			AppID:          viper.GetInt64("GITHUB_APP_ID"),
			InstallationID: viper.GetInt64("GITHUB_INSTALLATION_ID"),
			WebhookSecret:  viper.GetString("GITHUB_WEBHOOK_SECRET"),
			PrivateKeyPath: viper.GetString("GITHUB_PRIVATE_KEY_PATH"),
			Token:          viper.GetString("GITHUB_TOKEN"),
		},
		DB: DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		BuildFarm: ServiceConfig{
			URL:   viper.GetString("BUILD_FARM_URL"),
			Token: viper.GetString("BUILD_FARM_TOKEN"),
		},
		TestFarm: ServiceConfig{
			URL:   viper.GetString("TEST_FARM_URL"),
			Token: viper.GetString("TEST_FARM_TOKEN"),
		},
		SyncService: ServiceConfig{
			URL:   viper.GetString("SYNC_SERVICE_URL"),
			Token: viper.GetString("SYNC_SERVICE_TOKEN"),
		},
		CommentCommandPrefix: viper.GetString("COMMENT_COMMAND_PREFIX"),
		PackageConfigDir:     viper.GetString("PACKAGE_CONFIG_DIR"),
		RetryLimit:           viper.GetInt("RETRY_LIMIT"),
		StalenessCutoff:      viper.GetDuration("STALENESS_CUTOFF"),
		ReconcileInterval:    viper.GetDuration("RECONCILE_INTERVAL"),
		MaxWorkers:           viper.GetInt("MAX_WORKERS"),
	}, nil
}
