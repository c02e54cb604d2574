package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Storage      StorageConfig
	Tracing      TracingConfig `mapstructure:"tracing"`
	Log          LogConfig     `mapstructure:"log"`
	Redis        RedisConfig
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Gamification GamificationConfig `mapstructure:"gamification"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	Path      string // sqlite 文件路径
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// StorageConfig 目录（徽章/任务/等级）文件的存放位置
type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

// LogConfig 日志文件按大小滚动，Level 为空时 debug 模式用 debug，否则 info
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// GamificationConfig 游戏化核心的可调参数，支持热更新
type GamificationConfig struct {
	IncludeActiveMinutesInTimeSpent bool   `mapstructure:"include_active_minutes_in_time_spent"`
	PassMarkPercent                 int    `mapstructure:"pass_mark_percent"`
	PingRetentionDays               int    `mapstructure:"ping_retention_days"`
	WeekTimezone                    string `mapstructure:"week_timezone"`
	ActiveTimeCombine               string `mapstructure:"active_time_combine"`
	AssignConcurrency               int    `mapstructure:"assign_concurrency"`
	AssignCron                      string `mapstructure:"assign_cron"`
	PruneCron                       string `mapstructure:"prune_cron"`
	CatalogPath                     string `mapstructure:"catalog_path"`
	CatalogObject                   string `mapstructure:"catalog_object"`
}

// DefaultGamification 默认值
func DefaultGamification() GamificationConfig {
	return GamificationConfig{
		PassMarkPercent:   60,
		PingRetentionDays: 90,
		WeekTimezone:      "Local",
		ActiveTimeCombine: "sum",
		AssignConcurrency: 4,
		AssignCron:        "5 0 * * 1",
		PruneCron:         "30 3 * * *",
		CatalogPath:       "configs/catalog.yaml",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultGamification()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("storage.type", "local")
	v.SetDefault("log.file", "logs/gamification.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("rate_limit.max_requests", 100000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("gamification.include_active_minutes_in_time_spent", d.IncludeActiveMinutesInTimeSpent)
	v.SetDefault("gamification.pass_mark_percent", d.PassMarkPercent)
	v.SetDefault("gamification.ping_retention_days", d.PingRetentionDays)
	v.SetDefault("gamification.week_timezone", d.WeekTimezone)
	v.SetDefault("gamification.active_time_combine", d.ActiveTimeCombine)
	v.SetDefault("gamification.assign_concurrency", d.AssignConcurrency)
	v.SetDefault("gamification.assign_cron", d.AssignCron)
	v.SetDefault("gamification.prune_cron", d.PruneCron)
	v.SetDefault("gamification.catalog_path", d.CatalogPath)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ACADEMY")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")

	// Gamification
	v.BindEnv("gamification.week_timezone", "WEEK_TIMEZONE")
	v.BindEnv("gamification.include_active_minutes_in_time_spent", "INCLUDE_ACTIVE_MINUTES_IN_TIME_SPENT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if err := cfg.Gamification.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验游戏化参数
func (g GamificationConfig) Validate() error {
	if g.PassMarkPercent < 0 || g.PassMarkPercent > 100 {
		return fmt.Errorf("gamification.pass_mark_percent must be within [0,100], got %d", g.PassMarkPercent)
	}
	if g.PingRetentionDays < 1 {
		return fmt.Errorf("gamification.ping_retention_days must be positive, got %d", g.PingRetentionDays)
	}
	switch g.ActiveTimeCombine {
	case "", "sum", "max":
	default:
		return fmt.Errorf("gamification.active_time_combine must be sum or max, got %q", g.ActiveTimeCombine)
	}
	return nil
}
