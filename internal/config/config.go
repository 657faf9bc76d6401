package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Tracing    TracingConfig `mapstructure:"tracing"`
	Judge0     Judge0Config
	Redis      RedisConfig
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Challenges ChallengesConfig `mapstructure:"challenges"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool   `mapstructure:"-"`
	MigrateOnly  bool   `mapstructure:"-"`
	ConfigFile   string `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port        string
	Mode        string
	WatchConfig bool `mapstructure:"watch_config"`
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
	SSLMode   string `mapstructure:"ssl_mode"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

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

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type Judge0Config struct {
	APIKey string `mapstructure:"api_key"`
	URL    string
	Host   string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// SandboxConfig 代码评测沙箱
type SandboxConfig struct {
	Driver         string        `mapstructure:"driver"` // docker / judge0
	Concurrency    int           `mapstructure:"concurrency"`
	TestTimeout    time.Duration `mapstructure:"test_timeout"`
	MemoryLimitMB  int           `mapstructure:"memory_limit_mb"`
	Retries        int           `mapstructure:"retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	CacheResults   bool          `mapstructure:"cache_results"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	DockerHost     string        `mapstructure:"docker_host"`
	DockerPull     bool          `mapstructure:"docker_pull"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
}

// MatchingConfig 推荐算法默认权重（数据库中无 AlgorithmConfig 时使用）
type MatchingConfig struct {
	LanguageWeight    float64       `mapstructure:"language_weight"`
	TopicWeight       float64       `mapstructure:"topic_weight"`
	DifficultyPenalty float64       `mapstructure:"difficulty_penalty"`
	PrimaryBonus      float64       `mapstructure:"primary_bonus"`
	MinScore          float64       `mapstructure:"min_score"`
	MaxResults        int           `mapstructure:"max_results"`
	RefreshWindow     time.Duration `mapstructure:"refresh_window"`
	AssessmentCutoff  float64       `mapstructure:"assessment_cutoff"`
}

// AdmissionConfig 挑战准入
type AdmissionConfig struct {
	PassThreshold int           `mapstructure:"pass_threshold"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	IssuedTTL     time.Duration `mapstructure:"issued_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	LockBackend   string        `mapstructure:"lock_backend"` // local / redis
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	LockWait      time.Duration `mapstructure:"lock_wait"`
	// 单次终结（评测 + 写入）的时间预算
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout"`
}

type ChallengesConfig struct {
	BankDir string `mapstructure:"bank_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "artifacts")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("sandbox.driver", "docker")
	v.SetDefault("sandbox.concurrency", 4)
	v.SetDefault("sandbox.test_timeout", 5*time.Second)
	v.SetDefault("sandbox.memory_limit_mb", 256)
	v.SetDefault("sandbox.retries", 2)
	v.SetDefault("sandbox.retry_backoff", 500*time.Millisecond)
	v.SetDefault("sandbox.cache_results", true)
	v.SetDefault("sandbox.cache_ttl", 24*time.Hour)
	v.SetDefault("sandbox.docker_host", "unix:///var/run/docker.sock")
	v.SetDefault("sandbox.max_output_bytes", 64*1024)

	v.SetDefault("matching.language_weight", 0.5)
	v.SetDefault("matching.topic_weight", 0.35)
	v.SetDefault("matching.difficulty_penalty", 0.15)
	v.SetDefault("matching.primary_bonus", 0.05)
	v.SetDefault("matching.min_score", 0.0)
	v.SetDefault("matching.max_results", 20)
	v.SetDefault("matching.refresh_window", 24*time.Hour)
	v.SetDefault("matching.assessment_cutoff", 0.5)

	v.SetDefault("admission.pass_threshold", 70)
	v.SetDefault("admission.cooldown", time.Hour)
	v.SetDefault("admission.issued_ttl", 24*time.Hour)
	v.SetDefault("admission.sweep_interval", time.Minute)
	v.SetDefault("admission.lock_backend", "local")
	v.SetDefault("admission.lock_ttl", 2*time.Minute)
	v.SetDefault("admission.lock_wait", 30*time.Second)
	v.SetDefault("admission.finalize_timeout", 90*time.Second)

	v.SetDefault("challenges.bank_dir", "configs/challenges")
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("COLLAB")
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
	v.BindEnv("server.port", "SERVER_PORT")

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

	// Sandbox / Judge0
	v.BindEnv("sandbox.driver", "SANDBOX_DRIVER")
	v.BindEnv("sandbox.docker_host", "DOCKER_HOST")
	v.BindEnv("judge0.api_key", "JUDGE0_API_KEY")
	v.BindEnv("judge0.url", "JUDGE0_URL")
	v.BindEnv("judge0.host", "JUDGE0_HOST")

	// Admission
	v.BindEnv("admission.lock_backend", "ADMISSION_LOCK_BACKEND")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Sandbox.Driver {
	case "docker", "judge0":
	default:
		return fmt.Errorf("unsupported sandbox driver: %s", c.Sandbox.Driver)
	}
	if c.Sandbox.Driver == "judge0" && c.Judge0.URL == "" {
		return fmt.Errorf("judge0.url is required when sandbox.driver is judge0")
	}
	if c.Admission.LockBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("admission.lock_backend redis requires redis.enabled")
	}
	if c.Admission.PassThreshold < 0 || c.Admission.PassThreshold > 100 {
		return fmt.Errorf("admission.pass_threshold must be within 0..100, got %d", c.Admission.PassThreshold)
	}
	if c.Sandbox.Concurrency < 1 {
		return fmt.Errorf("sandbox.concurrency must be positive, got %d", c.Sandbox.Concurrency)
	}
	return nil
}
