package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	MinIO    MinIOConfig    `yaml:"minio" mapstructure:"minio"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig configures the Postgres backend.
type DatabaseConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MinIOConfig configures the attachment object store.
type MinIOConfig struct {
	Endpoint           string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey          string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey          string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket             string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL             bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	PresignExpiryHours int    `yaml:"presign_expiry_hours" mapstructure:"presign_expiry_hours"`
}

// SourcesConfig holds the per-exchange fetch settings.
type SourcesConfig struct {
	BSE BSESourceConfig `yaml:"bse" mapstructure:"bse"`
	NSE NSESourceConfig `yaml:"nse" mapstructure:"nse"`
}

// BSESourceConfig configures the BSE announcements source. The API tolerates
// modest request rates without cookies but truncates wide date ranges, so
// fetches run day by day.
type BSESourceConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	APIBase       string `yaml:"api_base" mapstructure:"api_base"`
	SiteBase      string `yaml:"site_base" mapstructure:"site_base"`
	Category      string `yaml:"category" mapstructure:"category"`
	ChunkDays     int    `yaml:"chunk_days" mapstructure:"chunk_days"`
	PageSize      int    `yaml:"page_size" mapstructure:"page_size"`
	MinIntervalMs int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	ChunkDelayMs  int    `yaml:"chunk_delay_ms" mapstructure:"chunk_delay_ms"`

	// AttachmentLiveURL and AttachmentArchiveURL resolve bare PDF filenames;
	// recent filings sit on the live host, older ones move to a dated archive.
	AttachmentLiveURL    string `yaml:"attachment_live_url" mapstructure:"attachment_live_url"`
	AttachmentArchiveURL string `yaml:"attachment_archive_url" mapstructure:"attachment_archive_url"`
}

// NSESourceConfig configures the NSE announcements source. The API sits
// behind cookie and bot checks, so its session carries warm-up state and a
// bounded lifetime.
type NSESourceConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	APIBase             string `yaml:"api_base" mapstructure:"api_base"`
	SiteBase            string `yaml:"site_base" mapstructure:"site_base"`
	Category            string `yaml:"category" mapstructure:"category"`
	ChunkDays           int    `yaml:"chunk_days" mapstructure:"chunk_days"`
	MinIntervalMs       int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	ChunkDelayMs        int    `yaml:"chunk_delay_ms" mapstructure:"chunk_delay_ms"`
	SessionLifetimeSecs int    `yaml:"session_lifetime_secs" mapstructure:"session_lifetime_secs"`
}

// RetryConfig configures the shared backoff policy.
type RetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts" mapstructure:"max_attempts"`
	TransientBaseMs int `yaml:"transient_base_ms" mapstructure:"transient_base_ms"`
	BlockedBaseMs   int `yaml:"blocked_base_ms" mapstructure:"blocked_base_ms"`
	MaxDelayMs      int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HasCredentials reports whether object-store access is configured.
func (m MinIOConfig) HasCredentials() bool {
	return m.AccessKey != "" && m.SecretKey != ""
}

// Validate checks the fields a command mode needs before it starts. Crawl
// tolerates missing object-store credentials (attachments are skipped), so
// those are only required for presign.
func (c *Config) Validate(mode string) error {
	var problems []string

	needDB := func() {
		if c.Database.URL == "" {
			problems = append(problems, "database.url is required")
		}
	}

	switch mode {
	case "crawl", "migrate", "query":
		needDB()
	case "presign":
		needDB()
		if c.MinIO.AccessKey == "" {
			problems = append(problems, "minio.access_key is required")
		}
		if c.MinIO.SecretKey == "" {
			problems = append(problems, "minio.secret_key is required")
		}
	case "serve":
		needDB()
		if c.Server.Addr == "" {
			problems = append(problems, "server.addr is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, "database.min_conns must not exceed database.max_conns")
	}
	// Presigned URLs cannot outlive the S3 protocol's 7-day cap.
	if c.MinIO.PresignExpiryHours < 1 || c.MinIO.PresignExpiryHours > 168 {
		problems = append(problems, "minio.presign_expiry_hours must be between 1 and 168")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FILINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.bucket", "bse-pdfs")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.presign_expiry_hours", 24)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.transient_base_ms", 2000)
	v.SetDefault("retry.blocked_base_ms", 10000)
	v.SetDefault("retry.max_delay_ms", 120000)
	v.SetDefault("sources.bse.enabled", true)
	v.SetDefault("sources.bse.api_base", "https://api.bseindia.com/BseIndiaAPI/api")
	v.SetDefault("sources.bse.site_base", "https://www.bseindia.com")
	v.SetDefault("sources.bse.chunk_days", 1)
	v.SetDefault("sources.bse.page_size", 50)
	v.SetDefault("sources.bse.min_interval_ms", 500)
	v.SetDefault("sources.bse.chunk_delay_ms", 1000)
	v.SetDefault("sources.bse.attachment_live_url", "https://www.bseindia.com/xml-data/corpfiling/AttachLive")
	v.SetDefault("sources.bse.attachment_archive_url", "https://www.bseindia.com/xml-data/corpfiling/AttachHis")
	v.SetDefault("sources.nse.enabled", true)
	v.SetDefault("sources.nse.api_base", "https://www.nseindia.com/api")
	v.SetDefault("sources.nse.site_base", "https://www.nseindia.com")
	v.SetDefault("sources.nse.chunk_days", 0)
	v.SetDefault("sources.nse.min_interval_ms", 3000)
	v.SetDefault("sources.nse.chunk_delay_ms", 1000)
	v.SetDefault("sources.nse.session_lifetime_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
