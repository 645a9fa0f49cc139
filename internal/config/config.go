package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.yaml"

	StorageSupabase = "supabase"
	StorageGCS      = "gcs"
	StorageS3       = "s3"
	StorageLocal    = "local"

	MetadataREST     = "rest"
	MetadataSQLite   = "sqlite"
	MetadataPostgres = "postgres"
	MetadataMemory   = "memory"
)

const (
	defaultPort            = "3000"
	defaultMaxUploadSize   = 500 << 20
	defaultShutdownTimeout = 15 * time.Second
	defaultBucket          = "videos"
	defaultLocalDir        = "./data/blobs"
	defaultSQLitePath      = "./vingest.db"
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresUser    = "vingest"
	defaultPostgresName    = "vingest"
	defaultSSLMode         = "disable"
	defaultFFmpegPath      = "ffmpeg"
	defaultTranscodeTime   = 10 * time.Minute
	defaultSweepAge        = 24 * time.Hour
	defaultRetries         = 3
	defaultRetryDelay      = 500 * time.Millisecond
	defaultRetryMaxDelay   = 5 * time.Second
	defaultRetryMultiplier = 2.0
	defaultHTTPTimeout     = 5 * time.Minute
	defaultLogLevel        = "info"
)

type Config struct {
	GCPProject string `yaml:"gcp_project"`
	LogLevel   string `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Storage   StorageConfig   `yaml:"storage"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Staging   StagingConfig   `yaml:"staging"`
	Retry     RetryConfig     `yaml:"retry"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SupabaseConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Bucket string `yaml:"bucket"`
}

type StorageConfig struct {
	Backend string   `yaml:"backend"`
	Local   LocalDir `yaml:"local"`
	GCS     GCSBlobs `yaml:"gcs"`
	S3      S3Blobs  `yaml:"s3"`
}

type LocalDir struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type GCSBlobs struct {
	PublicBaseURL string `yaml:"public_base_url"`
}

type S3Blobs struct {
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
	UsePathStyle  bool   `yaml:"use_path_style"`
}

type MetadataConfig struct {
	Backend    string         `yaml:"backend"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type TranscodeConfig struct {
	FFmpegPath string        `yaml:"ffmpeg_path"`
	Timeout    time.Duration `yaml:"timeout"`
	// Sequential runs frame extraction after the encode instead of alongside it.
	Sequential bool `yaml:"sequential"`
}

type StagingConfig struct {
	Dir      string        `yaml:"dir"`
	SweepAge time.Duration `yaml:"sweep_age"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// Timeout bounds each HTTP attempt to blob storage and PostgREST.
	Timeout time.Duration `yaml:"timeout"`
}

// SecretsConfig names Secret Manager secrets that fill empty credentials.
// A name is either a full version resource or a bare secret id resolved
// against GCPProject at its latest version.
type SecretsConfig struct {
	SupabaseAPIKey string `yaml:"supabase_api_key"`
}

// SecretAccessor reads one secret payload.
type SecretAccessor interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

// Load reads the configuration with Secret Manager as the secret source.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWith(ctx, path, &SecretManager{})
}

// LoadWith reads .env, then the YAML file at path, then applies environment
// overrides and defaults, resolves secrets and validates the result. A
// missing file is an error only when path is not the default.
func LoadWith(ctx context.Context, path string, secrets SecretAccessor) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := resolveSecrets(ctx, cfg, secrets); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			slog.Debug("No config.yaml found, using environment and defaults")
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setFromEnv(&cfg.Supabase.URL, "SUPABASE_URL")
	setFromEnv(&cfg.Supabase.APIKey, "SUPABASE_API_KEY")
	setFromEnv(&cfg.Supabase.Bucket, "SUPABASE_BUCKET")
	setFromEnv(&cfg.Server.Port, "PORT")
	setFromEnv(&cfg.Metadata.Postgres.Password, "DB_PASSWORD")
	setFromEnv(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setFromEnv(&cfg.Metadata.Backend, "METADATA_BACKEND")
	setFromEnv(&cfg.Transcode.FFmpegPath, "FFMPEG_PATH")
	setFromEnv(&cfg.GCPProject, "GCP_PROJECT")
	setFromEnv(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_SIZE %q: %w", v, err)
		}
		cfg.Server.MaxUploadSize = size
	}
	return nil
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(cfg)
	applyBackendDefaults(cfg)
	applyPostgresDefaults(cfg)
	applyTranscodeDefaults(cfg)
	applyRetryDefaults(cfg)

	if cfg.Supabase.Bucket == "" {
		cfg.Supabase.Bucket = defaultBucket
	}
	if cfg.Staging.SweepAge == 0 {
		cfg.Staging.SweepAge = defaultSweepAge
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
}

// applyBackendDefaults picks Supabase for both stores when a project URL
// is configured and local backends otherwise.
func applyBackendDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageLocal
		if cfg.Supabase.URL != "" {
			cfg.Storage.Backend = StorageSupabase
		}
	}
	if cfg.Metadata.Backend == "" {
		cfg.Metadata.Backend = MetadataSQLite
		if cfg.Supabase.URL != "" {
			cfg.Metadata.Backend = MetadataREST
		}
	}
	if cfg.Storage.Local.Dir == "" {
		cfg.Storage.Local.Dir = defaultLocalDir
	}
	if cfg.Storage.Local.PublicBaseURL == "" {
		cfg.Storage.Local.PublicBaseURL = "http://localhost:" + cfg.Server.Port + "/media"
	}
	if cfg.Metadata.SQLitePath == "" {
		cfg.Metadata.SQLitePath = defaultSQLitePath
	}
}

func applyPostgresDefaults(cfg *Config) {
	pg := &cfg.Metadata.Postgres
	if pg.Host == "" {
		pg.Host = defaultPostgresHost
	}
	if pg.Port == 0 {
		pg.Port = defaultPostgresPort
	}
	if pg.User == "" {
		pg.User = defaultPostgresUser
	}
	if pg.Name == "" {
		pg.Name = defaultPostgresName
	}
	if pg.SSLMode == "" {
		pg.SSLMode = defaultSSLMode
	}
}

func applyTranscodeDefaults(cfg *Config) {
	if cfg.Transcode.FFmpegPath == "" {
		cfg.Transcode.FFmpegPath = defaultFFmpegPath
	}
	if cfg.Transcode.Timeout == 0 {
		cfg.Transcode.Timeout = defaultTranscodeTime
	}
}

func applyRetryDefaults(cfg *Config) {
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = defaultRetries
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = defaultRetryDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = defaultRetryMaxDelay
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = defaultRetryMultiplier
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = defaultHTTPTimeout
	}
}

func resolveSecrets(ctx context.Context, cfg *Config, secrets SecretAccessor) error {
	if cfg.Supabase.APIKey != "" || cfg.Secrets.SupabaseAPIKey == "" {
		return nil
	}
	if secrets == nil {
		return errors.New("supabase api key secret configured but no secret source available")
	}

	name := secretVersionName(cfg.Secrets.SupabaseAPIKey, cfg.GCPProject)
	value, err := secrets.AccessSecret(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to resolve supabase api key: %w", err)
	}
	cfg.Supabase.APIKey = strings.TrimSpace(value)
	return nil
}

func secretVersionName(name, project string) string {
	if strings.HasPrefix(name, "projects/") {
		if !strings.Contains(name, "/versions/") {
			return name + "/versions/latest"
		}
		return name
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, name)
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageSupabase:
		if c.Supabase.URL == "" || c.Supabase.APIKey == "" {
			errs = append(errs, errors.New("supabase storage requires SUPABASE_URL and SUPABASE_API_KEY"))
		}
	case StorageGCS, StorageS3, StorageLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Metadata.Backend {
	case MetadataREST:
		if c.Supabase.URL == "" || c.Supabase.APIKey == "" {
			errs = append(errs, errors.New("rest metadata requires SUPABASE_URL and SUPABASE_API_KEY"))
		}
	case MetadataPostgres:
		if c.Metadata.Postgres.Password == "" {
			errs = append(errs, errors.New("postgres metadata requires DB_PASSWORD"))
		}
	case MetadataSQLite, MetadataMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown metadata backend %q", c.Metadata.Backend))
	}

	if c.Storage.Backend == StorageS3 && c.Storage.S3.Region == "" && c.Storage.S3.Endpoint == "" {
		errs = append(errs, errors.New("s3 storage requires a region or an endpoint"))
	}
	if c.Secrets.SupabaseAPIKey != "" && !strings.HasPrefix(c.Secrets.SupabaseAPIKey, "projects/") && c.GCPProject == "" {
		errs = append(errs, errors.New("secret names without a project require GCP_PROJECT"))
	}
	if c.Server.MaxUploadSize < 0 {
		errs = append(errs, errors.New("max_upload_size must not be negative"))
	}

	return errors.Join(errs...)
}

// LogLevelValue maps the configured level name to a slog level.
func (c *Config) LogLevelValue() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
