package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yourorg/scan-sweeper/internal/logger"
)

type Config struct {
	Root          string
	ResultsDir    string
	ProgressFile  string
	ScannerPath   string
	Severities    string
	NotifyPath    string
	NotifyChannel string
	NotifyEnabled bool

	DatabaseURL   string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	S3Region      string
	ReportsBucket string

	HTTPAddr string
	Log      logger.Config
}

// key -> environment variable
var envKeys = map[string]string{
	"scan.root":          "SCAN_ROOT",
	"scan.results_dir":   "RESULTS_DIR",
	"scan.progress_file": "PROGRESS_FILE",
	"scan.scanner_path":  "SCANNER_PATH",
	"scan.severities":    "SCAN_SEVERITIES",
	"notify.path":        "NOTIFY_PATH",
	"notify.channel":     "NOTIFY_CHANNEL",
	"notify.enabled":     "NOTIFY_ENABLED",
	"database.url":       "DATABASE_URL",
	"s3.endpoint":        "S3_ENDPOINT",
	"s3.access_key":      "S3_ACCESS_KEY",
	"s3.secret_key":      "S3_SECRET_KEY",
	"s3.use_ssl":         "S3_USE_SSL",
	"s3.region":          "S3_REGION",
	"s3.reports_bucket":  "REPORTS_BUCKET",
	"http.addr":          "HTTP_ADDR",
	"log.level":          "LOG_LEVEL",
	"log.format":         "LOG_FORMAT",
	"log.output":         "LOG_OUTPUT",
	"log.file":           "LOG_FILE",
	"log.max_size_mb":    "LOG_MAX_SIZE_MB",
	"log.max_backups":    "LOG_MAX_BACKUPS",
	"log.max_age_days":   "LOG_MAX_AGE_DAYS",
	"log.compress":       "LOG_COMPRESS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.root", ".")
	v.SetDefault("scan.results_dir", "nuclei_filtered_results")
	v.SetDefault("scan.progress_file", "scan_progress.log")
	v.SetDefault("scan.scanner_path", "nuclei")
	v.SetDefault("scan.severities", "info,low,medium,high,critical")
	v.SetDefault("notify.path", "notify")
	v.SetDefault("notify.channel", "discord-nuclei")
	v.SetDefault("notify.enabled", true)
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/sweeper.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// LoadEnvFiles loads .env files if present. Missing files are ignored.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env", "../.env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads defaults, then the optional YAML file, then the environment.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Root:          v.GetString("scan.root"),
		ResultsDir:    v.GetString("scan.results_dir"),
		ProgressFile:  v.GetString("scan.progress_file"),
		ScannerPath:   v.GetString("scan.scanner_path"),
		Severities:    v.GetString("scan.severities"),
		NotifyPath:    v.GetString("notify.path"),
		NotifyChannel: v.GetString("notify.channel"),
		NotifyEnabled: v.GetBool("notify.enabled"),
		DatabaseURL:   v.GetString("database.url"),
		S3Endpoint:    v.GetString("s3.endpoint"),
		S3AccessKey:   v.GetString("s3.access_key"),
		S3SecretKey:   v.GetString("s3.secret_key"),
		S3UseSSL:      v.GetBool("s3.use_ssl"),
		S3Region:      v.GetString("s3.region"),
		ReportsBucket: v.GetString("s3.reports_bucket"),
		HTTPAddr:      v.GetString("http.addr"),
		Log: logger.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			FilePath:   v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("SCAN_ROOT must not be empty")
	}
	if strings.TrimSpace(c.ScannerPath) == "" {
		return fmt.Errorf("SCANNER_PATH must not be empty")
	}
	if strings.TrimSpace(c.ProgressFile) == "" {
		return fmt.Errorf("PROGRESS_FILE must not be empty")
	}
	if c.NotifyEnabled && strings.TrimSpace(c.NotifyChannel) == "" {
		return fmt.Errorf("NOTIFY_CHANNEL is required when notifications are enabled")
	}
	if c.S3Endpoint != "" && c.ReportsBucket == "" {
		return fmt.Errorf("REPORTS_BUCKET is required when S3_ENDPOINT is set")
	}
	return nil
}

// ArchiveEnabled reports whether findings go to Postgres.
func (c Config) ArchiveEnabled() bool { return c.DatabaseURL != "" }

// MirrorEnabled reports whether reports are copied to object storage.
func (c Config) MirrorEnabled() bool { return c.S3Endpoint != "" }
