// Package config reads scandrive settings from an optional YAML file and the environment.
// Precedence is defaults, then the file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultFolderName       = "PDF Scans"
	defaultUploadURL        = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"
	defaultRedirectURL      = "http://localhost:8080/auth/callback"
	defaultFrontendURL      = "http://localhost:3000"
	defaultScannerEffectURL = "http://localhost:8080"
	defaultHTTPTimeout      = 30 * time.Second
	defaultUploadsPerSecond = 2
	defaultStorageBackend   = "memory"
	defaultFileTable        = "ScanFiles"
	defaultStateTable       = "LocalState"
	defaultLeaseTable       = "SyncLeases"
	defaultRedisAddr        = "localhost:6379"
	defaultWorkers          = 2
)

// Config is the full runtime configuration.
type Config struct {
	DevMode       bool                `yaml:"dev_mode"`
	FrontendURL   string              `yaml:"frontend_url"`
	StatePath     string              `yaml:"state_path"`
	Drive         DriveConfig         `yaml:"drive"`
	ScannerEffect ScannerEffectConfig `yaml:"scanner_effect"`
	Storage       StorageConfig       `yaml:"storage"`
	Queue         QueueConfig         `yaml:"queue"`
	KMSKeyID      string              `yaml:"kms_key_id"`
}

// DriveConfig holds Google Drive credentials and sync settings.
type DriveConfig struct {
	ClientID           string        `yaml:"client_id"`
	ClientSecret       string        `yaml:"client_secret"`
	APIKey             string        `yaml:"api_key"`
	AppID              string        `yaml:"app_id"`
	RedirectURL        string        `yaml:"redirect_url"`
	FolderName         string        `yaml:"folder_name"`
	TargetFolderID     string        `yaml:"target_folder_id"`
	ServiceAccountJSON string        `yaml:"service_account_json"`
	UploadURL          string        `yaml:"upload_url"`
	UploadsPerSecond   float64       `yaml:"uploads_per_second"`
	Timeout            time.Duration `yaml:"timeout"`
}

// Configured reports whether the Drive client ID, API key and app ID are all present.
func (d DriveConfig) Configured() bool {
	return d.ClientID != "" && d.APIKey != "" && d.AppID != ""
}

// ScannerEffectConfig points at the backend image-processing service.
type ScannerEffectConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects the local file store backend.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // memory, dynamodb or s3
	FileTable  string `yaml:"file_table"`
	StateTable string `yaml:"state_table"`
	LeaseTable string `yaml:"lease_table"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Access   string `yaml:"s3_access_key"`
	S3Secret   string `yaml:"s3_secret_key"`
	S3UseSSL   bool   `yaml:"s3_use_ssl"`
}

// QueueConfig configures the asynq Redis connection used for background Drive uploads.
// When Enabled is false, scanner-effect results are synced inline instead.
type QueueConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Concurrency   int    `yaml:"concurrency"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		StatePath:   defaultStatePath(),
		FrontendURL: defaultFrontendURL,
		Drive: DriveConfig{
			RedirectURL:      defaultRedirectURL,
			FolderName:       defaultFolderName,
			UploadURL:        defaultUploadURL,
			UploadsPerSecond: defaultUploadsPerSecond,
			Timeout:          defaultHTTPTimeout,
		},
		ScannerEffect: ScannerEffectConfig{
			BaseURL: defaultScannerEffectURL,
			Timeout: defaultHTTPTimeout,
		},
		Storage: StorageConfig{
			Backend:    defaultStorageBackend,
			FileTable:  defaultFileTable,
			StateTable: defaultStateTable,
			LeaseTable: defaultLeaseTable,
			S3Bucket:   "scans",
		},
		Queue: QueueConfig{
			RedisAddr:   defaultRedisAddr,
			Concurrency: defaultWorkers,
		},
		KMSKeyID: "alias/scandrive-token-key",
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "scandrive", "state.json")
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum fields and clamps non-positive numbers back to defaults.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "dynamodb", "s3":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Drive.Timeout <= 0 {
		c.Drive.Timeout = defaultHTTPTimeout
	}
	if c.ScannerEffect.Timeout <= 0 {
		c.ScannerEffect.Timeout = defaultHTTPTimeout
	}
	if c.Drive.UploadsPerSecond < 0 {
		c.Drive.UploadsPerSecond = defaultUploadsPerSecond
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = defaultWorkers
	}
	if c.Drive.FolderName == "" {
		c.Drive.FolderName = defaultFolderName
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DevMode = parseBool("DEV_MODE", cfg.DevMode)
	cfg.StatePath = readEnv("SCANDRIVE_STATE_PATH", cfg.StatePath)
	cfg.FrontendURL = readEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.KMSKeyID = readEnv("KMS_KEY_ID", cfg.KMSKeyID)

	d := &cfg.Drive
	d.ClientID = readEnv("GOOGLE_DRIVE_CLIENT_ID", d.ClientID)
	d.ClientSecret = readEnv("GOOGLE_CLIENT_SECRET", d.ClientSecret)
	d.APIKey = readEnv("GOOGLE_DRIVE_API_KEY", d.APIKey)
	d.AppID = readEnv("GOOGLE_DRIVE_APP_ID", d.AppID)
	d.RedirectURL = readEnv("GOOGLE_REDIRECT_URL", d.RedirectURL)
	d.FolderName = readEnv("GOOGLE_DRIVE_FOLDER_NAME", d.FolderName)
	d.TargetFolderID = readEnv("GOOGLE_DRIVE_TARGET_FOLDER_ID", d.TargetFolderID)
	d.ServiceAccountJSON = readEnv("GOOGLE_SERVICE_ACCOUNT_JSON", d.ServiceAccountJSON)
	d.UploadURL = readEnv("GOOGLE_DRIVE_UPLOAD_URL", d.UploadURL)
	d.UploadsPerSecond = parseFloat("GOOGLE_DRIVE_UPLOADS_PER_SECOND", d.UploadsPerSecond)
	d.Timeout = parseDuration("GOOGLE_DRIVE_TIMEOUT", d.Timeout)

	cfg.ScannerEffect.BaseURL = readEnv("SCANNER_EFFECT_URL", cfg.ScannerEffect.BaseURL)
	cfg.ScannerEffect.Timeout = parseDuration("SCANNER_EFFECT_TIMEOUT", cfg.ScannerEffect.Timeout)

	s := &cfg.Storage
	s.Backend = strings.ToLower(readEnv("STORAGE_BACKEND", s.Backend))
	s.FileTable = readEnv("FILE_STORE_TABLE", s.FileTable)
	s.StateTable = readEnv("STATE_TABLE", s.StateTable)
	s.LeaseTable = readEnv("SYNC_LEASES_TABLE", s.LeaseTable)
	s.S3Endpoint = readEnv("S3_ENDPOINT", s.S3Endpoint)
	s.S3Bucket = readEnv("S3_BUCKET", s.S3Bucket)
	s.S3Region = readEnv("S3_REGION", s.S3Region)
	s.S3Access = readEnv("S3_ACCESS_KEY", s.S3Access)
	s.S3Secret = readEnv("S3_SECRET_KEY", s.S3Secret)
	s.S3UseSSL = parseBool("S3_USE_SSL", s.S3UseSSL)

	q := &cfg.Queue
	q.Enabled = parseBool("QUEUE_ENABLED", q.Enabled)
	q.RedisAddr = readEnv("REDIS_ADDR", q.RedisAddr)
	q.RedisPassword = readEnv("REDIS_PASSWORD", q.RedisPassword)
	q.RedisDB = parseInt("REDIS_DB", q.RedisDB)
	q.Concurrency = parseInt("SCANDRIVE_WORKERS", q.Concurrency)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
