package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location. SITE_CONFIG overrides it.
var ConfigPath = envOr("SITE_CONFIG", "config.yaml")

// MemoryBackend selects the in-process implementation for databaseURL or minioEndpoint.
const MemoryBackend = "memory"

const (
	defaultMaxUploadBytes   = 10 << 20
	defaultSignedURLTTL     = 60 * time.Second
	defaultCallTimeout      = 10 * time.Second
	defaultContactPerMinute = 5
	defaultLoginPerMinute   = 10
	minSessionSecretLen     = 32
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`
	PublicURL   string `yaml:"publicURL"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioRegion    string `yaml:"minioRegion"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     int    `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
	SMTPFrom     string `yaml:"smtpFrom"`
	ContactEmail string `yaml:"contactEmail"`
	SiteName     string `yaml:"siteName"`

	AdminEmail        string `yaml:"adminEmail"`
	AdminPasswordHash string `yaml:"adminPasswordHash"`
	SessionSecret     string `yaml:"sessionSecret"`
	SessionTTL        string `yaml:"sessionTTL"`

	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	SignedURLTTL            string   `yaml:"signedURLTTL"`
	CallTimeout             string   `yaml:"callTimeout"`
	ContactRateLimitPerMin  int      `yaml:"contactRateLimitPerMinute"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
}

// Load reads config from path (defaults to ConfigPath), applies environment
// overrides and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	// Secrets are only expected here; config.yaml is committed.
	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.PublicURL, "SITE_PUBLIC_URL")
	overrideString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	overrideString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	overrideString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	overrideString(&cfg.MinioBucket, "MINIO_BUCKET")
	overrideString(&cfg.MinioRegion, "MINIO_REGION")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		cfg.MinioUseSSL = v == "true"
	}
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.SMTPHost, "SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.SMTPPort = n
	}
	overrideString(&cfg.SMTPUsername, "SMTP_USERNAME")
	overrideString(&cfg.SMTPPassword, "SMTP_PASSWORD")
	overrideString(&cfg.SMTPFrom, "SMTP_FROM")
	overrideString(&cfg.ContactEmail, "CONTACT_EMAIL")
	overrideString(&cfg.AdminEmail, "ADMIN_EMAIL")
	overrideString(&cfg.AdminPasswordHash, "ADMIN_PASSWORD_HASH")
	overrideString(&cfg.SessionSecret, "SESSION_SECRET")
	overrideString(&cfg.SessionTTL, "SESSION_TTL")
	if v := os.Getenv("SITE_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid SITE_MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.ContactRateLimitPerMin == 0 {
		cfg.ContactRateLimitPerMin = defaultContactPerMinute
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultLoginPerMinute
	}
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUsername
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "Restaurant"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioEndpoint != MemoryBackend {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minio credentials are required (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required (set in config.yaml)")
		}
	}
	if cfg.SMTPHost == "" {
		return errors.New("config: smtpHost is required (set in config.yaml or SMTP_HOST)")
	}
	if _, err := mail.ParseAddress(cfg.SMTPFrom); err != nil {
		return errors.New("config: smtpFrom must be an email address")
	}
	if _, err := mail.ParseAddress(cfg.ContactEmail); err != nil {
		return errors.New("config: contactEmail must be an email address")
	}
	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		return errors.New("config: adminEmail and adminPasswordHash are required (ADMIN_EMAIL, ADMIN_PASSWORD_HASH)")
	}
	if len(cfg.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("config: sessionSecret must be at least %d bytes (SESSION_SECRET)", minSessionSecretLen)
	}
	if cfg.SMTPPort < 0 || cfg.SMTPPort > 65535 {
		return errors.New("config: smtpPort must be between 0 and 65535")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.ContactRateLimitPerMin < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"sessionTTL":   cfg.SessionTTL,
		"signedURLTTL": cfg.SignedURLTTL,
		"callTimeout":  cfg.CallTimeout,
	} {
		if _, err := parseDuration(name, raw, 0); err != nil {
			return err
		}
	}
	return nil
}

// SignedURLTTLOrDefault returns the signed URL lifetime (60s when unset).
func (c FileConfig) SignedURLTTLOrDefault() time.Duration {
	d, _ := parseDuration("signedURLTTL", c.SignedURLTTL, defaultSignedURLTTL)
	return d
}

// CallTimeoutOrDefault returns the bound applied to every store and relay call.
func (c FileConfig) CallTimeoutOrDefault() time.Duration {
	d, _ := parseDuration("callTimeout", c.CallTimeout, defaultCallTimeout)
	return d
}

// SessionTTLDuration returns the admin session lifetime, zero meaning the manager default.
func (c FileConfig) SessionTTLDuration() time.Duration {
	d, _ := parseDuration("sessionTTL", c.SessionTTL, 0)
	return d
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if d <= 0 {
		return fallback, fmt.Errorf("config: %s must be positive", name)
	}
	return d, nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
