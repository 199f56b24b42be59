package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
port: "8080"
databaseURL: memory
minioEndpoint: memory
smtpHost: smtp.example.com
smtpFrom: site@example.com
contactEmail: owner@example.com
adminEmail: admin@example.com
adminPasswordHash: "$2a$10$abcdefghijklmnopqrstuv"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndEnvSecrets(t *testing.T) {
	path := writeConfig(t, baseYAML)
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 32))
	t.Setenv("SMTP_PASSWORD", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SMTPPassword != "from-env" {
		t.Fatalf("smtp password not taken from env")
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("max upload = %d", cfg.MaxUploadBytes)
	}
	if cfg.SignedURLTTLOrDefault() != 60*time.Second {
		t.Fatalf("signed url ttl = %v", cfg.SignedURLTTLOrDefault())
	}
	if cfg.CallTimeoutOrDefault() != 10*time.Second {
		t.Fatalf("call timeout = %v", cfg.CallTimeoutOrDefault())
	}
	if cfg.ContactRateLimitPerMin != defaultContactPerMinute {
		t.Fatalf("contact rate limit = %d", cfg.ContactRateLimitPerMin)
	}
}

func TestLoadRejectsMissingSessionSecret(t *testing.T) {
	path := writeConfig(t, baseYAML)
	t.Setenv("SESSION_SECRET", "")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "sessionSecret") {
		t.Fatalf("expected session secret error, got %v", err)
	}
}

func TestLoadRequiresMinioCredentialsOutsideMemoryMode(t *testing.T) {
	path := writeConfig(t, strings.Replace(baseYAML, "minioEndpoint: memory", "minioEndpoint: s3.example.com", 1))
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 32))
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "minio") {
		t.Fatalf("expected minio credential error, got %v", err)
	}

	t.Setenv("MINIO_ACCESS_KEY", "ak")
	t.Setenv("MINIO_SECRET_KEY", "sk")
	t.Setenv("MINIO_BUCKET", "menus")
	if _, err := Load(path); err != nil {
		t.Fatalf("load with env credentials: %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, baseYAML+"signedURLTTL: soon\n")
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 32))
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "signedURLTTL") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestLoadRejectsMalformedNumericEnv(t *testing.T) {
	path := writeConfig(t, baseYAML+"smtpPort: 587\nmaxUploadBytes: 2048\n")
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 32))

	cases := map[string]string{
		"SMTP_PORT":             "five-eight-seven",
		"SITE_MAX_UPLOAD_BYTES": "10MB",
	}
	for env, value := range cases {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			if _, err := Load(path); err == nil || !strings.Contains(err.Error(), env) {
				t.Fatalf("expected %s error, got %v", env, err)
			}
		})
	}

	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SITE_MAX_UPLOAD_BYTES", "4096")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load with valid overrides: %v", err)
	}
	if cfg.SMTPPort != 2525 || cfg.MaxUploadBytes != 4096 {
		t.Fatalf("overrides not applied: port=%d max=%d", cfg.SMTPPort, cfg.MaxUploadBytes)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" 10.0.0.0/8, ,192.168.1.1 ")
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.168.1.1" {
		t.Fatalf("splitCSV = %#v", got)
	}
}
