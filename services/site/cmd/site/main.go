package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"citefleurie/internal/ratelimit"
	"citefleurie/internal/util"
	"citefleurie/pkg/auth"
	"citefleurie/pkg/mailer"
	"citefleurie/pkg/storage"
	"citefleurie/pkg/store"
	"citefleurie/services/site/internal/app"
	"citefleurie/services/site/internal/config"
	"citefleurie/services/site/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("site server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig) error {
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = "http://localhost:" + cfg.Port
	}

	metadata, err := buildStore(cfg)
	if err != nil {
		return err
	}
	objects, objectHandler, err := buildObjectStore(cfg, publicURL)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	} else {
		slog.Warn("redisAddr not set: rate limits and session revocation are per-process")
	}
	contactLimiter, err := buildLimiter(redisClient, "contact", cfg.ContactRateLimitPerMin)
	if err != nil {
		return err
	}
	loginLimiter, err := buildLimiter(redisClient, "login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		return err
	}

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if redisClient != nil {
		revoker = auth.NewRedisRevoker(redisClient)
	}
	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTLDuration(), revoker)
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	smtp, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Timeout:  cfg.CallTimeoutOrDefault(),
	})
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	proxies, err := util.ParseProxyAllowlist(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	appCore, err := app.New(app.Config{
		Store:             metadata,
		Objects:           objects,
		Mailer:            smtp,
		Sessions:          sessions,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		ContactEmail:      cfg.ContactEmail,
		MailFrom:          cfg.SMTPFrom,
		SiteName:          cfg.SiteName,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		SignedURLTTL:      cfg.SignedURLTTLOrDefault(),
		CallTimeout:       cfg.CallTimeoutOrDefault(),
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		ContactLimiter: contactLimiter,
		LoginLimiter:   loginLimiter,
		TrustedProxies: proxies,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		ObjectHandler:  objectHandler,
		SecureCookies:  strings.HasPrefix(publicURL, "https://"),
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("site server listening", "addr", addr, "public_url", publicURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	slog.Info("site server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildStore(cfg config.FileConfig) (store.Store, error) {
	if cfg.DatabaseURL == config.MemoryBackend {
		slog.Warn("using in-memory metadata store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	return s, nil
}

func buildObjectStore(cfg config.FileConfig, publicURL string) (storage.ObjectStore, http.Handler, error) {
	if cfg.MinioEndpoint == config.MemoryBackend {
		slog.Warn("using in-memory object store; files are lost on restart")
		objects := storage.NewMemoryObjectStore(publicURL + "/objects")
		return objects, objects, nil
	}
	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init object store: %w", err)
	}
	return objects, nil, nil
}

func buildLimiter(client *redis.Client, name string, perMinute int) (ratelimit.Limiter, error) {
	rule := ratelimit.Rule{Limit: perMinute, Window: time.Minute}
	if client != nil {
		return ratelimit.NewRedisLimiter(client, name, rule)
	}
	return ratelimit.NewMemoryLimiter(rule)
}
