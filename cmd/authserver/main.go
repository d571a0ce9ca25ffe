// Command authserver runs the portal's authentication service: the engine
// wired to PostgreSQL and Redis, served over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/eduportal/authcore"
	"github.com/eduportal/authcore/httpapi"
	"github.com/eduportal/authcore/oauth"
	"github.com/eduportal/authcore/store/postgres"
)

func main() {
	// Local development loads .env; in deployment the environment is real.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("authserver: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	directory := postgres.New(pool)
	if getenvBool("MIGRATE_ON_START", true) {
		if err := directory.Migrate(ctx); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     getenv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()

	builder := authcore.New().
		WithConfig(authcore.Config{
			JWT: authcore.JWTConfig{
				Secret:    []byte(secret),
				Issuer:    getenv("JWT_ISSUER", "eduportal"),
				AccessTTL: getenvDuration("ACCESS_TTL", 15*time.Minute),
			},
			Session: authcore.SessionConfig{
				RedisPrefix:         getenv("REDIS_PREFIX", "eduportal"),
				RefreshTTL:          getenvDuration("REFRESH_TTL", 7*24*time.Hour),
				RotateRefreshTokens: getenvBool("ROTATE_REFRESH_TOKENS", true),
			},
			Audit: authcore.AuditConfig{
				Enabled:    getenvBool("AUDIT_ENABLED", true),
				DropIfFull: true,
			},
		}).
		WithRedis(rdb).
		WithDirectory(directory).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))

	redirectBase := getenv("OAUTH_REDIRECT_BASE", "http://localhost:8080")
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		p, err := oauth.NewGoogle(id, os.Getenv("GOOGLE_CLIENT_SECRET"),
			redirectBase+"/auth/oauth/google/callback")
		if err != nil {
			return err
		}
		builder.WithProvider(p)
	}
	if id := os.Getenv("GITHUB_CLIENT_ID"); id != "" {
		p, err := oauth.NewGitHub(id, os.Getenv("GITHUB_CLIENT_SECRET"),
			redirectBase+"/auth/oauth/github/callback")
		if err != nil {
			return err
		}
		builder.WithProvider(p)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.NewServer(engine, directory, httpapi.Config{
		CookieDomain:    os.Getenv("COOKIE_DOMAIN"),
		SecureCookies:   getenvBool("SECURE_COOKIES", true),
		OAuthSuccessURL: getenv("OAUTH_SUCCESS_URL", "/"),
		OAuthFailureURL: getenv("OAUTH_FAILURE_URL", "/login"),
	})

	srv := &http.Server{
		Addr:              getenv("ADDR", ":8080"),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("authserver listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
