package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"parley.org/internal/audit"
	"parley.org/internal/auth"
	"parley.org/internal/httpapi"
	"parley.org/internal/obs"
	"parley.org/internal/space"
	"parley.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("PARLEY_COMMIT"))

	dsn := os.Getenv("PARLEY_PG_DSN")
	if dsn == "" {
		log.Fatal("PARLEY_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()

	tokens, err := buildTokenStore(sweepCtx, db)
	if err != nil {
		log.Fatalf("token store: %v", err)
	}

	svc := auth.NewService(auth.NewPGUserStore(db), auth.NewPGPermissionStore(db))

	api := httpapi.New(httpapi.Config{
		Auth:           svc,
		Tokens:         tokens,
		Spaces:         space.NewStore(db),
		Audit:          audit.NewRecorder(db),
		Ready:          httpapi.ReadyProbe{DB: db},
		Version:        version,
		AllowedOrigins: splitList(os.Getenv("PARLEY_ALLOWED_ORIGINS")),
		RatePerSecond:  envFloat("PARLEY_RATE_PER_SEC", 2),
		Burst:          envInt("PARLEY_RATE_BURST", 2),
	})

	srv := &http.Server{
		Addr:              envString("PARLEY_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting parley-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	stopSweep()
	_ = db.Close()
	log.Println("Stopped")
}

// buildTokenStore assembles the token pipeline selected by
// PARLEY_TOKEN_STORE. Every profile except the cookie-backed session
// store needs the 256-bit PARLEY_KEY.
func buildTokenStore(ctx context.Context, db *sql.DB) (token.Store, error) {
	profile := envString("PARLEY_TOKEN_STORE", "hmac-json")
	if profile == "session" {
		return token.NewSessionStore(), nil
	}

	key, err := loadKey()
	if err != nil {
		return nil, err
	}
	audience := envString("PARLEY_AUDIENCE", "https://api.parley.org")

	switch profile {
	case "hmac-json":
		return token.NewHMACStore(token.NewJSONStore(), key), nil
	case "database":
		store := token.NewDatabaseStore(db)
		store.StartSweeper(ctx)
		return token.NewHMACStore(store, key), nil
	case "redis":
		addr := os.Getenv("PARLEY_REDIS_ADDR")
		if addr == "" {
			return nil, fmt.Errorf("PARLEY_REDIS_ADDR is required for the redis store")
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return token.NewHMACStore(token.NewRedisStore(client, ""), key), nil
	case "signed-jwt":
		allow := token.NewDatabaseStore(db)
		allow.StartSweeper(ctx)
		return token.NewSignedJWTStore(key, audience, allow), nil
	case "encrypted-jwt":
		allow := token.NewDatabaseStore(db)
		allow.StartSweeper(ctx)
		return token.NewEncryptedJWTStore(key, audience, allow), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", profile)
	}
}

func loadKey() ([32]byte, error) {
	var key [32]byte
	encoded := os.Getenv("PARLEY_KEY")
	if encoded == "" {
		return key, fmt.Errorf("PARLEY_KEY is required")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("PARLEY_KEY must be base64url: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("PARLEY_KEY must decode to %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("%s must be a number: %v", name, err)
	}
	return parsed
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer: %v", name, err)
	}
	return parsed
}
