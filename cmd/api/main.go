package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/dkovalev/molotok/internal/adapters/api"
	"github.com/dkovalev/molotok/internal/adapters/cache"
	"github.com/dkovalev/molotok/internal/adapters/database"
	"github.com/dkovalev/molotok/internal/domain/auction"
	"github.com/dkovalev/molotok/pkg/auth"
	pkgdb "github.com/dkovalev/molotok/pkg/database"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx := context.Background()

	// 1. Initialize Postgres Connection Pool
	dbURL := os.Getenv("AUCTION_DB_URL")
	if dbURL == "" {
		logger.Error("AUCTION_DB_URL is not set")
		os.Exit(1)
	}

	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to Redis for live price snapshots
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Error("REDIS_URL is not set")
		os.Exit(1)
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Unable to ping Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("Redis Connected")

	// 3. Load the JWT key pair. The API both verifies bidder tokens and
	// mints admin tokens at the login endpoint.
	privateKeyPath := os.Getenv("JWT_PRIVATE_KEY_PATH")
	publicKeyPath := os.Getenv("JWT_PUBLIC_KEY_PATH")
	if privateKeyPath == "" || publicKeyPath == "" {
		logger.Error("JWT_PRIVATE_KEY_PATH or JWT_PUBLIC_KEY_PATH is not set")
		os.Exit(1)
	}
	privateKeyPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		logger.Error("Unable to read JWT private key", "error", err)
		os.Exit(1)
	}
	publicKeyPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		logger.Error("Unable to read JWT public key", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSigner(privateKeyPEM, publicKeyPEM, os.Getenv("JWT_ISSUER"))
	if err != nil {
		logger.Error("Unable to create token signer", "error", err)
		os.Exit(1)
	}

	adminUserID, err := strconv.ParseInt(os.Getenv("ADMIN_USER_ID"), 10, 64)
	if err != nil {
		logger.Error("ADMIN_USER_ID is not a valid integer", "error", err)
		os.Exit(1)
	}
	adminAuth, err := auth.NewAdminAuthenticator(
		adminUserID,
		os.Getenv("ADMIN_USERNAME"),
		os.Getenv("ADMIN_PASSWORD_HASH"),
		signer,
		auth.DefaultAdminTokenTTL,
	)
	if err != nil {
		logger.Error("Unable to configure admin login", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	auctionRepo := database.NewPostgresAuctionRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 5. Initialize Service (Domain Layer)
	auctionService := auction.NewService(txManager, auctionRepo, bidRepo, outboxRepo)

	// 6. Initialize API Handler
	livePrices := cache.NewLivePriceCache(rdb)
	handler := api.NewHandler(auctionService, livePrices, adminAuth, logger)

	mux := http.NewServeMux()
	handler.Register(mux, signer)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// 7. Start Server
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("Starting Auction API", "addr", addr)

	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
