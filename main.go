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
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ticketfy-checkin/checkin"
	"ticketfy-checkin/claims"
	"ticketfy-checkin/config"
	"ticketfy-checkin/gate"
	"ticketfy-checkin/handlers"
	"ticketfy-checkin/journal"
	"ticketfy-checkin/lookup"
	"ticketfy-checkin/notify"
	"ticketfy-checkin/redemption"
)

func connectToDatabase(dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("Successfully connected to the database!")
	return pool, nil
}

func connectToEthereum(rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	log.Println("Successfully connected to Ethereum node!")
	return client, nil
}

func connectToRedis(cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log.Println("Successfully connected to Redis!")
	return client, nil
}

// newSubmitter returns a nil Submitter when no validator key is configured.
func newSubmitter(cfg config.Config, client *ethclient.Client, logger *slog.Logger) (checkin.Submitter, string, error) {
	if cfg.ReadOnly() {
		return nil, "", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	submitter, err := redemption.NewKeyedSubmitter(ctx, client, cfg.ValidatorKey, logger)
	if err != nil {
		return nil, "", err
	}
	return submitter, submitter.Identity(), nil
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found, using default environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v\n", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Ethereum client connection
	ethClient, err := connectToEthereum(cfg.RPCURL)
	if err != nil {
		log.Fatalf("Unable to connect to Ethereum node: %v\n", err)
	}
	defer ethClient.Close()

	submitter, identity, err := newSubmitter(cfg, ethClient, logger)
	if err != nil {
		log.Fatalf("Unable to set up validator signer: %v\n", err)
	}
	if identity == "" {
		log.Println("Warning: VALIDATOR_PRIVATE_KEY not set, console is read-only")
	} else {
		log.Printf("Checking tickets in as validator %s\n", identity)
	}

	consoleCfg := handlers.ConsoleConfig{
		Backend:      lookup.NewClient(cfg.APIURL, cfg.LookupTimeout, logger),
		Gate:         gate.New(ethClient, cfg.AuthTimeout, logger),
		Identity:     identity,
		Submitter:    submitter,
		Claims:       claims.NewLocal(cfg.ClaimTTL),
		PollInterval: cfg.PollInterval,
		PublicURL:    cfg.PublicURL,
		Logger:       logger,
	}

	// Optional check-in journal
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = connectToDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v\n", err)
		}
		defer pool.Close()

		store := journal.NewStore(pool)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Unable to prepare journal: %v\n", err)
		}
		consoleCfg.History = store
		consoleCfg.Sinks = append(consoleCfg.Sinks, store)
	}

	// Optional cross-station claims
	if cfg.RedisAddr != "" {
		rdb, err := connectToRedis(cfg)
		if err != nil {
			log.Printf("Warning: Redis unavailable, claims are local to this process: %v\n", err)
		} else {
			defer rdb.Close()
			consoleCfg.Claims = claims.NewRedis(rdb, cfg.ClaimTTL)
		}
	}

	// Optional redemption events
	if cfg.RabbitMQURL != "" {
		publisher, err := notify.Dial(cfg.RabbitMQURL, logger)
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, redemption events are not published: %v\n", err)
		} else {
			defer publisher.Close()
			consoleCfg.Sinks = append(consoleCfg.Sinks, publisher)
		}
	}

	consoleHandler := handlers.NewConsoleHandler(consoleCfg)
	defer consoleHandler.Close()

	// Setup Gin
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", handlers.SessionHeader}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Validation-Link"}
	router.Use(cors.New(corsConfig))

	// API routes
	api := router.Group("/api/v1")
	consoleHandler.RegisterRoutes(api)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"read_only": identity == "",
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if _, err := ethClient.BlockNumber(ctx); err != nil {
			status["status"] = "degraded"
			status["rpc_error"] = err.Error()
		}
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				status["status"] = "degraded"
				status["database_error"] = err.Error()
			}
		}
		c.JSON(http.StatusOK, status)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v\n", err)
	}
}
