package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/soldeed/soldeed/internal/events"
	"github.com/soldeed/soldeed/internal/httpapi"
	"github.com/soldeed/soldeed/internal/job"
	jobpg "github.com/soldeed/soldeed/internal/job/postgres"
	"github.com/soldeed/soldeed/internal/listingcache"
	"github.com/soldeed/soldeed/internal/logostore"
	"github.com/soldeed/soldeed/internal/search"
	"github.com/soldeed/soldeed/internal/secrets"
	"github.com/soldeed/soldeed/internal/session"
	"github.com/soldeed/soldeed/internal/walletauth"
	walletuserpg "github.com/soldeed/soldeed/internal/walletuser/postgres"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:8080", "HTTP listen address")

		postgresDSN = flag.String("postgres-dsn", "", "Postgres DSN, or env:/file:/aws: reference (required)")

		redisAddr     = flag.String("redis-addr", "", "Redis address; empty keeps sessions and the listing cache in memory")
		redisPassword = flag.String("redis-password", "", "Redis password, or env:/file:/aws: reference")
		redisDB       = flag.Int("redis-db", 0, "Redis database number")

		logoDriver  = flag.String("logo-driver", logostore.DriverS3, "logo storage driver (s3|memory)")
		logoBucket  = flag.String("logo-bucket", logostore.DefaultBucket, "S3 bucket for logo uploads")
		logoPrefix  = flag.String("logo-prefix", logostore.DefaultPrefix, "key prefix inside the logo bucket")
		logoBaseURL = flag.String("logo-base-url", "", "public base URL for logo objects; empty derives the S3 default")

		queueDriver  = flag.String("queue-driver", events.DriverKafka, "queue driver for lifecycle events (kafka|stdio)")
		queueBrokers = flag.String("queue-brokers", "", "queue brokers (comma-separated); empty disables event publishing")

		sessionTTL    = flag.Duration("session-ttl", session.DefaultTTL, "session lifetime")
		challengeTTL  = flag.Duration("challenge-ttl", 5*time.Minute, "sign-in challenge lifetime")
		rebuildSpec   = flag.String("index-rebuild-spec", "@every 1m", "cron spec for periodic search index rebuilds")
		awsSecretsOn  = flag.Bool("aws-secrets", false, "enable aws: secret references via Secrets Manager")
		listingTTL    = flag.Duration("listing-cache-ttl", listingcache.DefaultTTL, "Redis listing cache TTL")

		rateLimitPerSecond = flag.Float64("rate-limit-per-ip-per-second", 20, "per-IP refill rate for API rate limiting")
		rateLimitBurst     = flag.Int("rate-limit-burst", 40, "per-IP burst capacity for API rate limiting")
		rateLimitMaxIPs    = flag.Int("rate-limit-max-tracked-ips", 10000, "maximum tracked client IP entries in rate limiter")

		readHeaderTimeout = flag.Duration("read-header-timeout", 5*time.Second, "http.Server ReadHeaderTimeout")
		readTimeout       = flag.Duration("read-timeout", 10*time.Second, "http.Server ReadTimeout")
		writeTimeout      = flag.Duration("write-timeout", 10*time.Second, "http.Server WriteTimeout")
		idleTimeout       = flag.Duration("idle-timeout", 60*time.Second, "http.Server IdleTimeout")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "error: --postgres-dsn is required")
		os.Exit(2)
	}
	if *listenAddr == "" {
		fmt.Fprintln(os.Stderr, "error: --listen must be non-empty")
		os.Exit(2)
	}
	if *readHeaderTimeout <= 0 || *readTimeout <= 0 || *writeTimeout <= 0 || *idleTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: timeouts must be > 0")
		os.Exit(2)
	}
	if *rateLimitPerSecond <= 0 || *rateLimitBurst <= 0 || *rateLimitMaxIPs <= 0 {
		fmt.Fprintln(os.Stderr, "error: rate limit settings must be > 0")
		os.Exit(2)
	}
	if *sessionTTL <= 0 || *challengeTTL <= 0 || *listingTTL <= 0 {
		fmt.Fprintln(os.Stderr, "error: TTL settings must be > 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var awsProvider secrets.Provider
	if *awsSecretsOn {
		p, err := secrets.NewAWS(ctx)
		if err != nil {
			log.Error("init aws secrets provider", "err", err)
			os.Exit(2)
		}
		awsProvider = p
	}
	resolver := secrets.NewResolver(awsProvider)

	dsn, err := resolver.Resolve(ctx, *postgresDSN)
	if err != nil {
		log.Error("resolve postgres dsn", "err", err)
		os.Exit(2)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Error("init pgx pool", "err", err)
		os.Exit(2)
	}
	defer pool.Close()

	jobStore, err := jobpg.New(pool)
	if err != nil {
		log.Error("init job store", "err", err)
		os.Exit(2)
	}
	if err := jobStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure job schema", "err", err)
		os.Exit(2)
	}

	userStore, err := walletuserpg.New(pool)
	if err != nil {
		log.Error("init wallet user store", "err", err)
		os.Exit(2)
	}
	if err := userStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure wallet user schema", "err", err)
		os.Exit(2)
	}

	var (
		sessions session.Store = session.NewMemoryStore()
		lister   listingcache.Lister
		listing  httpapi.ListingInvalidator
	)
	lister = jobStore
	if strings.TrimSpace(*redisAddr) != "" {
		password, err := resolver.Resolve(ctx, *redisPassword)
		if err != nil {
			log.Error("resolve redis password", "err", err)
			os.Exit(2)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     strings.TrimSpace(*redisAddr),
			Password: password,
			DB:       *redisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error("redis ping", "err", err)
			os.Exit(2)
		}

		redisSessions, err := session.NewRedisStore(client)
		if err != nil {
			log.Error("init redis session store", "err", err)
			os.Exit(2)
		}
		sessions = redisSessions

		cache, err := listingcache.New(listingcache.Config{
			Client: client,
			Source: jobStore,
			TTL:    *listingTTL,
			Logger: log,
		})
		if err != nil {
			log.Error("init listing cache", "err", err)
			os.Exit(2)
		}
		lister = cache
		listing = cache
		log.Info("redis enabled", "addr", *redisAddr)
	}

	var logos logostore.Store
	switch strings.TrimSpace(strings.ToLower(*logoDriver)) {
	case logostore.DriverMemory:
		logos, err = logostore.New(logostore.Config{
			Driver: logostore.DriverMemory,
			Bucket: *logoBucket,
			Prefix: *logoPrefix,
		})
	case logostore.DriverS3:
		awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx)
		if cfgErr != nil {
			log.Error("load aws config", "err", cfgErr)
			os.Exit(2)
		}
		logos, err = logostore.New(logostore.Config{
			Driver:        logostore.DriverS3,
			Bucket:        *logoBucket,
			Prefix:        *logoPrefix,
			PublicBaseURL: *logoBaseURL,
			S3Client:      s3.NewFromConfig(awsCfg),
		})
	default:
		fmt.Fprintf(os.Stderr, "error: unsupported --logo-driver %q\n", *logoDriver)
		os.Exit(2)
	}
	if err != nil {
		log.Error("init logo store", "err", err)
		os.Exit(2)
	}

	var publisher *events.Publisher
	if strings.TrimSpace(*queueBrokers) != "" || strings.TrimSpace(*queueDriver) == events.DriverStdio {
		producer, producerErr := events.NewProducer(events.ProducerConfig{
			Driver:  *queueDriver,
			Brokers: events.SplitCommaList(*queueBrokers),
		})
		if producerErr != nil {
			log.Error("init queue producer", "err", producerErr)
			os.Exit(2)
		}
		publisher = events.NewPublisher(producer)
		defer publisher.Close()
		log.Info("event publishing enabled", "queueDriver", *queueDriver)
	}

	seed, err := job.SeedJobs()
	if err != nil {
		log.Error("load seed postings", "err", err)
		os.Exit(2)
	}
	index, err := search.NewIndex(search.IndexConfig{
		Seed:   seed,
		Live:   lister,
		Logger: log,
	})
	if err != nil {
		log.Error("init search index", "err", err)
		os.Exit(2)
	}
	defer index.Close()
	if err := index.Rebuild(ctx); err != nil {
		log.Error("initial index rebuild", "err", err)
		os.Exit(2)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(*rebuildSpec, func() {
		rebuildCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := index.Rebuild(rebuildCtx); err != nil {
			log.Error("scheduled index rebuild", "err", err)
		}
	}); err != nil {
		log.Error("schedule index rebuild", "err", err, "spec", *rebuildSpec)
		os.Exit(2)
	}
	sched.Start()
	defer sched.Stop()

	handler, err := httpapi.NewHandler(httpapi.Config{
		Jobs:                    jobStore,
		Users:                   userStore,
		Sessions:                sessions,
		Challenger:              walletauth.NewChallenger(walletauth.Config{TTL: *challengeTTL}),
		Index:                   index,
		Logos:                   logos,
		Publisher:               publisher,
		Listing:                 listing,
		SessionTTL:              *sessionTTL,
		RateLimitPerIPPerSecond: *rateLimitPerSecond,
		RateLimitBurst:          *rateLimitBurst,
		RateLimitMaxTrackedIPs:  *rateLimitMaxIPs,
		Logger:                  log,
	})
	if err != nil {
		log.Error("init api handler", "err", err)
		os.Exit(2)
	}

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: *readHeaderTimeout,
		ReadTimeout:       *readTimeout,
		WriteTimeout:      *writeTimeout,
		IdleTimeout:       *idleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("soldeed-api listening", "addr", *listenAddr, "seedPostings", len(seed))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown", "reason", ctx.Err())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
