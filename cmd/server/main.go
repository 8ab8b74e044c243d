// Command server starts the Vidmill API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"vidmill/internal/api"
	"vidmill/internal/auth"
	"vidmill/internal/observability/logging"
	"vidmill/internal/observability/metrics"
	"vidmill/internal/server"
	"vidmill/internal/serverutil"
	"vidmill/internal/storage"
	"vidmill/internal/thumbnail"
)

func main() {
	envLoaded := godotenv.Load() == nil

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresStatementTimeout := flag.Duration("postgres-statement-timeout", 0, "statement timeout applied to Postgres sessions")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory, postgres or redis)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionRedisAddr := flag.String("session-redis-addr", "", "Redis address for the session store")
	sessionRedisPassword := flag.String("session-redis-password", "", "Redis password for the session store")
	sessionRedisPrefix := flag.String("session-redis-prefix", "", "Redis key prefix for session tokens")
	sessionTTL := flag.Duration("session-ttl", 0, "lifetime for issued session tokens")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired session sweeps")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis rate limit operations")
	trustProxy := flag.Bool("trust-proxy-headers", false, "trust proxy-provided client IP headers")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for thumbnails")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for returned thumbnail URLs")
	thumbnailEndpoint := flag.String("thumbnail-endpoint", "", "image generation API endpoint")
	thumbnailAPIKey := flag.String("thumbnail-api-key", "", "image generation API key")
	thumbnailImageSize := flag.String("thumbnail-image-size", "", "image size requested from the generation API")
	thumbnailRequestTimeout := flag.Duration("thumbnail-request-timeout", 0, "timeout for image generation requests")
	thumbnailFetchTimeout := flag.Duration("thumbnail-fetch-timeout", 0, "timeout for downloading generated images")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("VIDMILL_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("VIDMILL_LOG_FORMAT")),
	})
	if envLoaded {
		logger.Debug("loaded environment overrides from .env")
	}
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("VIDMILL_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("VIDMILL_ADDR"))

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("VIDMILL_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		store              storage.Repository
		storagePath        string
		storagePostgresDSN string
	)
	switch driver {
	case "json":
		storagePath = resolveDataPath(*dataPath, os.Getenv("VIDMILL_DATA"))
		store, err = storage.NewJSONRepository(storagePath)
	case "postgres":
		storagePostgresDSN = postgresDefaultDSN
		if storagePostgresDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "VIDMILL_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "VIDMILL_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "VIDMILL_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "VIDMILL_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "VIDMILL_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if timeout := resolveDuration(*postgresStatementTimeout, "VIDMILL_POSTGRES_STATEMENT_TIMEOUT", 0); timeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresStatementTimeout(timeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("VIDMILL_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(storagePostgresDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	objectCfg := storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("VIDMILL_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("VIDMILL_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("VIDMILL_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("VIDMILL_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("VIDMILL_OBJECT_BUCKET")),
		UseSSL:         resolveBool(*objectUseSSL, "VIDMILL_OBJECT_USE_SSL"),
		Prefix:         strings.TrimSpace(firstNonEmpty(*objectPrefix, os.Getenv("VIDMILL_OBJECT_PREFIX"))),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("VIDMILL_OBJECT_PUBLIC_ENDPOINT")),
	}
	objects := storage.NewObjectStorageClient(objectCfg)

	generator := thumbnail.NewGenerator(thumbnail.GeneratorConfig{
		Endpoint:       firstNonEmpty(*thumbnailEndpoint, os.Getenv("VIDMILL_THUMBNAIL_ENDPOINT")),
		APIKey:         firstNonEmpty(*thumbnailAPIKey, os.Getenv("VIDMILL_THUMBNAIL_API_KEY"), os.Getenv("FAL_KEY")),
		ImageSize:      firstNonEmpty(*thumbnailImageSize, os.Getenv("VIDMILL_THUMBNAIL_IMAGE_SIZE")),
		RequestTimeout: resolveDuration(*thumbnailRequestTimeout, "VIDMILL_THUMBNAIL_REQUEST_TIMEOUT", 0),
		FetchTimeout:   resolveDuration(*thumbnailFetchTimeout, "VIDMILL_THUMBNAIL_FETCH_TIMEOUT", 0),
	})
	var thumbnails *thumbnail.Service
	if generator.Configured() && objects.Enabled() {
		thumbnails = thumbnail.NewService(generator, objects, logging.WithComponent(logger, "thumbnails"))
	} else {
		logger.Warn("thumbnail generation disabled",
			"generator_configured", generator.Configured(),
			"object_storage_enabled", objects.Enabled())
	}

	sessionConfig, err := resolveSessionStoreConfig(sessionStoreInput{
		FlagDriver:    *sessionStoreDriver,
		EnvDriver:     os.Getenv("VIDMILL_SESSION_STORE"),
		StorageDriver: driver,
		StorageDSN:    storagePostgresDSN,
		FlagDSN:       *sessionPostgresDSN,
		EnvDSN:        os.Getenv("VIDMILL_SESSION_POSTGRES_DSN"),
		RedisAddr:     firstNonEmpty(*sessionRedisAddr, os.Getenv("VIDMILL_SESSION_REDIS_ADDR")),
		RequireShared: serverMode == "production",
	})
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore  auth.SessionStore
		sessionCloser func(context.Context) error
	)
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(sessionConfig.DSN)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
		sessionCloser = func(ctx context.Context) error { return pgStore.Close(ctx) }
	case "redis":
		redisStore, err := auth.NewRedisSessionStore(auth.RedisSessionStoreConfig{
			Addr:      sessionConfig.RedisAddr,
			Password:  firstNonEmpty(*sessionRedisPassword, os.Getenv("VIDMILL_SESSION_REDIS_PASSWORD")),
			KeyPrefix: firstNonEmpty(*sessionRedisPrefix, os.Getenv("VIDMILL_SESSION_REDIS_PREFIX")),
		})
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = redisStore
		sessionCloser = func(context.Context) error { return redisStore.Close() }
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}

	ttl := resolveDuration(*sessionTTL, "VIDMILL_SESSION_TTL", auth.DefaultSessionTTL)
	sessions := auth.NewSessionManager(ttl, auth.WithStore(sessionStore))

	handler := api.NewHandler(store, sessions)
	handler.Thumbnails = thumbnails
	handler.Logger = logger

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "VIDMILL_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "VIDMILL_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "VIDMILL_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "VIDMILL_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("VIDMILL_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("VIDMILL_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*rateRedisTimeout, "VIDMILL_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("VIDMILL_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("VIDMILL_TLS_KEY")),
		},
		RateLimit:         rateCfg,
		Logger:            logger,
		Metrics:           recorder,
		TrustProxyHeaders: resolveBool(*trustProxy, "VIDMILL_TRUST_PROXY_HEADERS"),
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	summary := newStartupSummary(startupSummaryInput{
		Mode:              serverMode,
		Addr:              listenAddr,
		StorageDriver:     driver,
		StoragePath:       storagePath,
		StorageDSN:        storagePostgresDSN,
		SessionConfig:     sessionConfig,
		RateLimit:         rateCfg,
		ObjectsEnabled:    objects.Enabled(),
		ThumbnailsEnabled: thumbnails.Configured(),
	})
	logger.Info("Vidmill API listening", summary.LogArgs()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	purgeInterval := resolveDuration(*sessionPurgeInterval, "VIDMILL_SESSION_PURGE_INTERVAL", 15*time.Minute)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serverutil.Run(groupCtx, serverutil.Config{Runner: srv})
	})
	purgeStop := startSessionPurgeWorker(groupCtx, logging.WithComponent(logger, "session-purger"), sessions, purgeInterval)

	exitCode := 0
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		exitCode = 1
	}
	purgeStop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	} else if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if sessionCloser != nil {
		if err := sessionCloser(closeCtx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

type sessionStoreConfig struct {
	Driver    string
	DSN       string
	RedisAddr string
}

type sessionStoreInput struct {
	FlagDriver    string
	EnvDriver     string
	StorageDriver string
	StorageDSN    string
	FlagDSN       string
	EnvDSN        string
	RedisAddr     string
	RequireShared bool
}

// resolveSessionStoreConfig picks the session backend. Explicit flags win,
// then the environment, then hints: a dedicated session DSN or Redis address
// selects that backend, a Postgres datastore shares its DSN, and everything
// else falls back to memory. Production refuses the memory store because
// tokens would not survive a restart or be visible to other replicas.
func resolveSessionStoreConfig(in sessionStoreInput) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(in.FlagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(in.EnvDriver))
	}

	sessionDSN := strings.TrimSpace(firstNonEmpty(in.FlagDSN, in.EnvDSN))
	redisAddr := strings.TrimSpace(in.RedisAddr)
	if driver == "" {
		switch {
		case sessionDSN != "":
			driver = "postgres"
		case redisAddr != "":
			driver = "redis"
		case in.StorageDriver == "postgres":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}

	if in.RequireShared && driver == "memory" {
		return sessionStoreConfig{}, fmt.Errorf("production mode requires a postgres or redis session store")
	}

	switch driver {
	case "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "postgres":
		if sessionDSN == "" {
			sessionDSN = strings.TrimSpace(in.StorageDSN)
		}
		if sessionDSN == "" {
			return sessionStoreConfig{}, fmt.Errorf("postgres session store selected without DSN")
		}
		return sessionStoreConfig{Driver: "postgres", DSN: sessionDSN}, nil
	case "redis":
		if redisAddr == "" {
			return sessionStoreConfig{}, fmt.Errorf("redis session store selected without address")
		}
		return sessionStoreConfig{Driver: "redis", RedisAddr: redisAddr}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, resolvedPostgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("VIDMILL_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}

// redactDSN masks the password component so connection strings can appear in
// startup logs.
func redactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, hasPassword := parsed.User.Password(); hasPassword {
		parsed.User = url.UserPassword(parsed.User.Username(), "*****")
	}
	return parsed.String()
}
