package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/qcom/mobileauth/internal/config"
	"github.com/qcom/mobileauth/internal/database"
	"github.com/qcom/mobileauth/internal/handlers"
	"github.com/qcom/mobileauth/internal/middleware"
	"github.com/qcom/mobileauth/internal/notify"
	"github.com/qcom/mobileauth/internal/repository"
	"github.com/qcom/mobileauth/internal/secret"
	"github.com/qcom/mobileauth/internal/service"
	"github.com/qcom/mobileauth/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type stores struct {
	users service.UserStore
	otps  service.ChallengeStore
	close func() error
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = initRedis(ctx, cfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Redis")
		}
		logger.Info("Redis client initialized")
	}

	st, err := initStores(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	var source secret.Source = secret.StaticSource(cfg.JWT.SecretKey)
	if cfg.JWT.SecretRedisKey != "" {
		source = secret.NewRedisSource(redisClient, cfg.JWT.SecretRedisKey)
	}
	secrets := secret.NewProvider(source, logger)
	if _, err := secrets.Secret(ctx); err != nil {
		// Not fatal: the provider retries on the next request.
		logger.WithError(err).Warn("Signing secret not available at startup")
	}

	jwtService, err := service.NewJWTService(secrets, &cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	strategy, err := initStrategy(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP strategy")
	}

	otpService := service.NewOTPService(
		st.users,
		st.otps,
		strategy,
		jwtService,
		initSender(cfg, logger),
		&cfg.OTP,
		logger,
	)

	authHandlers := handlers.NewAuthHandlers(otpService, st.users, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)
	router := handlers.NewRouter(authHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := st.close(); err != nil {
		logger.WithError(err).Error("Failed to close storage")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Error("Failed to close Redis client")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to flush traces")
	}

	logger.Info("Server exited")
}

func initStores(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *logrus.Logger) (*stores, error) {
	var st *stores

	switch cfg.Database.Driver {
	case config.DriverPostgres, config.DriverSQLite:
		dialect, dsn := database.DialectPostgres, cfg.Database.URL
		if cfg.Database.Driver == config.DriverSQLite {
			dialect, dsn = database.DialectSQLite, cfg.Database.SQLitePath
		}

		if err := database.Migrate(dialect, dsn, "up"); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		db, err := database.Open(ctx, dialect, dsn)
		if err != nil {
			return nil, err
		}
		logger.WithField("dialect", dialect).Info("Database initialized")

		st = &stores{
			users: repository.NewUserRepository(db, logger),
			otps:  repository.NewOTPRepository(db, logger),
			close: db.Close,
		}

	case config.DriverDynamoDB:
		client, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		st = &stores{
			users: repository.NewDynamoUserRepository(client, cfg.DynamoDB.TableName, logger),
			otps:  repository.NewDynamoOTPRepository(client, cfg.DynamoDB.TableName, logger),
			close: func() error { return nil },
		}

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Database.Driver)
	}

	if cfg.OTP.Store == config.OTPStoreRedis {
		st.otps = repository.NewRedisOTPRepository(redisClient, logger)
		logger.Info("OTP challenges stored in Redis")
	}

	return st, nil
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func initStrategy(cfg *config.Config, logger *logrus.Logger) (service.ChallengeStrategy, error) {
	if !cfg.OTP.DevMode {
		return service.NewProductionStrategy(), nil
	}
	logger.Warn("OTP development mode enabled, codes are fixed and returned to callers")
	return service.NewDevelopmentStrategy(cfg.OTP.TestCode)
}

func initSender(cfg *config.Config, logger *logrus.Logger) service.CodeSender {
	if cfg.SMS.TwilioAccountSID == "" {
		logger.Warn("Twilio not configured, OTPs will only be logged")
		return notify.NewLogSender(cfg.Env != "production", logger)
	}
	return notify.NewTwilioSender(
		cfg.SMS.TwilioAccountSID,
		cfg.SMS.TwilioAuthToken,
		cfg.SMS.TwilioFromNumber,
		int(cfg.OTP.Expiry/time.Minute),
		logger,
	)
}
