// Package config loads the service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"

	OTPStoreDatabase = "database"
	OTPStoreRedis    = "redis"
)

type Config struct {
	Env       string
	LogLevel  string
	Server    ServerConfig
	Database  DatabaseConfig
	DynamoDB  DynamoDBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OTP       OTPConfig
	SMS       SMSConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig selects the identity/challenge backend.
type DatabaseConfig struct {
	Driver     string
	URL        string
	SQLitePath string
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	// SecretKey is the inline HMAC secret. Ignored when SecretRedisKey is set.
	SecretKey string
	// SecretRedisKey names a Redis key holding the secret.
	SecretRedisKey string
	Expiry         time.Duration
}

type OTPConfig struct {
	Expiry             time.Duration
	DevMode            bool
	TestCode           string
	DefaultCountryCode string
	// Store is "database" (same backend as users) or "redis".
	Store string
}

type SMSConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

var (
	testCodePattern    = regexp.MustCompile(`^[0-9]{6}$`)
	countryCodePattern = regexp.MustCompile(`^\+[1-9][0-9]{0,3}$`)
)

// Load reads .env (if present) and the environment, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:      v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
			URL:        v.GetString("DATABASE_URL"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  v.GetString("DYNAMODB_ENDPOINT"),
			Region:    v.GetString("DYNAMODB_REGION"),
			TableName: v.GetString("DYNAMODB_TABLE_NAME"),
		},
		Redis: RedisConfig{
			Endpoint: v.GetString("REDIS_ENDPOINT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			SecretKey:      v.GetString("JWT_SECRET_KEY"),
			SecretRedisKey: v.GetString("JWT_SECRET_REDIS_KEY"),
			Expiry:         v.GetDuration("JWT_EXPIRY"),
		},
		OTP: OTPConfig{
			Expiry:             v.GetDuration("OTP_EXPIRY"),
			DevMode:            v.GetBool("OTP_DEV_MODE"),
			TestCode:           v.GetString("OTP_TEST_CODE"),
			DefaultCountryCode: v.GetString("OTP_DEFAULT_COUNTRY_CODE"),
			Store:              strings.ToLower(strings.TrimSpace(v.GetString("OTP_STORE"))),
		},
		SMS: SMSConfig{
			TwilioAccountSID: v.GetString("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  v.GetString("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber: v.GetString("TWILIO_FROM_NUMBER"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "mobileauth.db")
	v.SetDefault("DYNAMODB_ENDPOINT", "")
	v.SetDefault("DYNAMODB_REGION", "us-east-1")
	v.SetDefault("DYNAMODB_TABLE_NAME", "MobileAuthTable")
	v.SetDefault("REDIS_ENDPOINT", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_SECRET_REDIS_KEY", "")
	v.SetDefault("JWT_EXPIRY", 7*24*time.Hour)
	v.SetDefault("OTP_EXPIRY", 15*time.Minute)
	v.SetDefault("OTP_DEV_MODE", false)
	v.SetDefault("OTP_TEST_CODE", "123456")
	v.SetDefault("OTP_DEFAULT_COUNTRY_CODE", "+91")
	v.SetDefault("OTP_STORE", OTPStoreDatabase)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_FROM_NUMBER", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "mobileauth")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("config: DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return errors.New("config: SQLITE_PATH is required when STORAGE_DRIVER=sqlite")
		}
	case DriverDynamoDB:
		if c.DynamoDB.TableName == "" {
			return errors.New("config: DYNAMODB_TABLE_NAME is required when STORAGE_DRIVER=dynamodb")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Database.Driver)
	}

	switch c.OTP.Store {
	case OTPStoreDatabase, OTPStoreRedis:
	default:
		return fmt.Errorf("config: unknown OTP_STORE %q", c.OTP.Store)
	}

	if c.JWT.SecretRedisKey == "" {
		if c.JWT.SecretKey == "" {
			return errors.New("config: JWT_SECRET_KEY or JWT_SECRET_REDIS_KEY is required")
		}
		if len(c.JWT.SecretKey) < 32 {
			return errors.New("config: JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
		}
	}
	if c.JWT.Expiry <= 0 {
		return errors.New("config: JWT_EXPIRY must be positive")
	}

	if c.OTP.Expiry <= 0 {
		return errors.New("config: OTP_EXPIRY must be positive")
	}
	if !countryCodePattern.MatchString(c.OTP.DefaultCountryCode) {
		return fmt.Errorf("config: OTP_DEFAULT_COUNTRY_CODE %q must look like +<digits>", c.OTP.DefaultCountryCode)
	}
	if c.OTP.DevMode {
		if c.Env == "production" {
			return errors.New("config: OTP_DEV_MODE must not be true when APP_ENV=production")
		}
		if !testCodePattern.MatchString(c.OTP.TestCode) {
			return errors.New("config: OTP_TEST_CODE must be exactly 6 digits")
		}
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.OTP.Store == OTPStoreRedis || c.JWT.SecretRedisKey != ""
}
