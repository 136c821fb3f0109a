// Package config loads runtime settings from defaults, an optional config
// file, a .env file and the environment (highest precedence last).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/imrishuroy/go-workorder-sync/internal/retry"
	"github.com/imrishuroy/go-workorder-sync/internal/store"
)

// Config holds every setting the sync process needs. It is built once in
// main and handed to constructors.
type Config struct {
	StoreBackend string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	DynamoDBTable    string
	AWSRegion        string
	EndpointOverride string

	StoreTimeout     time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryBackoff     string

	InboundDir  string
	OutboundDir string

	SyncEventsQueueURL string
	MetricsNamespace   string

	LogLevel  string
	LogFormat string
	LogFile   string

	HTTPAddr      string
	WatchDebounce time.Duration
	RunLocal      bool
}

// keys, also the environment variable names (viper upper-cases them)
const (
	keyStoreBackend     = "store_backend"
	keyMongoURI         = "mongo_uri"
	keyMongoDatabase    = "mongo_database"
	keyMongoCollection  = "mongo_collection"
	keyDynamoDBTable    = "dynamodb_table"
	keyAWSRegion        = "aws_region"
	keyEndpointOverride = "aws_endpoint_override"
	keyStoreTimeout     = "store_timeout"
	keyRetryMaxAttempts = "retry_max_attempts"
	keyRetryBaseDelay   = "retry_base_delay"
	keyRetryBackoff     = "retry_backoff"
	keyInboundDir       = "data_inbound_dir"
	keyOutboundDir      = "data_outbound_dir"
	keyEventsQueueURL   = "sync_events_queue_url"
	keyMetricsNamespace = "metrics_namespace"
	keyLogLevel         = "log_level"
	keyLogFormat        = "log_format"
	keyLogFile          = "log_file"
	keyHTTPAddr         = "http_addr"
	keyWatchDebounce    = "watch_debounce"
	keyRunLocal         = "run_local"
)

// LoadDefaults populates c with the local development defaults.
func (c *Config) LoadDefaults() {
	c.StoreBackend = store.BackendDynamoDB
	c.MongoURI = "mongodb://localhost:27017"
	c.MongoDatabase = "tractian"
	c.MongoCollection = "workorders"
	c.DynamoDBTable = "workorders"
	c.AWSRegion = "us-east-1"
	c.StoreTimeout = 3 * time.Second
	c.RetryMaxAttempts = 3
	c.RetryBaseDelay = time.Second
	c.RetryBackoff = retry.BackoffExponential
	c.InboundDir = "./data/inbound"
	c.OutboundDir = "./data/outbound"
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.HTTPAddr = ":8080"
	c.WatchDebounce = 2 * time.Second
}

func newViper() *viper.Viper {
	var d Config
	d.LoadDefaults()

	v := viper.New()
	v.SetDefault(keyStoreBackend, d.StoreBackend)
	v.SetDefault(keyMongoURI, d.MongoURI)
	v.SetDefault(keyMongoDatabase, d.MongoDatabase)
	v.SetDefault(keyMongoCollection, d.MongoCollection)
	v.SetDefault(keyDynamoDBTable, d.DynamoDBTable)
	v.SetDefault(keyAWSRegion, d.AWSRegion)
	v.SetDefault(keyEndpointOverride, "")
	v.SetDefault(keyStoreTimeout, d.StoreTimeout)
	v.SetDefault(keyRetryMaxAttempts, d.RetryMaxAttempts)
	v.SetDefault(keyRetryBaseDelay, d.RetryBaseDelay)
	v.SetDefault(keyRetryBackoff, d.RetryBackoff)
	v.SetDefault(keyInboundDir, d.InboundDir)
	v.SetDefault(keyOutboundDir, d.OutboundDir)
	v.SetDefault(keyEventsQueueURL, "")
	v.SetDefault(keyMetricsNamespace, "")
	v.SetDefault(keyLogLevel, d.LogLevel)
	v.SetDefault(keyLogFormat, d.LogFormat)
	v.SetDefault(keyLogFile, "")
	v.SetDefault(keyHTTPAddr, d.HTTPAddr)
	v.SetDefault(keyWatchDebounce, d.WatchDebounce)
	v.SetDefault(keyRunLocal, false)
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present) into the environment, then an optional
// config file, and returns the validated Config.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		StoreBackend:       v.GetString(keyStoreBackend),
		MongoURI:           v.GetString(keyMongoURI),
		MongoDatabase:      v.GetString(keyMongoDatabase),
		MongoCollection:    v.GetString(keyMongoCollection),
		DynamoDBTable:      v.GetString(keyDynamoDBTable),
		AWSRegion:          v.GetString(keyAWSRegion),
		EndpointOverride:   v.GetString(keyEndpointOverride),
		StoreTimeout:       v.GetDuration(keyStoreTimeout),
		RetryMaxAttempts:   v.GetInt(keyRetryMaxAttempts),
		RetryBaseDelay:     v.GetDuration(keyRetryBaseDelay),
		RetryBackoff:       v.GetString(keyRetryBackoff),
		InboundDir:         v.GetString(keyInboundDir),
		OutboundDir:        v.GetString(keyOutboundDir),
		SyncEventsQueueURL: v.GetString(keyEventsQueueURL),
		MetricsNamespace:   v.GetString(keyMetricsNamespace),
		LogLevel:           v.GetString(keyLogLevel),
		LogFormat:          v.GetString(keyLogFormat),
		LogFile:            v.GetString(keyLogFile),
		HTTPAddr:           v.GetString(keyHTTPAddr),
		WatchDebounce:      v.GetDuration(keyWatchDebounce),
		RunLocal:           v.GetBool(keyRunLocal),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the sync process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case store.BackendDynamoDB:
		if c.DynamoDBTable == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for the dynamodb backend"))
		}
	case store.BackendMongoDB:
		if c.MongoURI == "" || c.MongoDatabase == "" || c.MongoCollection == "" {
			errs = append(errs, errors.New("MONGO_URI, MONGO_DATABASE and MONGO_COLLECTION are required for the mongodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.InboundDir == "" || c.OutboundDir == "" {
		errs = append(errs, errors.New("DATA_INBOUND_DIR and DATA_OUTBOUND_DIR are required"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout))
	}
	if err := c.RetryPolicy(nil).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RetryPolicy returns the store retry policy described by c.
func (c *Config) RetryPolicy(isTransient func(error) bool) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		Backoff:     c.RetryBackoff,
		IsTransient: isTransient,
	}
}
