package common

import (
	"fmt"
	"os"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/network"
	"github.com/APTrust/preservation-fixity/storage"
	"github.com/APTrust/preservation-fixity/util/logger"
	"github.com/op/go-logging"
)

// Context holds the config and the long-lived clients that the fixity
// workers share.
type Context struct {
	Config      *Config
	Logger      *logging.Logger
	History     *storage.HistoryStore
	NSQClient   *network.NSQClient
	RedisClient *network.RedisClient
	S3Registry  *network.S3Registry
}

// NewContext loads the config from the environment and connects to
// everything. It panics on failure, as the apps cannot start without
// these.
func NewContext() *Context {
	context, err := NewContextFromConfig(NewConfig())
	if err != nil {
		panic(err)
	}
	return context
}

// LoadContext is like NewContext, but configDir and configName, when
// not empty, take the place of APT_CONFIG_DIR and APT_SERVICES_CONFIG.
func LoadContext(configDir, configName string) (*Context, error) {
	if configDir == "" {
		configDir = os.Getenv("APT_CONFIG_DIR")
	}
	if configName == "" {
		configName = os.Getenv("APT_SERVICES_CONFIG")
	}
	if configDir == "" || configName == "" {
		return nil, NewError("set -config-dir and -config-name, or APT_CONFIG_DIR and APT_SERVICES_CONFIG", nil, true)
	}
	config, err := LoadConfig(configDir, configName)
	if err != nil {
		return nil, err
	}
	return NewContextFromConfig(config)
}

// NewContextFromConfig builds a Context for config. The history store
// is opened here, so the caller must call Close.
func NewContextFromConfig(config *Config) (*Context, error) {
	_logger, _ := logger.InitLogger(config.LogDir, config.LogLevel)
	history, err := storage.OpenHistoryStore(config.HistoryDBPath)
	if err != nil {
		return nil, NewError("could not open history store", err, true)
	}
	registry, err := getS3Registry(config, _logger)
	if err != nil {
		history.Close()
		return nil, err
	}
	return &Context{
		Config:      config,
		Logger:      _logger,
		History:     history,
		NSQClient:   network.NewNSQClient(config.NsqURL),
		RedisClient: getRedisClient(config),
		S3Registry:  registry,
	}, nil
}

func getRedisClient(config *Config) *network.RedisClient {
	return network.NewRedisClient(
		config.RedisURL,
		config.RedisPassword,
		config.RedisDefaultDB)
}

func getS3Registry(config *Config, logger *logging.Logger) (*network.S3Registry, error) {
	if config.S3Host == "" {
		return nil, nil
	}
	registry, err := network.NewS3Registry(
		config.S3Host,
		config.S3KeyID,
		config.S3SecretKey,
		config.S3Bucket,
		config.S3UseSSL)
	if err != nil {
		return nil, NewError(fmt.Sprintf("could not initialize S3 client for %s", config.S3Host), err, true)
	}
	registry.Prefix = config.S3Prefix
	if config.S3Trace {
		registry.Client.TraceOn(NewTracer(logger))
	}
	return registry, nil
}

// NewRunner returns a Runner wired to this context's store, index and
// registry.
func (context *Context) NewRunner() (*fixity.Runner, error) {
	if context.S3Registry == nil {
		return nil, fmt.Errorf("S3_HOST is not set, so there is no object registry")
	}
	return fixity.NewRunner(
		context.History,
		context.RedisClient,
		context.S3Registry,
		context.Logger,
		context.Config.DigestAlgorithm,
		context.Config.FixityCheckTimeout), nil
}

// NewScheduler returns a Scheduler over this context's state index.
func (context *Context) NewScheduler() *fixity.Scheduler {
	return fixity.NewScheduler(context.RedisClient, context.Logger)
}

// Close releases the history store and the Redis connection pool.
func (context *Context) Close() error {
	var firstErr error
	if context.RedisClient != nil {
		firstErr = context.RedisClient.Close()
	}
	if context.History != nil {
		if err := context.History.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
