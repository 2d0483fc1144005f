package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/util"
	"github.com/APTrust/preservation-fixity/util/logger"
	"github.com/op/go-logging"
	"github.com/spf13/viper"
)

type Config struct {
	ConfigName              string
	DigestAlgorithm         string
	FixityCheckTimeout      time.Duration
	FixityWorkers           int
	HistoryDBPath           string
	LogDir                  string
	LogLevel                logging.Level
	MaxDaysSinceFixityCheck int
	MaxFixityItemsPerRun    int
	MetricsAddr             string
	NsqLookupd              string
	NsqURL                  string
	PidFile                 string
	QueueFixityInterval     time.Duration
	RedisDefaultDB          int
	RedisPassword           string `json:"-"`
	RedisURL                string
	S3Bucket                string
	S3Host                  string
	S3KeyID                 string `json:"-"`
	S3Prefix                string
	S3SecretKey             string `json:"-"`
	S3Trace                 bool
	S3UseSSL                bool
}

// Returns a new config based on ENV vars APT_CONFIG_DIR and
// APT_SERVICES_CONFIG. This panics if the config cannot be loaded or
// is not valid, since none of the apps can do anything without one.
func NewConfig() *Config {
	configDir, envName := getEnvVars()
	config, err := LoadConfig(configDir, envName)
	if err != nil {
		panic(err)
	}
	return config
}

// LoadConfig reads .env.<envName> from configDir, expands paths,
// validates the result, and creates the log directory and the
// directory holding the history database.
func LoadConfig(configDir, envName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configDir)
	v.SetConfigName(".env." + envName)
	v.SetConfigType("env")
	setDefaults(v)
	err := v.ReadInConfig()
	if err != nil {
		return nil, NewError(fmt.Sprintf("cannot read config %s from %s", envName, configDir), err, true)
	}
	config := &Config{
		ConfigName:              envName,
		DigestAlgorithm:         strings.ToLower(v.GetString("DIGEST_ALGORITHM")),
		FixityCheckTimeout:      v.GetDuration("FIXITY_CHECK_TIMEOUT"),
		FixityWorkers:           v.GetInt("FIXITY_WORKERS"),
		HistoryDBPath:           v.GetString("HISTORY_DB_PATH"),
		LogDir:                  v.GetString("LOG_DIR"),
		MaxDaysSinceFixityCheck: v.GetInt("MAX_DAYS_SINCE_LAST_FIXITY"),
		MaxFixityItemsPerRun:    v.GetInt("MAX_FIXITY_ITEMS_PER_RUN"),
		MetricsAddr:             v.GetString("METRICS_ADDR"),
		NsqLookupd:              v.GetString("NSQ_LOOKUPD"),
		NsqURL:                  v.GetString("NSQ_URL"),
		PidFile:                 v.GetString("PID_FILE"),
		QueueFixityInterval:     v.GetDuration("QUEUE_FIXITY_INTERVAL"),
		RedisDefaultDB:          v.GetInt("REDIS_DEFAULT_DB"),
		RedisPassword:           v.GetString("REDIS_PASSWORD"),
		RedisURL:                v.GetString("REDIS_URL"),
		S3Bucket:                v.GetString("S3_BUCKET"),
		S3Host:                  v.GetString("S3_HOST"),
		S3KeyID:                 v.GetString("S3_KEY"),
		S3Prefix:                v.GetString("S3_PREFIX"),
		S3SecretKey:             v.GetString("S3_SECRET"),
		S3Trace:                 v.GetBool("S3_TRACE"),
		S3UseSSL:                v.GetBool("S3_USE_SSL"),
	}
	level, err := logger.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, NewError(fmt.Sprintf("invalid LOG_LEVEL %q", v.GetString("LOG_LEVEL")), err, true)
	}
	config.LogLevel = level
	if err = config.expandPaths(); err != nil {
		return nil, err
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	if err = config.makeDirs(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DIGEST_ALGORITHM", constants.AlgSha256)
	v.SetDefault("FIXITY_CHECK_TIMEOUT", constants.DefaultCheckTimeout)
	v.SetDefault("FIXITY_WORKERS", 4)
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("MAX_DAYS_SINCE_LAST_FIXITY", constants.DefaultMaxDaysSince)
	v.SetDefault("MAX_FIXITY_ITEMS_PER_RUN", constants.DefaultItemsPerRun)
	v.SetDefault("QUEUE_FIXITY_INTERVAL", constants.DefaultQueueInterval)
	v.SetDefault("REDIS_DEFAULT_DB", 0)
	v.SetDefault("S3_USE_SSL", true)
}

func getEnvVars() (string, string) {
	configDir := getRequiredEnvVar("APT_CONFIG_DIR")
	envName := getRequiredEnvVar("APT_SERVICES_CONFIG")
	return configDir, envName
}

func getRequiredEnvVar(varName string) string {
	value := os.Getenv(varName)
	if value == "" {
		panic(fmt.Sprintf("Required env var %s not set", varName))
	}
	return value
}

// Validate returns an *Error describing the first bad setting.
func (c *Config) Validate() error {
	if c.HistoryDBPath == "" {
		return NewError("HISTORY_DB_PATH is required", nil, true)
	}
	if c.RedisURL == "" {
		return NewError("REDIS_URL is required", nil, true)
	}
	if !util.IsSupportedAlgorithm(c.DigestAlgorithm) {
		return NewError(fmt.Sprintf("DIGEST_ALGORITHM %q is not one of %s",
			c.DigestAlgorithm, strings.Join(constants.DigestAlgorithms, ", ")), nil, true)
	}
	if c.MaxDaysSinceFixityCheck < 0 {
		return NewError("MAX_DAYS_SINCE_LAST_FIXITY must not be negative", nil, true)
	}
	if c.MaxFixityItemsPerRun < 1 {
		return NewError("MAX_FIXITY_ITEMS_PER_RUN must be at least 1", nil, true)
	}
	if c.FixityWorkers < 1 {
		return NewError("FIXITY_WORKERS must be at least 1", nil, true)
	}
	if c.FixityCheckTimeout < 0 {
		return NewError("FIXITY_CHECK_TIMEOUT must not be negative", nil, true)
	}
	if c.QueueFixityInterval <= 0 {
		return NewError("QUEUE_FIXITY_INTERVAL must be positive", nil, true)
	}
	return nil
}

// Policy returns the scheduling policy for one pass. Priority objects
// are checked first, whether or not they are due.
func (c *Config) Policy(priorityObjects ...string) fixity.Policy {
	return fixity.Policy{
		CheckIntervalMinimum: time.Duration(c.MaxDaysSinceFixityCheck) * 24 * time.Hour,
		BatchSize:            c.MaxFixityItemsPerRun,
		PriorityObjects:      priorityObjects,
	}
}

// ToJSON returns the config as JSON, without passwords or keys.
func (c *Config) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Expand ~ to home dir in path settings.
func (c *Config) expandPaths() error {
	var err error
	if c.LogDir, err = util.ExpandTilde(c.LogDir); err != nil {
		return err
	}
	if c.HistoryDBPath, err = util.ExpandTilde(c.HistoryDBPath); err != nil {
		return err
	}
	c.PidFile, err = util.ExpandTilde(c.PidFile)
	return err
}

func (c *Config) makeDirs() error {
	dirs := []string{
		c.LogDir,
		filepath.Dir(c.HistoryDBPath),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return NewError(fmt.Sprintf("cannot create directory %s", dir), err, true)
		}
	}
	return nil
}
