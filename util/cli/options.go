package cli

import (
	"flag"
	"time"
)

type Options struct {
	ChannelBufferSize int
	ConfigDir         string
	ConfigName        string
	MaxAttempts       int
	NumWorkers        int
	PrintHelp         bool
	RequeueTimeout    time.Duration
}

var opts = Options{}
var defaultAttempts = 3
var defaultBufSize = 20
var defaultWorkers = 0
var defaultTimeout = 1 * time.Minute

var EnvMessage = `If you don't set -config-dir and -config-name on the command line,
this requires the following environment vars:

APT_CONFIG_DIR - Path to the directory containing the .env settings file.

APT_SERVICES_CONFIG - Name of the configuration to load. For example:
    test - Loads .env.test from APT_CONFIG_DIR
    demo - Loads .env.demo from APT_CONFIG_DIR
`

// Init registers the flags shared by the fixity apps on the default
// flag set.
func Init() {
	flag.IntVar(&opts.ChannelBufferSize, "bufsize", defaultBufSize, "Maximum number of NSQ messages in flight per consumer")
	flag.StringVar(&opts.ConfigDir, "config-dir", "", "Directory containing the .env settings file. Overrides APT_CONFIG_DIR")
	flag.StringVar(&opts.ConfigName, "config-name", "", "Name of the configuration to load, as in .env.<name>. Overrides APT_SERVICES_CONFIG")
	flag.IntVar(&opts.MaxAttempts, "max-attempts", defaultAttempts, "Maximum number of times a worker should attempt to check an object")
	flag.IntVar(&opts.NumWorkers, "workers", defaultWorkers, "Number of concurrent fixity checks. Zero means use FIXITY_WORKERS from the config")
	flag.BoolVar(&opts.PrintHelp, "help", false, "Print help message")
	flag.DurationVar(&opts.RequeueTimeout, "requeue-timeout", defaultTimeout, "Requeue timeout for objects whose check could not be recorded. Format examples: 500ms, 12s, 10m, 3m30s, 3h")
}

func ParseOpts() Options {
	flag.Parse()
	return opts
}

func PrintDefaults() {
	flag.PrintDefaults()
}
