package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/network"
	"github.com/APTrust/preservation-fixity/util"
	"github.com/APTrust/preservation-fixity/util/cli"
	"github.com/APTrust/preservation-fixity/workers"
)

func main() {
	os.Exit(run())
}

func run() int {
	help := false
	runOnce := false
	local := false
	configDir := ""
	configName := ""
	flag.BoolVar(&help, "help", false, "Print help message")
	flag.BoolVar(&runOnce, "run-once", false, "Run once and exit (cron mode instead of server mode)")
	flag.BoolVar(&local, "local", false, "Check objects in this process instead of queuing them in NSQ")
	flag.StringVar(&configDir, "config-dir", "", "Directory containing the .env settings file. Overrides APT_CONFIG_DIR")
	flag.StringVar(&configName, "config-name", "", "Name of the configuration to load. Overrides APT_SERVICES_CONFIG")
	flag.Parse()

	if help {
		printHelp()
		flag.PrintDefaults()
		return 0
	}

	objectIdentifier := flag.Arg(0)
	if objectIdentifier != "" {
		runOnce = true
	}

	_context, err := common.LoadContext(configDir, configName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer _context.Close()

	pidFile := _context.Config.PidFile
	if pidFile != "" {
		if err := util.AcquirePidFile(pidFile); err != nil {
			_context.Logger.Errorf("Exiting: %v", err)
			return 1
		}
		defer util.DeletePidFile(pidFile)
	}

	if _context.Config.MetricsAddr != "" && !runOnce {
		metrics := network.NewMetricsServer(_context.Config.MetricsAddr, _context.Logger)
		metrics.Start()
		defer metrics.Shutdown()
	}

	queue, err := workers.NewQueueFixity(_context, objectIdentifier, local)
	if err != nil {
		_context.Logger.Errorf("Exiting: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runOnce {
		result := queue.RunOnce(ctx)
		if len(result.FatalErrors()) > 0 {
			return 1
		}
		return 0
	}
	queue.RunAsService(ctx)
	return 0
}

func printHelp() {
	message := `
apt_queue_fixity selects objects due for a fixity check and either
queues them in NSQ for apt_fixity or, with -local, checks them itself.

Each pass first lists the preservation bucket so that new objects are
known to the scheduler. Objects never checked come first, then those
whose last check is oldest.

When running as a service (i.e. without -run-once), this relies on the
config setting QUEUE_FIXITY_INTERVAL to determine how long to wait
between the start of one pass and the start of the next.

Config setting MAX_FIXITY_ITEMS_PER_RUN determines the maximum number
of objects to select in a single pass, and MAX_DAYS_SINCE_LAST_FIXITY
how long an object may go between checks.

You can also run this as a one-off job with the -run-once
flag. It will perform one pass and then exit.

You can also supply an object identifier on the command line to check
that object first, whether or not it is due:

$ apt_queue_fixity -local 'test.edu/bag-of-photos/data/image01.jpg'

If you do specify an identifier, this app will run in -run-once
mode, since it doesn't make sense to check the same object every hour.

If PID_FILE is set, only one copy of this app may run at a time.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
