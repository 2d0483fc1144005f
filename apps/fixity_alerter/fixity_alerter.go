package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/util/cli"
	"github.com/APTrust/preservation-fixity/workers"
)

func main() {
	os.Exit(run())
}

// run returns 1 if the history shows fixity mismatches or if the
// history cannot be read, and zero otherwise.
func run() int {
	help := false
	since := 24 * time.Hour
	configDir := ""
	configName := ""
	flag.BoolVar(&help, "help", false, "Print help message")
	flag.DurationVar(&since, "since", since, "How far back to look for failed checks. Format examples: 24h, 90m")
	flag.StringVar(&configDir, "config-dir", "", "Directory containing the .env settings file. Overrides APT_CONFIG_DIR")
	flag.StringVar(&configName, "config-name", "", "Name of the configuration to load. Overrides APT_SERVICES_CONFIG")
	flag.Parse()

	if help {
		printHelp()
		flag.PrintDefaults()
		return 0
	}

	_context, err := common.LoadContext(configDir, configName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer _context.Close()

	alerter := workers.NewFixityAlerter(_context, since)
	summary, err := alerter.Run(context.Background())
	if err != nil {
		_context.Logger.Errorf("Cannot read fixity history: %v", err)
		return 1
	}
	if summary.Mismatches > 0 {
		return 1
	}
	return 0
}

func printHelp() {
	message := `
fixity_alerter reports failed fixity checks recorded in the last day
(or the interval given by -since) and the number of objects now due for
a check. Mismatches are logged at ERROR, objects that were missing or
unreadable at WARNING.

It exits with status 1 when it finds a mismatch, so cron or the
container scheduler can raise the alarm. It should run once a day.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
