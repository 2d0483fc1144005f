package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/util/cli"
	"github.com/APTrust/preservation-fixity/workers"
)

func main() {
	os.Exit(run())
}

func run() int {
	help := false
	configDir := ""
	configName := ""
	flag.BoolVar(&help, "help", false, "Print help message")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	applied, err := workers.NewIndexRebuilder(_context).Run(ctx)
	if err != nil {
		_context.Logger.Errorf("Index rebuild failed: %v", err)
		return 1
	}
	fmt.Printf("Replayed %d check records from %s\n", applied, _context.Config.HistoryDBPath)
	return 0
}

func printHelp() {
	message := `
fixity_rebuild_index rebuilds the Redis state index that the scheduler
uses to decide which objects are due. It clears the index, registers
every object in the preservation bucket, and replays the whole fixity
history.

Run it after Redis loses data, or whenever the scheduler seems to
disagree with the history. The history itself is never changed.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
