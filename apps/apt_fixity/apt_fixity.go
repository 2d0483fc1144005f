package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/network"
	"github.com/APTrust/preservation-fixity/util/cli"
	"github.com/APTrust/preservation-fixity/workers"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.Init()
	opts := cli.ParseOpts()
	if opts.PrintHelp {
		printHelp()
		cli.PrintDefaults()
		return 0
	}

	_context, err := common.LoadContext(opts.ConfigDir, opts.ConfigName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer _context.Close()

	if _context.Config.MetricsAddr != "" {
		metrics := network.NewMetricsServer(_context.Config.MetricsAddr, _context.Logger)
		metrics.Start()
		defer metrics.Shutdown()
	}

	worker, err := workers.NewFixityChecker(
		_context,
		opts.ChannelBufferSize,
		opts.NumWorkers,
		opts.MaxAttempts,
		opts.RequeueTimeout,
	)
	if err != nil {
		_context.Logger.Errorf("Cannot create fixity checker: %v", err)
		return 1
	}

	// Once registered, the worker starts handling NSQ messages
	// immediately.
	if err = worker.RegisterAsNsqConsumer(); err != nil {
		_context.Logger.Errorf("Cannot register NSQ consumer: %v", err)
		return 1
	}

	// Block until we get an interrupt, or until NSQ stops the
	// consumer on its own.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-signals:
		_context.Logger.Warningf("Worker received %s. Starting graceful shutdown.", sig)
		worker.Stop()
	case <-worker.NSQConsumer.StopChan:
		_context.Logger.Warning("NSQ consumer stopped")
	}
	return 0
}

func printHelp() {
	message := `
apt_fixity runs as a service to check fixity of objects in preservation
storage. It reads object identifiers from the NSQ fixity_check topic,
streams each object from S3 through the configured digest, compares the
result with the digest stored in the object's metadata, and appends a
check record to the fixity history.

Every check that runs to the end is recorded, whatever its outcome.
A check that cannot be recorded is requeued, up to -max-attempts times.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
