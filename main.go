package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mwa-archive/squid/runner"
	"github.com/mwa-archive/squid/runner/cancelrunner"
	"github.com/mwa-archive/squid/runner/downloadrunner"
	"github.com/mwa-archive/squid/runner/listrunner"
	"github.com/mwa-archive/squid/runner/submitrunner"
	"github.com/mwa-archive/squid/runner/waitrunner"
)

func main() {
	_ = godotenv.Load() // Load .env file if present
	ctx, cancel := context.WithCancel(context.Background())

	cfg, err := runner.ParseConfig(os.Args[1:])
	if err != nil {
		cancel()
		os.Stderr.WriteString(err.Error() + "\n")

		os.Exit(1)
	}

	if cfg.Debug {
		runner.Banner()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		log.Println("Received signal, shutting down...")

		cancel()
	}()

	runnerInstance, err := runnerFactory(cfg)
	if err != nil {
		cancel()
		os.Stderr.WriteString(err.Error() + "\n")

		os.Exit(1)
	}

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString(err.Error() + "\n")

		_ = runnerInstance.Close(ctx)

		cancel()

		os.Exit(1)
	}

	_ = runnerInstance.Close(ctx)

	cancel()

	os.Exit(0)
}

func runnerFactory(cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeList:
		return listrunner.New(cfg)
	case runner.RunModeSubmitVis, runner.RunModeSubmitConversion, runner.RunModeSubmitMetadata, runner.RunModeSubmitVoltage:
		return submitrunner.New(cfg)
	case runner.RunModeWait:
		return waitrunner.New(cfg)
	case runner.RunModeDownload:
		return downloadrunner.New(cfg)
	case runner.RunModeCancel:
		return cancelrunner.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
