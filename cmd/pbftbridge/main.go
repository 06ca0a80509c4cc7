package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pbftlabs/pbftbridge/pkg/config"
	"github.com/pbftlabs/pbftbridge/pkg/consensus"
	"github.com/pbftlabs/pbftbridge/pkg/driver"
	"github.com/pbftlabs/pbftbridge/pkg/ethereum"
	"github.com/pbftlabs/pbftbridge/pkg/scheduler"
)

const version = "0.1.0"

func main() {
	fmt.Println("Starting pbftbridge - block production bridge between a BFT node and an Ethereum execution client")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Producer.LogLevel)

	engineClient, err := ethereum.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Don't start producing until the execution client answers.
	tip, err := engineClient.WaitForChainTip(ctx)
	if err != nil {
		log.Fatalf("Execution client never became reachable: %v", err)
	}
	slog.Info("Execution client ready", "head", tip.Hash.Hex(), "number", uint64(tip.Number))

	d := driver.New(engineClient, common.HexToAddress(cfg.Producer.FeeRecipient))
	defer d.Close()

	bftClient, err := consensus.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create BFT node client: %v", err)
	}
	d.SetAnnouncer(bftClient)

	app := consensus.NewABCIApplication(version)
	server := consensus.NewServer(cfg, app)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start ABCI server: %v", err)
	}
	defer server.Stop()

	sched := scheduler.New(scheduler.Config{
		Interval:   time.Duration(cfg.Producer.BlockInterval) * time.Second,
		MaxBacklog: cfg.Producer.MaxBacklog,
	}, d, app, bftClient)

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("Received %s, shutting down...\n", sig)
		cancel()
		<-schedDone
	case err := <-schedDone:
		if err != nil && err != context.Canceled {
			log.Fatalf("Production loop stopped: %v", err)
		}
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
