package main

import (
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume generation tasks from the redis broker",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if s.Broker != "redis" {
		return errors.New("a separate worker requires GPT2BOT_BROKER=redis")
	}

	a, err := newApp(s, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.pingRedis(ctx); err != nil {
		return err
	}

	// Load the configured model up front so the first task does not pay for it.
	if err := a.lifecycle.EnsureLoaded(ctx, a.store.Snapshot().ModelName); err != nil {
		log.Printf("Model not preloaded: %v", err)
	}

	log.Printf("Worker consuming %s at %s", s.RedisQueue, s.RedisAddr())
	a.consume(ctx)
	log.Println("Worker stopped")
	return nil
}
