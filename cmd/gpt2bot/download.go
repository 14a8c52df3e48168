package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/model"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var downloadCmd = &cobra.Command{
	Use:   "download [model]...",
	Short: "Fetch model weights into the local cache",
	Long: `Fetch model weights into GPT2BOT_MODELS_DIR. Without arguments the
model of the config file is fetched. Models already cached are skipped.`,
	RunE: runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	a, err := newApp(s, false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names := args
	if len(names) == 0 {
		names = []string{a.store.Snapshot().ModelName}
	}
	for _, name := range names {
		if !model.IsValidName(name) {
			return &bot.InvalidModelError{Name: name}
		}
	}

	return downloadAll(ctx, a.lifecycle, a.adapter, names, func(name string, cached bool) {
		if cached {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already downloaded\n", name)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s downloaded\n", name)
		}
	})
}

// downloadAll fetches names two at a time and reports each as it finishes.
// The first failure cancels the fetches not yet started.
func downloadAll(ctx context.Context, lm *lifecycle.Manager, adapter model.Adapter, names []string, done func(name string, cached bool)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	var mu sync.Mutex
	for _, name := range names {
		g.Go(func() error {
			cached := adapter.IsDownloaded(name)
			if !cached {
				if err := lm.Download(ctx, name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			mu.Lock()
			done(name, cached)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
