package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/spf13/cobra"
)

var replAuthor string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Chat with the bot on stdin",
	Long: `Read chat messages from stdin, one per line, and print the bot's replies.
Each message runs concurrently, so a long generation does not block the next
command.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	replCmd.Flags().StringVar(&replAuthor, "author", os.Getenv("USER"), "author name shown in the logs")
}

func runREPL(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if s.Broker != "memory" {
		return fmt.Errorf("repl runs its own worker and needs the memory broker, not %q", s.Broker)
	}

	a, err := newApp(s, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := bot.NewDispatcher(a.state, s.CommandPrefix)
	if err != nil {
		return err
	}
	go a.consume(ctx)
	a.state.Ready(ctx)

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	replier := command.ReplyFunc(func(text string) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(out, text)
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			msg := command.Message{Author: replAuthor, Text: line, SentAt: time.Now()}
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.Dispatch(ctx, msg, replier)
			}()
		}
	}
}
