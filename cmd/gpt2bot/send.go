package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sokinpui/gpt2bot.go/client"
	"github.com/spf13/cobra"
)

var (
	serverAddr  string
	sendAuthor  string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a chat message to a running server",
	Example: `  gpt2bot send ';;generate Once upon a time'
  gpt2bot send ';;set_config temperature=0.9 top_k=20'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	// Shared by every command that talks to a server.
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "gRPC address of the server (default localhost:$GPT2BOT_GRPC_PORT)")

	sendCmd.Flags().StringVar(&sendAuthor, "author", os.Getenv("USER"), "author name shown in the server logs")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Minute, "how long to wait for the replies")
}

// dial connects to --addr, or to the local server of the loaded settings.
func dial() (client.Client, error) {
	addr := serverAddr
	if addr == "" {
		s, err := loadSettings()
		if err != nil {
			return nil, err
		}
		addr = fmt.Sprintf("localhost:%d", s.GRPCPort)
	}
	return client.New(addr)
}

func runSend(cmd *cobra.Command, args []string) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	replies, handled, err := c.Execute(ctx, sendAuthor, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("not a command: %q", strings.Join(args, " "))
	}
	for _, r := range replies {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}
