package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sokinpui/gpt2bot.go/internal/config"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "gpt2bot",
	Short:         "A chat bot that generates text with GPT-2",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file of GPT2BOT_* variables")

	rootCmd.AddCommand(serveCmd, workerCmd, replCmd, sendCmd, configCmd, downloadCmd)
}

func loadSettings() (*config.Settings, error) {
	return config.Load(envFile)
}

func main() {
	log.SetPrefix("gpt2bot: ")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
