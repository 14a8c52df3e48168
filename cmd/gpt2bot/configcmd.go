package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration of a running server",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		cfg, err := c.GetConfig(cmd.Context())
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key=value>...",
	Short:   "Change one or more values atomically",
	Example: "  gpt2bot config set length=200 temperature=0.7",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := parseChanges(args)
		if err != nil {
			return err
		}

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		cfg, err := c.UpdateConfig(cmd.Context(), changes)
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		cfg, err := c.ResetConfig(cmd.Context())
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configOutput, "output", "o", "text", "output format: text, json or yaml")
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd)
}

// parseChanges turns key=value arguments into a batch, keeping their order.
func parseChanges(args []string) (store.Batch, error) {
	b := make(store.Batch, 0, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed assignment %q, want key=value", arg)
		}
		b = append(b, store.Change{Key: k, Value: v})
	}
	return b, nil
}

func printConfig(w io.Writer, cfg store.Configuration) error {
	switch configOutput {
	case "text":
		_, err := fmt.Fprint(w, cfg.String())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", configOutput)
	}
}
