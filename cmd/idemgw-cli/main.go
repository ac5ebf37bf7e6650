// Package main provides the idemgw-cli command-line tool for managing the
// idempotency gateway.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keystone-labs/idemgw"
	"github.com/keystone-labs/idemgw/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:           "idemgw-cli",
		Short:         "idemgw command line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(validateCmd(), keyCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := idemgw.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := idemgw.ValidateConfig(*cfg); err != nil {
				return err
			}

			source := cfg.Key.Source
			if source == "" {
				source = idemgw.SourceHeader
			}
			headers := cfg.Key.HeaderNames
			if len(headers) == 0 {
				headers = []string{idemgw.DefaultKeyHeader}
			}
			backend := cfg.Store.Backend
			if backend == "" {
				backend = "memory"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Config is valid\n")
			fmt.Fprintf(out, "  Key source: %s\n", source)
			fmt.Fprintf(out, "  Headers:    %s\n", strings.Join(headers, ", "))
			fmt.Fprintf(out, "  TTL:        %ds\n", cfg.TTLSeconds)
			fmt.Fprintf(out, "  Store:      %s\n", backend)
			return nil
		},
	}
}

func keyCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Generate an idempotency key (UUID v4, or content hash with --payload)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if payload != "" {
				fmt.Fprintln(cmd.OutOrStdout(), idemgw.ContentKey([]byte(payload)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), idemgw.GenerateKey())
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "derive the key from a JSON payload instead")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "idemgw-cli %s\n", version.String())
		},
	}
}
