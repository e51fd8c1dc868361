package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tasqc/keytrans-client/internal/app"
	"github.com/tasqc/keytrans-client/internal/config"
	"github.com/tasqc/keytrans-client/internal/logger"
)

// newRootCmd builds the keyclient command tree. Flags are bound into v so
// they take precedence over environment variables and configs/.env.
func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "keyclient",
		Short: "Request single-use keys from a key server",
		Long: `keyclient requests single-use keys from a key server. Every request
authenticates with the key received before it.

Failed requests are written to the error log on exit, journaled locally and
sent to the configured notifiers.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("hostname", "", "Key server hostname.")
	flags.String("port", "", "Key server port.")
	flags.String("log-level", "", "Log level (debug, info, warn, error).")
	flags.String("notifiers-file", "", "YAML or JSON file listing failure notifiers.")
	_ = v.BindPFlag("keyserver_hostname", flags.Lookup("hostname"))
	_ = v.BindPFlag("keyserver_port", flags.Lookup("port"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("notifiers_file", flags.Lookup("notifiers-file"))

	rootCmd.AddCommand(newGetCmd(v), newChainCmd(v), newFailuresCmd(v))
	return rootCmd
}

func newGetCmd(v *viper.Viper) *cobra.Command {
	var lastKey, keyID string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Request one key",
		Long: `Request one key, authenticating with --key. The server's answer is
printed verbatim. --key-id asks for a specific key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, client *app.Client) error {
				res := client.Get(ctx, lastKey, keyID)
				fmt.Fprintln(cmd.OutOrStdout(), res.Text())
				return res.Err()
			})
		},
	}
	cmd.Flags().StringVar(&lastKey, "key", "", "The key received last.")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Id of the key to request.")
	return cmd
}

func newChainCmd(v *viper.Viper) *cobra.Command {
	var seed string
	var count int

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Request a chain of keys",
		Long: `Request --count keys in sequence, each one authenticated with the key
received before it. Stops at the first failure. Keys are printed one per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, client *app.Client) error {
				keys, err := client.Chain(ctx, seed, count)
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "Key to authenticate the first request with.")
	cmd.Flags().IntVar(&count, "count", 1, "Number of keys to request.")
	cmd.Flags().Int64("interval-ms", 0, "Pause between requests in milliseconds.")
	_ = v.BindPFlag("chain_interval_ms", cmd.Flags().Lookup("interval-ms"))
	return cmd
}

func newFailuresCmd(v *viper.Viper) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List journaled key request failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(_ context.Context, client *app.Client) error {
				failures, err := client.Failures(limit)
				if err != nil {
					return err
				}
				for _, f := range failures {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
						f.At.Format(time.RFC3339), f.Endpoint, f.Kind, f.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of failures to list.")
	return cmd
}

// withClient loads config, starts logging and runs fn against a client that
// is closed afterwards.
func withClient(v *viper.Viper, fn func(context.Context, *app.Client) error) (err error) {
	cfg, err := config.LoadWith(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := app.NewClient(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize client", "error", err)
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.ErrorObj("failed to close client", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	return fn(ctx, client)
}
