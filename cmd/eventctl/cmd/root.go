package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventd/internal/client"
	"github.com/telhawk-systems/eventd/internal/config"
	"github.com/telhawk-systems/eventd/internal/output"
)

var (
	cfgFile string
	cfg     *config.CLIConfig
)

var rootCmd = &cobra.Command{
	Use:   "eventctl",
	Short: "eventd command-line client",
	Long: `eventctl manages a running eventd: list, create and delete event
subscriptions, read and change the EventService settings, and fire test
events at every subscriber.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		output.Error("%v", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.eventctl/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "eventd base URL (overrides config)")
	rootCmd.PersistentFlags().String("output", "", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.LoadCLI(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultCLI()
	}
}

// apiClient builds a client from the config and the --server flag.
func apiClient(cmd *cobra.Command) *client.Client {
	url := cfg.ServerURL
	if s, _ := cmd.Flags().GetString("server"); s != "" {
		url = s
	}
	return client.New(url, cfg.Timeout)
}

func outputFormat(cmd *cobra.Command) string {
	if f, _ := cmd.Flags().GetString("output"); f != "" {
		return f
	}
	return cfg.Output
}
