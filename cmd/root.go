// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"firestige.xyz/uoaprobe/internal/config"
	"firestige.xyz/uoaprobe/internal/log"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "uoaprobe",
	Short: "uoaprobe - verification harness for UDP Option of Address (UOA)",
	Long: `uoaprobe checks that a UDP server, or a load balancer in front of it, reports
the client's real address carried in the UOA IP option or IPv6 destination option.

It crafts raw IPv4/IPv6 datagrams with and without the option, sends them to an echo
service, and asserts that the echo reply names the expected real address.

Commands:
  run    run the verification scenarios against the configured endpoints
  list   list the scenarios and whether they would run
  serve  run the echo service that reports each sender's real address`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional; YAML with a top-level uoaprobe: key)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig merges the config file, env, and the command's bound flags,
// then installs the configured logger.
func loadConfig(flags *pflag.FlagSet, bindings map[string]string) (*config.GlobalConfig, error) {
	v := config.New()
	if err := config.BindFlags(v, flags, bindings); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
