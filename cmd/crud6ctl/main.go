package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crud6-backend/internal/config"
	"crud6-backend/internal/schema"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.FgWhite, color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "crud6ctl",
	Short:         "Inspect, validate and migrate crud6 model schemas",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to app.yaml (default: search . and ../..)")
	rootCmd.PersistentFlags().String("schemas", "", "schema directory, overrides schema.path")
	rootCmd.PersistentFlags().Bool("verbose", false, "turn on debug logging")
}

func mustFlagString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), err)
		os.Exit(1)
	}
	return val
}

func mustFlagBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), err)
		os.Exit(1)
	}
	return val
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFrom(mustFlagString(cmd, "config"))
	if err != nil {
		return nil, err
	}
	if dir := mustFlagString(cmd, "schemas"); dir != "" {
		cfg.Schema.Path = dir
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	if !mustFlagBool(cmd, "verbose") {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openSchemas builds a schema store without the persistent tier, so every
// command reads the files on disk.
func openSchemas(cmd *cobra.Command, cfg *config.Config) (*schema.Store, error) {
	return schema.NewStore(schema.FileLocator{Root: cfg.Schema.Path}, cfg.Schema.Namespace,
		schema.WithLogger(newLogger(cmd)))
}
