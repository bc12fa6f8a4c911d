package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"crud6-backend/internal/config"
	"crud6-backend/internal/schema"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "inspect or clear the persistent schema cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "list cached model@connection keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cache, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer cache.Close()
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := cache.Keys(prefix)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println(yellow("cache is empty"))
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [model]",
	Short: "drop one model's cached schema, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cache, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer cache.Close()
		schemas, err := schema.NewStore(schema.FileLocator{Root: cfg.Schema.Path}, cfg.Schema.Namespace,
			schema.WithLogger(newLogger(cmd)), schema.WithPersistentCache(cache, 0))
		if err != nil {
			return err
		}
		if len(args) == 0 {
			schemas.ClearAll()
			fmt.Printf("%s all cached schemas\n", green("cleared"))
			return nil
		}
		connection := mustFlagString(cmd, "connection")
		if connection == "" {
			schemas.ClearModel(args[0])
			fmt.Printf("%s %s on every connection\n", green("cleared"), bold(args[0]))
			return nil
		}
		schemas.ClearCache(args[0], connection)
		fmt.Printf("%s %s\n", green("cleared"), bold(schema.CacheKey(args[0], connection)))
		return nil
	},
}

func openCache(cfg *config.Config) (*schema.BuntCache, error) {
	path := cfg.Schema.PersistentCache.Path
	if path == "" {
		return nil, errors.New("schema.persistent_cache.path is not configured")
	}
	return schema.OpenBuntCache(path)
}

func init() {
	cacheClearCmd.Flags().String("connection", "", "only clear the schema cached for this connection")
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
