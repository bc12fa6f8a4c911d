package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crud6-backend/internal/model"
	"crud6-backend/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [model...]",
	Short: "create or extend model tables and their join tables",
	Long: `Create or extend model tables and their join tables.

Tables are created when missing; missing columns are added to existing
tables. Columns are never dropped or altered. With no arguments every schema
in the namespace directory is migrated.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		schemas, err := openSchemas(cmd, cfg)
		if err != nil {
			return err
		}
		connection := mustFlagString(cmd, "connection")
		names := args
		if len(names) == 0 {
			if names, err = modelNames(cfg.Schema.Path, cfg.Schema.Namespace, connection); err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			return err
		}
		stores := store.NewManager(db, cfg.Connections)
		defer stores.Close()

		pivots := map[string]bool{}
		for _, name := range names {
			s, err := schemas.GetSchema(ctx, name, connection)
			if err != nil {
				return err
			}
			tc, err := model.NewTableConfig(s)
			if err != nil {
				return err
			}
			conn := s.Connection
			if connection != "" {
				conn = connection
			}
			target, err := stores.Get(ctx, conn)
			if err != nil {
				return err
			}
			migrator := store.NewMigrator(target)
			if err := migrator.Migrate(ctx, tc.TableDefinition()); err != nil {
				return err
			}
			fmt.Printf("%s table %s\n", green("migrated"), bold(tc.Table))

			for _, p := range pivotDefs(s) {
				if pivots[conn+"/"+p.Table] {
					continue
				}
				pivots[conn+"/"+p.Table] = true
				if err := migrator.MigratePivot(ctx, p); err != nil {
					return err
				}
				fmt.Printf("%s join table %s\n", green("migrated"), bold(p.Table))
			}
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("connection", "", "migrate into a named connection instead of each schema's own")
	rootCmd.AddCommand(migrateCmd)
}
