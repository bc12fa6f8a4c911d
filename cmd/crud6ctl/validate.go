package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crud6-backend/internal/model"
	"crud6-backend/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [model...]",
	Short: "validate schema files and the table configuration derived from them",
	Long: `Validate schema files and the table configuration derived from them.

With no arguments every schema in the namespace directory is checked:

	crud6ctl validate

Check specific models, optionally for a connection:

	crud6ctl validate users roles --connection reporting_db
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

		results := make([]validation, len(names))
		var g errgroup.Group
		g.SetLimit(8)
		for i, name := range names {
			g.Go(func() error {
				results[i] = validateModel(cmd.Context(), schemas, name, connection)
				return nil
			})
		}
		_ = g.Wait()

		var failed int
		for _, r := range results {
			if r.err != nil {
				failed++
				fmt.Printf("%s %s: %v\n", red("FAIL"), bold(r.name), r.err)
				continue
			}
			fmt.Printf("%s %s %s (%d fields, etag %s)\n", green("ok"), bold(r.name), r.source, r.fields, r.etag)
		}
		if failed > 0 {
			return errors.Newf("%d of %d schemas invalid", failed, len(names))
		}
		return nil
	},
}

type validation struct {
	name   string
	source string
	fields int
	etag   string
	err    error
}

func validateModel(ctx context.Context, schemas *schema.Store, name, connection string) validation {
	s, source, err := schemas.Load(ctx, name, connection)
	if err != nil {
		return validation{name: name, err: err}
	}
	if _, err := model.NewTableConfig(s); err != nil {
		return validation{name: name, err: err}
	}
	return validation{name: name, source: source, fields: len(s.Fields), etag: s.ETag()}
}

func init() {
	validateCmd.Flags().String("connection", "", "check the connection-scoped schema location first")
	rootCmd.AddCommand(validateCmd)
}
