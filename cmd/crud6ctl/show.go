package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"crud6-backend/internal/schema"
)

var showCmd = &cobra.Command{
	Use:   "show <model>",
	Short: "print the normalized schema, optionally filtered for a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		schemas, err := openSchemas(cmd, cfg)
		if err != nil {
			return err
		}
		s, err := schemas.GetSchema(cmd.Context(), args[0], mustFlagString(cmd, "connection"))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(schema.Filter(s, mustFlagString(cmd, "context")), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	showCmd.Flags().String("context", "", "list, create, edit, form, detail, meta or a comma separated combination")
	showCmd.Flags().String("connection", "", "load the schema for a named connection")
	rootCmd.AddCommand(showCmd)
}
