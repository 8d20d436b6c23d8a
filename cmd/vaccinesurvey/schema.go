package main

import (
	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/vaccinesurvey/internal/schema"
	"github.com/rzpsarthak13/vaccinesurvey/pkg/vaccinesurvey"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema used to build tables as YAML",
	Long: `Prints the schema resolved from the configuration: the schema file when
server.schema_file is set, otherwise the built-in schema registered for
server.schema. The output can be edited and passed back as a schema file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := resolveSchema(config.Server.SchemaFile, config.Server.Schema)
		if err != nil {
			return err
		}
		data, err := schema.MarshalYAML(def)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func resolveSchema(file, name string) (*vaccinesurvey.Schema, error) {
	if file != "" {
		return schema.LoadFile(file)
	}
	return schema.Get(name)
}
