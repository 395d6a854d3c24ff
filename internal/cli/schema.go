package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/internal/keys"
	"github.com/jacentio/lattice/store"
)

// TableInfo describes one table a schema needs.
type TableInfo struct {
	Name    string   `json:"name"`
	Indexes []string `json:"indexes"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Validate the schema and list the tables it needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}
			specs, err := schema.TableSpecs()
			if err != nil {
				return err
			}

			cfg := rootOpts.storeConfig()
			tables := make([]TableInfo, 0, len(specs)+1)
			tables = append(tables, TableInfo{Name: cfg.TableName(cfg.CounterTable), Indexes: []string{}})
			for _, spec := range specs {
				tables = append(tables, tableInfo(cfg, spec))
			}

			return rootOpts.write(cmd.OutOrStdout(), tables, func(w io.Writer) error {
				for _, t := range tables {
					if _, err := fmt.Fprintf(w, "%s\t%s\n", t.Name, strings.Join(t.Indexes, ",")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func tableInfo(cfg store.Config, spec store.TableSpec) TableInfo {
	indexes := []string{cfg.CollectionIndex}
	for _, attr := range spec.Indexes {
		indexes = append(indexes, keys.IndexName(attr, ""))
	}
	for _, pair := range spec.CompositeIndexes {
		indexes = append(indexes, keys.IndexName(pair[0], pair[1]))
	}
	return TableInfo{Name: cfg.TableName(spec.Name), Indexes: indexes}
}
