package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// CountResult is the live record count of one collection.
type CountResult struct {
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions, newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "count <collection>...",
		Short: "Print the live record count of collections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}
			client, err := newClient(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			catalog, err := schema.Catalog(rootOpts.newStore(client), nil, rootOpts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			results := make([]CountResult, 0, len(args))
			for _, name := range args {
				m, err := catalog.Model(name)
				if err != nil {
					return err
				}
				n, err := m.Count(cmd.Context())
				if err != nil {
					return fmt.Errorf("count %s: %w", m.Name(), err)
				}
				results = append(results, CountResult{Collection: m.Name(), Count: n})
			}

			return rootOpts.write(cmd.OutOrStdout(), results, func(w io.Writer) error {
				for _, r := range results {
					if _, err := fmt.Fprintf(w, "%s\t%d\n", r.Collection, r.Count); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
