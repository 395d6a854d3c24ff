package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/store"
)

// ProvisionResult lists the tables a provision run created.
type ProvisionResult struct {
	Created []string `json:"created"`
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions, newClient ClientFactory) *cobra.Command {
	var wait bool
	var maxWait time.Duration

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the tables the schema needs",
		Long: `Create the counter table, every collection table and every association
table declared by the schema. Existing tables are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}
			specs, err := schema.TableSpecs()
			if err != nil {
				return err
			}

			client, err := newClient(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			logger := rootOpts.logger(cmd.ErrOrStderr())
			st := rootOpts.newStore(client)

			logger.Debug("provisioning tables", "tables", len(specs)+1, "wait", wait)
			created, err := st.Provision(cmd.Context(), client, specs, store.ProvisionOptions{
				Wait:    wait,
				MaxWait: maxWait,
			})
			if err != nil {
				return err
			}

			result := ProvisionResult{Created: created}
			if result.Created == nil {
				result.Created = []string{}
			}
			return rootOpts.write(cmd.OutOrStdout(), result, func(w io.Writer) error {
				if len(created) == 0 {
					_, err := fmt.Fprintln(w, "all tables already exist")
					return err
				}
				for _, name := range created {
					if _, err := fmt.Fprintf(w, "created %s\n", name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for created tables to become ACTIVE")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 5*time.Minute, "maximum wait per table")

	return cmd
}
