// Package cli implements the latticectl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Schema   string
	Prefix   string
	Suffix   string
	Region   string
	Endpoint string
	Profile  string
	Verbose  bool
	Format   string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Client is the DynamoDB surface the commands use.
type Client interface {
	store.DynamoAPI
	store.TableAPI
}

// ClientFactory builds the DynamoDB client from the global flags.
type ClientFactory func(ctx context.Context, opts *RootOptions) (Client, error)

// NewRootCommand creates the root command. A nil factory connects to
// DynamoDB with the default AWS credential chain.
func NewRootCommand(newClient ClientFactory) *cobra.Command {
	if newClient == nil {
		newClient = DefaultClient
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "latticectl",
		Short: "Operate lattice collections on DynamoDB",
		Long: `latticectl provisions and inspects the DynamoDB tables behind a lattice
schema: collection tables, association tables and the counter table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Schema, "schema", "s", "lattice.yaml", "schema file")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "table name prefix")
	cmd.PersistentFlags().StringVar(&opts.Suffix, "suffix", "", "table name suffix")
	cmd.PersistentFlags().StringVar(&opts.Region, "region", "", "AWS region")
	cmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", "", "DynamoDB endpoint URL (e.g. DynamoDB Local)")
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "AWS shared config profile")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewProvisionCommand(opts, newClient))
	cmd.AddCommand(NewCountCommand(opts, newClient))

	return cmd
}

// DefaultClient loads AWS configuration from the environment and flags.
func DefaultClient(ctx context.Context, opts *RootOptions) (Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

func (o *RootOptions) storeConfig() store.Config {
	cfg := store.DefaultConfig()
	cfg.TablePrefix = o.Prefix
	cfg.TableSuffix = o.Suffix
	return cfg
}

func (o *RootOptions) newStore(client Client) *store.Store {
	return store.New(client, o.storeConfig())
}

func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) loadSchema() (*model.Schema, error) {
	return model.LoadSchemaFile(o.Schema)
}

// write prints v as indented JSON, or calls text for text output.
func (o *RootOptions) write(w io.Writer, v any, text func(io.Writer) error) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
