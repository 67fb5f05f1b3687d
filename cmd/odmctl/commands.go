package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hydromelvictor/gogoose/odm"
)

var (
	ErrInvalidRecords   = errors.New("invalid records")
	ErrMissingModelName = errors.New("schema definition has no name")
)

// app holds the state shared by all commands of one invocation.
type app struct {
	open       storeOpener
	configFile string
	cfg        config
	logger     zerologLogger
}

func newRootCommand(open storeOpener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "odmctl",
		Short: "Validate schemas and query collections",
		Long: `odmctl works with YAML schema definitions and the collections behind them.

Commands:
  odmctl validate  # Validate JSON records against a schema
  odmctl indexes   # Create the indexes a schema declares
  odmctl find      # Query a collection through its model
  odmctl count     # Count matching documents`,
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, flagConfig, "c", defaultConfigFile, "config file path")
	flags.String(flagEngine, engineMemory, "store engine: memory, postgres or mongo")
	flags.String(flagDSN, "", "postgres connection string")
	flags.String(flagURI, "", "mongo connection uri")
	flags.String(flagDatabase, defaultDatabase, "mongo database name")
	flags.String(flagLogLevel, defaultLogLevel, "log level: debug, info, warn or error")

	root.AddCommand(
		a.validateCommand(),
		a.indexesCommand(),
		a.findCommand(),
		a.countCommand(),
	)

	return root
}

func (a *app) prepare(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configFile, cmd.Flags().Changed(flagConfig))
	if err != nil {
		return err
	}

	cfg = applyFlags(cfg, cmd.Flags())
	if err := cfg.validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	return nil
}

func (a *app) validateCommand() *cobra.Command {
	var schemaFile, recordsFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a schema definition and optionally JSON records against it",
		Long: `Parse a YAML schema definition and report its fields and indexes.

With --records, every record of the JSON file (an object or an array of objects)
is validated and the first failing field of each invalid record is reported.

Examples:
  odmctl validate --schema user.yaml
  odmctl validate --schema user.yaml --records users.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runValidate(cmd.OutOrStdout(), schemaFile, recordsFile)
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema", "", "YAML schema definition")
	cmd.Flags().StringVar(&recordsFile, "records", "", "JSON file with records to validate")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func (a *app) runValidate(out io.Writer, schemaFile, recordsFile string) error {
	named, err := readSchema(schemaFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "schema %s: %d fields, %d indexes\n",
		named.Name, len(named.Schema.FieldNames()), len(named.Schema.Indexes()))

	if recordsFile == "" {
		return nil
	}

	data, err := os.ReadFile(recordsFile)
	if err != nil {
		return err
	}

	records, err := decodeRecords(data)
	if err != nil {
		return err
	}

	failed := 0
	for i, record := range records {
		if _, err := named.Schema.Validate(record); err != nil {
			failed++
			fmt.Fprintf(out, "record %d: %v\n", i, err)
			continue
		}

		fmt.Fprintf(out, "record %d: ok\n", i)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRecords, failed, len(records))
	}

	return nil
}

func (a *app) indexesCommand() *cobra.Command {
	var schemaFile string

	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Create the indexes declared by a schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, closeStore, err := a.model(cmd, schemaFile)
			if err != nil {
				return err
			}
			defer closeStore()

			indexes := model.Schema().Indexes()
			if len(indexes) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no indexes declared\n", model.CollectionName())
				return nil
			}

			for _, index := range indexes {
				name := index.Options.Name
				if name == "" {
					name = odm.IndexName(index.Keys)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s unique=%t sparse=%t\n",
					model.CollectionName(), name, index.Options.Unique, index.Options.Sparse)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema", "", "YAML schema definition")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func (a *app) findCommand() *cobra.Command {
	var schemaFile, filter, sort, fields string
	var limit, skip int64

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Print matching documents as JSON lines",
		Long: `Query the collection of a schema's model and print one JSON document per line.

Examples:
  odmctl find --schema user.yaml --filter '{"city":"Paris"}'
  odmctl find --schema user.yaml --sort "-age name" --select "name age" --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := decodeFilter(filter)
			if err != nil {
				return err
			}

			model, closeStore, err := a.model(cmd, schemaFile)
			if err != nil {
				return err
			}
			defer closeStore()

			query := model.Find(parsed)
			if sort != "" {
				query.Sort(sort)
			}
			if fields != "" {
				query.Select(fields)
			}
			if limit > 0 {
				query.Limit(limit)
			}
			if skip > 0 {
				query.Skip(skip)
			}

			docs, err := query.Exec(cmd.Context())
			if err != nil {
				return err
			}

			for _, doc := range docs {
				line, err := jsonOutput.Marshal(doc.ToRecord())
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), string(line))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema", "", "YAML schema definition")
	cmd.Flags().StringVar(&filter, "filter", "", "JSON filter")
	cmd.Flags().StringVar(&sort, "sort", "", `sort fields, "-" prefix for descending`)
	cmd.Flags().StringVar(&fields, "select", "", `projected fields, "-" prefix to exclude`)
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum number of documents")
	cmd.Flags().Int64Var(&skip, "skip", 0, "number of documents to skip")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func (a *app) countCommand() *cobra.Command {
	var schemaFile, filter string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of matching documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := decodeFilter(filter)
			if err != nil {
				return err
			}

			model, closeStore, err := a.model(cmd, schemaFile)
			if err != nil {
				return err
			}
			defer closeStore()

			count, err := model.Count(cmd.Context(), parsed)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), count)

			return nil
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema", "", "YAML schema definition")
	cmd.Flags().StringVar(&filter, "filter", "", "JSON filter")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

// model opens the configured store and registers the schema's model on it.
func (a *app) model(cmd *cobra.Command, schemaFile string) (*odm.Model, func(), error) {
	named, err := readSchema(schemaFile)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := a.open(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}

	registry, err := odm.NewRegistry(store, odm.WithLogger(a.logger))
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	model, err := registry.Model(cmd.Context(), named.Name, named.Schema)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	return model, closeStore, nil
}

func readSchema(path string) (odm.NamedSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return odm.NamedSchema{}, err
	}

	named, err := odm.ParseYAMLSchema(data)
	if err != nil {
		return odm.NamedSchema{}, fmt.Errorf("%s: %w", path, err)
	}

	if strings.TrimSpace(named.Name) == "" {
		return odm.NamedSchema{}, fmt.Errorf("%s: %w", path, ErrMissingModelName)
	}

	return named, nil
}
