package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aevon-lab/schema-registry/internal/registry"
)

// schemaRow is the printed form of a registry.SchemaInfo.
type schemaRow struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func newListCommand(a *app) *cobra.Command {
	var (
		output string
		ids    []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered schemas",
		Long: `List registered schemas sorted by id.

Examples:
  # List every schema as YAML
  schemaregistry list

  # Only the given ids, as JSON
  schemaregistry list --id 9f86d081... -o json | jq '.[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := registry.ParseIDs(ids)

			return a.withRegistry(func(reg *registry.Registry) error {
				// Every id was malformed: match nothing rather than everything.
				var schemas []registry.SchemaInfo
				if len(ids) == 0 || len(filter) > 0 {
					var err error
					if schemas, err = reg.GetSchemas(cmd.Context(), filter...); err != nil {
						return err
					}
				}

				rows := make([]schemaRow, len(schemas))
				for i, s := range schemas {
					rows[i] = schemaRow{ID: s.ID.String(), Name: s.Name}
				}
				return writeRows(cmd.OutOrStdout(), output, rows)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	cmd.Flags().StringArrayVar(&ids, "id", nil, "restrict to a schema id (repeatable)")
	return cmd
}

func writeRows(w io.Writer, format string, rows []schemaRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (must be yaml or json)", format)
	}
}

func newCreateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty schema and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(func(reg *registry.Registry) error {
				id, err := reg.CreateSchema(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
}

func newPushCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push <name> [file|-]",
		Short: "Append a version to a schema and print its number",
		Long: `Append the contents of file as the next version of a schema.
The payload is read from stdin when file is omitted or "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}

			return a.withRegistry(func(reg *registry.Registry) error {
				number, err := reg.CreateVersion(cmd.Context(), args[0], payload)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), number)
				return err
			})
		},
	}
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	payload, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return payload, nil
}

func newVersionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <name>",
		Short: "Print the version numbers of a schema, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(func(reg *registry.Registry) error {
				versions, err := reg.GetVersions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, v := range versions {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), v); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> [version|latest]",
		Short: "Write a version payload to stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "latest"
			if len(args) == 2 {
				which = args[1]
			}

			return a.withRegistry(func(reg *registry.Registry) error {
				var (
					payload []byte
					err     error
				)
				if which == "latest" {
					payload, err = reg.GetLatest(cmd.Context(), args[0])
				} else {
					number, convErr := strconv.Atoi(which)
					if convErr != nil {
						return fmt.Errorf("version must be an integer or \"latest\", got %q", which)
					}
					payload, err = reg.GetVersion(cmd.Context(), args[0], number)
				}
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(payload)
				return err
			})
		},
	}
}
