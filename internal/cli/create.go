package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klubi/rstore/pkg/client"
)

func newCreateCmd() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "create <resource-type> [field=value ...]",
		Short: "Create a resource",
		Long: `Create a resource from field=value pairs or a JSON object.

Values are stored as strings; use --json for numbers, lists or nested
objects.`,
		Example: `  rstore create developer email=dev@example.com name=Dev
  rstore create application --json '{"name":"billing","developerId":"..."}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := buildResource(body, args[1:])
			if err != nil {
				return err
			}
			created, err := apiClient.Create(args[0], res)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s/%s created\n", args[0], created.UUID())
			return printResource(os.Stdout, created)
		},
	}

	cmd.Flags().StringVar(&body, "json", "", "Resource body as a JSON object")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:     "update <resource-type> <uuid> [field=value ...]",
		Short:   "Replace a resource",
		Long:    "Overwrite the stored resource with the given fields. Indexed and associated fields keep their stored value and cannot be changed.",
		Example: `  rstore update developer 3f6c... name=Renamed`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := buildResource(body, args[2:])
			if err != nil {
				return err
			}
			updated, err := apiClient.Update(args[0], args[1], res)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s/%s updated\n", args[0], updated.UUID())
			return printResource(os.Stdout, updated)
		},
	}

	cmd.Flags().StringVar(&body, "json", "", "Resource body as a JSON object")

	return cmd
}

// buildResource merges a JSON body with field=value pairs, the pairs
// taking precedence.
func buildResource(body string, pairs []string) (client.Resource, error) {
	res := client.Resource{}
	if body != "" {
		if err := json.Unmarshal([]byte(body), &res); err != nil {
			return nil, fmt.Errorf("parsing --json: %w", err)
		}
	}
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid field %q: expected field=value", p)
		}
		res[field] = value
	}
	return res, nil
}
