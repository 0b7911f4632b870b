package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klubi/rstore/pkg/client"
)

func newGetCmd() *cobra.Command {
	var (
		by        string
		set       string
		composite string
		values    []string
	)

	cmd := &cobra.Command{
		Use:   "get <resource-type|types> [uuid]",
		Short: "List or get resources",
		Long: `Display one or many resources.

Without a uuid, every resource in the type's list set is shown. --by
resolves a unique index value, --composite resolves a composite key and
--set lists the members of any named set.`,
		Example: `  rstore get types
  rstore get developer
  rstore get developer 3f6c...
  rstore get developer --by email=dev@example.com
  rstore get application --composite developer-app --value 3f6c... --value billing
  rstore get --set developer:3f6c...:applications`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if set != "" {
				return getSet(set)
			}
			if len(args) == 0 {
				return fmt.Errorf("a resource type is required unless --set is given")
			}

			resourceType := args[0]
			switch {
			case resourceType == "types":
				return getTypes()
			case by != "":
				field, value, ok := strings.Cut(by, "=")
				if !ok {
					return fmt.Errorf("invalid --by %q: expected field=value", by)
				}
				res, err := apiClient.Lookup(resourceType, field, value)
				if err != nil {
					return err
				}
				return printResource(os.Stdout, res)
			case composite != "":
				res, err := apiClient.ResolveComposite(resourceType, composite, values...)
				if err != nil {
					return err
				}
				return printResource(os.Stdout, res)
			case len(args) == 2:
				res, err := apiClient.Get(resourceType, args[1])
				if err != nil {
					return err
				}
				return printResource(os.Stdout, res)
			}

			list, err := apiClient.List(resourceType)
			if err != nil {
				return err
			}
			return printList(list, fmt.Sprintf("No %s resources found.", resourceType))
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Look up by unique index: field=value")
	cmd.Flags().StringVar(&set, "set", "", "List the members of a named set")
	cmd.Flags().StringVar(&composite, "composite", "", "Resolve a composite key by name")
	cmd.Flags().StringSliceVar(&values, "value", nil, "Composite key values, in field order")

	return cmd
}

func getSet(set string) error {
	list, err := apiClient.ListSet(set)
	if err != nil {
		return err
	}
	return printList(list, fmt.Sprintf("Set %s is empty.", set))
}

func printList(list []client.Resource, empty string) error {
	if len(list) == 0 && outputFormat == "table" {
		fmt.Println(empty)
		return nil
	}
	return printResources(os.Stdout, list)
}

func getTypes() error {
	types, err := apiClient.ListTypes()
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return printJSON(os.Stdout, types)
	case "yaml":
		return printYAML(os.Stdout, types)
	}

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, []string{
			t.Name,
			t.Primary,
			joinOrNone(t.Required),
			joinOrNone(t.Indexes),
			joinOrNone(t.Sets),
		})
	}
	printTable(os.Stdout, []string{"NAME", "PRIMARY", "REQUIRED", "INDEXES", "SETS"}, rows)
	return nil
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "<none>"
	}
	return strings.Join(list, ",")
}
