package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <resource-type> <uuid>...",
		Short: "Delete resources",
		Long:  "Delete resources by uuid, together with their index entries and set memberships.",
		Example: `  rstore delete developer 3f6c...
  rstore delete application 9a1e... 77b0...`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType := args[0]
			for _, id := range args[1:] {
				if _, err := apiClient.Delete(resourceType, id); err != nil {
					return fmt.Errorf("deleting %s/%s: %w", resourceType, id, err)
				}
				fmt.Printf("%s/%s deleted\n", resourceType, id)
			}
			return nil
		},
	}

	return cmd
}
