package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/rstore/pkg/client"
	"github.com/klubi/rstore/pkg/manifest"
)

func newApplyCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "apply -f <file>",
		Short: "Apply a manifest file",
		Long: `Create or update resources from a YAML manifest file.

A document updates an existing resource when it carries its uuid or a
value of a unique index that is already taken; otherwise it is created.`,
		Example: `  rstore apply -f developer.yaml
  rstore apply -f fixtures.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := manifest.ParseFile(filename)
			if err != nil {
				return fmt.Errorf("parsing manifest %s: %w", filename, err)
			}

			if len(docs) == 0 {
				fmt.Println("No resources found in manifest.")
				return nil
			}

			for i, doc := range docs {
				res, created, err := apiClient.Apply(doc.Type, client.Resource(doc.Resource))
				if err != nil {
					return fmt.Errorf("applying document %d (%s): %w", i, doc.Type, err)
				}

				verb := "configured"
				if created {
					verb = "created"
				}
				fmt.Printf("%s/%s %s\n", doc.Type, res.UUID(), verb)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Path to manifest file (required)")
	cmd.MarkFlagRequired("filename")

	return cmd
}
