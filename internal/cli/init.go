package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const configTemplate = `server:
  host: 127.0.0.1
  port: 7117

store:
  backend: %s
  dataDir: %s
  root: "namespace:resource"
  indexLayout: hash

redis:
  host: 127.0.0.1
  port: 6379

log:
  level: info
  format: console

resourceTypes:
  - name: developer
    required: [email]
    indexes: [email]
    sets: [developers]
    validations:
      - field: email
        kind: pattern
        pattern: "^[^@ ]+@[^@ ]+$"
        message: must be an email address

  - name: application
    fields: [name, developerId]
    required: ["*"]
    sets: [applications]
    generators:
      - field: consumerKey
        kind: token
      - field: createdAt
        kind: timestamp
    links:
      - field: developerId
        target: developer
        set: applications
    compositeKeys:
      - name: developer-app
        fields: [developerId, name]
`

const manifestTemplate = `type: developer
resource:
  email: dev@example.com
  name: Example Developer
`

func newInitCmd() *cobra.Command {
	var (
		backendName string
		outputFile  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample rstore configuration",
		Long: `Create rstore.yaml and an example manifest in the current directory.

The configuration declares two resource types, developers and their
applications, that you can customize before running 'rstore serve'.`,
		Example: `  rstore init
  rstore init --backend redis
  rstore init --output-file custom.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			configPath := filepath.Join(cwd, outputFile)
			manifestPath := filepath.Join(cwd, "developer.yaml")

			for _, p := range []string{configPath, manifestPath} {
				if _, err := os.Stat(p); err == nil {
					return fmt.Errorf("file %s already exists", filepath.Base(p))
				}
			}

			content := fmt.Sprintf(configTemplate, backendName, filepath.Join(cwd, ".rstore"))
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}
			if err := os.WriteFile(manifestPath, []byte(manifestTemplate), 0644); err != nil {
				return fmt.Errorf("writing manifest file: %w", err)
			}

			bold := color.New(color.FgCyan, color.Bold)
			bold.Println("rstore initialized!")
			fmt.Println()
			fmt.Printf("  Config:   %s\n", configPath)
			fmt.Printf("  Manifest: %s\n", manifestPath)
			fmt.Printf("  Backend:  %s\n", backendName)
			fmt.Println()

			color.New(color.Bold).Println("Next steps:")
			fmt.Println("  1. Start the server:")
			fmt.Printf("     rstore serve -c %s\n", outputFile)
			fmt.Println()
			fmt.Println("  2. Apply the manifest:")
			fmt.Println("     rstore apply -f developer.yaml")
			fmt.Println()
			fmt.Println("  3. Look it up by its index:")
			fmt.Println("     rstore get developer --by email=dev@example.com")

			return nil
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "bolt", "Backend to configure: bolt|memory|redis")
	cmd.Flags().StringVar(&outputFile, "output-file", "rstore.yaml", "Output config filename")

	return cmd
}
