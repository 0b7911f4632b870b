package cli

import (
	"github.com/spf13/cobra"

	"github.com/klubi/rstore/pkg/client"
)

var (
	serverAddr string
	configFile string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level rstore CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rstore",
		Short: "Indexed resource store over a key-value backend",
		Long: `rstore keeps schemaless resources in Redis, BoltDB or memory with
unique secondary indexes, set memberships and atomic multi-key writes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Skip client init for commands that don't need the API server.
			name := cmd.Name()
			if name == "serve" || name == "init" {
				return
			}
			apiClient = client.New(serverAddr)
		},
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:7117", "rstore server address")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./rstore.yaml or ~/.rstore/rstore.yaml)")

	cmd.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newApplyCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newWatchCmd(),
		newUICmd(),
	)

	return cmd
}
