package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/rstore/internal/tui"
)

func newUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ui",
		Aliases: []string{"browse"},
		Short:   "Launch the interactive terminal UI",
		Long:    "Launch a terminal UI for browsing resource types and their resources.",
		Example: `  rstore ui
  rstore ui --server http://127.0.0.1:7117`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := tui.NewApp(apiClient, serverAddr)
			if err := app.Run(); err != nil {
				return fmt.Errorf("UI error: %w", err)
			}
			return nil
		},
	}

	return cmd
}
