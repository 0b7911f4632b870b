package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [resource-type]",
		Short: "Stream resource changes",
		Long:  "Print every create, update and delete committed through the server until interrupted.",
		Example: `  rstore watch
  rstore watch developer -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resourceType string
			if len(args) > 0 {
				resourceType = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			events, err := apiClient.Watch(ctx, resourceType)
			if err != nil {
				return err
			}

			colors := map[string]*color.Color{
				"ADDED":    color.New(color.FgGreen),
				"MODIFIED": color.New(color.FgYellow),
				"DELETED":  color.New(color.FgRed),
			}

			for evt := range events {
				switch outputFormat {
				case "json":
					if err := printJSON(os.Stdout, evt); err != nil {
						return err
					}
				case "yaml":
					if err := printYAML(os.Stdout, evt); err != nil {
						return err
					}
				default:
					c, ok := colors[evt.Type]
					if !ok {
						c = color.New(color.Reset)
					}
					fmt.Printf("%s\t%s/%s\n", c.Sprint(evt.Type), evt.ResourceType, evt.ID)
				}
			}
			return nil
		},
	}

	return cmd
}
