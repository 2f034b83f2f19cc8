package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkgrepo/internal/app"
)

func newSourcesCommand(cfg *RootConfig) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured remote sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, cfg, func(service app.Service) error {
				out := cmd.OutOrStdout()
				for _, source := range service.Sources(cmd.Context(), refresh) {
					state := "enabled"
					if !source.Enabled {
						state = "disabled"
					}
					fmt.Fprintf(out, "%-20s %-8s %-8s %s\n", source.Name, state, source.Channel, source.URL)
					if source.FetchError != "" {
						fmt.Fprintf(out, "  error: %s\n", source.FetchError)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-read the source list")
	return cmd
}
