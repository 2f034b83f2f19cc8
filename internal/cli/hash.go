package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkgrepo/internal/app"
)

func newHashCommand(cfg *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the local packages hash and latest package update time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, cfg, func(service app.Service) error {
				result, err := service.Hash(cmd.Context())
				if err != nil {
					return err
				}
				updated := "never"
				if !result.LatestUpdate.IsZero() {
					updated = result.LatestUpdate.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\nlatest update: %s\n", result.Hash, result.Root, updated)
				return nil
			})
		},
	}
}
