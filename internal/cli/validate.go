package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkgrepo/internal/app"
)

type validateOptions struct {
	Modules []string
}

func newValidateCommand(cfg *RootConfig) *cobra.Command {
	opts := validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a package descriptor against the known schema modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, cfg, func(service app.Service) error {
				result, err := service.Validate(cmd.Context(), app.ValidateRequest{
					Path:    args[0],
					Modules: opts.Modules,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "valid: %s\n", result.Module)
				if result.LocalPath != "" {
					fmt.Fprintf(out, "local package: %s\n", result.LocalPath)
				}
				fmt.Fprintf(out, "remote packages: %d\n", result.RemotePackages)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.Modules, "module", nil, "Restrict to schema module (name, name/version or namespace)")
	return cmd
}
