package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkgrepo/internal/app"
)

type listOptions struct {
	ForceRefresh bool
}

func newListCommand(cfg *RootConfig) *cobra.Command {
	opts := listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Load the repository and list installed, available and updatable packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.ForceRefresh, "refresh", false, "Ignore the cache and reload")
	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, cfg *RootConfig, opts listOptions) error {
	return withService(cmd, cfg, func(service app.Service) error {
		result, err := service.List(ctx, app.ListRequest{ForceRefresh: opts.ForceRefresh})
		if err != nil {
			return err
		}
		printList(cmd.OutOrStdout(), result)
		return nil
	})
}

func printList(out io.Writer, result app.ListResult) {
	fmt.Fprintln(out, "Installed packages:")
	for _, pkg := range result.Local {
		fmt.Fprintf(out, "  %-40s %-12s %s\n", pkg.Path, pkg.Revision, pkg.Location)
	}
	fmt.Fprintln(out, "Available packages:")
	for _, pkg := range result.Remote {
		marker := ""
		if pkg.Legacy {
			marker = " (legacy)"
		}
		fmt.Fprintf(out, "  %-40s %-12s %s%s\n", pkg.Path, pkg.Revision, pkg.Channel, marker)
	}
	fmt.Fprintln(out, "Available updates:")
	for _, update := range result.Updates {
		fmt.Fprintf(out, "  %-40s %s -> %s\n", update.Local.Path, update.Local.Revision, update.Remote.Revision)
	}
	for _, source := range result.Sources {
		if source.FetchError != "" {
			fmt.Fprintf(out, "warning: %s: %s\n", source.Name, source.FetchError)
		}
	}
}
