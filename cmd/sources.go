package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/orchestrator"
)

func sourcesCommand(options func() bootstrap.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources with their crawl cursors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), options(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				renderSources(cmd.OutOrStdout(), orch.Sources(ctx))
				return nil
			})
		},
	}
}
