package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPostCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "post <url>",
		Short: "Download a single post by URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := s.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			p, err := newPipeline(cmd.Context(), cfg, logger, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer p.Close()
			defer p.finish()

			fmt.Fprintf(cmd.OutOrStdout(), "Downloading single post: %s\n", args[0])
			uri, err := p.driver(cfg.Output.DownloadImages, cfg.Output.SaveHTML).RunOne(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch post: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", uri)
			return nil
		},
	}
}
