package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/archive"
)

func newArchiveCmd(s *settings) *cobra.Command {
	var (
		opts     archive.Options
		noImages bool
		saveHTML bool
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Download every post of the publication",
		Long: `Discovers the publication's posts, downloads each one as Markdown into
<output>/<publication>/posts and its images into <output>/<publication>/images,
then writes <output>/<publication>/metadata.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			if noImages {
				cfg.Output.DownloadImages = false
			}
			if saveHTML {
				cfg.Output.SaveHTML = true
			}
			if dryRun {
				cfg.Output.DryRun = true
			}

			p, err := newPipeline(cmd.Context(), cfg, logger, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer p.Close()
			defer p.finish()

			posts, err := p.discovery().Discover(cmd.Context())
			if err != nil {
				logger.Warn("Interrupted by user", zap.Error(err))
				return nil
			}
			out := cmd.OutOrStdout()
			if len(posts) == 0 {
				fmt.Fprintln(out, "No posts found")
				return nil
			}
			fmt.Fprintf(out, "Starting download of %d posts...\n", len(posts))

			res, err := p.driver(cfg.Output.DownloadImages, cfg.Output.SaveHTML).Run(cmd.Context(), posts, opts)
			printSummary(out, res, len(posts))
			return err
		},
	}
	cmd.Flags().BoolVarP(&opts.Resume, "resume", "r", false, "skip posts already downloaded")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "download at most N posts (0 = all)")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "do not download images")
	cmd.Flags().BoolVar(&saveHTML, "save-html", false, "also save the extracted HTML")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without writing to disk")
	return cmd
}

func printSummary(w io.Writer, res archive.Result, total int) {
	title := "Download Complete"
	if res.Interrupted {
		title = "Download Interrupted"
	}
	fmt.Fprintf(w, "\n%s\n\nDownloaded: %d\nSkipped: %d\nFailed: %d\nTotal: %d\n",
		title, res.Succeeded, res.Skipped, res.Failed, total)
}
