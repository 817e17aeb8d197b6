package cmd

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/config"
	"github.com/JakeFAU/substack-archiver/internal/convert"
	"github.com/JakeFAU/substack-archiver/internal/storage"
	"github.com/JakeFAU/substack-archiver/internal/storage/local"
)

const (
	titleWidth = 50
	paidMark   = "✓"
	noDate     = "Unknown"
)

// row is one line of the listing table.
type row struct {
	date  string
	title string
	paid  bool
	slug  string
}

func newListCmd(s *settings) *cobra.Command {
	var fromDisk bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the publication's posts without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			var rows []row
			if fromDisk {
				store, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
				if err != nil {
					return fmt.Errorf("open output dir: %w", err)
				}
				rows, err = archivedRows(cmd.Context(), store, cfg, logger)
				if err != nil {
					return err
				}
			} else {
				p, err := newPipeline(cmd.Context(), cfg, logger, cmd.InOrStdin())
				if err != nil {
					return err
				}
				defer p.Close()
				posts, err := p.discovery().Discover(cmd.Context())
				if err != nil {
					logger.Warn("Interrupted by user", zap.Error(err))
					return nil
				}
				rows = postRows(posts)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No posts found")
				return nil
			}
			renderTable(out, rows)
			fmt.Fprintf(out, "\nTotal posts: %d\n", len(rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromDisk, "local", false, "list documents already archived under the output directory")
	return cmd
}

func postRows(posts []catalog.Post) []row {
	rows := make([]row, 0, len(posts))
	for _, p := range posts {
		date := noDate
		if p.HasDate() {
			date = p.Date.Format(catalog.DateLayout)
		}
		rows = append(rows, row{date: date, title: p.Title, paid: p.IsPaid, slug: p.Slug})
	}
	return rows
}

// archivedRows reads the front matter of every document in the posts dir.
// Unreadable documents are logged and left out.
func archivedRows(ctx context.Context, store storage.Store, cfg config.Config, logger *zap.Logger) ([]row, error) {
	dir := cfg.PostsDir()
	names, err := store.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list archived posts: %w", err)
	}
	var rows []row
	for _, name := range names {
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := store.GetObject(ctx, path.Join(dir, name))
		if err != nil {
			logger.Warn("Could not read document", zap.String("name", name), zap.Error(err))
			continue
		}
		h, _, err := convert.ParseFrontMatter(data)
		if err != nil {
			logger.Warn("Could not parse front matter", zap.String("name", name), zap.Error(err))
			continue
		}
		date := h.Date
		if date == "" {
			date = noDate
		}
		slug := catalog.SlugFromURL(h.URL)
		if slug == "" {
			slug = strings.TrimSuffix(name, ".md")
		}
		rows = append(rows, row{date: date, title: h.Title, paid: h.Paid, slug: slug})
	}
	return rows, nil
}

func renderTable(w io.Writer, rows []row) {
	numWidth := max(len(fmt.Sprint(len(rows))), 1)
	fmt.Fprintf(w, "%s  %-10s  %s  %-4s  %s\n",
		runewidth.FillRight("#", numWidth), "Date", runewidth.FillRight("Title", titleWidth), "Paid", "Slug")
	for i, r := range rows {
		paid := ""
		if r.paid {
			paid = paidMark
		}
		title := runewidth.Truncate(strings.TrimSpace(r.title), titleWidth, "")
		fmt.Fprintf(w, "%s  %-10s  %s  %s  %s\n",
			runewidth.FillRight(fmt.Sprint(i+1), numWidth),
			r.date,
			runewidth.FillRight(title, titleWidth),
			runewidth.FillRight(paid, 4),
			r.slug,
		)
	}
}
