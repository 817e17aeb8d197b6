// Package cmd defines and implements the CLI commands for the archiver.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/config"
	"github.com/JakeFAU/substack-archiver/internal/logging"
)

// settings is shared by every subcommand: a Viper instance with the root
// flags bound into it and the optional config file path.
type settings struct {
	v       *viper.Viper
	cfgFile string
}

// load resolves .env, config file, environment and flags into a validated
// Config and builds the logger.
func (s *settings) load() (config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(s.v, s.cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init failed: %w", err)
	}
	return cfg, logging.ForPublication(logger, cfg.PublicationName(), cfg.Source.URL), nil
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&settings{v: config.NewViper()})
}

func buildRootCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "substack-archiver",
		Short: "Archive a Substack publication as Markdown.",
		Long: `substack-archiver discovers every post of a publication, converts each
post to Markdown with a YAML header, downloads referenced images and records
the catalog in metadata.json.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&s.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.String("url", "", "publication URL, e.g. https://example.substack.com")
	flags.StringP("output", "o", "", "output directory")
	flags.Bool("headless", false, "run Chrome without a window")
	flags.Duration("delay", 0, "delay between requests, e.g. 5s")
	flags.String("transport", "", "fetch transport: browser or http")
	bindFlags(s.v, flags, map[string]string{
		"url":       "source.url",
		"output":    "output.dir",
		"headless":  "browser.headless",
		"delay":     "fetch.request_delay",
		"transport": "fetch.transport",
	})

	cmd.AddCommand(newArchiveCmd(s), newListCmd(s), newPostCmd(s))
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
