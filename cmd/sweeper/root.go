package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/scan-sweeper/internal/config"
	"github.com/yourorg/scan-sweeper/internal/logger"
)

type rootOptions struct {
	configFile string
	root       string
	resultsDir string
	progress   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Resumable nuclei sweeps over a directory of targets",
		Long: `sweeper walks every target directory under the scan root, runs nuclei on
<target>/subdomains/subs-domain.txt, keeps reportable findings and sends them
through notify. Progress is kept between runs so an interrupted sweep resumes
where it stopped.

Examples:
  sweeper run
  sweeper run --root /data/targets --every 6h
  sweeper status
  sweeper filter example.com/nuclei-results.txt`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "optional YAML config file")
	flags.StringVar(&opts.root, "root", "", "directory holding one sub-directory per target (overrides SCAN_ROOT)")
	flags.StringVar(&opts.resultsDir, "results", "", "directory for filtered reports (overrides RESULTS_DIR)")
	flags.StringVar(&opts.progress, "progress", "", "progress file (overrides PROGRESS_FILE)")

	cmd.AddCommand(newRunCmd(opts), newStatusCmd(opts), newFilterCmd())
	return cmd
}

// load reads .env files, the config and flag overrides, and builds the logger.
func (o *rootOptions) load() (config.Config, *logrus.Logger, error) {
	config.LoadEnvFiles()
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.root != "" {
		cfg.Root = o.root
	}
	if o.resultsDir != "" {
		cfg.ResultsDir = o.resultsDir
	}
	if o.progress != "" {
		cfg.ProgressFile = o.progress
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
