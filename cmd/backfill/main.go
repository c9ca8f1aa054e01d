package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/scan-sweeper/internal/app"
	"github.com/yourorg/scan-sweeper/internal/config"
	"github.com/yourorg/scan-sweeper/internal/db"
	"github.com/yourorg/scan-sweeper/internal/filter"
	"github.com/yourorg/scan-sweeper/internal/logger"
	"github.com/yourorg/scan-sweeper/internal/model"
	"github.com/yourorg/scan-sweeper/internal/s3"
	"github.com/yourorg/scan-sweeper/internal/worker"
)

// reportArchive is the part of the store backfill writes to.
type reportArchive interface {
	ReportExists(ctx context.Context, name string) (bool, error)
	RecordReport(ctx context.Context, runID uuid.UUID, name, objectKey string, rep model.FilteredReport) error
}

// candidate is one filtered report, local or mirrored.
type candidate struct {
	Name      string
	LocalPath string
	ObjectKey string
}

type stats struct {
	total, ok, skipped, failed int
}

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		configFile string
		fromS3     bool
		maxReports int
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest filtered reports into the run archive",
		Long: `backfill loads filtered reports written while the Postgres archive was
disabled. Reports come from the local results directory, or with --s3 from
the mirrored copies in REPORTS_BUCKET. Reports already archived are skipped.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFiles()
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if !cfg.ArchiveEnabled() {
				return fmt.Errorf("DATABASE_URL is required")
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := app.OpenArchive(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			var st stats
			if fromS3 {
				client, err := app.OpenMirror(cfg)
				if err != nil {
					return err
				}
				if client == nil {
					return fmt.Errorf("S3_ENDPOINT is required with --s3")
				}
				st, err = backfillS3(ctx, store, client, cfg.ReportsBucket, maxReports, log)
				if err != nil {
					return err
				}
			} else {
				st, err = backfillLocal(ctx, store, cfg.ResultsDir, maxReports, log)
				if err != nil {
					return err
				}
			}
			log.Infof("backfill complete: processed=%d ok=%d skipped=%d failed=%d", st.total, st.ok, st.skipped, st.failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file")
	cmd.Flags().BoolVar(&fromS3, "s3", false, "read mirrored reports from REPORTS_BUCKET instead of the results directory")
	cmd.Flags().IntVar(&maxReports, "max-reports", 0, "maximum reports to ingest (0 = unlimited)")
	return cmd
}

func localCandidates(dir string) ([]candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := worker.ParseReportName(e.Name()); !ok {
			continue
		}
		out = append(out, candidate{Name: e.Name(), LocalPath: filepath.Join(dir, e.Name())})
	}
	return out, nil
}

func backfillLocal(ctx context.Context, store reportArchive, dir string, max int, log logrus.FieldLogger) (stats, error) {
	cands, err := localCandidates(dir)
	if err != nil {
		return stats{}, fmt.Errorf("list %s: %w", dir, err)
	}
	return ingestAll(ctx, store, cands, max, nil, log), nil
}

func backfillS3(ctx context.Context, store reportArchive, client *s3.Client, bucket string, max int, log logrus.FieldLogger) (stats, error) {
	listCtx, cancel := context.WithTimeout(ctx, time.Minute)
	keys, err := client.ListKeys(listCtx, bucket, s3.ReportPrefix)
	cancel()
	if err != nil {
		return stats{}, fmt.Errorf("list reports: %w", err)
	}
	var cands []candidate
	for _, k := range keys {
		name := path.Base(k)
		if _, _, ok := worker.ParseReportName(name); !ok {
			continue
		}
		cands = append(cands, candidate{Name: name, ObjectKey: k})
	}

	tmpRoot, err := os.MkdirTemp("", "sweeper-backfill")
	if err != nil {
		return stats{}, err
	}
	defer os.RemoveAll(tmpRoot)

	fetch := func(ctx context.Context, c *candidate) error {
		c.LocalPath = filepath.Join(tmpRoot, c.Name)
		dlCtx, dlCancel := context.WithTimeout(ctx, 2*time.Minute)
		defer dlCancel()
		return client.DownloadToFile(dlCtx, bucket, c.ObjectKey, c.LocalPath)
	}
	return ingestAll(ctx, store, cands, max, fetch, log), nil
}

func ingestAll(ctx context.Context, store reportArchive, cands []candidate, max int, fetch func(context.Context, *candidate) error, log logrus.FieldLogger) stats {
	var st stats
	for i := range cands {
		if max > 0 && st.total >= max {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c := &cands[i]
		st.total++

		exists, err := store.ReportExists(ctx, c.Name)
		if err != nil {
			st.failed++
			log.WithError(err).Errorf("backfill %s: lookup failed", c.Name)
			continue
		}
		if exists {
			st.skipped++
			continue
		}
		if fetch != nil {
			if err := fetch(ctx, c); err != nil {
				st.failed++
				log.WithError(err).Errorf("backfill %s: download failed", c.Name)
				continue
			}
		}
		if err := ingestOne(ctx, store, c); err != nil {
			st.failed++
			log.WithError(err).Errorf("backfill %s failed", c.Name)
			continue
		}
		st.ok++
	}
	return st
}

func ingestOne(ctx context.Context, store reportArchive, c *candidate) error {
	item, ts, ok := worker.ParseReportName(c.Name)
	if !ok {
		return fmt.Errorf("unrecognised report name %q", c.Name)
	}
	f, err := os.Open(c.LocalPath)
	if err != nil {
		return err
	}
	lines, err := filter.ReadLines(f)
	f.Close()
	if err != nil {
		return err
	}
	rep := model.FilteredReport{Item: item, CreatedAt: ts, Findings: filter.Findings(lines)}

	ingestCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return store.RecordReport(ingestCtx, uuid.Nil, c.Name, c.ObjectKey, rep)
}

var _ reportArchive = (*db.Store)(nil)
