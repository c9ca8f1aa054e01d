// Package app wires configuration into the batch runner and its optional
// archive and mirror backends.
package app

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/scan-sweeper/internal/config"
	"github.com/yourorg/scan-sweeper/internal/db"
	"github.com/yourorg/scan-sweeper/internal/metrics"
	"github.com/yourorg/scan-sweeper/internal/notify"
	s3c "github.com/yourorg/scan-sweeper/internal/s3"
	"github.com/yourorg/scan-sweeper/internal/scanner"
	"github.com/yourorg/scan-sweeper/internal/worker"
)

// staleRunAge is how long a run may sit in 'running' without recording an
// item before it is considered abandoned.
const staleRunAge = 12 * time.Hour

type App struct {
	Config   config.Config
	Log      *logrus.Logger
	Store    *db.Store
	S3       *s3c.Client
	Progress *worker.ProgressStore
	Runner   *worker.Runner
	Metrics  *metrics.Recorder
}

// OpenArchive connects to Postgres and makes sure the schema exists. It
// returns nil when no database is configured.
func OpenArchive(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*db.Store, error) {
	if !cfg.ArchiveEnabled() {
		return nil, nil
	}
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		if db.IsInsufficientPrivilege(err) {
			log.Warnf("ensure schema skipped due insufficient privilege: %v", err)
		} else {
			store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return store, nil
}

// OpenMirror returns nil when no object storage is configured.
func OpenMirror(cfg config.Config) (*s3c.Client, error) {
	if !cfg.MirrorEnabled() {
		return nil, nil
	}
	c, err := s3c.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, cfg.S3UseSSL)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return c, nil
}

func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	store, err := OpenArchive(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if store != nil {
		ids, err := store.InterruptStaleRuns(ctx, staleRunAge)
		if err != nil {
			log.WithError(err).Warn("could not close stale runs")
		} else if len(ids) > 0 {
			log.Infof("marked %d abandoned runs as interrupted", len(ids))
		}
	}

	a.S3, err = OpenMirror(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Progress = worker.NewProgressStore(cfg.ProgressFile, log)
	a.Metrics = metrics.New()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyEnabled {
		notifier = notify.NewCommand(cfg.NotifyPath, cfg.NotifyChannel)
	}

	opts := worker.Options{
		Root:       cfg.Root,
		Items:      Targets(cfg),
		Cursor:     a.Progress,
		Scanner:    scanner.NewNuclei(cfg.ScannerPath, log),
		Notifier:   notifier,
		Reports:    worker.NewReportWriter(cfg.ResultsDir),
		Observer:   a.Metrics,
		Severities: cfg.Severities,
		Log:        log,
	}
	// only assign when set; a typed nil would not compare equal to nil
	if a.Store != nil {
		opts.Archive = a.Store
	}
	if a.S3 != nil {
		opts.Mirror = s3c.NewMirror(a.S3, cfg.ReportsBucket)
	}
	a.Runner = worker.NewRunner(opts)
	return a, nil
}

// Targets enumerates the scan root, leaving out the directories the sweeper
// itself writes to when they sit under it.
func Targets(cfg config.Config) *worker.Enumerator {
	exclude := []string{cfg.ResultsDir}
	if strings.EqualFold(cfg.Log.Output, "file") && cfg.Log.FilePath != "" {
		exclude = append(exclude, filepath.Dir(cfg.Log.FilePath))
	}
	return worker.NewEnumerator(cfg.Root, exclude...)
}

// ScannerVersion asks the scanner for its version, for the startup log.
func ScannerVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
