package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/scan-sweeper/internal/filter"
	"github.com/yourorg/scan-sweeper/internal/model"
	"github.com/yourorg/scan-sweeper/internal/notify"
	"github.com/yourorg/scan-sweeper/internal/scanner"
)

// ErrScannerMissing stops a batch when the scanner binary cannot be launched.
// The cursor is left on the item that could not be scanned.
var ErrScannerMissing = errors.New("scanner could not be launched")

const (
	sinkAttempts = 3
	sinkDelay    = 200 * time.Millisecond
	sinkTimeout  = 10 * time.Second
)

// Archive receives a record of every run. Failures never stop a batch.
type Archive interface {
	StartRun(ctx context.Context, run model.RunInfo) error
	RecordItem(ctx context.Context, runID uuid.UUID, o model.ItemOutcome) error
	RecordReport(ctx context.Context, runID uuid.UUID, name, objectKey string, rep model.FilteredReport) error
	FinishRun(ctx context.Context, run model.RunInfo) error
}

// Mirror copies a written report somewhere durable and returns its key.
type Mirror interface {
	UploadReport(ctx context.Context, item, filePath string) (string, error)
}

// Observer sees every item outcome and every finished batch.
type Observer interface {
	ObserveItem(o model.ItemOutcome)
	ObserveRun(run model.RunInfo)
}

// BatchContext is the state carried through one batch.
type BatchContext struct {
	Run   model.RunInfo
	Items []model.WorkItem
	// Cursor is the index persisted last.
	Cursor int
	log    logrus.FieldLogger
}

type Options struct {
	Root       string
	Items      ItemSource
	Cursor     Cursor
	Scanner    scanner.Runner
	Notifier   notify.Notifier
	Reports    *ReportWriter
	Archive    Archive
	Mirror     Mirror
	Observer   Observer
	Severities string
	Log        logrus.FieldLogger
}

type Runner struct {
	root       string
	items      ItemSource
	cursor     Cursor
	scan       scanner.Runner
	notifier   notify.Notifier
	reports    *ReportWriter
	archive    Archive
	mirror     Mirror
	observer   Observer
	severities string
	log        logrus.FieldLogger

	mu   sync.Mutex
	last *model.RunInfo
}

func NewRunner(o Options) *Runner {
	r := &Runner{
		root:       o.Root,
		items:      o.Items,
		cursor:     o.Cursor,
		scan:       o.Scanner,
		notifier:   o.Notifier,
		reports:    o.Reports,
		archive:    o.Archive,
		mirror:     o.Mirror,
		observer:   o.Observer,
		severities: o.Severities,
		log:        o.Log,
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.severities == "" {
		r.severities = joinSeverities(model.AllSeverities)
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r
}

func joinSeverities(sevs []model.Severity) string {
	parts := make([]string, 0, len(sevs))
	for _, v := range sevs {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, ",")
}

// LastRun returns the most recent finished batch, if any.
func (r *Runner) LastRun() (model.RunInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return model.RunInfo{}, false
	}
	return *r.last, true
}

// RunBatch processes items from the persisted cursor to the end of the list.
// It returns ErrScannerMissing when the scanner cannot be launched, the
// context error when interrupted, and nil otherwise.
func (r *Runner) RunBatch(ctx context.Context) (model.RunInfo, error) {
	items, err := r.items.List()
	if err != nil {
		return model.RunInfo{}, fmt.Errorf("list items: %w", err)
	}
	bc := &BatchContext{
		Run:   model.RunInfo{ID: uuid.New(), Root: r.root, Status: model.RunRunning, StartedAt: time.Now(), Total: len(items)},
		Items: items,
	}
	bc.log = r.log.WithField("run_id", bc.Run.ID.String())

	if len(items) == 0 {
		bc.log.Info("no directories found to scan")
		bc.Run.Status = model.RunCompleted
		bc.Run.FinishedAt = time.Now()
		r.remember(bc.Run)
		return bc.Run, nil
	}

	c, err := r.cursor.Load()
	if err != nil {
		bc.log.WithError(err).Warn("could not persist progress reset")
		c = 0
	}
	if c >= len(items) {
		bc.log.Info("all directories have been scanned, resetting progress")
		c = 0
		r.save(bc, 0)
	}
	bc.Cursor = c
	bc.Run.StartCursor = c
	if r.archive != nil {
		r.sink(ctx, bc.log, "archive run start", func(ctx context.Context) error {
			return r.archive.StartRun(ctx, bc.Run)
		})
	}

	bc.log.Infof("starting scan from directory index %d of %d", c, len(items))

	last := c - 1
	for i := c; i < len(items); i++ {
		if ctx.Err() != nil {
			bc.log.Warnf("interrupted before directory index %d", i)
			return r.finish(ctx, bc, model.RunInterrupted), ctx.Err()
		}

		out, err := r.processItem(ctx, bc, i)
		bc.Run.Count(out)
		if r.observer != nil {
			r.observer.ObserveItem(out)
		}
		if r.archive != nil {
			r.sink(ctx, bc.log, "archive item", func(ctx context.Context) error {
				return r.archive.RecordItem(ctx, bc.Run.ID, out)
			})
		}

		if errors.Is(err, ErrScannerMissing) {
			r.save(bc, i)
			return r.finish(ctx, bc, model.RunAborted), err
		}
		last = i
		if out.Outcome == model.OutcomeScanFailed {
			// retry point; a later item overwrites it if the batch goes on
			r.save(bc, i)
			continue
		}
		r.save(bc, i+1)
	}

	if last+1 >= len(items) {
		bc.log.Info("all directories have been scanned, resetting progress for the next full cycle")
		r.save(bc, 0)
	}
	return r.finish(ctx, bc, model.RunCompleted), nil
}

func (r *Runner) processItem(ctx context.Context, bc *BatchContext, i int) (model.ItemOutcome, error) {
	item := bc.Items[i]
	out := model.ItemOutcome{Index: i, Item: item.Name}
	log := bc.log.WithFields(logrus.Fields{"item": item.Name, "index": i})

	if err := os.MkdirAll(item.SubdomainsPath(), 0o755); err != nil {
		log.WithError(err).Warn("could not create subdomains directory")
	}

	if !isFile(item.InputPath) {
		log.Infof("skipping %s: subdomains/%s not found", item.Name, model.InputFile)
		out.Outcome = model.OutcomeNoInput
		return out, nil
	}

	if isFile(item.ResultPath) {
		log.Infof("skipping scan for %s: %s already exists", item.Name, item.ResultPath)
		out.Outcome = model.OutcomeReused
	} else {
		log.Infof("running scanner on %s", item.InputPath)
		res := r.scan.Scan(ctx, scanner.Request{
			InputPath:  item.InputPath,
			OutputPath: item.ResultPath,
			ResumePath: item.ResumePath,
			Severities: r.severities,
		})
		switch res.Status {
		case scanner.StatusLaunchFailed:
			out.Outcome = model.OutcomeScannerMissing
			out.ExitCode = res.ExitCode
			log.WithError(res.Err).Error("scanner could not be started, is it installed and in PATH?")
			return out, fmt.Errorf("%w: %v", ErrScannerMissing, res.Err)
		case scanner.StatusExitedNonZero:
			out.Outcome = model.OutcomeScanFailed
			out.ExitCode = res.ExitCode
			out.Stdout = res.Stdout
			out.Stderr = res.Stderr
			log.WithError(res.Err).WithFields(logrus.Fields{
				"exit_code": res.ExitCode,
				"stdout":    orNone(res.Stdout),
				"stderr":    orNone(res.Stderr),
			}).Error("scanner failed")
			return out, nil
		}
		out.Outcome = model.OutcomeScanned
		log.Infof("scan completed, results saved in %s", item.ResultPath)
	}

	if !isFile(item.ResultPath) {
		log.Errorf("%s not found after scan attempt", item.ResultPath)
		return out, nil
	}

	findings, err := filter.File(item.ResultPath)
	if err != nil {
		log.WithError(err).Error("could not read scan results")
		return out, nil
	}
	if len(findings) == 0 {
		log.Info("no reportable findings (critical, high, medium, or non-ssl low)")
		return out, nil
	}
	out.Reportable = len(findings)

	rep, path, err := r.reports.Write(item.Name, findings)
	if err != nil {
		log.WithError(err).Error("could not write filtered report")
	} else {
		out.ReportPath = path
		sum := rep.Summary()
		log.WithFields(logrus.Fields{
			"critical": sum.Critical, "high": sum.High, "medium": sum.Medium, "low": sum.Low,
		}).Infof("filtered reportable findings saved to %s", path)
		r.storeReport(ctx, bc, log, rep, path)
	}

	if err := r.notifier.Notify(ctx, notify.Message(item.Name, rep.Lines())); err != nil {
		log.WithError(err).Warn("sending notification failed")
	}
	return out, nil
}

func (r *Runner) storeReport(ctx context.Context, bc *BatchContext, log logrus.FieldLogger, rep model.FilteredReport, path string) {
	var key string
	if r.mirror != nil {
		r.sink(ctx, log, "mirror report", func(ctx context.Context) error {
			k, err := r.mirror.UploadReport(ctx, rep.Item, path)
			key = k
			return err
		})
	}
	if r.archive != nil {
		r.sink(ctx, log, "archive report", func(ctx context.Context) error {
			return r.archive.RecordReport(ctx, bc.Run.ID, filepath.Base(path), key, rep)
		})
	}
}

// sink runs a best-effort side write with retries. It outlives ctx
// cancellation so an interrupted batch still records what it did.
func (r *Runner) sink(ctx context.Context, log logrus.FieldLogger, what string, fn func(context.Context) error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := retry(sctx, log, what, sinkAttempts, sinkDelay, func() error { return fn(sctx) }); err != nil {
		log.WithError(err).Warnf("%s failed", what)
	}
}

func (r *Runner) save(bc *BatchContext, index int) {
	if err := r.cursor.Save(index); err != nil {
		bc.log.WithError(err).Errorf("could not persist progress %d", index)
		return
	}
	bc.Cursor = index
}

func (r *Runner) finish(ctx context.Context, bc *BatchContext, status model.RunStatus) model.RunInfo {
	bc.Run.Status = status
	bc.Run.FinishedAt = time.Now()
	bc.Run.EndCursor = bc.Cursor
	if r.archive != nil {
		r.sink(ctx, bc.log, "archive run finish", func(ctx context.Context) error {
			return r.archive.FinishRun(ctx, bc.Run)
		})
	}
	bc.log.WithFields(logrus.Fields{
		"status":    status,
		"processed": bc.Run.Processed,
		"scanned":   bc.Run.Scanned,
		"reused":    bc.Run.Reused,
		"skipped":   bc.Run.Skipped,
		"failed":    bc.Run.Failed,
		"reported":  bc.Run.Reported,
		"cursor":    bc.Cursor,
	}).Info("batch finished")
	r.remember(bc.Run)
	return bc.Run
}

func (r *Runner) remember(run model.RunInfo) {
	if r.observer != nil {
		r.observer.ObserveRun(run)
	}
	r.mu.Lock()
	r.last = &run
	r.mu.Unlock()
}

// RunForever repeats batches every interval until ctx is done. A missing
// scanner ends the loop since no later batch can succeed either.
func (r *Runner) RunForever(ctx context.Context, every time.Duration) error {
	for {
		if _, err := r.RunBatch(ctx); err != nil {
			if errors.Is(err, ErrScannerMissing) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			r.log.WithError(err).Error("batch failed")
		}
		r.log.Infof("next batch in %s", every)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(every):
		}
	}
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
