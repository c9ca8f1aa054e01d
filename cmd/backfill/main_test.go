package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/scan-sweeper/internal/logger"
	"github.com/yourorg/scan-sweeper/internal/model"
)

type memArchive struct {
	reports map[string]model.FilteredReport
	failOn  string
}

func (m *memArchive) ReportExists(_ context.Context, name string) (bool, error) {
	_, ok := m.reports[name]
	return ok, nil
}

func (m *memArchive) RecordReport(_ context.Context, _ uuid.UUID, name, _ string, rep model.FilteredReport) error {
	if name == m.failOn {
		return errors.New("insert failed")
	}
	m.reports[name] = rep
	return nil
}

func writeReport(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestBackfillLocal(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "a.com_filtered_20240101_120000.txt", "[x] [http] [critical] a\n[y] [dns] [low] b\n")
	writeReport(t, dir, "b.com_filtered_20240102_120000.txt", "[z] [http] [high] c\n")
	writeReport(t, dir, "c.com_filtered_20240103_120000.txt", "[z] [http] [high] d\n")
	writeReport(t, dir, "notes.txt", "ignore me\n")

	store := &memArchive{
		reports: map[string]model.FilteredReport{"b.com_filtered_20240102_120000.txt": {}},
		failOn:  "c.com_filtered_20240103_120000.txt",
	}
	st, err := backfillLocal(context.Background(), store, dir, 0, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, stats{total: 3, ok: 1, skipped: 1, failed: 1}, st)

	rep := store.reports["a.com_filtered_20240101_120000.txt"]
	assert.Equal(t, "a.com", rep.Item)
	assert.Equal(t, 2024, rep.CreatedAt.Year())
	require.Len(t, rep.Findings, 2)
	assert.Equal(t, model.SeverityCritical, rep.Findings[0].Severity)
}

func TestBackfillLocalMax(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "a.com_filtered_20240101_120000.txt", "[x] [critical] a\n")
	writeReport(t, dir, "b.com_filtered_20240101_120000.txt", "[x] [critical] a\n")

	store := &memArchive{reports: map[string]model.FilteredReport{}}
	st, err := backfillLocal(context.Background(), store, dir, 1, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, st.total)
	assert.Len(t, store.reports, 1)
}

func TestBackfillLocalMissingDir(t *testing.T) {
	_, err := backfillLocal(context.Background(), &memArchive{}, filepath.Join(t.TempDir(), "nope"), 0, logger.Discard())
	assert.Error(t, err)
}

func TestIngestAllDownloadFailure(t *testing.T) {
	store := &memArchive{reports: map[string]model.FilteredReport{}}
	cands := []candidate{{Name: "a.com_filtered_20240101_120000.txt", ObjectKey: "filtered/a.com/a.com_filtered_20240101_120000.txt"}}
	fetch := func(context.Context, *candidate) error { return errors.New("no such key") }

	st := ingestAll(context.Background(), store, cands, 0, fetch, logger.Discard())
	assert.Equal(t, stats{total: 1, failed: 1}, st)
}
