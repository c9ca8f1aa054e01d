package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/scan-sweeper/internal/model"
)

var fixedTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func TestReportName(t *testing.T) {
	assert.Equal(t, "example.com_filtered_20240309_140507.txt", ReportName("example.com", fixedTime))

	item, ts, ok := ParseReportName("/x/example.com_filtered_20240309_140507.txt")
	require.True(t, ok)
	assert.Equal(t, "example.com", item)
	assert.True(t, ts.Equal(fixedTime))

	item, _, ok = ParseReportName("my_filtered_host_filtered_20240309_140507_2.txt")
	require.True(t, ok)
	assert.Equal(t, "my_filtered_host", item)

	for _, bad := range []string{"notes.txt", "_filtered_20240309_140507.txt", "a_filtered_2024.txt", "a_filtered_yyyymmdd_hhmmss.txt"} {
		_, _, ok := ParseReportName(bad)
		assert.False(t, ok, bad)
	}
}

func TestReportWriterWritesLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	w := &ReportWriter{Dir: dir, Now: func() time.Time { return fixedTime }}
	findings := []model.Finding{{Line: "[critical] rce", Severity: model.SeverityCritical}, {Line: "[low] x", Severity: model.SeverityLow}}

	rep, path, err := w.Write("example.com", findings)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "example.com_filtered_20240309_140507.txt"), path)
	assert.Equal(t, fixedTime, rep.CreatedAt)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[critical] rce\n[low] x\n", string(b))
}

func TestReportWriterNeverOverwrites(t *testing.T) {
	w := &ReportWriter{Dir: t.TempDir(), Now: func() time.Time { return fixedTime }}
	_, first, err := w.Write("a.com", []model.Finding{{Line: "one"}})
	require.NoError(t, err)
	_, second, err := w.Write("a.com", []model.Finding{{Line: "two"}})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "a.com_filtered_20240309_140507_2.txt", filepath.Base(second))
	b, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(b))
}
