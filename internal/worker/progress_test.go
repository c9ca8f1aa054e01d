package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/scan-sweeper/internal/logger"
)

func newStore(t *testing.T) *ProgressStore {
	t.Helper()
	return NewProgressStore(filepath.Join(t.TempDir(), "state", "scan_progress.log"), logger.Discard())
}

func readRecord(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestLoadCreatesRecord(t *testing.T) {
	s := newStore(t)
	n, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "0", readRecord(t, s.Path()))
}

func TestSaveThenLoad(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(7))
	assert.Equal(t, "7", readRecord(t, s.Path()))

	n, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestLoadToleratesTrailingNewline(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("12\n"), 0o644))

	n, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestLoadRecoversFromCorruption(t *testing.T) {
	for name, content := range map[string]string{
		"garbage":    "abc\n\n",
		"empty":      "",
		"multi-line": "3\n4",
		"negative":   "-2",
		"float":      "1.5",
	} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
			require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

			n, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, 0, n)
			assert.Equal(t, "0", readRecord(t, s.Path()))
		})
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(1))
	require.NoError(t, s.Save(2))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scan_progress.log", entries[0].Name())
}

func TestSaveRejectsNegative(t *testing.T) {
	assert.Error(t, newStore(t).Save(-1))
}

func TestPeekDoesNotRepair(t *testing.T) {
	s := newStore(t)
	_, err := s.Peek()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, s.Path())

	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("x"), 0o644))
	_, err = s.Peek()
	assert.Error(t, err)
	assert.Equal(t, "x", readRecord(t, s.Path()))

	require.NoError(t, s.Save(4))
	n, err := s.Peek()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
