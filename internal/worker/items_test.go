package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(t *testing.T, e *Enumerator) []string {
	t.Helper()
	items, err := e.List()
	require.NoError(t, err)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestEnumeratorSortsDirectoriesOnly(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"zeta.io", "alpha.com", "Beta.org", ".git", "nuclei_filtered_results"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "scan_progress.log"), []byte("0"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "alpha.com"), filepath.Join(root, "link.net")))

	e := NewEnumerator(root, filepath.Join(root, "nuclei_filtered_results"))
	assert.Equal(t, []string{"Beta.org", "alpha.com", "link.net", "zeta.io"}, names(t, e))
	// same order on every call
	assert.Equal(t, names(t, e), names(t, e))
}

func TestEnumeratorExcludeRelative(t *testing.T) {
	root := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.Mkdir("a.com", 0o755))
	require.NoError(t, os.Mkdir("reports", 0o755))

	assert.Equal(t, []string{"a.com"}, names(t, NewEnumerator(".", "reports")))
}

func TestEnumeratorExcludeRelativeToWorkingDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.MkdirAll(filepath.Join("targets", "a.com"), 0o755))
	_, _, err = NewReportWriter(filepath.Join("targets", "out")).Write("a.com", nil)
	require.NoError(t, err)

	e := NewEnumerator("targets", filepath.Join("targets", "out"))
	assert.Equal(t, []string{"a.com"}, names(t, e))
}

func TestEnumeratorIgnoresExcludeOutsideRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "reports"), 0o755))
	e := NewEnumerator(root, filepath.Join(t.TempDir(), "reports"))
	assert.Equal(t, []string{"reports"}, names(t, e))
}

func TestEnumeratorEmptyAndMissingRoot(t *testing.T) {
	items, err := NewEnumerator(t.TempDir()).List()
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = NewEnumerator(filepath.Join(t.TempDir(), "nope")).List()
	assert.Error(t, err)
}
