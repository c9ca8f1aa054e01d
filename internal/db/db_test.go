package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/scan-sweeper/internal/model"
)

func TestIsInsufficientPrivilege(t *testing.T) {
	assert.True(t, IsInsufficientPrivilege(&pgconn.PgError{Code: "42501"}))
	assert.False(t, IsInsufficientPrivilege(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsInsufficientPrivilege(assert.AnError))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("abc", 5))
	assert.Equal(t, "cde", tail("abcde", 3))

	// a cut inside a two-byte rune moves to the next rune
	got := tail("x"+strings.Repeat("é", 8192), 8193)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 4096), got)

	assert.Equal(t, "ab", tail("a\x00b", 10))
	assert.Equal(t, "ab", tail("a\xffb", 10))
}

// TestStoreRoundTrip needs a disposable database in SWEEPER_TEST_DATABASE_URL.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("SWEEPER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SWEEPER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Open(ctx, url)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	run := model.RunInfo{ID: uuid.New(), Root: "/targets", StartedAt: time.Now(), Total: 2}
	require.NoError(t, store.StartRun(ctx, run))
	require.NoError(t, store.RecordItem(ctx, run.ID, model.ItemOutcome{Index: 0, Item: "a.com", Outcome: model.OutcomeScanFailed, ExitCode: 2, Stderr: "boom"}))

	name := "a.com_filtered_" + uuid.NewString() + ".txt"
	rep := model.FilteredReport{Item: "a.com", CreatedAt: time.Now(), Findings: []model.Finding{
		{Line: "[x] [http] [high] a", Severity: model.SeverityHigh, Tags: []string{"x", "http", "high"}},
	}}
	require.NoError(t, store.RecordReport(ctx, run.ID, name, "", rep))
	// second ingest is a no-op
	require.NoError(t, store.RecordReport(ctx, uuid.Nil, name, "", rep))

	ok, err := store.ReportExists(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)

	run.Status = model.RunCompleted
	run.FinishedAt = time.Now()
	run.Processed = 2
	require.NoError(t, store.FinishRun(ctx, run))

	runs, err := store.RecentRuns(ctx, 50)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.ID == run.ID {
			found = true
			assert.Equal(t, model.RunCompleted, r.Status)
			assert.Equal(t, 2, r.Processed)
		}
	}
	assert.True(t, found)
}
