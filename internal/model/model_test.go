package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWorkItemLayout(t *testing.T) {
	w := NewWorkItem("/targets", "example.com")
	assert.Equal(t, filepath.Join("/targets", "example.com", "subdomains", "subs-domain.txt"), w.InputPath)
	assert.Equal(t, filepath.Join("/targets", "example.com", "nuclei-results.txt"), w.ResultPath)
	assert.Equal(t, filepath.Join("/targets", "example.com", "resume.cfg"), w.ResumePath)
	assert.Equal(t, filepath.Join("/targets", "example.com", "subdomains"), w.SubdomainsPath())
}

func TestParseSeverity(t *testing.T) {
	s, ok := ParseSeverity(" CRITICAL ")
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, s)

	_, ok = ParseSeverity("urgent")
	assert.False(t, ok)
}

func TestReportSummary(t *testing.T) {
	rep := FilteredReport{Findings: []Finding{
		{Line: "a", Severity: SeverityCritical},
		{Line: "b", Severity: SeverityLow},
		{Line: "c", Severity: SeverityCritical},
	}}
	assert.Equal(t, Summary{Total: 3, Critical: 2, Low: 1}, rep.Summary())
	assert.Equal(t, []string{"a", "b", "c"}, rep.Lines())
}

func TestRunCount(t *testing.T) {
	var r RunInfo
	r.Count(ItemOutcome{Outcome: OutcomeScanned, ReportPath: "x"})
	r.Count(ItemOutcome{Outcome: OutcomeReused})
	r.Count(ItemOutcome{Outcome: OutcomeNoInput})
	r.Count(ItemOutcome{Outcome: OutcomeScanFailed})
	assert.Equal(t, 4, r.Processed)
	assert.Equal(t, 1, r.Scanned)
	assert.Equal(t, 1, r.Reused)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Reported)
}

func TestFindingHasTagByFamily(t *testing.T) {
	f := Finding{Tags: []string{"http"}, Families: []string{"ssl"}}
	assert.True(t, f.HasTag("SSL"))
	assert.True(t, f.HasTag("http"))
	assert.False(t, f.HasTag("dns"))
}
