package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
	SeverityUnknown  Severity = ""
)

// ParseSeverity maps a tag to a known severity, ignoring case.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityLow:
		return SeverityLow, true
	case SeverityInfo:
		return SeverityInfo, true
	}
	return SeverityUnknown, false
}

// AllSeverities is the set passed to the scanner so nothing is dropped
// before filtering.
var AllSeverities = []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Finding is one line of scanner output after parsing.
type Finding struct {
	Line       string     `json:"line"`
	Severity   Severity   `json:"severity"`
	Severities []Severity `json:"-"`
	Tags       []string   `json:"tags"`
	Families   []string   `json:"-"`
}

// HasSeverity reports whether any bracketed tag of the line names s.
func (f Finding) HasSeverity(s Severity) bool {
	for _, v := range f.Severities {
		if v == s {
			return true
		}
	}
	return false
}

// HasTag matches a tag exactly or by protocol family (ssl matches ssl-expired).
func (f Finding) HasTag(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	for _, fam := range f.Families {
		if fam == tag {
			return true
		}
	}
	return false
}

type Summary struct {
	Total    int `json:"total_findings"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

func (s *Summary) Add(sev Severity) {
	s.Total++
	switch sev {
	case SeverityCritical:
		s.Critical++
	case SeverityHigh:
		s.High++
	case SeverityMedium:
		s.Medium++
	case SeverityLow:
		s.Low++
	}
}

// FilteredReport is the set of reportable findings for one item at one point
// in time. It is written once and never changed.
type FilteredReport struct {
	Item      string    `json:"item"`
	CreatedAt time.Time `json:"created_at"`
	Findings  []Finding `json:"findings"`
}

func (r FilteredReport) Lines() []string {
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, f.Line)
	}
	return out
}

func (r FilteredReport) Summary() Summary {
	var s Summary
	for _, f := range r.Findings {
		s.Add(f.Severity)
	}
	return s
}
