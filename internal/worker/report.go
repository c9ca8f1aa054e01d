package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourorg/scan-sweeper/internal/model"
)

const (
	reportInfix      = "_filtered_"
	reportTimeLayout = "20060102_150405"
)

// ReportWriter stores filtered reports as
// <dir>/<item>_filtered_<YYYYMMDD_HHMMSS>.txt.
type ReportWriter struct {
	Dir string
	Now func() time.Time
}

func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{Dir: dir, Now: time.Now}
}

func ReportName(item string, ts time.Time) string {
	return item + reportInfix + ts.Format(reportTimeLayout) + ".txt"
}

// ParseReportName is the inverse of ReportName. Names carrying a collision
// suffix (_2, _3, ...) are accepted.
func ParseReportName(name string) (item string, ts time.Time, ok bool) {
	base := strings.TrimSuffix(filepath.Base(name), ".txt")
	i := strings.LastIndex(base, reportInfix)
	if i <= 0 {
		return "", time.Time{}, false
	}
	stamp := base[i+len(reportInfix):]
	if len(stamp) < len(reportTimeLayout) {
		return "", time.Time{}, false
	}
	ts, err := time.ParseInLocation(reportTimeLayout, stamp[:len(reportTimeLayout)], time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return base[:i], ts, true
}

// Write creates a new report file. An existing file is never overwritten;
// a second report for the same item within one second gets a numeric suffix.
func (w *ReportWriter) Write(item string, findings []model.Finding) (model.FilteredReport, string, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	rep := model.FilteredReport{Item: item, CreatedAt: now(), Findings: findings}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return rep, "", fmt.Errorf("create results dir: %w", err)
	}

	var body strings.Builder
	for _, line := range rep.Lines() {
		body.WriteString(line)
		body.WriteByte('\n')
	}

	name := ReportName(item, rep.CreatedAt)
	for n := 2; ; n++ {
		path := filepath.Join(w.Dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) && n < 100 {
			name = strings.TrimSuffix(ReportName(item, rep.CreatedAt), ".txt") + fmt.Sprintf("_%d.txt", n)
			continue
		}
		if err != nil {
			return rep, "", fmt.Errorf("create report: %w", err)
		}
		if _, err := f.WriteString(body.String()); err != nil {
			f.Close()
			return rep, "", fmt.Errorf("write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return rep, "", fmt.Errorf("close report: %w", err)
		}
		return rep, path, nil
	}
}
