package model

import "path/filepath"

// File names inside a target directory. The scanner and the subdomain
// collector both agree on this layout.
const (
	SubdomainsDir = "subdomains"
	InputFile     = "subs-domain.txt"
	ResultFile    = "nuclei-results.txt"
	ResumeFile    = "resume.cfg"
)

// WorkItem is one scan target, identified by its directory name.
type WorkItem struct {
	Name       string
	Dir        string
	InputPath  string
	ResultPath string
	ResumePath string
}

func NewWorkItem(root, name string) WorkItem {
	dir := filepath.Join(root, name)
	return WorkItem{
		Name:       name,
		Dir:        dir,
		InputPath:  filepath.Join(dir, SubdomainsDir, InputFile),
		ResultPath: filepath.Join(dir, ResultFile),
		ResumePath: filepath.Join(dir, ResumeFile),
	}
}

// SubdomainsPath is the directory holding the input list.
func (w WorkItem) SubdomainsPath() string {
	return filepath.Join(w.Dir, SubdomainsDir)
}

type Outcome string

const (
	OutcomeNoInput        Outcome = "skipped_no_input"
	OutcomeScanned        Outcome = "scanned"
	OutcomeReused         Outcome = "reused"
	OutcomeScanFailed     Outcome = "scan_failed"
	OutcomeScannerMissing Outcome = "scanner_missing"
)

// ItemOutcome records what one batch iteration did with an item.
type ItemOutcome struct {
	Index      int
	Item       string
	Outcome    Outcome
	ExitCode   int
	Stdout     string
	Stderr     string
	Reportable int
	ReportPath string
}
