package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Cursor persists the index of the next item to process.
type Cursor interface {
	Load() (int, error)
	Save(index int) error
}

// ProgressStore keeps the cursor in a small text file holding one base-10
// integer.
type ProgressStore struct {
	path string
	log  logrus.FieldLogger
}

func NewProgressStore(path string, log logrus.FieldLogger) *ProgressStore {
	return &ProgressStore{path: path, log: log}
}

func (p *ProgressStore) Path() string { return p.path }

// Load returns the stored cursor. A missing record is created with 0; an
// unreadable or corrupt one is reset to 0. The error is only set when the
// reset itself could not be written.
func (p *ProgressStore) Load() (int, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, p.Save(0)
	}
	if err != nil {
		p.log.Warnf("could not read %s (%v), resetting progress", p.path, err)
		return 0, p.Save(0)
	}
	n, err := parseCursor(string(b))
	if err != nil {
		p.log.Warnf("could not read %s (%v), resetting progress", p.path, err)
		return 0, p.Save(0)
	}
	return n, nil
}

// Peek reads the cursor without creating or repairing the record.
func (p *ProgressStore) Peek() (int, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	return parseCursor(string(b))
}

func parseCursor(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty progress record")
	}
	if strings.ContainsAny(s, "\r\n") {
		return 0, fmt.Errorf("progress record spans multiple lines")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("progress record is not a number: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative progress record: %d", n)
	}
	return n, nil
}

// Save replaces the record through a temp file and rename.
func (p *ProgressStore) Save(index int) error {
	if index < 0 {
		return fmt.Errorf("negative cursor %d", index)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create progress temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(index)); err != nil {
		tmp.Close()
		return fmt.Errorf("write progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close progress: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}
