package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yourorg/scan-sweeper/internal/model"
)

// ItemSource lists the targets of a batch.
type ItemSource interface {
	List() ([]model.WorkItem, error)
}

// Enumerator lists the directories under Root as work items, sorted by name.
type Enumerator struct {
	Root    string
	exclude map[string]struct{}
}

// NewEnumerator builds an enumerator for root. Any of the extra paths that
// sit directly under root (the aggregate results directory, say) are never
// treated as targets. Relative paths are resolved against the working
// directory, the same way the report writer and the logger open them.
func NewEnumerator(root string, exclude ...string) *Enumerator {
	e := &Enumerator{Root: root, exclude: map[string]struct{}{}}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	for _, p := range exclude {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if filepath.Dir(abs) == absRoot {
			e.exclude[filepath.Base(abs)] = struct{}{}
		}
	}
	return e
}

func (e *Enumerator) List() ([]model.WorkItem, error) {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		return nil, fmt.Errorf("read scan root %s: %w", e.Root, err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, skip := e.exclude[name]; skip {
			continue
		}
		// follow symlinks the way a plain isdir check would
		st, err := os.Stat(filepath.Join(e.Root, name))
		if err != nil || !st.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]model.WorkItem, 0, len(names))
	for _, n := range names {
		items = append(items, model.NewWorkItem(e.Root, n))
	}
	return items, nil
}
