// Package notify delivers finding summaries through the external notify tool.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// ErrNotInstalled is returned when the notify binary cannot be started.
var ErrNotInstalled = errors.New("notify command not found")

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Command sends a message on stdin to `<path> -id <channel>`.
type Command struct {
	Path    string
	Channel string
}

func NewCommand(path, channel string) *Command {
	return &Command{Path: path, Channel: channel}
}

func (c *Command) Notify(ctx context.Context, message string) error {
	cmd := exec.CommandContext(ctx, c.Path, "-id", c.Channel)
	cmd.Stdin = strings.NewReader(message)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("notify exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotInstalled, err)
	}
	return fmt.Errorf("run notify: %w", err)
}

// Nop drops every message. Used when notifications are disabled.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Message is the notification body for one item's reportable findings.
func Message(item string, lines []string) string {
	return fmt.Sprintf("Nuclei Findings for %s:\n", item) + strings.Join(lines, "\n")
}
