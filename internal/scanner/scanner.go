// Package scanner runs the external vulnerability scanner for one target.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Status tags the outcome of one scanner invocation.
type Status int

const (
	StatusOK Status = iota
	// StatusLaunchFailed means the binary could not be started at all.
	StatusLaunchFailed
	StatusExitedNonZero
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLaunchFailed:
		return "launch_failed"
	case StatusExitedNonZero:
		return "exited_non_zero"
	}
	return "unknown"
}

type Request struct {
	InputPath  string
	OutputPath string
	ResumePath string
	Severities string
}

type Result struct {
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Runner scans one item and blocks until the scanner exits.
type Runner interface {
	Scan(ctx context.Context, req Request) Result
}

// maxCapture is how much of each output stream is kept for diagnostics.
const maxCapture = 64 * 1024

// defaultStopGrace is how long an interrupted scanner gets to exit before it
// is killed.
const defaultStopGrace = 30 * time.Second

// Nuclei invokes a nuclei-compatible binary.
type Nuclei struct {
	Path   string
	Silent bool
	Log    logrus.FieldLogger
	// StopGrace bounds the wait after an interrupt; zero means defaultStopGrace.
	StopGrace time.Duration
}

func (n *Nuclei) grace() time.Duration {
	if n.StopGrace > 0 {
		return n.StopGrace
	}
	return defaultStopGrace
}

func NewNuclei(path string, log logrus.FieldLogger) *Nuclei {
	return &Nuclei{Path: path, Silent: true, Log: log}
}

func (n *Nuclei) Args(req Request) []string {
	args := []string{
		"-l", req.InputPath,
		"-o", req.OutputPath,
		"-resume", req.ResumePath,
		"-s", req.Severities,
	}
	if n.Silent {
		args = append(args, "-silent")
	}
	return args
}

func (n *Nuclei) Scan(ctx context.Context, req Request) Result {
	args := n.Args(req)
	cmd := exec.CommandContext(ctx, n.Path, args...)
	// interrupt first so nuclei can write its resume file, kill after the grace
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = n.grace()
	if n.Log != nil {
		n.Log.Debugf("exec: %s %s", n.Path, strings.Join(args, " "))
	}

	stdout := &tailBuffer{max: maxCapture}
	stderr := &tailBuffer{max: maxCapture}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{Status: StatusLaunchFailed, ExitCode: -1, Err: err}
	}
	err := cmd.Wait()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		res.Status = StatusOK
		return res
	}
	res.Status = StatusExitedNonZero
	res.Err = err
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	return res
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.max:])
		return n, nil
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

// String returns the kept bytes starting at a rune boundary.
func (t *tailBuffer) String() string {
	b := t.buf.Bytes()
	i := 0
	for i < len(b) && i < utf8.UTFMax && !utf8.RuneStart(b[i]) {
		i++
	}
	return string(b[i:])
}
