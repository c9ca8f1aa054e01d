// Package filter decides which scanner output lines are worth reporting.
//
// Every line is parsed into a model.Finding before any rule is applied, so the
// rules work on tags rather than on substrings of the raw text.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yourorg/scan-sweeper/internal/model"
)

// maxLineSize bounds a single result line; nuclei lines carrying extracted
// values can be long.
const maxLineSize = 1 << 20

// Parse splits a result line into bracketed tags and bare words. Tags are
// lower-cased; severities are taken from tags only.
func Parse(line string) model.Finding {
	f := model.Finding{Line: strings.TrimSpace(line)}
	rest := f.Line
	for rest != "" {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		if rest[0] == '[' {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				// unterminated bracket, the remainder is plain words
				rest = rest[1:]
				continue
			}
			tag := strings.ToLower(strings.TrimSpace(rest[1:end]))
			rest = rest[end+1:]
			if tag == "" {
				continue
			}
			f.Tags = append(f.Tags, tag)
			f.Families = appendFamily(f.Families, tag)
			if sev, ok := model.ParseSeverity(tag); ok {
				f.Severities = append(f.Severities, sev)
				if f.Severity == model.SeverityUnknown {
					f.Severity = sev
				}
			}
			continue
		}
		end := strings.IndexAny(rest, " \t[")
		if end < 0 {
			end = len(rest)
		}
		if word := rest[:end]; !isTarget(word) {
			f.Families = appendFamily(f.Families, word)
		}
		rest = rest[end:]
	}
	return f
}

// isTarget reports whether a bare word names a host, address or URL. Targets
// carry no protocol family: ssl-vpn.example.com is a host, not an ssl
// finding.
func isTarget(word string) bool {
	return strings.ContainsAny(word, "./:")
}

// appendFamily records the protocol family of a token: the part before the
// first '-' or ':'.
func appendFamily(fams []string, token string) []string {
	token = strings.ToLower(strings.TrimSpace(token))
	if i := strings.IndexAny(token, "-:"); i >= 0 {
		token = token[:i]
	}
	if token == "" {
		return fams
	}
	for _, f := range fams {
		if f == token {
			return fams
		}
	}
	return append(fams, token)
}

// Reportable applies the severity rules to a parsed line.
func Reportable(f model.Finding) bool {
	switch {
	case f.HasSeverity(model.SeverityInfo):
		return false
	case f.HasSeverity(model.SeverityLow):
		// low ssl findings are noise
		return !f.HasTag("ssl")
	case f.HasSeverity(model.SeverityCritical),
		f.HasSeverity(model.SeverityHigh),
		f.HasSeverity(model.SeverityMedium):
		return true
	}
	return false
}

// Findings returns the reportable findings of lines in their original order.
func Findings(lines []string) []model.Finding {
	var out []model.Finding
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := Parse(line)
		if Reportable(f) {
			out = append(out, f)
		}
	}
	return out
}

// Filter is Findings reduced to the trimmed line text.
func Filter(lines []string) []string {
	fs := Findings(lines)
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Line)
	}
	return out
}

func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// File reads a result file and returns its reportable findings.
func File(path string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Findings(lines), nil
}
