// Package kvfile reads and writes the line oriented key=value files used for
// the bot configuration and the default prompts.
//
// One entry per line, exactly one '=' per line, no escaping. Blank lines and
// lines starting with '#' are skipped on read. Writes replace the whole file.
package kvfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reserved holds the characters that cannot appear in a key or a value.
const Reserved = "=#\n\r"

var (
	ErrMalformedLine = errors.New("malformed key=value line")
	ErrReservedChar  = errors.New("reserved character in key or value")
)

// Pair is one key=value line.
type Pair struct {
	Key   string
	Value string
}

// LineError reports the first line that could not be parsed.
type LineError struct {
	Line int
	Text string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, ErrMalformedLine, e.Text)
}

func (e *LineError) Unwrap() error { return ErrMalformedLine }

// Clean reports whether s is non-empty and free of reserved characters.
func Clean(s string) bool {
	return s != "" && !strings.ContainsAny(s, Reserved)
}

// Read parses the file at path. A missing file yields an error matching
// fs.ErrNotExist.
func Read(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads pairs from r in file order. Duplicate keys are returned as-is;
// callers decide which one wins.
func Parse(r io.Reader) ([]Pair, error) {
	var pairs []Pair

	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" || strings.Contains(value, "=") {
			return nil, &LineError{Line: n, Text: line}
		}
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

// Format renders pairs as file contents.
func Format(pairs []Pair) string {
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Write replaces the file at path with pairs. The content goes to a temporary
// file in the same directory first and is renamed over path, so readers never
// observe a partial file.
func Write(path string, pairs []Pair) error {
	for _, p := range pairs {
		if !Clean(p.Key) || strings.ContainsAny(p.Value, Reserved) {
			return fmt.Errorf("%w: %q=%q", ErrReservedChar, p.Key, p.Value)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if _, err := io.WriteString(tmp, Format(pairs)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}
