// Package eventlog implements the append-only JSONL logs that back the
// accepted-plane log and the PathDB WAL (§4.N): one JSON object per line,
// opened in append mode, plus a write-then-rename HEAD pointer so readers
// never observe a torn write.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// maxLineBytes bounds a single JSONL record; generous enough for a
// manifest event but bounded, so a corrupt file fails with a read error
// rather than exhausting memory.
const maxLineBytes = 16 * 1024 * 1024

// Log is an append-only JSONL event log at a fixed path.
type Log struct {
	path string
}

// Open returns a Log bound to path. The file is created lazily on first
// Append; Read tolerates a missing file as an empty log.
func Open(path string) *Log {
	return &Log{path: path}
}

// Append writes one JSON-encoded event as a single line, fsyncing before
// return so a crash immediately after Append never loses the record
// (§5 "Promote and PathDB-commit acquire the write lock long enough to
// append to the log").
func (l *Log) Append(event any) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", l.path, err)
	}
	defer f.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventlog: marshal event: %w", err)
	}
	if _, err := f.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("eventlog: append to %s: %w", l.path, err)
	}
	return f.Sync()
}

// ReadAll decodes every line as a T and returns them in file order,
// skipping blank lines. A missing log file decodes to an empty result, not an
// error, since a fresh store has no history yet.
func ReadAll[T any](l *Log) ([]T, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", l.path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("eventlog: %s line %d: %w", l.path, lineNum, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: %s: %w", l.path, err)
	}
	return out, nil
}

// WriteHeadAtomic writes id to the HEAD pointer file at path via a
// write-then-rename so a concurrent reader always sees either the old or
// the new value, never a partial write (§4.N, §5 "write-then-rename").
func WriteHeadAtomic(path, id string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id), 0o644); err != nil {
		return fmt.Errorf("eventlog: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("eventlog: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadHead reads the HEAD pointer file, returning "" if it does not exist
// yet (a brand-new store has no HEAD).
func ReadHead(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("eventlog: read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
