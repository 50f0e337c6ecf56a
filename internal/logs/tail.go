package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Entry is one parsed log record. Raw keeps the line as written.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	EventType string
	Fields    map[string]any
	Raw       string
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Component string
	MinLevel  string
	EventType string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "warning": 2, "error": 3}

// Match reports whether e passes the filter. Lines that failed to parse only
// match an empty filter.
func (f Filter) Match(e Entry) bool {
	if f.Component != "" && !strings.EqualFold(f.Component, e.Component) {
		return false
	}
	if f.EventType != "" && f.EventType != e.EventType {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		if !ok {
			return true
		}
		got, ok := levelRank[e.Level]
		if !ok || got < want {
			return false
		}
	}
	return true
}

// Validate rejects unknown level names.
func (f Filter) Validate() error {
	if f.MinLevel == "" {
		return nil
	}
	if _, ok := levelRank[strings.ToLower(f.MinLevel)]; !ok {
		return fmt.Errorf("unknown log level %q (use debug, info, warn or error)", f.MinLevel)
	}
	return nil
}

// Parse decodes one JSON log line. Lines that are not JSON objects come back
// with only Raw and Message set.
func Parse(line string) Entry {
	e := Entry{Raw: line, Message: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return e
	}
	e.Message = stringField(fields, "msg")
	e.Level = strings.ToLower(stringField(fields, "level"))
	e.Component = stringField(fields, "component")
	e.EventType = stringField(fields, "event_type")
	if ts := stringField(fields, "ts"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Time = t
		}
	}
	for _, k := range []string{"ts", "level", "msg", "component"} {
		delete(fields, k)
	}
	e.Fields = fields
	return e
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// FieldKeys returns the entry's extra attribute keys in sorted order.
func (e Entry) FieldKeys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Last returns up to limit matching entries from the end of the file and the
// offset just past the last byte read. A missing file yields no entries.
// limit <= 0 returns every match.
func Last(path string, limit int, f Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var matched []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e := Parse(line)
		if !f.Match(e) {
			continue
		}
		matched = append(matched, e)
		if limit > 0 && len(matched) > limit {
			matched = matched[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return matched, offset, nil
}

// Follow polls path every interval and calls fn for each matching entry
// appended after offset. It returns when ctx is done or fn fails.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, f Filter, fn func(Entry) error) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, next, err := readFrom(path, offset)
		if err != nil {
			return err
		}
		offset = next
		for _, line := range lines {
			if e := Parse(line); f.Match(e) {
				if err := fn(e); err != nil {
					return err
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// readFrom returns complete lines after offset. A partial trailing line is
// left for the next read; a file shorter than offset is read from the start.
func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return lines, offset, nil
		}
		if err != nil {
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if trimmed := strings.TrimRight(line, "\r\n"); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
}
