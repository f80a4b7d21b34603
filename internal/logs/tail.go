package logs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pipelink/internal/logging"
)

const defaultPollInterval = 250 * time.Millisecond

type TailOptions struct {
	// Offset < 0 reads the last Limit events; otherwise reading starts at
	// Offset.
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

type TailResult struct {
	Events []logging.LogEvent
	Offset int64
	// Skipped counts lines that were not valid JSON log records.
	Skipped int
}

func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit)
		if err != nil {
			return result, err
		}
		if opts.Follow && opts.Wait > 0 && len(result.Events) == 0 {
			return waitForEvents(ctx, path, result.Offset, opts.Wait)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// Truncated or rotated underneath us.
		offset = 0
	}
	result, err = readForward(path, offset)
	if err != nil {
		return result, err
	}
	if opts.Follow && opts.Wait > 0 && len(result.Events) == 0 {
		return waitForEvents(ctx, path, result.Offset, opts.Wait)
	}
	return result, nil
}

// Follow calls fn for every event appended after offset until ctx is done.
func Follow(ctx context.Context, path string, offset int64, fn func(logging.LogEvent)) error {
	for {
		result, err := Tail(ctx, path, TailOptions{Offset: offset, Follow: true, Wait: time.Second})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, evt := range result.Events {
			fn(evt)
		}
		offset = result.Offset
		if ctx.Err() != nil {
			return nil
		}
		if len(result.Events) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(defaultPollInterval):
			}
		}
	}
}

func readLast(path string, limit int) (TailResult, error) {
	all, err := readForward(path, 0)
	if err != nil {
		return all, err
	}
	if limit > 0 && len(all.Events) > limit {
		all.Events = all.Events[len(all.Events)-limit:]
	}
	if limit <= 0 {
		all.Events = nil
	}
	return all, nil
}

func readForward(path string, offset int64) (TailResult, error) {
	result := TailResult{Offset: offset}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var seq uint64
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A partial trailing line is left for the next read.
			break
		}
		if err != nil {
			return result, fmt.Errorf("read log file: %w", err)
		}
		result.Offset += int64(len(line))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		evt, ok := ParseLine(line)
		if !ok {
			result.Skipped++
			continue
		}
		seq++
		evt.Sequence = seq
		result.Events = append(result.Events, evt)
	}
	return result, nil
}

func waitForEvents(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		result, err := readForward(path, offset)
		if err != nil {
			return result, err
		}
		if len(result.Events) > 0 || time.Now().After(deadline) {
			return result, nil
		}
		offset = result.Offset
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ParseLine decodes one JSON log record as written by the service's file
// handler.
func ParseLine(line []byte) (logging.LogEvent, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return logging.LogEvent{}, false
	}
	msg, ok := raw["msg"].(string)
	if !ok {
		return logging.LogEvent{}, false
	}
	evt := logging.LogEvent{Message: msg}
	for key, value := range raw {
		switch key {
		case "msg":
		case "ts", "time":
			if s, ok := value.(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					evt.Timestamp = ts
				}
			}
		case "level":
			evt.Level = strings.ToUpper(stringify(value))
		case logging.FieldComponent:
			evt.Component = stringify(value)
		case logging.FieldIdentity:
			evt.Identity = stringify(value)
		case logging.FieldCorrelationID:
			evt.CorrelationID = stringify(value)
		default:
			if evt.Fields == nil {
				evt.Fields = make(map[string]string)
			}
			evt.Fields[key] = stringify(value)
		}
	}
	return evt, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
