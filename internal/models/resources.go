package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"pipelink/internal/config"
	"pipelink/internal/journal"
	"pipelink/internal/logging"
	"pipelink/internal/supervisor"
)

// Resource names served by the control channel.
const (
	NameConfig   = "Config"
	NameStatus   = "Status"
	NameLogLevel = "LogLevel"
	NameJournal  = "Journal"
	NameLogs     = "Logs"
	NameShutdown = "Shutdown"
)

// ConfigView is the effective configuration as served to clients.
type ConfigView struct {
	Path string `json:"path,omitempty"`
	TOML string `json:"toml"`
}

// ConfigResource serves cfg read-only.
func ConfigResource(cfg *config.Config, path string) Resource {
	return Resource{
		Name: NameConfig,
		Get: func(context.Context, []byte) (any, error) {
			data, err := cfg.Encode()
			if err != nil {
				return nil, err
			}
			return ConfigView{Path: path, TOML: string(data)}, nil
		},
	}
}

// FeedStatus reports the SysLog push feed.
type FeedStatus struct {
	Open      bool   `json:"open"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Status is the service status snapshot.
type Status struct {
	SessionID string                `json:"sessionId"`
	PID       int                   `json:"pid"`
	StartedAt time.Time             `json:"startedAt"`
	Uptime    string                `json:"uptime"`
	Channels  []supervisor.Snapshot `json:"channels"`
	Feed      FeedStatus            `json:"feed"`
	Journal   *journal.Health       `json:"journal,omitempty"`
	Models    []string              `json:"models,omitempty"`
}

// StatusResource serves the snapshot produced by fn.
func StatusResource(fn func(ctx context.Context) (Status, error)) Resource {
	return Resource{
		Name: NameStatus,
		Get: func(ctx context.Context, _ []byte) (any, error) {
			return fn(ctx)
		},
	}
}

// LogLevel is the service log threshold.
type LogLevel struct {
	Level string `json:"level"`
}

// LogLevelResource reads and changes the level shared by every handler.
func LogLevelResource(levelVar *slog.LevelVar, logger *slog.Logger) Resource {
	logger = logging.NewComponentLogger(logger, "models")
	return Resource{
		Name: NameLogLevel,
		Get: func(context.Context, []byte) (any, error) {
			return LogLevel{Level: logging.LevelName(levelVar.Level())}, nil
		},
		Set: func(_ context.Context, data []byte) (any, error) {
			name, err := parseLevelPayload(data)
			if err != nil {
				return nil, err
			}
			level, err := logging.ParseLevel(name)
			if err != nil {
				return nil, err
			}
			previous := levelVar.Level()
			levelVar.Set(level)
			logger.Info("log level changed",
				logging.String(logging.FieldEventType, "log_level_changed"),
				logging.String("from", logging.LevelName(previous)),
				logging.String("to", logging.LevelName(level)))
			return LogLevel{Level: logging.LevelName(level)}, nil
		},
	}
}

// parseLevelPayload accepts {"level":"debug"}, "debug" or bare debug.
func parseLevelPayload(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", errors.New("log level: empty payload")
	}
	switch trimmed[0] {
	case '{':
		var payload LogLevel
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return "", fmt.Errorf("log level: %w", err)
		}
		return payload.Level, nil
	case '"':
		var name string
		if err := json.Unmarshal([]byte(trimmed), &name); err != nil {
			return "", fmt.Errorf("log level: %w", err)
		}
		return name, nil
	default:
		return trimmed, nil
	}
}

// JournalQuery filters a Journal read.
type JournalQuery struct {
	Identity  string    `json:"identity,omitempty"`
	Direction string    `json:"direction,omitempty"`
	ModelType string    `json:"modelType,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Since     time.Time `json:"since,omitzero"`
	Limit     int       `json:"limit,omitempty"`
}

// Filter converts q to a store filter.
func (q JournalQuery) Filter() journal.Filter {
	return journal.Filter{
		Identity:  q.Identity,
		Direction: journal.Direction(q.Direction),
		ModelType: q.ModelType,
		RequestID: q.RequestID,
		Since:     q.Since,
		Limit:     q.Limit,
	}
}

// JournalPrune asks the service to drop old journal entries.
type JournalPrune struct {
	RetentionDays int `json:"retentionDays"`
}

// JournalPruneResult reports a prune.
type JournalPruneResult struct {
	Removed int64     `json:"removed"`
	Cutoff  time.Time `json:"cutoff"`
}

// JournalResource lists journal entries on Get and prunes on Set. A Set
// without a retention uses defaultRetentionDays.
func JournalResource(store *journal.Store, defaultRetentionDays int) Resource {
	return Resource{
		Name: NameJournal,
		Get: func(ctx context.Context, data []byte) (any, error) {
			var q JournalQuery
			if len(strings.TrimSpace(string(data))) > 0 {
				if err := json.Unmarshal(data, &q); err != nil {
					return nil, fmt.Errorf("journal query: %w", err)
				}
			}
			entries, err := store.List(ctx, q.Filter())
			if err != nil {
				return nil, err
			}
			if entries == nil {
				entries = []journal.Entry{}
			}
			return entries, nil
		},
		Set: func(ctx context.Context, data []byte) (any, error) {
			req := JournalPrune{RetentionDays: defaultRetentionDays}
			if len(strings.TrimSpace(string(data))) > 0 {
				if err := json.Unmarshal(data, &req); err != nil {
					return nil, fmt.Errorf("journal prune: %w", err)
				}
			}
			if req.RetentionDays < 0 {
				return nil, fmt.Errorf("journal prune: retention must be >= 0, got %d", req.RetentionDays)
			}
			cutoff := time.Now().UTC().Add(-time.Duration(req.RetentionDays) * 24 * time.Hour)
			removed, err := store.Prune(ctx, cutoff)
			if err != nil {
				return nil, err
			}
			return JournalPruneResult{Removed: removed, Cutoff: cutoff}, nil
		},
	}
}

// LogQuery selects buffered log events. Since is a sequence number; zero
// returns the newest Limit events.
type LogQuery struct {
	Since uint64 `json:"since,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// LogPage is a slice of the service log buffer.
type LogPage struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// LogsResource serves the in-memory log buffer read-only.
func LogsResource(hub *logging.StreamHub) Resource {
	return Resource{
		Name: NameLogs,
		Get: func(ctx context.Context, data []byte) (any, error) {
			var q LogQuery
			if len(strings.TrimSpace(string(data))) > 0 {
				if err := json.Unmarshal(data, &q); err != nil {
					return nil, fmt.Errorf("log query: %w", err)
				}
			}
			var page LogPage
			if q.Since == 0 {
				page.Events, page.Next = hub.Tail(q.Limit)
			} else {
				events, next, err := hub.Fetch(ctx, q.Since, q.Limit, false)
				if err != nil {
					return nil, err
				}
				page.Events, page.Next = events, next
			}
			if page.Events == nil {
				page.Events = []logging.LogEvent{}
			}
			return page, nil
		},
	}
}

// ShutdownState reports whether a stop was requested.
type ShutdownState struct {
	Requested bool `json:"requested"`
}

// ShutdownResource stops the service on Set. stop must return promptly;
// the reply is sent after it returns.
func ShutdownResource(stop func()) Resource {
	var requested atomic.Bool
	return Resource{
		Name: NameShutdown,
		Get: func(context.Context, []byte) (any, error) {
			return ShutdownState{Requested: requested.Load()}, nil
		},
		Set: func(context.Context, []byte) (any, error) {
			if requested.CompareAndSwap(false, true) {
				stop()
			}
			return ShutdownState{Requested: true}, nil
		},
	}
}
