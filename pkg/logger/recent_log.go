package logger

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultRecentLogCapacity = 500
	defaultRecentLogLimit    = 50
	maxRecentLogLimit        = 500
)

// RecentLogEntry is a redacted copy of a log line kept in memory so operators
// can inspect notification outcomes without shipping logs elsewhere.
type RecentLogEntry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

type RecentLogQuery struct {
	MinLevel       zapcore.Level
	AnnouncementID string
	Limit          int
}

// RecentLogStore is a fixed-size ring buffer of log entries.
type RecentLogStore struct {
	mu       sync.RWMutex
	entries  []RecentLogEntry
	capacity int
	minLevel zapcore.Level
	next     int
	count    int
	seq      int64
}

func NewRecentLogStore(capacity int, minLevel zapcore.Level) *RecentLogStore {
	if capacity <= 0 {
		capacity = defaultRecentLogCapacity
	}

	return &RecentLogStore{
		entries:  make([]RecentLogEntry, capacity),
		capacity: capacity,
		minLevel: minLevel,
	}
}

// Tee returns a logger that writes to base and also records entries at or
// above the store's level.
func Tee(base *zap.Logger, store *RecentLogStore) *zap.Logger {
	if base == nil || store == nil {
		return base
	}

	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &recentLogCore{Core: core, store: store}
	}))
}

// Query returns matching entries, newest first.
func (s *RecentLogStore) Query(q RecentLogQuery) []RecentLogEntry {
	if s == nil {
		return nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultRecentLogLimit
	}
	limit = min(limit, maxRecentLogLimit)
	announcementID := strings.TrimSpace(q.AnnouncementID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RecentLogEntry, 0, min(limit, s.count))
	for i := 0; i < s.count && len(out) < limit; i++ {
		idx := s.next - 1 - i
		if idx < 0 {
			idx += s.capacity
		}
		entry := s.entries[idx]

		level, err := zapcore.ParseLevel(entry.Level)
		if err == nil && level < q.MinLevel {
			continue
		}
		if announcementID != "" && entry.Fields["announcement_id"] != announcementID {
			continue
		}
		out = append(out, cloneRecentLogEntry(entry))
	}
	return out
}

func (s *RecentLogStore) add(entry zapcore.Entry, fields []zapcore.Field) {
	if s == nil || entry.Level < s.minLevel {
		return
	}

	item := RecentLogEntry{
		Timestamp: entry.Time.UTC(),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Caller:    entry.Caller.TrimmedPath(),
		Fields:    fieldsToMap(SanitizeFields(fields)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	item.ID = s.seq
	s.entries[s.next] = item
	s.next = (s.next + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

func cloneRecentLogEntry(entry RecentLogEntry) RecentLogEntry {
	cloned := entry
	if len(entry.Fields) == 0 {
		return cloned
	}

	fields := make(map[string]interface{}, len(entry.Fields))
	for k, v := range entry.Fields {
		fields[k] = v
	}
	cloned.Fields = fields
	return cloned
}

func fieldsToMap(fields []zapcore.Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}

	result := make(map[string]interface{}, len(enc.Fields))
	for k, v := range enc.Fields {
		result[k] = v
	}
	return result
}

// recentLogCore keeps the fields added through With, which the wrapped core
// would otherwise fold into its encoder where the store cannot see them.
type recentLogCore struct {
	zapcore.Core
	store   *RecentLogStore
	context []zapcore.Field
}

func (c *recentLogCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.context)+len(fields))
	merged = append(merged, c.context...)
	merged = append(merged, fields...)

	return &recentLogCore{
		Core:    c.Core.With(fields),
		store:   c.store,
		context: merged,
	}
}

func (c *recentLogCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(entry, nil) == nil {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *recentLogCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.store != nil {
		all := make([]zapcore.Field, 0, len(c.context)+len(fields))
		all = append(all, c.context...)
		all = append(all, fields...)
		c.store.add(entry, all)
	}
	return c.Core.Write(entry, fields)
}
