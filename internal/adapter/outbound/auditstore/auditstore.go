// Package auditstore implements the Audit Trail: a bounded in-memory ring
// buffer of evaluation records, each also written as a structured log line
// and optionally mirrored as a JSON line to an external sink.
package auditstore

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/toolsentry/toolsentry/internal/domain/audit"
)

// DefaultCapacity is the ring buffer size used when none is configured.
const DefaultCapacity = 1000

// Store is a bounded ring buffer of audit entries. Every append is also
// written as a structured log line via the configured logger, and optionally
// mirrored as a JSON line to an external writer (e.g. an audit log file).
type Store struct {
	logger  *slog.Logger
	encoder *json.Encoder

	mu     sync.Mutex
	recent []audit.Entry
	cap    int
}

// New constructs a Store with the given ring buffer capacity. A capacity of
// zero uses DefaultCapacity. sink is optional; when nil, entries are only
// logged, not mirrored as JSON lines.
func New(capacity int, logger *slog.Logger, sink io.Writer) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger: logger,
		recent: make([]audit.Entry, 0, capacity),
		cap:    capacity,
	}
	if sink != nil {
		s.encoder = json.NewEncoder(sink)
	}
	return s
}

// Append records entry, evicting the oldest entry once capacity is reached.
func (s *Store) Append(entry audit.Entry) {
	s.logger.Info("security decision logged",
		"audit_id", entry.ID,
		"tool_name", entry.Request.ToolName,
		"action", entry.Decision.Action,
		"reason", entry.Decision.Reason,
		"confidence", entry.Decision.Confidence,
		"processing_time_ms", entry.Decision.ProcessingTimeMS,
		"agent_id", entry.Request.AgentID,
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder != nil {
		if err := s.encoder.Encode(entry); err != nil {
			s.logger.Warn("failed to mirror audit entry to sink", "error", err)
		}
	}

	if len(s.recent) >= s.cap {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = entry
	} else {
		s.recent = append(s.recent, entry)
	}
}

// Recent returns the n most recent entries, newest first.
func (s *Store) Recent(n int) []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if n <= 0 || n > total {
		n = total
	}
	result := make([]audit.Entry, n)
	for i := 0; i < n; i++ {
		result[i] = s.recent[total-1-i]
	}
	return result
}

// Query returns entries matching filter, newest first, bounded by
// filter.Limit (default/max 100).
func (s *Store) Query(filter audit.Filter) []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var result []audit.Entry
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.recent[i]
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		if filter.Action != "" && e.Decision.Action != filter.Action {
			continue
		}
		if filter.ToolName != "" && e.Request.ToolName != filter.ToolName {
			continue
		}
		if filter.AgentID != "" && e.Request.AgentID != filter.AgentID {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Len reports the current number of entries held in the ring buffer.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

var _ audit.Store = (*Store)(nil)
