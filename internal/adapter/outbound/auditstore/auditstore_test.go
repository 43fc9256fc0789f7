package auditstore

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/audit"
	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/request"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func entry(id, tool string, action decision.Action, ts time.Time) audit.Entry {
	return audit.Entry{
		ID:        id,
		Timestamp: ts,
		Request:   request.ToolRequest{ToolName: tool},
		Decision:  decision.Decision{Action: action},
	}
}

func TestAppendAndRecentNewestFirst(t *testing.T) {
	s := New(10, testLogger(), nil)
	base := time.Now()
	s.Append(entry("1", "Bash", decision.Allow, base))
	s.Append(entry("2", "Write", decision.Deny, base.Add(time.Second)))

	recent := s.Recent(2)
	if len(recent) != 2 || recent[0].ID != "2" || recent[1].ID != "1" {
		t.Fatalf("expected newest-first order, got %+v", recent)
	}
}

func TestAppendEvictsOldestAtCapacity(t *testing.T) {
	s := New(2, testLogger(), nil)
	s.Append(entry("1", "Bash", decision.Allow, time.Now()))
	s.Append(entry("2", "Bash", decision.Allow, time.Now()))
	s.Append(entry("3", "Bash", decision.Allow, time.Now()))

	if s.Len() != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", s.Len())
	}
	recent := s.Recent(10)
	if recent[len(recent)-1].ID != "2" {
		t.Fatalf("expected oldest entry evicted, got %+v", recent)
	}
}

func TestQueryFiltersByToolNameAndAction(t *testing.T) {
	s := New(10, testLogger(), nil)
	s.Append(entry("1", "Bash", decision.Allow, time.Now()))
	s.Append(entry("2", "Write", decision.Deny, time.Now()))

	result := s.Query(audit.Filter{ToolName: "Write"})
	if len(result) != 1 || result[0].ID != "2" {
		t.Fatalf("expected only Write entry, got %+v", result)
	}

	result = s.Query(audit.Filter{Action: decision.Allow})
	if len(result) != 1 || result[0].ID != "1" {
		t.Fatalf("expected only allow entry, got %+v", result)
	}
}

func TestQueryRespectsTimeRange(t *testing.T) {
	s := New(10, testLogger(), nil)
	old := time.Now().Add(-time.Hour)
	recent := time.Now()
	s.Append(entry("old", "Bash", decision.Allow, old))
	s.Append(entry("new", "Bash", decision.Allow, recent))

	result := s.Query(audit.Filter{Since: recent.Add(-time.Minute)})
	if len(result) != 1 || result[0].ID != "new" {
		t.Fatalf("expected only the recent entry, got %+v", result)
	}
}

func TestAppendMirrorsToSink(t *testing.T) {
	var buf bytes.Buffer
	s := New(10, testLogger(), &buf)
	s.Append(entry("1", "Bash", decision.Allow, time.Now()))
	if buf.Len() == 0 {
		t.Fatal("expected entry to be mirrored to sink as JSON")
	}
}
