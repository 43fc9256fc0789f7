// Package audit defines the AuditEntry value object and the Store contract
// the Policy Engine appends to after every evaluation.
package audit

import (
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/request"
)

// Entry is one record of a completed evaluation, kept in a bounded
// in-memory ring.
type Entry struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Request     request.ToolRequest `json:"request"`
	Decision    decision.Decision  `json:"decision"`
	RuleMatches []string           `json:"rule_matches,omitempty"`
}

// Filter narrows a Query over recent entries. Zero values are unbounded.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Action   decision.Action
	ToolName string
	AgentID  string
	Limit    int
}

// Store is the contract the Policy Engine appends audit entries to. The
// concrete implementation is an in-memory ring buffer, living in
// internal/adapter/outbound/auditstore.
type Store interface {
	Append(entry Entry)
	Recent(n int) []Entry
	Query(filter Filter) []Entry
	Len() int
}
