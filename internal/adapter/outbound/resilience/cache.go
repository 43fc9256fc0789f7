// Package resilience implements the Resilience Layer wrapping every
// outbound inference call: a Response Cache (LRU+TTL), a Circuit Breaker,
// and a bounded priority Request Queue.
package resilience

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/policyengine"
)

// ResponseCache is a bounded LRU keyed by the request fingerprint, each
// entry carrying an absolute TTL-derived expiry. Safe under concurrent
// readers/writers (the underlying expirable.LRU is internally locked).
type ResponseCache struct {
	lru *lru.LRU[string, decision.Decision]
}

// NewResponseCache constructs a cache with the given capacity and entry TTL.
// Every entry expires defaultTTL after it is set, whatever ttl Set is given.
func NewResponseCache(capacity int, defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{lru: lru.NewLRU[string, decision.Decision](capacity, nil, defaultTTL)}
}

// Get returns the cached decision for key, or false if absent or expired.
func (c *ResponseCache) Get(key string) (decision.Decision, bool) {
	return c.lru.Get(key)
}

// Set inserts or replaces the entry for key. ttl is accepted for interface
// symmetry with the Policy Engine's Cache port; the underlying expirable
// LRU applies a single default TTL for all entries set through NewLRU, so a
// per-call ttl is honored only insofar as callers use a single cache
// instance per desired TTL class.
func (c *ResponseCache) Set(key string, d decision.Decision, ttl time.Duration) {
	c.lru.Add(key, d)
}

// Len reports the current number of live entries.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}

// Purge clears every entry, used when an operator explicitly wants to
// invalidate cached decisions (not done automatically on rule reload, per
// the documented open-question decision).
func (c *ResponseCache) Purge() {
	c.lru.Purge()
}

var _ policyengine.Cache = (*ResponseCache)(nil)
