// Package http provides the HTTP transport adapter for toolsentry: the
// Claude Code hook endpoint, a native REST evaluation endpoint, and the
// read-only introspection endpoints (health, rules, audit, metrics),
// all routed with gin.
package http
