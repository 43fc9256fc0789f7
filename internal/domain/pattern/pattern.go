// Package pattern implements the Rule Matching Engine: compiling and
// evaluating a single rule's condition tree against a ToolRequest.
//
// Predicate kinds, composition rules, and failure semantics follow §4.1:
// a predicate that cannot be evaluated returns false and logs a warning,
// it never propagates an error out of Match.
package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/oliveagle/jsonpath"

	"github.com/toolsentry/toolsentry/internal/domain/request"
)

// maxRegexPatternLength bounds regex patterns to avoid catastrophic
// backtracking on attacker-controlled rule files.
const maxRegexPatternLength = 1000

// compiledPatternCacheSize bounds the LRU cache of compiled regex and
// JSONPath artefacts.
const compiledPatternCacheSize = 256

// Kind enumerates the supported predicate config shapes.
type Kind string

const (
	KindString   Kind = "string"
	KindRegex    Kind = "regex"
	KindGlob     Kind = "glob"
	KindJSONPath Kind = "jsonpath"
)

// Comparison is the operator a jsonpath predicate applies between the
// matched value and a threshold.
type Comparison string

const (
	CompareExists Comparison = "exists"
	CompareEq     Comparison = "eq"
	CompareGT     Comparison = "gt"
	CompareGTE    Comparison = "gte"
	CompareLT     Comparison = "lt"
	CompareLTE    Comparison = "lte"
)

// Engine compiles and evaluates predicates, memoizing compiled regex and
// JSONPath artefacts keyed by pattern string.
type Engine struct {
	logger        *slog.Logger
	regexCache    *lru.Cache[string, *regexp.Regexp]
	jsonpathCache *lru.Cache[string, *jsonpath.Compiled]
}

// NewEngine constructs a Pattern Engine with its compiled-pattern caches.
func NewEngine(logger *slog.Logger) *Engine {
	regexCache, err := lru.New[string, *regexp.Regexp](compiledPatternCacheSize)
	if err != nil {
		panic(fmt.Sprintf("pattern: regex cache: %v", err))
	}
	jsonpathCache, err := lru.New[string, *jsonpath.Compiled](compiledPatternCacheSize)
	if err != nil {
		panic(fmt.Sprintf("pattern: jsonpath cache: %v", err))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, regexCache: regexCache, jsonpathCache: jsonpathCache}
}

func (e *Engine) compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.regexCache.Get(pattern); ok {
		return re, nil
	}
	if len(pattern) > maxRegexPatternLength {
		return nil, fmt.Errorf("regex pattern too long (%d > %d)", len(pattern), maxRegexPatternLength)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	e.regexCache.Add(pattern, re)
	return re, nil
}

func (e *Engine) compileJSONPath(pattern string) (*jsonpath.Compiled, error) {
	if c, ok := e.jsonpathCache.Get(pattern); ok {
		return c, nil
	}
	c, err := jsonpath.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath pattern: %w", err)
	}
	e.jsonpathCache.Add(pattern, c)
	return c, nil
}

// MatchString performs exact equality.
func (e *Engine) MatchString(pattern, value string) bool {
	return pattern == value
}

// MatchRegex compiles pattern (cached, case-insensitive, search semantics —
// not full-match) and reports whether it finds a match anywhere in value.
// Never propagates: a compile failure is logged and returns false.
func (e *Engine) MatchRegex(pattern, value string) bool {
	re, err := e.compileRegex(pattern)
	if err != nil {
		e.logger.Warn("regex matching failed", "pattern", pattern, "error", err)
		return false
	}
	return re.MatchString(value)
}

// MatchGlob performs Unix shell-style glob matching against a path-like
// string.
func (e *Engine) MatchGlob(pattern, value string) bool {
	ok, err := doublestar.Match(pattern, value)
	if err != nil {
		e.logger.Warn("glob matching failed", "pattern", pattern, "error", err)
		return false
	}
	return ok
}

// MatchJSONPath evaluates a JSONPath expression against data. When
// comparison is "exists" (or threshold is nil) it returns true on any
// match; otherwise each matched value is compared against threshold and the
// predicate is true if any comparison succeeds. Numeric comparisons
// require both operands to be numeric.
func (e *Engine) MatchJSONPath(pattern string, data any, threshold any, comparison Comparison) bool {
	compiled, err := e.compileJSONPath(pattern)
	if err != nil {
		e.logger.Warn("jsonpath matching failed", "pattern", pattern, "error", err)
		return false
	}
	result, err := compiled.Lookup(data)
	if err != nil {
		// No match is not a warning-worthy failure, simply a non-match.
		return false
	}
	matches := flattenMatches(result)
	if len(matches) == 0 {
		return false
	}
	if comparison == "" || comparison == CompareExists || threshold == nil {
		return true
	}
	for _, m := range matches {
		if compareValue(m, threshold, comparison) {
			return true
		}
	}
	return false
}

func flattenMatches(result any) []any {
	if list, ok := result.([]any); ok {
		return list
	}
	return []any{result}
}

func compareValue(value, threshold any, comparison Comparison) bool {
	if comparison == CompareEq {
		return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", threshold)
	}
	v, ok1 := asFloat(value)
	t, ok2 := asFloat(threshold)
	if !ok1 || !ok2 {
		return false
	}
	switch comparison {
	case CompareGT:
		return v > t
	case CompareGTE:
		return v >= t
	case CompareLT:
		return v < t
	case CompareLTE:
		return v <= t
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json_Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// json_Number mirrors encoding/json.Number's underlying representation
// without importing encoding/json here; decision/rule layers that decode
// YAML/JSON hand us plain float64s in practice, this case exists defensively
// for callers that pass through json.Number directly.
type json_Number string

// Config is a predicate configuration as decoded from a rule's conditions
// tree: either a bare string (legacy string-equality shorthand) or a map
// with a "type" discriminator.
type Config struct {
	raw any
}

// NewConfig wraps a decoded YAML/JSON value as a predicate Config.
func NewConfig(raw any) Config { return Config{raw: raw} }

// Match evaluates a predicate Config against value, with context available
// for jsonpath predicates applied to whole subtrees.
func (e *Engine) Match(cfg Config, value any, context any) bool {
	switch v := cfg.raw.(type) {
	case string:
		return e.MatchString(v, fmt.Sprintf("%v", value))
	case map[string]any:
		return e.matchObject(v, value, context)
	case map[any]any:
		return e.matchObject(normalizeMap(v), value, context)
	default:
		return false
	}
}

func normalizeMap(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%v", k)] = v
	}
	return out
}

func (e *Engine) matchObject(cfg map[string]any, value any, context any) bool {
	typRaw, ok := cfg["type"]
	if !ok {
		return false
	}
	typ := Kind(fmt.Sprintf("%v", typRaw))
	patternRaw, ok := cfg["pattern"]
	if !ok {
		return false
	}
	pattern := fmt.Sprintf("%v", patternRaw)

	switch typ {
	case KindString:
		return e.MatchString(pattern, fmt.Sprintf("%v", value))
	case KindRegex:
		return e.MatchRegex(pattern, fmt.Sprintf("%v", value))
	case KindGlob:
		return e.MatchGlob(pattern, fmt.Sprintf("%v", value))
	case KindJSONPath:
		data := context
		if data == nil {
			if m, ok := value.(map[string]any); ok {
				data = m
			} else {
				data = map[string]any{}
			}
		}
		comparison := Comparison("exists")
		if c, ok := cfg["comparison"]; ok {
			comparison = Comparison(fmt.Sprintf("%v", c))
		}
		threshold := cfg["threshold"]
		return e.MatchJSONPath(pattern, data, threshold, comparison)
	default:
		e.logger.Warn("unknown pattern type", "pattern_type", typ)
		return false
	}
}

// ValidatePattern compiles a predicate Config without executing it,
// reporting whether it is structurally valid.
func (e *Engine) ValidatePattern(cfg Config) bool {
	switch v := cfg.raw.(type) {
	case string:
		return true
	case map[string]any:
		return e.validateObject(v)
	case map[any]any:
		return e.validateObject(normalizeMap(v))
	default:
		return false
	}
}

func (e *Engine) validateObject(cfg map[string]any) bool {
	typRaw, ok := cfg["type"]
	if !ok {
		return false
	}
	typ := Kind(fmt.Sprintf("%v", typRaw))
	patternRaw, hasPattern := cfg["pattern"]
	switch typ {
	case KindRegex:
		if !hasPattern {
			return false
		}
		_, err := e.compileRegex(fmt.Sprintf("%v", patternRaw))
		return err == nil
	case KindJSONPath:
		if !hasPattern {
			return false
		}
		_, err := e.compileJSONPath(fmt.Sprintf("%v", patternRaw))
		return err == nil
	case KindString, KindGlob:
		_, isStr := patternRaw.(string)
		return isStr
	default:
		return false
	}
}

// ClearCache empties both compiled-pattern caches.
func (e *Engine) ClearCache() {
	e.regexCache.Purge()
	e.jsonpathCache.Purge()
}

// CacheStats reports current occupancy of both compiled-pattern caches.
type CacheStats struct {
	RegexLen    int
	JSONPathLen int
}

// Stats returns the current cache occupancy.
func (e *Engine) Stats() CacheStats {
	return CacheStats{RegexLen: e.regexCache.Len(), JSONPathLen: e.jsonpathCache.Len()}
}

// MatchComposite evaluates a rule's top-level conditions tree against a
// request: AND requires every child condition to match, OR requires at
// least one, and any remaining direct keys (siblings of AND/OR) are treated
// as one more implicit AND branch, ANDed with the composite result.
func (e *Engine) MatchComposite(conditions map[string]any, req request.ToolRequest) bool {
	if and, ok := conditions["AND"]; ok {
		for _, c := range toConditionList(and) {
			if !e.evaluateCondition(c, req) {
				return false
			}
		}
	}
	if or, ok := conditions["OR"]; ok {
		list := toConditionList(or)
		matched := false
		for _, c := range list {
			if e.evaluateCondition(c, req) {
				matched = true
				break
			}
		}
		if len(list) > 0 && !matched {
			return false
		}
	}
	direct := map[string]any{}
	for k, v := range conditions {
		if k == "AND" || k == "OR" {
			continue
		}
		direct[k] = v
	}
	if len(direct) > 0 && !e.evaluateCondition(direct, req) {
		return false
	}
	return true
}

func toConditionList(v any) []map[string]any {
	var out []map[string]any
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			} else if m, ok := item.(map[any]any); ok {
				out = append(out, normalizeMap(m))
			}
		}
	case []map[string]any:
		out = list
	}
	return out
}

// evaluateCondition evaluates a single condition map (one AND/OR child, or
// the direct-keys branch) against a request.
func (e *Engine) evaluateCondition(condition map[string]any, req request.ToolRequest) bool {
	if tn, ok := condition["tool_name"]; ok {
		if !e.matchToolName(tn, req.ToolName) {
			return false
		}
	}

	if p, ok := condition["parameters"]; ok {
		if !e.matchParameters(p, req.Parameters) {
			return false
		}
	}

	if cp, ok := condition["cwd_pattern"]; ok {
		// Legacy: cwd_pattern is always treated as a regex against cwd.
		if !e.MatchRegex(fmt.Sprintf("%v", cp), req.Cwd) {
			return false
		}
	}

	if cwd, ok := condition["cwd"]; ok {
		if !e.Match(NewConfig(cwd), req.Cwd, nil) {
			return false
		}
	}

	if tr, ok := condition["time_range"]; ok {
		var trMap map[string]any
		switch m := tr.(type) {
		case map[string]any:
			trMap = m
		case map[any]any:
			trMap = normalizeMap(m)
		}
		if !e.matchTimeRange(trMap) {
			return false
		}
	}

	return true
}

func (e *Engine) matchToolName(toolPattern any, toolName string) bool {
	switch tp := toolPattern.(type) {
	case []any:
		for _, item := range tp {
			if fmt.Sprintf("%v", item) == toolName {
				return true
			}
		}
		return false
	case []string:
		for _, item := range tp {
			if item == toolName {
				return true
			}
		}
		return false
	default:
		return e.Match(NewConfig(toolPattern), toolName, nil)
	}
}

func (e *Engine) matchParameters(paramConditions any, parameters map[string]any) bool {
	switch pc := paramConditions.(type) {
	case map[string]any:
		if _, hasType := pc["type"]; hasType {
			return e.Match(NewConfig(pc), parameters, parameters)
		}
		for key, expected := range pc {
			actual, present := parameters[key]
			if !present {
				return false
			}
			if !e.Match(NewConfig(expected), actual, parameters) {
				return false
			}
		}
		return true
	case map[any]any:
		return e.matchParameters(normalizeMap(pc), parameters)
	default:
		return false
	}
}

func (e *Engine) matchTimeRange(cfg map[string]any) bool {
	start := stringOr(cfg["start"], "00:00")
	end := stringOr(cfg["end"], "23:59")
	tz := stringOr(cfg["timezone"], "UTC")

	startT, err := time.Parse("15:04", start)
	if err != nil {
		e.logger.Warn("time range matching failed", "error", err)
		return false
	}
	endT, err := time.Parse("15:04", end)
	if err != nil {
		e.logger.Warn("time range matching failed", "error", err)
		return false
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.logger.Warn("time range matching failed", "timezone", tz, "error", err)
		return false
	}

	now := time.Now().In(loc)
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := startT.Hour()*60 + startT.Minute()
	endMinutes := endT.Hour()*60 + endT.Minute()

	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes <= endMinutes
	}
	// Window crosses midnight.
	return nowMinutes >= startMinutes || nowMinutes <= endMinutes
}

func stringOr(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return fallback
	}
	return s
}
