package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"modelguard/internal/config"
)

// Matcher is a pure predicate over a request payload.
type Matcher interface {
	Match(payload []byte) (bool, error)
}

type patternRule struct {
	name    string
	weight  float64
	matcher Matcher
}

// Analyzer scores payloads against the configured rule set. It is
// read-only after construction and safe for concurrent use.
type Analyzer struct {
	rules     []patternRule
	threshold float64
	aggregate string
	logger    *slog.Logger
}

func NewAnalyzer(rules []config.RuleConfig, detection config.DetectionConfig, logger *slog.Logger) (*Analyzer, error) {
	a := &Analyzer{
		threshold: detection.SuspiciousPatternThreshold,
		aggregate: detection.Aggregation,
		logger:    logger,
	}
	for _, rc := range rules {
		m, err := buildMatcher(rc)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rc.Name, err)
		}
		a.rules = append(a.rules, patternRule{name: rc.Name, weight: rc.Weight, matcher: m})
	}
	return a, nil
}

// Score evaluates the payload against every rule. A failing matcher
// degrades to no-match and is logged; it never aborts the other rules.
// Empty payloads score zero.
func (a *Analyzer) Score(payload []byte) (float64, []string) {
	if len(payload) == 0 || len(a.rules) == 0 {
		return 0, nil
	}
	var matched []string
	var weights []float64
	for _, rule := range a.rules {
		ok, err := rule.matcher.Match(payload)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("pattern rule degraded to no-match", "rule", rule.name, "err", err)
			}
			continue
		}
		if ok {
			matched = append(matched, rule.name)
			weights = append(weights, rule.weight)
		}
	}
	if len(weights) == 0 {
		return 0, nil
	}
	return combine(a.aggregate, weights), matched
}

// Suspicious reports whether a score crosses the configured threshold.
func (a *Analyzer) Suspicious(score float64) bool {
	return score >= a.threshold
}

func combine(aggregate string, weights []float64) float64 {
	var out float64
	switch aggregate {
	case "sum":
		for _, w := range weights {
			out += w
		}
	case "mean":
		for _, w := range weights {
			out += w
		}
		out /= float64(len(weights))
	default: // max
		for _, w := range weights {
			if w > out {
				out = w
			}
		}
	}
	if out > 1 {
		out = 1
	}
	return out
}

func buildMatcher(rc config.RuleConfig) (Matcher, error) {
	switch rc.Type {
	case "regex":
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return nil, err
		}
		return regexMatcher{re: re}, nil
	case "substring":
		return substringMatcher{needle: strings.ToLower(rc.Pattern)}, nil
	case "prefix":
		return prefixMatcher{prefix: strings.ToLower(rc.Pattern)}, nil
	case "numeric_extreme":
		limit := rc.Threshold
		if limit <= 0 {
			limit = 1e6
		}
		return numericExtremeMatcher{limit: limit}, nil
	case "numeric_sparsity":
		ratio := rc.Ratio
		if ratio <= 0 {
			ratio = 0.01
		}
		return numericSparsityMatcher{ratio: ratio}, nil
	case "numeric_gradient":
		threshold := rc.Threshold
		if threshold <= 0 {
			threshold = 100
		}
		return numericGradientMatcher{threshold: threshold}, nil
	}
	return nil, fmt.Errorf("unknown matcher type %q", rc.Type)
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(payload []byte) (bool, error) {
	return m.re.Match(payload), nil
}

type substringMatcher struct {
	needle string
}

func (m substringMatcher) Match(payload []byte) (bool, error) {
	return strings.Contains(strings.ToLower(string(payload)), m.needle), nil
}

type prefixMatcher struct {
	prefix string
}

func (m prefixMatcher) Match(payload []byte) (bool, error) {
	return strings.HasPrefix(strings.ToLower(string(payload)), m.prefix), nil
}

// numericExtremeMatcher flags payloads that decode as JSON numeric
// arrays containing values beyond the limit. Non-numeric payloads do
// not match.
type numericExtremeMatcher struct {
	limit float64
}

func (m numericExtremeMatcher) Match(payload []byte) (bool, error) {
	values, ok := decodeNumbers(payload)
	if !ok {
		return false, nil
	}
	for _, v := range values {
		if math.Abs(v) > m.limit {
			return true, nil
		}
	}
	return false, nil
}

// numericSparsityMatcher flags numeric arrays whose nonzero fraction is
// below the ratio, a shape typical of probing inputs.
type numericSparsityMatcher struct {
	ratio float64
}

func (m numericSparsityMatcher) Match(payload []byte) (bool, error) {
	values, ok := decodeNumbers(payload)
	if !ok || len(values) == 0 {
		return false, nil
	}
	nonzero := 0
	for _, v := range values {
		if v != 0 {
			nonzero++
		}
	}
	return float64(nonzero)/float64(len(values)) < m.ratio, nil
}

// numericGradientMatcher flags multi-dimensional numeric arrays whose
// successive differences all exceed the threshold, the signature of a
// synthesized probing input. Flat arrays and non-numeric payloads do
// not match.
type numericGradientMatcher struct {
	threshold float64
}

func (m numericGradientMatcher) Match(payload []byte) (bool, error) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return false, nil
	}
	rows, ok := decoded.([]any)
	if !ok {
		return false, nil
	}
	nested := false
	for _, row := range rows {
		if _, ok := row.([]any); ok {
			nested = true
			break
		}
	}
	if !nested {
		return false, nil
	}
	values := flattenNumbers(decoded, nil)
	if len(values) < 2 {
		return false, nil
	}
	for i := 1; i < len(values); i++ {
		if math.Abs(values[i]-values[i-1]) <= m.threshold {
			return false, nil
		}
	}
	return true, nil
}

func decodeNumbers(payload []byte) ([]float64, bool) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, false
	}
	values := flattenNumbers(decoded, nil)
	if values == nil {
		return nil, false
	}
	return values, true
}

func flattenNumbers(v any, out []float64) []float64 {
	switch t := v.(type) {
	case float64:
		return append(out, t)
	case []any:
		for _, item := range t {
			out = flattenNumbers(item, out)
		}
		return out
	}
	return out
}
