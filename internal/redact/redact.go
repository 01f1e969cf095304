package redact

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultReplacement is written in place of every match.
const DefaultReplacement = "[REDACTED]"

// ErrInvalidRule is returned when a rule has no id or does not compile.
var ErrInvalidRule = errors.New("invalid redaction rule")

// findingsTotal counts redacted values by rule.
var findingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "embedlife",
		Subsystem: "redact",
		Name:      "findings_total",
		Help:      "Total number of values redacted from indexed content",
	},
	[]string{"rule"},
)

// Rule detects one kind of sensitive value.
type Rule struct {
	ID          string
	Description string
	Pattern     string

	// Keywords gate the regexp: when set, at least one must appear in the
	// content (case-insensitive) before the pattern runs.
	Keywords []string

	// Validate rejects regexp matches that are false positives.
	Validate func(match string) bool
}

// Config configures a Redactor.
type Config struct {
	Enabled     bool
	Replacement string
	// AllowList holds exact values that are never redacted, such as
	// published test card numbers.
	AllowList []string
	Rules     []Rule
}

// DefaultConfig enables every built-in rule.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Replacement: DefaultReplacement,
		Rules:       DefaultRules(),
	}
}

// Finding locates a redacted value in the original content.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Line   int    `json:"line"`
}

// Result is the outcome of Redact.
type Result struct {
	Content  string
	Findings []Finding
	ByRule   map[string]int
}

// Total returns the number of redacted values.
func (r *Result) Total() int { return len(r.Findings) }

// RuleIDs returns the ids of the rules that matched, sorted.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []string
}

// Redactor replaces sensitive values in content. A nil or disabled Redactor
// returns content unchanged. It is safe for concurrent use.
type Redactor struct {
	rules       []compiledRule
	replacement string
	allow       map[string]struct{}
}

// New compiles cfg. It returns nil, nil when cfg is disabled.
func New(cfg Config) (*Redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r := &Redactor{
		replacement: cfg.Replacement,
		allow:       make(map[string]struct{}, len(cfg.AllowList)),
	}
	if r.replacement == "" {
		r.replacement = DefaultReplacement
	}
	for _, v := range cfg.AllowList {
		r.allow[v] = struct{}{}
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	for _, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidRule)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidRule, rule.ID, err)
		}
		kw := make([]string, len(rule.Keywords))
		for i, k := range rule.Keywords {
			kw[i] = strings.ToLower(k)
		}
		r.rules = append(r.rules, compiledRule{Rule: rule, re: re, keywords: kw})
	}
	return r, nil
}

type span struct {
	start, end int
	ruleID     string
}

// Redact returns content with every match replaced. Overlapping matches
// are merged into one replacement credited to the match that starts first.
func (r *Redactor) Redact(content string) *Result {
	res := &Result{Content: content, ByRule: map[string]int{}}
	if r == nil || content == "" {
		return res
	}

	lower := strings.ToLower(content)
	var spans []span
	for _, rule := range r.rules {
		if !hasKeyword(lower, rule.keywords) {
			continue
		}
		for _, loc := range rule.re.FindAllStringIndex(content, -1) {
			match := content[loc[0]:loc[1]]
			if _, ok := r.allow[strings.TrimSpace(match)]; ok {
				continue
			}
			if rule.Validate != nil && !rule.Validate(match) {
				continue
			}
			spans = append(spans, span{start: loc[0], end: loc[1], ruleID: rule.ID})
		}
	}
	if len(spans) == 0 {
		return res
	}

	spans = merge(spans)
	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, s := range spans {
		b.WriteString(content[prev:s.start])
		b.WriteString(r.replacement)
		prev = s.end
		res.Findings = append(res.Findings, Finding{
			RuleID: s.ruleID,
			Start:  s.start,
			End:    s.end,
			Line:   strings.Count(content[:s.start], "\n") + 1,
		})
		res.ByRule[s.ruleID]++
		findingsTotal.WithLabelValues(s.ruleID).Inc()
	}
	b.WriteString(content[prev:])
	res.Content = b.String()
	return res
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// merge sorts spans by start and folds overlapping ones together.
func merge(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start < last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
