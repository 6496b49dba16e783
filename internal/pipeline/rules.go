package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// Verdict is the outcome of evaluating one article against the rule set.
type Verdict struct {
	Decision domain.FilterDecision
	RuleName *string
	Reason   *string
}

// Evaluator applies the active rule set to articles. It compiles every
// pattern once and tallies per-rule matches so the lifetime counters can be
// flushed in one update per rule after a stage.
type Evaluator struct {
	rules        []*domain.FilterRule
	forceInclude map[int64]struct{}
	patterns     map[string][]*regexp.Regexp
	matchCounts  map[string]int64
}

// NewEvaluator compiles the rule set. Pattern rules with an invalid regex
// fail construction rather than silently never matching.
func NewEvaluator(rules []*domain.FilterRule, forceInclude map[int64]struct{}) (*Evaluator, error) {
	ev := &Evaluator{
		rules:        rules,
		forceInclude: forceInclude,
		patterns:     make(map[string][]*regexp.Regexp),
		matchCounts:  make(map[string]int64),
	}

	for _, rule := range rules {
		if rule.RuleType != domain.RuleTypePattern {
			continue
		}
		compiled := make([]*regexp.Regexp, 0, len(rule.Config.Patterns))
		for _, pattern := range rule.Config.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %q in rule %s: %w", pattern, rule.Name, err)
			}
			compiled = append(compiled, re)
		}
		ev.patterns[rule.Name] = compiled
	}

	return ev, nil
}

// Evaluate returns the decision for one article. Force-included articles
// short-circuit before any rule runs.
func (ev *Evaluator) Evaluate(a *domain.Article) Verdict {
	if _, ok := ev.forceInclude[a.ID]; ok {
		return Verdict{
			Decision: domain.DecisionForceInclude,
			RuleName: strPtr("force_include"),
			Reason:   strPtr("文章已被標記為強制納入"),
		}
	}

	for _, rule := range ev.rules {
		if ev.ruleMatches(rule, a) {
			ev.matchCounts[rule.Name]++
			reason := rule.Description
			if reason == "" {
				reason = "符合規則: " + rule.Name
			}
			return Verdict{
				Decision: domain.DecisionFilter,
				RuleName: strPtr(rule.Name),
				Reason:   strPtr(reason),
			}
		}
	}

	return Verdict{
		Decision: domain.DecisionKeep,
		Reason:   strPtr("通過所有規則檢查"),
	}
}

// MatchCounts returns the per-rule match tallies accumulated so far.
func (ev *Evaluator) MatchCounts() map[string]int64 {
	return ev.matchCounts
}

func (ev *Evaluator) ruleMatches(rule *domain.FilterRule, a *domain.Article) bool {
	switch rule.RuleType {
	case domain.RuleTypeKeyword:
		return ev.keywordMatches(rule, a)
	case domain.RuleTypePattern:
		return ev.patternMatches(rule, a)
	case domain.RuleTypeCategory:
		return categoryMatches(rule, a)
	default:
		return false
	}
}

func (ev *Evaluator) keywordMatches(rule *domain.FilterRule, a *domain.Article) bool {
	for _, field := range matchFields(rule) {
		value := fieldValue(a, field)
		if value == "" {
			continue
		}
		for _, keyword := range rule.Config.Keywords {
			if strings.Contains(value, keyword) {
				return true
			}
		}
	}
	return false
}

func (ev *Evaluator) patternMatches(rule *domain.FilterRule, a *domain.Article) bool {
	fields := matchFields(rule)

	// Exclude keywords veto the whole rule: a routine-weather pattern must
	// not drop a typhoon warning.
	for _, field := range fields {
		value := fieldValue(a, field)
		for _, exclude := range rule.Config.ExcludeKeywords {
			if exclude != "" && strings.Contains(value, exclude) {
				return false
			}
		}
	}

	for _, field := range fields {
		value := fieldValue(a, field)
		if value == "" {
			continue
		}
		for _, re := range ev.patterns[rule.Name] {
			if re.MatchString(value) {
				return true
			}
		}
	}
	return false
}

func categoryMatches(rule *domain.FilterRule, a *domain.Article) bool {
	if a.Category != nil {
		for _, c := range rule.Config.Categories {
			if *a.Category == c {
				return true
			}
		}
	}
	if a.SubCategory != nil {
		for _, c := range rule.Config.SubCategories {
			if *a.SubCategory == c {
				return true
			}
		}
	}
	return false
}

func matchFields(rule *domain.FilterRule) []string {
	if len(rule.Config.MatchFields) == 0 {
		return []string{"title"}
	}
	return rule.Config.MatchFields
}

func fieldValue(a *domain.Article, field string) string {
	switch field {
	case "title":
		return a.Title
	case "tags":
		return strings.Join(a.Tags, " ")
	case "category":
		return deref(a.Category)
	case "sub_category":
		return deref(a.SubCategory)
	case "summary":
		return deref(a.Summary)
	case "content":
		return a.Content
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	return &s
}
