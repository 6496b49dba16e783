package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/pipeline"
)

func strPtr(s string) *string { return &s }

func defaultEvaluator(t *testing.T, forceInclude map[int64]struct{}) *pipeline.Evaluator {
	t.Helper()
	ev, err := pipeline.NewEvaluator(pipeline.DefaultRules(), forceInclude)
	require.NoError(t, err)
	return ev
}

func TestEvaluateKeepsNormalNews(t *testing.T) {
	ev := defaultEvaluator(t, nil)

	verdict := ev.Evaluate(&domain.Article{ID: 1, Title: "立法院三讀通過年度預算"})
	assert.Equal(t, domain.DecisionKeep, verdict.Decision)
	assert.Nil(t, verdict.RuleName)
	require.NotNil(t, verdict.Reason)
	assert.Equal(t, "通過所有規則檢查", *verdict.Reason)
}

func TestEvaluateFiltersHoroscopeByTitle(t *testing.T) {
	ev := defaultEvaluator(t, nil)

	verdict := ev.Evaluate(&domain.Article{ID: 1, Title: "本週星座運勢大公開"})
	assert.Equal(t, domain.DecisionFilter, verdict.Decision)
	require.NotNil(t, verdict.RuleName)
	assert.Equal(t, "horoscope_filter", *verdict.RuleName)
	require.NotNil(t, verdict.Reason)
	assert.Equal(t, "過濾星座運勢、塔羅牌、占卜相關內容", *verdict.Reason)
}

func TestEvaluateReasonFallsBackToRuleName(t *testing.T) {
	rules := []*domain.FilterRule{
		{
			Name:     "undescribed",
			RuleType: domain.RuleTypeKeyword,
			IsActive: true,
			Config:   domain.RuleConfig{Keywords: []string{"測試"}},
		},
	}
	ev, err := pipeline.NewEvaluator(rules, nil)
	require.NoError(t, err)

	verdict := ev.Evaluate(&domain.Article{ID: 1, Title: "測試文章"})
	assert.Equal(t, domain.DecisionFilter, verdict.Decision)
	require.NotNil(t, verdict.Reason)
	assert.Equal(t, "符合規則: undescribed", *verdict.Reason)
}

func TestDefaultRulesCarryDescriptions(t *testing.T) {
	for _, rule := range pipeline.DefaultRules() {
		assert.NotEmpty(t, rule.Description, "rule %s", rule.Name)
	}
}

func TestEvaluateFiltersHoroscopeByTags(t *testing.T) {
	ev := defaultEvaluator(t, nil)

	verdict := ev.Evaluate(&domain.Article{
		ID:    1,
		Title: "十二生肖本週運程",
		Tags:  domain.StringList{"娛樂", "塔羅"},
	})
	assert.Equal(t, domain.DecisionFilter, verdict.Decision)
}

func TestEvaluateFiltersLotteryPattern(t *testing.T) {
	ev := defaultEvaluator(t, nil)

	verdict := ev.Evaluate(&domain.Article{ID: 1, Title: "威力彩第113000045期開獎"})
	assert.Equal(t, domain.DecisionFilter, verdict.Decision)
	require.NotNil(t, verdict.RuleName)
	assert.Equal(t, "lottery_filter", *verdict.RuleName)
}

func TestEvaluateExcludeKeywordVetoesPattern(t *testing.T) {
	ev := defaultEvaluator(t, nil)

	// Routine forecast is filtered.
	routine := ev.Evaluate(&domain.Article{ID: 1, Title: "明日天氣晴朗高溫32度"})
	assert.Equal(t, domain.DecisionFilter, routine.Decision)

	// The same pattern with an extreme-weather keyword must pass.
	typhoon := ev.Evaluate(&domain.Article{ID: 2, Title: "颱風來襲 明日天氣預報發布警報"})
	assert.Equal(t, domain.DecisionKeep, typhoon.Decision)
}

func TestEvaluateForceIncludeShortCircuits(t *testing.T) {
	ev := defaultEvaluator(t, map[int64]struct{}{9: {}})

	// An article any rule would drop still passes when whitelisted.
	verdict := ev.Evaluate(&domain.Article{ID: 9, Title: "本週星座運勢大公開"})
	assert.Equal(t, domain.DecisionForceInclude, verdict.Decision)
	require.NotNil(t, verdict.Reason)
	assert.Equal(t, "文章已被標記為強制納入", *verdict.Reason)
}

func TestEvaluateCategoryRule(t *testing.T) {
	rules := []*domain.FilterRule{
		{
			Name:     "gossip_category",
			RuleType: domain.RuleTypeCategory,
			IsActive: true,
			Config: domain.RuleConfig{
				Categories:    []string{"八卦"},
				SubCategories: []string{"明星動態"},
			},
		},
	}
	ev, err := pipeline.NewEvaluator(rules, nil)
	require.NoError(t, err)

	byCategory := ev.Evaluate(&domain.Article{ID: 1, Title: "x", Category: strPtr("八卦")})
	assert.Equal(t, domain.DecisionFilter, byCategory.Decision)

	bySub := ev.Evaluate(&domain.Article{ID: 2, Title: "x", SubCategory: strPtr("明星動態")})
	assert.Equal(t, domain.DecisionFilter, bySub.Decision)

	miss := ev.Evaluate(&domain.Article{ID: 3, Title: "x", Category: strPtr("政治")})
	assert.Equal(t, domain.DecisionKeep, miss.Decision)
}

func TestNewEvaluatorRejectsInvalidPattern(t *testing.T) {
	rules := []*domain.FilterRule{
		{
			Name:     "broken",
			RuleType: domain.RuleTypePattern,
			Config:   domain.RuleConfig{Patterns: []string{`[unclosed`}},
		},
	}
	_, err := pipeline.NewEvaluator(rules, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestMatchCountsTallyPerRule(t *testing.T) {
	ev := defaultEvaluator(t, nil)

	ev.Evaluate(&domain.Article{ID: 1, Title: "本週星座運勢"})
	ev.Evaluate(&domain.Article{ID: 2, Title: "塔羅占卜測驗"})
	ev.Evaluate(&domain.Article{ID: 3, Title: "大樂透今晚開獎號碼"})
	ev.Evaluate(&domain.Article{ID: 4, Title: "普通新聞"})

	counts := ev.MatchCounts()
	assert.Equal(t, int64(2), counts["horoscope_filter"])
	assert.Equal(t, int64(1), counts["lottery_filter"])
	assert.NotContains(t, counts, "ad_filter")
}
