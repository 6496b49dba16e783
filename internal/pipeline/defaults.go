package pipeline

import (
	"github.com/jonesrussell/newsflow/internal/domain"
)

// DefaultRules is the rule set seeded at startup when a rule of the same
// name does not already exist. Operators tune the live rows, so seeding
// never overwrites.
func DefaultRules() []*domain.FilterRule {
	return []*domain.FilterRule{
		{
			Name:        "horoscope_filter",
			Description: "過濾星座運勢、塔羅牌、占卜相關內容",
			RuleType:    domain.RuleTypeKeyword,
			IsActive:    true,
			Priority:    10,
			Config: domain.RuleConfig{
				Keywords: []string{
					"星座運勢", "每日星座", "星座運程", "本週星座",
					"塔羅", "占卜", "運勢分析", "星座解析",
					"牡羊座", "金牛座", "雙子座", "巨蟹座",
					"獅子座", "處女座", "天秤座", "天蠍座",
					"射手座", "摩羯座", "水瓶座", "雙魚座",
				},
				MatchFields: []string{"title", "tags"},
			},
		},
		{
			Name:        "lottery_filter",
			Description: "過濾彩券開獎、樂透號碼相關內容",
			RuleType:    domain.RuleTypePattern,
			IsActive:    true,
			Priority:    20,
			Config: domain.RuleConfig{
				Patterns: []string{
					`威力彩.*開獎`,
					`大樂透.*開獎`,
					`今彩539.*開獎`,
					`雙贏彩.*開獎`,
					`開獎號碼`,
					`中獎號碼`,
					`頭獎.*億`,
					`\d+期.*開獎`,
				},
				MatchFields: []string{"title"},
			},
		},
		{
			Name:        "ad_filter",
			Description: "過濾廣告、業配相關內容",
			RuleType:    domain.RuleTypeKeyword,
			IsActive:    true,
			Priority:    30,
			Config: domain.RuleConfig{
				Keywords: []string{
					"[廣告]", "【廣告】", "廣編特輯", "業配文",
					"贊助內容", "贊助文章", "合作專案",
				},
				MatchFields: []string{"title"},
			},
		},
		{
			Name:        "weather_routine_filter",
			Description: "過濾例行天氣預報（保留極端天氣）",
			RuleType:    domain.RuleTypePattern,
			IsActive:    true,
			Priority:    40,
			Config: domain.RuleConfig{
				Patterns: []string{
					`(明日|今日|週末)天氣`,
					`一週天氣`,
					`天氣預報`,
				},
				MatchFields: []string{"title"},
				// Extreme-weather coverage stays in the pipeline.
				ExcludeKeywords: []string{
					"颱風", "暴雨", "豪雨", "水災", "地震",
					"極端", "警報", "停班停課", "災情",
				},
			},
		},
	}
}
