package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// maxContentRunes bounds how much article body one request carries. Long
// articles carry their analysis signal up front; the tail is boilerplate.
const maxContentRunes = 6000

const systemPrompt = `你是一位新聞分析專家。請針對提供的新聞文章進行結構化分析，並以 JSON 回覆。

分析要求：
1. sentiment：整體情緒。polarity 為 -10（極負面）到 10（極正面），intensity 為 1 到 10，tone 從 neutral、supportive、critical、sensational、analytical 中選擇。
2. framing：報導框架。angle 以一句話描述切入角度，narrative_type 從 conflict、human_interest、economic、moral、attribution、procedural 中選擇。
3. entities：文章提到的人物、組織、地點、產品、概念。name 為文中原始寫法，name_normalized 為標準化名稱（同一實體在不同文章中必須一致），並標註 role 與 sentiment_toward。
4. events：文章涉及的事件。name_normalized 為標準化事件名稱，topic_normalized 為所屬主題；有明確子事件時填 sub_event_normalized，有明確日期時以 YYYY-MM-DD 填 event_time。
5. entity_relations 與 event_relations：實體之間、實體與事件之間的關係，端點必須使用上面列出的 name_normalized。
6. signals：是否獨家、是否評論、是否後續更新、最多三條 key_claims、virality_score 1 到 10。
7. category_normalized：標準化分類。

所有欄位都必須填寫，嚴格遵守提供的 JSON schema。`

// BuildUserPrompt renders one article into the analysis request body.
func BuildUserPrompt(a *domain.Article) string {
	var b strings.Builder

	fmt.Fprintf(&b, "標題: %s\n", a.Title)
	fmt.Fprintf(&b, "來源: %s\n", a.Source)
	if a.Category != nil && *a.Category != "" {
		fmt.Fprintf(&b, "分類: %s\n", *a.Category)
	}
	if a.PublishedAt != nil {
		fmt.Fprintf(&b, "發布時間: %s\n", a.PublishedAt.UTC().Format(time.RFC3339))
	}
	if len(a.Tags) > 0 {
		fmt.Fprintf(&b, "標籤: %s\n", strings.Join(a.Tags, ", "))
	}

	content := a.Content
	if runes := []rune(content); len(runes) > maxContentRunes {
		content = string(runes[:maxContentRunes])
	}
	fmt.Fprintf(&b, "\n內文:\n%s\n", content)

	return b.String()
}
