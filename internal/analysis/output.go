// Package analysis coordinates batched LLM analysis of filtered articles:
// a provider-agnostic batch capability, the structured output contract, and
// the coordinator that tracks every article's outcome per batch.
package analysis

import (
	"encoding/json"
	"fmt"
	"time"
)

// Enum sets of the analysis output contract. The strict response schema is
// generated from these, and retrieved results are validated against them.
var (
	Tones = []string{"neutral", "supportive", "critical", "sensational", "analytical"}

	NarrativeTypes = []string{"conflict", "human_interest", "economic", "moral", "attribution", "procedural"}

	EntityTypes = []string{"person", "organization", "location", "product", "concept"}

	EntityRoles = []string{"subject", "object", "source", "mentioned"}

	EventTypes = []string{
		"policy", "scandal", "legal", "election", "disaster", "protest",
		"business", "international", "society", "entertainment", "sports",
		"technology", "health", "environment", "crime", "other",
	}

	ArticleTypes = []string{"breaking", "first_report", "follow_up", "retrospective", "analysis", "standard"}

	EntityRelationTypes = []string{
		"supports", "opposes", "member_of", "leads", "allied_with", "conflicts_with", "related_to",
	}

	EventRelationTypes = []string{
		"accused_in", "victim_in", "investigates", "comments_on", "causes", "responds_to", "involved_in",
	}

	Categories = []string{
		"politics", "business", "technology", "entertainment", "sports",
		"society", "international", "local", "opinion", "lifestyle",
		"health", "education", "environment", "crime", "other",
	}
)

// maxKeyClaims caps how many key claims one article may carry.
const maxKeyClaims = 3

// Sentiment is the article-level sentiment reading.
type Sentiment struct {
	Polarity  float64 `json:"polarity"`  // -10..10
	Intensity float64 `json:"intensity"` // 1..10
	Tone      string  `json:"tone"`
}

// Framing describes how the article frames its story.
type Framing struct {
	Angle         string `json:"angle"`
	NarrativeType string `json:"narrative_type"`
}

// Entity is one named entity the article mentions.
type Entity struct {
	Name            string  `json:"name"`
	NameNormalized  string  `json:"name_normalized"`
	Type            string  `json:"type"`
	Role            string  `json:"role"`
	SentimentToward float64 `json:"sentiment_toward"` // -10..10
}

// Event is one news event the article covers.
type Event struct {
	TopicNormalized    string   `json:"topic_normalized"`
	NameNormalized     string   `json:"name_normalized"`
	SubEventNormalized *string  `json:"sub_event_normalized"`
	Tags               []string `json:"tags"`
	Type               string   `json:"type"`
	IsMain             bool     `json:"is_main"`
	EventTime          *string  `json:"event_time"` // YYYY-MM-DD
	ArticleType        string   `json:"article_type"`
	TemporalCues       []string `json:"temporal_cues"`
}

// EntityRelation is a directed edge between two entities.
type EntityRelation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// EventRelation links an entity to an event.
type EventRelation struct {
	Entity string `json:"entity"`
	Event  string `json:"event"`
	Type   string `json:"type"`
}

// Signals carries editorial signals about the article.
type Signals struct {
	IsExclusive   bool     `json:"is_exclusive"`
	IsOpinion     bool     `json:"is_opinion"`
	HasUpdate     bool     `json:"has_update"`
	KeyClaims     []string `json:"key_claims"`
	ViralityScore float64  `json:"virality_score"` // 1..10
}

// Result is the full analysis the LLM must return for one article.
type Result struct {
	Sentiment          Sentiment        `json:"sentiment"`
	Framing            Framing          `json:"framing"`
	Entities           []Entity         `json:"entities"`
	Events             []Event          `json:"events"`
	EntityRelations    []EntityRelation `json:"entity_relations"`
	EventRelations     []EventRelation  `json:"event_relations"`
	Signals            Signals          `json:"signals"`
	CategoryNormalized string           `json:"category_normalized"`
}

// ParseResult decodes and validates one analysis payload. Anything that does
// not satisfy the output contract is a data error, never a partial result.
func ParseResult(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return &res, nil
}

// Validate enforces the contract's enums, numeric ranges, and caps.
func (r *Result) Validate() error {
	if err := inRange("sentiment.polarity", r.Sentiment.Polarity, -10, 10); err != nil {
		return err
	}
	if err := inRange("sentiment.intensity", r.Sentiment.Intensity, 1, 10); err != nil {
		return err
	}
	if err := oneOf("sentiment.tone", r.Sentiment.Tone, Tones); err != nil {
		return err
	}
	if err := oneOf("framing.narrative_type", r.Framing.NarrativeType, NarrativeTypes); err != nil {
		return err
	}

	for i, e := range r.Entities {
		if e.NameNormalized == "" {
			return fmt.Errorf("entities[%d].name_normalized is empty", i)
		}
		if err := oneOf(fmt.Sprintf("entities[%d].type", i), e.Type, EntityTypes); err != nil {
			return err
		}
		if err := oneOf(fmt.Sprintf("entities[%d].role", i), e.Role, EntityRoles); err != nil {
			return err
		}
		if err := inRange(fmt.Sprintf("entities[%d].sentiment_toward", i), e.SentimentToward, -10, 10); err != nil {
			return err
		}
	}

	for i, ev := range r.Events {
		if ev.NameNormalized == "" {
			return fmt.Errorf("events[%d].name_normalized is empty", i)
		}
		if err := oneOf(fmt.Sprintf("events[%d].type", i), ev.Type, EventTypes); err != nil {
			return err
		}
		if err := oneOf(fmt.Sprintf("events[%d].article_type", i), ev.ArticleType, ArticleTypes); err != nil {
			return err
		}
		if ev.EventTime != nil && *ev.EventTime != "" {
			if _, err := time.Parse("2006-01-02", *ev.EventTime); err != nil {
				return fmt.Errorf("events[%d].event_time %q is not YYYY-MM-DD", i, *ev.EventTime)
			}
		}
	}

	for i, rel := range r.EntityRelations {
		if err := oneOf(fmt.Sprintf("entity_relations[%d].type", i), rel.Type, EntityRelationTypes); err != nil {
			return err
		}
	}
	for i, rel := range r.EventRelations {
		if err := oneOf(fmt.Sprintf("event_relations[%d].type", i), rel.Type, EventRelationTypes); err != nil {
			return err
		}
	}

	if len(r.Signals.KeyClaims) > maxKeyClaims {
		return fmt.Errorf("signals.key_claims has %d entries, max %d", len(r.Signals.KeyClaims), maxKeyClaims)
	}
	if err := inRange("signals.virality_score", r.Signals.ViralityScore, 1, 10); err != nil {
		return err
	}

	return oneOf("category_normalized", r.CategoryNormalized, Categories)
}

// EventTimeValue parses an event's date, nil when absent.
func (e *Event) EventTimeValue() *time.Time {
	if e.EventTime == nil || *e.EventTime == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", *e.EventTime)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s has invalid value %q", field, value)
}

func inRange(field string, value, lo, hi float64) error {
	if value < lo || value > hi {
		return fmt.Errorf("%s %v is outside [%v, %v]", field, value, lo, hi)
	}
	return nil
}
