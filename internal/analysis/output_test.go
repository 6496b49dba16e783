package analysis_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/analysis"
)

func validResult() *analysis.Result {
	subEvent := "內閣改組名單公布"
	eventTime := "2026-08-20"
	return &analysis.Result{
		Sentiment: analysis.Sentiment{Polarity: -3.5, Intensity: 6, Tone: "critical"},
		Framing:   analysis.Framing{Angle: "問責視角", NarrativeType: "conflict"},
		Entities: []analysis.Entity{
			{Name: "行政院", NameNormalized: "行政院", Type: "organization", Role: "subject", SentimentToward: -2},
		},
		Events: []analysis.Event{
			{
				TopicNormalized:    "內閣改組",
				NameNormalized:     "2026內閣改組",
				SubEventNormalized: &subEvent,
				Tags:               []string{"政治", "人事"},
				Type:               "policy",
				IsMain:             true,
				EventTime:          &eventTime,
				ArticleType:        "follow_up",
				TemporalCues:       []string{"昨日"},
			},
		},
		EntityRelations: []analysis.EntityRelation{
			{Source: "行政院", Target: "立法院", Type: "conflicts_with"},
		},
		EventRelations: []analysis.EventRelation{
			{Entity: "行政院", Event: "2026內閣改組", Type: "involved_in"},
		},
		Signals: analysis.Signals{
			IsExclusive:   false,
			IsOpinion:     false,
			HasUpdate:     true,
			KeyClaims:     []string{"三名部長將被撤換"},
			ViralityScore: 7,
		},
		CategoryNormalized: "politics",
	}
}

func TestParseResultAcceptsValidPayload(t *testing.T) {
	data, err := json.Marshal(validResult())
	require.NoError(t, err)

	res, err := analysis.ParseResult(data)
	require.NoError(t, err)
	assert.Equal(t, "critical", res.Sentiment.Tone)
	assert.Len(t, res.Events, 1)
}

func TestParseResultRejectsMalformedJSON(t *testing.T) {
	_, err := analysis.ParseResult([]byte(`{"sentiment":`))
	require.Error(t, err)
}

func TestValidateRejectsContractViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *analysis.Result)
	}{
		{"polarity above range", func(r *analysis.Result) { r.Sentiment.Polarity = 11 }},
		{"intensity below range", func(r *analysis.Result) { r.Sentiment.Intensity = 0 }},
		{"unknown tone", func(r *analysis.Result) { r.Sentiment.Tone = "angry" }},
		{"unknown narrative type", func(r *analysis.Result) { r.Framing.NarrativeType = "dramatic" }},
		{"empty entity name", func(r *analysis.Result) { r.Entities[0].NameNormalized = "" }},
		{"unknown entity type", func(r *analysis.Result) { r.Entities[0].Type = "animal" }},
		{"unknown entity role", func(r *analysis.Result) { r.Entities[0].Role = "bystander" }},
		{"entity sentiment out of range", func(r *analysis.Result) { r.Entities[0].SentimentToward = -20 }},
		{"empty event name", func(r *analysis.Result) { r.Events[0].NameNormalized = "" }},
		{"unknown event type", func(r *analysis.Result) { r.Events[0].Type = "rumor" }},
		{"unknown article type", func(r *analysis.Result) { r.Events[0].ArticleType = "listicle" }},
		{"bad event time format", func(r *analysis.Result) {
			bad := "20/08/2026"
			r.Events[0].EventTime = &bad
		}},
		{"unknown entity relation type", func(r *analysis.Result) { r.EntityRelations[0].Type = "hates" }},
		{"unknown event relation type", func(r *analysis.Result) { r.EventRelations[0].Type = "watches" }},
		{"too many key claims", func(r *analysis.Result) {
			r.Signals.KeyClaims = []string{"a", "b", "c", "d"}
		}},
		{"virality out of range", func(r *analysis.Result) { r.Signals.ViralityScore = 0 }},
		{"unknown category", func(r *analysis.Result) { r.CategoryNormalized = "gossip" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validResult()
			tt.mutate(res)
			assert.Error(t, res.Validate())
		})
	}
}

func TestValidateAllowsAbsentEventTime(t *testing.T) {
	res := validResult()
	res.Events[0].EventTime = nil
	assert.NoError(t, res.Validate())

	empty := ""
	res.Events[0].EventTime = &empty
	assert.NoError(t, res.Validate())
}

func TestEventTimeValue(t *testing.T) {
	res := validResult()
	parsed := res.Events[0].EventTimeValue()
	require.NotNil(t, parsed)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), *parsed)

	res.Events[0].EventTime = nil
	assert.Nil(t, res.Events[0].EventTimeValue())
}

func TestCustomIDRoundTrip(t *testing.T) {
	id, err := analysis.ParseCustomID(analysis.CustomID(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = analysis.ParseCustomID("request_42")
	assert.Error(t, err)
	_, err = analysis.ParseCustomID("article_abc")
	assert.Error(t, err)
}
