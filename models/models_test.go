package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_UnmarshalBothPathSpellings(t *testing.T) {
	var camel, snake Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"r1","metricPath":"behavior.click_count","type":"threshold","value":5}`), &camel))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"r2","metric_path":"behavior.click_count","type":"range","min":1}`), &snake))

	assert.Equal(t, "behavior.click_count", camel.MetricPath)
	assert.Equal(t, RuleThreshold, camel.Type)
	assert.Equal(t, float64(5), camel.Value)

	assert.Equal(t, "behavior.click_count", snake.MetricPath)
	require.NotNil(t, snake.Min)
	assert.Equal(t, float64(1), *snake.Min)
	assert.Nil(t, snake.Max)
}

func TestSessionMetrics_CloneIsIndependent(t *testing.T) {
	m := NewSessionMetrics("s1", time.Now())
	m.Behavior.UniquePagesViewed.Add("/a")
	m.Internal.GoalsReached = append(m.Internal.GoalsReached, "g")
	m.Source.UTM["utm_source"] = "mail"

	c := m.Clone()
	c.Behavior.UniquePagesViewed.Add("/b")
	c.Internal.GoalsReached[0] = "changed"
	c.Source.UTM["utm_source"] = "other"

	assert.Equal(t, 1, m.Behavior.UniquePagesViewed.Len())
	assert.Equal(t, "g", m.Internal.GoalsReached[0])
	assert.Equal(t, "mail", m.Source.UTM["utm_source"])
}

func TestToLogData_SetsBecomeLists(t *testing.T) {
	m := NewSessionMetrics("s1", time.Now())
	m.Behavior.UniquePagesViewed.Add("/a")
	m.Behavior.UniquePagesViewed.Add("/b")
	m.Ecommerce.CategoryDiversity.Add("Article")
	m.Internal.ActiveSeconds = 40
	m.Internal.TotalSeconds = 45
	m.Internal.PageHistory = []PageVisit{{Path: "/a"}}

	raw, err := json.Marshal(m.ToLogData())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	behavior := decoded["behavior"].(map[string]any)
	assert.Equal(t, []any{"/a", "/b"}, behavior["unique_pages_viewed"])

	internal := decoded["_internal"].(map[string]any)
	assert.Equal(t, float64(40), internal["active_seconds"])
	assert.NotContains(t, internal, "page_history")
	assert.Nil(t, decoded["userId"])
}
