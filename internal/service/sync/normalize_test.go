package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFullRecord(t *testing.T) {
	raw := map[string]any{
		"id":                    "ex-1",
		"status":                "completed",
		"conversation_duration": float64(92),
		"total_cost":            float64(350),
		"transcript":            "hello world",
		"created_at":            "2025-06-01T10:00:00Z",
		"updated_at":            "2025-06-01T10:01:32Z",
		"telephony_data": map[string]any{
			"provider":    "twilio",
			"from_number": "+15550001111",
			"to_number":   "+15550002222",
			"call_sid":    "CA123",
		},
		"extracted_data": map[string]any{"intent": "refund"},
	}

	n, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "ex-1", n.BolnaExecutionID)
	assert.Equal(t, "completed", n.Status)
	assert.Equal(t, 92.0, n.ConversationTime)
	assert.Equal(t, 3.50, n.TotalCost)
	assert.Equal(t, "hello world", n.Transcript)

	require.NotNil(t, n.TelephonyProvider)
	assert.Equal(t, "twilio", *n.TelephonyProvider)
	require.NotNil(t, n.CallSID)
	assert.Equal(t, "CA123", *n.CallSID)

	require.NotNil(t, n.StartedAt)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), *n.StartedAt)
	require.NotNil(t, n.EndedAt)
	assert.Equal(t, 92*time.Second, n.EndedAt.Sub(*n.StartedAt))

	assert.Equal(t, map[string]any{"intent": "refund"}, n.ExtractedData)
	assert.Equal(t, "completed", n.Metadata["status"])
}

func TestNormalizeExecutionIDFallback(t *testing.T) {
	n, err := Normalize(map[string]any{"execution_id": "ex-2"})
	require.NoError(t, err)
	assert.Equal(t, "ex-2", n.BolnaExecutionID)
}

func TestNormalizeMissingID(t *testing.T) {
	_, err := Normalize(map[string]any{"status": "completed"})
	assert.ErrorIs(t, err, ErrMissingExecutionID)

	_, err = Normalize(map[string]any{"id": ""})
	assert.ErrorIs(t, err, ErrMissingExecutionID)
}

func TestNormalizeDurationPrecedence(t *testing.T) {
	// conversation_duration wins over everything else.
	n, err := Normalize(map[string]any{
		"id":                    "ex-3",
		"conversation_duration": float64(10),
		"conversation_time":     float64(20),
		"duration":              float64(30),
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, n.ConversationTime)

	// Fallback chain continues past absent keys.
	n, err = Normalize(map[string]any{
		"id":                    "ex-4",
		"call_duration_seconds": float64(45),
		"billable_duration":     float64(60),
	})
	require.NoError(t, err)
	assert.Equal(t, 45.0, n.ConversationTime)

	// A present zero stops the chain; zero is a real duration.
	n, err = Normalize(map[string]any{
		"id":                "ex-5",
		"conversation_time": float64(0),
		"duration":          float64(99),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, n.ConversationTime)

	// Numeric strings from old records still parse.
	n, err = Normalize(map[string]any{
		"id":       "ex-6",
		"duration": "33.5",
	})
	require.NoError(t, err)
	assert.Equal(t, 33.5, n.ConversationTime)
}

func TestNormalizeDefaults(t *testing.T) {
	n, err := Normalize(map[string]any{"id": "ex-7"})
	require.NoError(t, err)

	assert.Equal(t, "pending", n.Status)
	assert.Equal(t, 0.0, n.ConversationTime)
	assert.Equal(t, 0.0, n.TotalCost)
	assert.Nil(t, n.StartedAt)
	assert.Nil(t, n.EndedAt)
	assert.Nil(t, n.TelephonyProvider)
	assert.Nil(t, n.FromNumber)
}

func TestNormalizeTelephonyTopLevelFallback(t *testing.T) {
	n, err := Normalize(map[string]any{
		"id":          "ex-8",
		"from_number": "+15550003333",
		"telephony_data": map[string]any{
			"provider": "plivo",
		},
	})
	require.NoError(t, err)

	require.NotNil(t, n.TelephonyProvider)
	assert.Equal(t, "plivo", *n.TelephonyProvider)
	require.NotNil(t, n.FromNumber)
	assert.Equal(t, "+15550003333", *n.FromNumber)
	assert.Nil(t, n.ToNumber)
}

func TestNormalizeCostConversion(t *testing.T) {
	n, err := Normalize(map[string]any{"id": "ex-9", "total_cost": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, 0.01, n.TotalCost)

	n, err = Normalize(map[string]any{"id": "ex-10", "total_cost": "not a number"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, n.TotalCost)
}

func TestNormalizeBadTimestampsStayNil(t *testing.T) {
	n, err := Normalize(map[string]any{
		"id":         "ex-11",
		"created_at": "yesterday",
		"updated_at": float64(1717236000),
	})
	require.NoError(t, err)
	assert.Nil(t, n.StartedAt)
	assert.Nil(t, n.EndedAt)
}

func TestNormalizeZonelessTimestamp(t *testing.T) {
	n, err := Normalize(map[string]any{
		"id":         "ex-12",
		"created_at": "2025-06-01T10:00:00.123456",
	})
	require.NoError(t, err)
	require.NotNil(t, n.StartedAt)
	assert.Equal(t, 2025, n.StartedAt.Year())
}

func TestNormalizeMetadataKeepsRawRecord(t *testing.T) {
	raw := map[string]any{
		"id":             "ex-13",
		"recording_url":  "https://cdn.bolna.ai/rec/ex-13.mp3",
		"cost_breakdown": map[string]any{"llm": 120, "tts": 80},
		"custom_field":   "kept",
	}
	n, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.bolna.ai/rec/ex-13.mp3", n.Metadata["recording_url"])
	assert.Equal(t, raw["cost_breakdown"], n.Metadata["cost_breakdown"])
	assert.Equal(t, "kept", n.Metadata["custom_field"])

	// Metadata is a copy, not an alias of the raw map.
	raw["custom_field"] = "mutated"
	assert.Equal(t, "kept", n.Metadata["custom_field"])
}

func TestNormalizeHoistsNestedRecordingURL(t *testing.T) {
	n, err := Normalize(map[string]any{
		"id": "ex-14",
		"telephony_data": map[string]any{
			"recording_url": "https://cdn.bolna.ai/rec/ex-14.mp3",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.bolna.ai/rec/ex-14.mp3", n.Metadata["recording_url"])

	// The nested copy is authoritative and replaces a stale top-level one.
	n, err = Normalize(map[string]any{
		"id":            "ex-15",
		"recording_url": "https://cdn.bolna.ai/rec/stale.mp3",
		"telephony_data": map[string]any{
			"recording_url": "https://cdn.bolna.ai/rec/nested.mp3",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.bolna.ai/rec/nested.mp3", n.Metadata["recording_url"])
}
