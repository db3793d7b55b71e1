// Package sync pulls execution history from Bolna into local storage.
//
// The pipeline has three stages: the provider client fetches raw pages,
// Normalize flattens each raw record into a model.Execution, and the
// storage upsert makes the write idempotent on the provider's execution ID.
package sync

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ErrMissingExecutionID is returned by Normalize when a raw record carries
// no usable execution identifier. Such records cannot be stored
// idempotently and are skipped.
var ErrMissingExecutionID = errors.New("sync: raw execution has no id")

// durationKeys lists the raw fields consulted for conversation duration,
// in priority order. Bolna has renamed this field across API revisions and
// old records keep their original spelling, so all spellings stay live.
var durationKeys = []string{
	"conversation_duration",
	"conversation_time",
	"duration",
	"call_duration",
	"call_duration_seconds",
	"billable_duration",
}

// NormalizedExecution is the provider-independent form of one raw Bolna
// execution record. The local agent UUID is not known at this layer; the
// sync service fills it in before the upsert.
type NormalizedExecution struct {
	BolnaExecutionID  string
	ConversationTime  float64
	TotalCost         float64
	Status            string
	TelephonyProvider *string
	FromNumber        *string
	ToNumber          *string
	CallSID           *string
	ExtractedData     map[string]any
	Transcript        string
	RawLogs           string
	Metadata          map[string]any
	StartedAt         *time.Time
	EndedAt           *time.Time
}

// Normalize converts one raw execution record into its canonical form.
//
// Rules, in order of surprise:
//   - The identifier is "id", falling back to "execution_id". Neither
//     present means ErrMissingExecutionID.
//   - Duration takes the first present key from durationKeys; absent
//     means 0, never an error.
//   - total_cost arrives in cents and is stored in dollars.
//   - Status is passed through verbatim, defaulting to "pending" when
//     absent, so unknown upstream states survive round trips.
//   - Telephony fields prefer the nested telephony_data object and fall
//     back to the same key at the top level.
//   - Timestamps map created_at to StartedAt and updated_at to EndedAt;
//     unparseable or absent values stay nil rather than defaulting to now,
//     which would corrupt time-range queries.
//   - Metadata keeps the complete raw record so no upstream field is ever
//     lost, whatever this normalization drops. The recording URL in
//     telephony_data is hoisted to the top level for the dashboard; the
//     nested copy is the authoritative one.
func Normalize(raw map[string]any) (NormalizedExecution, error) {
	id := rawString(raw, "id")
	if id == "" {
		id = rawString(raw, "execution_id")
	}
	if id == "" {
		return NormalizedExecution{}, ErrMissingExecutionID
	}

	n := NormalizedExecution{
		BolnaExecutionID: id,
		TotalCost:        rawFloat(raw, "total_cost") / 100,
		Status:           "pending",
		Transcript:       rawString(raw, "transcript"),
		RawLogs:          rawString(raw, "raw_logs"),
		StartedAt:        rawTime(raw, "created_at"),
		EndedAt:          rawTime(raw, "updated_at"),
	}

	for _, key := range durationKeys {
		if v, ok := rawFloatOK(raw, key); ok {
			n.ConversationTime = v
			break
		}
	}

	if s := rawString(raw, "status"); s != "" {
		n.Status = s
	}

	telephony, _ := raw["telephony_data"].(map[string]any)
	n.TelephonyProvider = nestedString(telephony, raw, "provider")
	n.FromNumber = nestedString(telephony, raw, "from_number")
	n.ToNumber = nestedString(telephony, raw, "to_number")
	n.CallSID = nestedString(telephony, raw, "call_sid")

	if ed, ok := raw["extracted_data"].(map[string]any); ok {
		n.ExtractedData = ed
	}

	metadata := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		metadata[k] = v
	}
	if telephony != nil {
		if url := rawString(telephony, "recording_url"); url != "" {
			metadata["recording_url"] = url
		}
	}
	n.Metadata = metadata

	return n, nil
}

// nestedString resolves a telephony field: nested object first, then the
// same key at the top level of the raw record. Empty means absent.
func nestedString(nested, raw map[string]any, key string) *string {
	if nested != nil {
		if s := rawString(nested, key); s != "" {
			return &s
		}
	}
	if s := rawString(raw, key); s != "" {
		return &s
	}
	return nil
}

func rawString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// rawFloat reads a numeric field, treating absent or non-numeric as 0.
func rawFloat(m map[string]any, key string) float64 {
	v, _ := rawFloatOK(m, key)
	return v
}

// rawFloatOK reads a numeric field. JSON numbers decode as float64, but
// Bolna has shipped numeric strings in older records, so those parse too.
func rawFloatOK(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// rawTime parses a timestamp field. RFC 3339 with and without fractional
// seconds, plus Bolna's zone-less variant, are accepted. Anything else
// is treated as absent.
func rawTime(m map[string]any, key string) *time.Time {
	s := rawString(m, key)
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
