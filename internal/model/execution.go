package model

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle status of a call execution as reported
// by Bolna. The sync path stores whatever string the upstream sends;
// Bolna has changed its field vocabulary before and an unknown status is
// more useful stored verbatim than rejected. These constants exist for
// filter UIs and tests, not for validation.
type ExecutionStatus = string

const (
	StatusPending    ExecutionStatus = "pending"
	StatusInProgress ExecutionStatus = "in_progress"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
	StatusCancelled  ExecutionStatus = "cancelled"
)

// Execution is one normalized call/conversation record pulled from Bolna.
// Identity is the externally-governed bolna_execution_id; rows are only
// ever written through the sync engine's upsert, never by user action.
type Execution struct {
	ID               uuid.UUID `json:"id"`
	BolnaExecutionID string    `json:"bolna_execution_id"`
	AgentID          uuid.UUID `json:"agent_id"`

	// Call measurements. ConversationTime is seconds; TotalCost is
	// dollars (Bolna reports cents, the normalizer converts).
	ConversationTime float64         `json:"conversation_time"`
	TotalCost        float64         `json:"total_cost"`
	Status           ExecutionStatus `json:"status"`

	// Telephony routing fields, all optional.
	TelephonyProvider *string `json:"telephony_provider,omitempty"`
	FromNumber        *string `json:"from_number,omitempty"`
	ToNumber          *string `json:"to_number,omitempty"`
	CallSID           *string `json:"call_sid,omitempty"`

	// Conversation content.
	ExtractedData map[string]any `json:"extracted_data"`
	Transcript    string         `json:"transcript"`

	// Metadata holds the complete raw upstream record plus denormalized
	// copies of cost_breakdown, telephony_data, and recording_url so the
	// dashboard can render without re-parsing the raw blob.
	Metadata map[string]any `json:"metadata"`
	RawLogs  string         `json:"raw_logs,omitempty"`

	// Call window. Nil until the upstream reports a value, never
	// fabricated from the local clock.
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
