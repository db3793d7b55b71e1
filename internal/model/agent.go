package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent is the local registration of a Bolna-managed voice agent.
// The agent itself (prompt, voice, telephony wiring) lives in Bolna;
// we store the binding between a client and a Bolna agent ID plus
// display metadata. Agents are never created implicitly by sync.
type Agent struct {
	ID           uuid.UUID      `json:"id"`
	BolnaAgentID string         `json:"bolna_agent_id"`
	ClientID     uuid.UUID      `json:"client_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Config       map[string]any `json:"config"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ValidateBolnaAgentID checks that a Bolna agent ID conforms to the
// allowed format: 1-255 ASCII characters, alphanumeric plus dots,
// hyphens, and underscores. Bolna issues UUIDs today, but the format
// is theirs to change, so we only reject obvious garbage.
func ValidateBolnaAgentID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("bolna_agent_id is required")
	}
	if len(id) > 255 {
		return fmt.Errorf("bolna_agent_id must be at most 255 characters")
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' {
			return fmt.Errorf("bolna_agent_id contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
