package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one occurrence an upstream collaborator wants delivered to
// subscribed receivers. The JSON body produced by Body is the exact wire
// payload receivers see.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	Type           string         `json:"type"`
	OrganizationID string         `json:"organization_id"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewEvent creates a valid event timestamped at creation.
func NewEvent(organizationID, eventType string, data, metadata map[string]any) (*Event, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, ErrOrganizationIDRequired
	}

	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ErrEventTypeRequired
	}

	if data == nil {
		data = map[string]any{}
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	return &Event{
		ID:             uuid.New(),
		Type:           eventType,
		OrganizationID: organizationID,
		Data:           data,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Body serializes the event into its wire payload. The result is captured
// once per delivery at dispatch time and never re-derived.
func (e *Event) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialize event payload: %w", err)
	}

	return body, nil
}
