package dto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleID accepts JSON string or number identifiers. The helpdesk sends
// numeric object ids in some subscription payloads and strings in others.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}

// WebhookEvent is one element of the helpdesk webhook delivery. The helpdesk
// posts either a single object or an array of these.
type WebhookEvent struct {
	EventID          FlexibleID `json:"eventId"`
	SubscriptionType string     `json:"subscriptionType"`
	ObjectID         FlexibleID `json:"objectId"`
	PropertyName     string     `json:"propertyName"`
	PropertyValue    string     `json:"propertyValue"`
	OccurredAt       int64      `json:"occurredAt"` // epoch milliseconds
}

// ParseWebhookBody accepts both delivery shapes.
func ParseWebhookBody(body []byte) ([]WebhookEvent, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("empty body")
	}

	if strings.HasPrefix(trimmed, "[") {
		var events []WebhookEvent
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, fmt.Errorf("invalid event array: %w", err)
		}
		return events, nil
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("invalid event object: %w", err)
	}
	return []WebhookEvent{event}, nil
}
