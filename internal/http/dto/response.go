package dto

import "time"

// APIResponse is the envelope returned by write endpoints. Webhook callers
// only look at the status code; the body exists for humans poking with curl.
type APIResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func NewAPIResponse(success bool, message string) APIResponse {
	return APIResponse{
		Success:   success,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// MetricsResponse is the aggregate read envelope consumed by the dashboard.
type MetricsResponse struct {
	Success bool        `json:"success"`
	Data    MetricsData `json:"data"`
}

// MetricsData carries the aggregate figures. Session counts are nullable:
// null means the figure has not been established yet, which is distinct from
// a measured zero.
type MetricsData struct {
	Tickets     TicketCounts  `json:"tickets"`
	Sessions    SessionCounts `json:"sessions"`
	LastUpdated string        `json:"lastUpdated"`
	Source      string        `json:"source"`
}

type TicketCounts struct {
	Open  int `json:"open"`
	Chat  int `json:"chat"`
	Email int `json:"email"`
	Other int `json:"other"`
}

type SessionCounts struct {
	Active    *int `json:"active"`
	Escalated *int `json:"escalated"`
}

type RecalculateResponse struct {
	APIResponse
	EscalatedSessions int `json:"escalated_sessions"`
}

type ReplayResponse struct {
	APIResponse
	ConversationID string `json:"conversation_id"`
	EventsReplayed int    `json:"events_replayed"`
}
