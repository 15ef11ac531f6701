package model

import "time"

// TicketCounts is maintained by the helpdesk ticket poller, not the detector.
type TicketCounts struct {
	Open  int `json:"open"`
	Chat  int `json:"chat"`
	Email int `json:"email"`
	Other int `json:"other"`
}

// MetricsSnapshot is the singleton aggregate record consumed by the dashboard.
// Nil session figures mean "data unavailable", distinct from zero.
type MetricsSnapshot struct {
	LastUpdated       time.Time    `json:"last_updated"`
	ActiveSessions    *int         `json:"active_sessions,omitempty"`
	EscalatedSessions *int         `json:"escalated_sessions,omitempty"`
	Tickets           TicketCounts `json:"tickets"`
	Source            string       `json:"source"`
}
