package model

import "time"

// ClickEvent represents a single redirect through a short link.
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkID    uint64    `json:"link_id"`
	LinkCode  string    `json:"link_code"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-counter"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
