// Package notification defines the guardian notification contract. Delivery
// mechanics (SMTP, SES, anything else) live behind the Notifier interface in
// infrastructure; this package owns only the message shape and the pickup
// reminder template.
package notification

import (
	"context"
	"time"
)

// Priority orders notifications when a channel needs to shed load.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is a rendered message for a set of recipients.
type Notification struct {
	// Recipients are the destination addresses (guardian emails).
	Recipients []string

	// Subject is the message subject line.
	Subject string

	// HTMLBody is the fully rendered template. The Notifier sends it as-is.
	HTMLBody string

	// TextBody is an optional plain-text alternative.
	TextBody string

	Priority  Priority
	CreatedAt time.Time
}

// DeliveryResult reports the outcome of a single send.
type DeliveryResult struct {
	Success     bool
	MessageID   string
	Error       error
	DeliveredAt time.Time
}

// Notifier delivers notifications. Implementations must honour the context
// deadline so one slow delivery cannot stall a reconciliation pass.
type Notifier interface {
	Send(ctx context.Context, n Notification) DeliveryResult
}
