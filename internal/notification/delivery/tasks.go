// Package delivery moves external notification channels (email, push) through an asynq queue
// to the outbound delivery service.
package delivery

import (
	"saas-control-plane/backend/internal/notification/domain"
)

// TypeDeliver is the asynq task type for one (recipient, channel) delivery.
const TypeDeliver = "notification:deliver"

// QueueName is the asynq queue delivery tasks are enqueued on.
const QueueName = "notifications"

// Job is the payload of a delivery task. Exactly one of UserID and Email identifies the recipient;
// the worker resolves a user's address at send time.
type Job struct {
	Channel        domain.Channel  `json:"channel"`
	UserID         string          `json:"user_id,omitempty"`
	Email          string          `json:"email,omitempty"`
	OrgID          string          `json:"org_id,omitempty"`
	NotificationID string          `json:"notification_id,omitempty"`
	Type           domain.Type     `json:"type"`
	Priority       domain.Priority `json:"priority"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Data           map[string]any  `json:"data,omitempty"`
	Actions        []domain.Action `json:"actions,omitempty"`
	DedupKey       string          `json:"dedup_key"`
}

// Recipient returns the user id or, for address-only jobs, the email.
func (j Job) Recipient() string {
	if j.UserID != "" {
		return j.UserID
	}
	return j.Email
}

// TaskID is the asynq task id for j. Duplicate events for the same occurrence map to the same id.
func (j Job) TaskID() string {
	return string(j.Channel) + ":" + string(j.Type) + ":" + j.Recipient() + ":" + j.DedupKey
}
