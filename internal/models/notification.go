package models

import "time"

// Threshold notification events understood by the automation service.
const (
	EventUsageThreshold80  = "usage.threshold_80"
	EventUsageThreshold100 = "usage.threshold_100"
)

// NotificationTrigger is the payload posted to the automation webhook.
type NotificationTrigger struct {
	Event     string           `json:"event"`
	UserID    string           `json:"userId"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   ThresholdPayload `json:"payload"`
}

// ThresholdPayload carries the usage snapshot that crossed a threshold.
type ThresholdPayload struct {
	UsagePercent int              `json:"usagePercent"`
	CurrentUsage int64            `json:"currentUsage"`
	Limit        int64            `json:"limit"`
	Tier         SubscriptionTier `json:"tier"`
	Category     UsageCategory    `json:"category,omitempty"`
}

// UsageAlertJob is queued for the notification worker.
type UsageAlertJob struct {
	Trigger  NotificationTrigger
	Template string
	Email    string
	FullName string
}
