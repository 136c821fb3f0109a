package main

import (
	"github.com/aws/aws-lambda-go/events"
)

// WorkerMessage is the SQS payload asking for a sync outside the schedule.
type WorkerMessage struct {
	Direction     string `json:"direction,omitempty" validate:"omitempty,oneof=both inbound outbound"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// invocation covers the two event shapes the worker is subscribed to:
// EventBridge schedules and SQS batches.
type invocation struct {
	Records    []events.SQSMessage `json:"Records"`
	DetailType string              `json:"detail-type"`
	ID         string              `json:"id"`
}
