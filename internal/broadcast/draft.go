package broadcast

import (
	"time"
)

// Status is the lifecycle state of a draft. Transitions are one-directional:
// draft → approved → sent | failed. A rejected draft is removed from the
// collection rather than given a terminal status.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
)

// Payload is the composed broadcast content awaiting review.
type Payload struct {
	Subject             string `json:"subject"`
	Body                string `json:"body"`
	AudienceRole        string `json:"audience_role"`
	EstimatedRecipients int    `json:"estimated_recipients"`
	Urgency             string `json:"urgency"`
	ScheduledTime       string `json:"scheduled_time,omitempty"`
	PreviewText         string `json:"preview_text,omitempty"`
	ComplianceCheck     string `json:"compliance_check,omitempty"`
}

// FailedRecipient records one delivery failure within a report.
type FailedRecipient struct {
	RecipientID string `json:"recipient_id"`
	Reason      string `json:"reason"`
	RetryCount  int    `json:"retry_count"`
}

// DeliveryReport is the sender's one-time account of a broadcast delivery.
// It is never revised after being recorded. Inconsistent is set when the
// delivered/failed/pending counts do not add up to the recipient total; the
// figures are stored as returned, never reconciled.
type DeliveryReport struct {
	BroadcastID      string            `json:"broadcast_id"`
	DeliveryStatus   string            `json:"delivery_status"`
	TotalRecipients  int               `json:"total_recipients"`
	Delivered        int               `json:"delivered"`
	Failed           int               `json:"failed"`
	Pending          int               `json:"pending"`
	FailedRecipients []FailedRecipient `json:"failed_recipients,omitempty"`
	StartedAt        time.Time         `json:"started_at,omitzero"`
	EndedAt          time.Time         `json:"ended_at,omitzero"`
	Inconsistent     bool              `json:"inconsistent,omitempty"`
}

// Draft is one broadcast moving through the approval workflow. RawResult
// holds the composer's full result object for the renderer.
type Draft struct {
	ID        string          `json:"id"`
	Payload   Payload         `json:"payload"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Report    *DeliveryReport `json:"report,omitempty"`
	RawResult map[string]any  `json:"raw_result,omitempty"`
	// DeliveryRaw is the sender's raw result object, kept alongside the
	// parsed report so renderers can unpack it like any classified result.
	DeliveryRaw map[string]any `json:"delivery_raw,omitempty"`
}

// parsePayload narrows a composer result object into a Payload.
func parsePayload(result map[string]any) Payload {
	p := Payload{
		Subject:         stringField(result, "subject"),
		Body:            stringField(result, "draft_message"),
		Urgency:         stringField(result, "urgency"),
		ScheduledTime:   stringField(result, "scheduled_time"),
		PreviewText:     stringField(result, "preview_text"),
		ComplianceCheck: stringField(result, "compliance_check"),
	}
	if af, ok := result["audience_filter"].(map[string]any); ok {
		p.AudienceRole = stringField(af, "role")
	}
	p.EstimatedRecipients = intField(result, "estimated_recipients")
	return p
}

// parseReport narrows a sender result object into a DeliveryReport and
// checks the count invariant.
func parseReport(result map[string]any) DeliveryReport {
	r := DeliveryReport{
		BroadcastID:     stringField(result, "broadcast_id"),
		DeliveryStatus:  stringField(result, "delivery_status"),
		TotalRecipients: intField(result, "total_recipients"),
		Delivered:       intField(result, "delivered"),
		Failed:          intField(result, "failed"),
		Pending:         intField(result, "pending"),
		StartedAt:       timeField(result, "delivery_start_time"),
		EndedAt:         timeField(result, "delivery_end_time"),
	}
	if list, ok := result["failed_recipients"].([]any); ok {
		for _, e := range list {
			obj, ok := e.(map[string]any)
			if !ok {
				continue
			}
			r.FailedRecipients = append(r.FailedRecipients, FailedRecipient{
				RecipientID: stringField(obj, "recipient_id"),
				Reason:      stringField(obj, "reason"),
				RetryCount:  intField(obj, "retry_count"),
			})
		}
	}
	r.Inconsistent = r.Delivered+r.Failed+r.Pending != r.TotalRecipients
	return r
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	// JSON numbers decode as float64.
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}

func timeField(m map[string]any, key string) time.Time {
	s, ok := m[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
