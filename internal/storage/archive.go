package storage

import (
	"encoding/json"
	"fmt"

	"github.com/orgcopilot/orgcopilot/internal/broadcast"
	"github.com/orgcopilot/orgcopilot/internal/conversation"
)

// RecordTurn satisfies conversation.Recorder.
func (s *Store) RecordTurn(sessionID string, t conversation.Turn) error {
	rec := TurnRecord{
		ID:          t.ID,
		SessionID:   sessionID,
		Author:      string(t.Author),
		Text:        t.Text,
		CreatedAt:   t.CreatedAt,
		Failed:      t.Failed,
		Kind:        string(t.Kind),
		Confidence:  t.Confidence,
		Intent:      t.Intent,
		Suggestions: "[]",
	}
	if t.RawResult != nil {
		b, err := json.Marshal(t.RawResult)
		if err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}
		rec.RawJSON = string(b)
	}
	if len(t.Suggestions) > 0 {
		b, err := json.Marshal(t.Suggestions)
		if err != nil {
			return fmt.Errorf("marshalling suggestions: %w", err)
		}
		rec.Suggestions = string(b)
	}
	return s.SaveTurn(rec)
}

// RecordBroadcast satisfies broadcast.Recorder.
func (s *Store) RecordBroadcast(d broadcast.Draft) error {
	rec := BroadcastRecord{
		ID:                  d.ID,
		Subject:             d.Payload.Subject,
		Body:                d.Payload.Body,
		AudienceRole:        d.Payload.AudienceRole,
		EstimatedRecipients: d.Payload.EstimatedRecipients,
		Urgency:             d.Payload.Urgency,
		Status:              string(d.Status),
		CreatedAt:           d.CreatedAt,
	}
	if d.Report != nil {
		b, err := json.Marshal(d.Report)
		if err != nil {
			return fmt.Errorf("marshalling report: %w", err)
		}
		rec.ReportJSON = string(b)
	}
	return s.SaveBroadcast(rec)
}
