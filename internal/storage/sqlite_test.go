package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/orgcopilot/orgcopilot/internal/broadcast"
	"github.com/orgcopilot/orgcopilot/internal/conversation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrations(t *testing.T) {
	s := newTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	if versions[0] != 1 {
		t.Errorf("first version = %d, want 1", versions[0])
	}
}

func TestSaveAndGetTurn(t *testing.T) {
	s := newTestStore(t)

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := TurnRecord{
		ID:          "msg-1",
		SessionID:   "session-abc",
		Author:      "agent",
		Text:        "Room 204 is free at 10am.",
		CreatedAt:   created,
		Kind:        "conversational_answer",
		Confidence:  0.92,
		Intent:      "schedule_query",
		RawJSON:     `{"final_answer":"Room 204 is free at 10am."}`,
		Suggestions: `["Book room 204"]`,
	}
	if err := s.SaveTurn(rec); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	got, err := s.GetTurn("msg-1")
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if got.Text != rec.Text {
		t.Errorf("text = %q, want %q", got.Text, rec.Text)
	}
	if got.Kind != "conversational_answer" {
		t.Errorf("kind = %q", got.Kind)
	}
	if got.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", got.Confidence)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if got.Failed {
		t.Error("failed should round-trip as false")
	}
}

func TestGetTurn_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTurn("msg-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListTurns(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, sess := range []string{"session-a", "session-a", "session-b"} {
		rec := TurnRecord{
			ID:          "msg-" + string(rune('0'+i)),
			SessionID:   sess,
			Author:      "user",
			Text:        "hello",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			Suggestions: "[]",
		}
		if err := s.SaveTurn(rec); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
	}

	bySession, err := s.ListTurns("session-a", 0)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(bySession) != 2 {
		t.Fatalf("session-a turns = %d, want 2", len(bySession))
	}
	if !bySession[0].CreatedAt.Before(bySession[1].CreatedAt) {
		t.Error("turns should come back in creation order")
	}

	all, err := s.ListTurns("", 0)
	if err != nil {
		t.Fatalf("ListTurns all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all turns = %d, want 3", len(all))
	}

	limited, err := s.ListTurns("", 2)
	if err != nil {
		t.Fatalf("ListTurns limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited turns = %d, want 2", len(limited))
	}

	n, err := s.CountTurns()
	if err != nil {
		t.Fatalf("CountTurns: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestSaveBroadcast_Upsert(t *testing.T) {
	s := newTestStore(t)

	rec := BroadcastRecord{
		ID:                  "broadcast-1",
		Subject:             "Exam schedule published",
		Body:                "Exams start Monday.",
		AudienceRole:        "student",
		EstimatedRecipients: 1200,
		Urgency:             "normal",
		Status:              "failed",
		CreatedAt:           time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := s.SaveBroadcast(rec); err != nil {
		t.Fatalf("SaveBroadcast: %v", err)
	}

	// Archiving the same broadcast again updates status and report in place.
	rec.Status = "sent"
	rec.ReportJSON = `{"delivered":98}`
	if err := s.SaveBroadcast(rec); err != nil {
		t.Fatalf("SaveBroadcast upsert: %v", err)
	}

	got, err := s.GetBroadcast("broadcast-1")
	if err != nil {
		t.Fatalf("GetBroadcast: %v", err)
	}
	if got.Status != "sent" {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.ReportJSON != `{"delivered":98}` {
		t.Errorf("report = %q", got.ReportJSON)
	}

	n, err := s.CountBroadcasts()
	if err != nil {
		t.Fatalf("CountBroadcasts: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want a single row after upsert", n)
	}
}

func TestGetBroadcast_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBroadcast("broadcast-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListBroadcasts(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := BroadcastRecord{
			ID:        "broadcast-" + string(rune('a'+i)),
			Subject:   "subject",
			Status:    "sent",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveBroadcast(rec); err != nil {
			t.Fatalf("SaveBroadcast: %v", err)
		}
	}

	all, err := s.ListBroadcasts(0)
	if err != nil {
		t.Fatalf("ListBroadcasts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("broadcasts = %d, want 3", len(all))
	}
	if all[0].ID != "broadcast-a" || all[2].ID != "broadcast-c" {
		t.Errorf("order = %q .. %q", all[0].ID, all[2].ID)
	}

	limited, err := s.ListBroadcasts(1)
	if err != nil {
		t.Fatalf("ListBroadcasts limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited = %d, want 1", len(limited))
	}
}

func TestRecordTurn(t *testing.T) {
	s := newTestStore(t)

	turn := conversation.Turn{
		ID:        "msg-1",
		Author:    conversation.AuthorAgent,
		Text:      "Room 204 is free.",
		CreatedAt: time.Now().UTC(),
		Kind:      "conversational_answer",
		RawResult: map[string]any{
			"final_answer": "Room 204 is free.",
		},
		Suggestions: []string{"Book room 204"},
		Confidence:  0.9,
		Intent:      "schedule_query",
	}
	if err := s.RecordTurn("session-abc", turn); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	got, err := s.GetTurn("msg-1")
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if got.SessionID != "session-abc" {
		t.Errorf("session = %q, want session-abc", got.SessionID)
	}
	if got.RawJSON == "" || got.Suggestions == "" {
		t.Errorf("raw = %q, suggestions = %q, want JSON text", got.RawJSON, got.Suggestions)
	}
}

func TestRecordBroadcast(t *testing.T) {
	s := newTestStore(t)

	d := broadcast.Draft{
		ID: "broadcast-1",
		Payload: broadcast.Payload{
			Subject:             "Exam schedule published",
			Body:                "Exams start Monday.",
			AudienceRole:        "student",
			EstimatedRecipients: 1200,
			Urgency:             "normal",
		},
		Status:    broadcast.StatusSent,
		CreatedAt: time.Now().UTC(),
		Report: &broadcast.DeliveryReport{
			BroadcastID:     "broadcast-1",
			DeliveryStatus:  "completed",
			TotalRecipients: 100,
			Delivered:       100,
		},
	}
	if err := s.RecordBroadcast(d); err != nil {
		t.Fatalf("RecordBroadcast: %v", err)
	}

	got, err := s.GetBroadcast("broadcast-1")
	if err != nil {
		t.Fatalf("GetBroadcast: %v", err)
	}
	if got.Status != "sent" {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.ReportJSON == "" {
		t.Error("expected the report serialized into the record")
	}
	if got.EstimatedRecipients != 1200 {
		t.Errorf("estimated recipients = %d, want 1200", got.EstimatedRecipients)
	}
}
