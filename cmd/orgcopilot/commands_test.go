package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/orgcopilot/orgcopilot/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat": `{"id":"turn-1","author":"agent","text":"Room 204 is free at 10am.","kind":"conversational_answer"}`,
	})

	client := ts.client()
	resp, err := client.post("/chat", map[string]any{"text": "what rooms are free?", "role": "faculty"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var turn struct {
		Text string `json:"text"`
		Kind string `json:"kind"`
	}
	if err := decodeJSON(resp, &turn); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if turn.Text != "Room 204 is free at 10am." {
		t.Errorf("text = %q", turn.Text)
	}
	if turn.Kind != "conversational_answer" {
		t.Errorf("kind = %q, want conversational_answer", turn.Kind)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "what rooms are free?" {
		t.Errorf("body.text = %v", body["text"])
	}
	if body["role"] != "faculty" {
		t.Errorf("body.role = %v, want faculty", body["role"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestBroadcastDraftRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /broadcasts": `{"id":"broadcast-1","status":"draft","payload":{"subject":"Exam schedule","body":"...","audience_role":"student","estimated_recipients":1200,"urgency":"normal"}}`,
	})

	client := ts.client()
	resp, err := client.post("/broadcasts", map[string]any{"text": "announce the exam schedule", "role": "admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var d draftView
	if err := decodeJSON(resp, &d); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if d.ID != "broadcast-1" {
		t.Errorf("id = %q, want broadcast-1", d.ID)
	}
	if d.Status != "draft" {
		t.Errorf("status = %q, want draft", d.Status)
	}
	if d.Payload.Subject != "Exam schedule" {
		t.Errorf("subject = %q", d.Payload.Subject)
	}
	if d.Payload.EstimatedRecipients != 1200 {
		t.Errorf("estimated_recipients = %d, want 1200", d.Payload.EstimatedRecipients)
	}
}

func TestBroadcastApproveResponse(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /broadcasts/broadcast-1/approve": `{"id":"broadcast-1","status":"sent","payload":{"subject":"Exam schedule"},"report":{"delivery_status":"completed","total_recipients":100,"delivered":98,"failed":2,"pending":0}}`,
	})

	client := ts.client()
	resp, err := client.post("/broadcasts/broadcast-1/approve", map[string]any{"role": "principal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var d draftView
	if err := decodeJSON(resp, &d); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if d.Status != "sent" {
		t.Errorf("status = %q, want sent", d.Status)
	}
	if d.Report == nil {
		t.Fatal("expected a delivery report")
	}
	if d.Report.Delivered != 98 {
		t.Errorf("delivered = %d, want 98", d.Report.Delivered)
	}
}

func TestBroadcastRejectRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /broadcasts/broadcast-1": `{"status":"rejected"}`,
	})

	client := ts.client()
	resp, err := client.delete("/broadcasts/broadcast-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "rejected" {
		t.Errorf("status = %q, want rejected", result["status"])
	}

	if len(ts.requests) != 1 || ts.requests[0].Method != "DELETE" {
		t.Fatalf("expected a single DELETE request, got %+v", ts.requests)
	}
}

func TestHistoryRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /history": `[{"id":"turn-1","author":"user","text":"hello","created_at":"2025-01-01T00:00:00Z"},{"id":"turn-2","author":"agent","text":"Hi! How can I help?","created_at":"2025-01-01T00:00:01Z"}]`,
	})

	client := ts.client()
	resp, err := client.get("/history?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var turns []struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	}
	if err := decodeJSON(resp, &turns); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Author != "user" || turns[1].Author != "agent" {
		t.Errorf("authors = %q, %q", turns[0].Author, turns[1].Author)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get("/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get("/history")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Agents.Router = "router-1"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
