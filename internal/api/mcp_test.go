package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/orgcopilot/orgcopilot/internal/agent"
	"github.com/orgcopilot/orgcopilot/internal/broadcast"
	"github.com/orgcopilot/orgcopilot/internal/conversation"
)

// --- helpers ---

func newTestMCPDeps(handlers map[string]func(string, agent.CallContext) (*agent.Envelope, error)) MCPDeps {
	inv := &mockInvoker{handlers: handlers}
	return MCPDeps{
		Pipeline: conversation.NewPipeline(inv, conversation.AgentIDs{
			Router:       routerID,
			Orchestrator: orchestratorID,
		}, conversation.NewStore(), nil, nil),
		Workflow: broadcast.NewWorkflow(inv, broadcast.AgentIDs{
			Composer: composerID,
			Sender:   senderID,
		}, broadcast.NewStore(), nil, nil),
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_Ask(t *testing.T) {
	deps := newTestMCPDeps(map[string]func(string, agent.CallContext) (*agent.Envelope, error){
		routerID: success(map[string]any{"intent": "schedule_query"}),
		orchestratorID: success(map[string]any{
			"final_answer": "Room 204 is free.",
		}),
	})
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"text": "what rooms are free?",
		"role": "faculty",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var turn conversation.Turn
	if err := json.Unmarshal([]byte(toolText(t, result)), &turn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if turn.Text != "Room 204 is free." {
		t.Errorf("text = %q", turn.Text)
	}
	if turn.Intent != "schedule_query" {
		t.Errorf("intent = %q", turn.Intent)
	}
}

func TestMCPTool_Ask_MissingText(t *testing.T) {
	deps := newTestMCPDeps(nil)
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing text")
	}
}

func TestMCPTool_ComposeAndApprove(t *testing.T) {
	deps := newTestMCPDeps(map[string]func(string, agent.CallContext) (*agent.Envelope, error){
		composerID: success(composerResult()),
		senderID:   success(senderResult()),
	})

	composeResult, err := mcpComposeBroadcast(deps)(context.Background(),
		makeCallToolRequest("compose_broadcast", map[string]interface{}{
			"text": "announce the exam schedule",
			"role": "admin",
		}))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if composeResult.IsError {
		t.Fatalf("compose tool error: %s", toolText(t, composeResult))
	}

	var d broadcast.Draft
	if err := json.Unmarshal([]byte(toolText(t, composeResult)), &d); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if d.Status != broadcast.StatusDraft {
		t.Errorf("status = %q, want draft", d.Status)
	}

	approveResult, err := mcpApproveBroadcast(deps)(context.Background(),
		makeCallToolRequest("approve_broadcast", map[string]interface{}{
			"id":   d.ID,
			"role": "principal",
		}))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approveResult.IsError {
		t.Fatalf("approve tool error: %s", toolText(t, approveResult))
	}

	var sent broadcast.Draft
	if err := json.Unmarshal([]byte(toolText(t, approveResult)), &sent); err != nil {
		t.Fatalf("decode sent draft: %v", err)
	}
	if sent.Status != broadcast.StatusSent {
		t.Errorf("status = %q, want sent", sent.Status)
	}

	// The delivery notice reaches the conversation.
	history := deps.Pipeline.History(0)
	if len(history) != 1 || history[0].Text != sentNoticeText {
		t.Errorf("history = %+v, want the delivery notice", history)
	}
}

func TestMCPTool_ApproveMissing(t *testing.T) {
	deps := newTestMCPDeps(nil)

	result, err := mcpApproveBroadcast(deps)(context.Background(),
		makeCallToolRequest("approve_broadcast", map[string]interface{}{"id": "broadcast-missing"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing broadcast")
	}
}

func TestMCPTool_Reject(t *testing.T) {
	deps := newTestMCPDeps(map[string]func(string, agent.CallContext) (*agent.Envelope, error){
		composerID: success(composerResult()),
	})

	d, err := deps.Workflow.Compose(context.Background(), "announce", "user-admin")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	result, err := mcpRejectBroadcast(deps)(context.Background(),
		makeCallToolRequest("reject_broadcast", map[string]interface{}{"id": d.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	if got := len(deps.Workflow.List("")); got != 0 {
		t.Errorf("remaining broadcasts = %d, want 0 after reject", got)
	}
}

func TestMCPTool_ListBroadcasts(t *testing.T) {
	deps := newTestMCPDeps(map[string]func(string, agent.CallContext) (*agent.Envelope, error){
		composerID: success(composerResult()),
	})

	if _, err := deps.Workflow.Compose(context.Background(), "announce", "user-admin"); err != nil {
		t.Fatalf("compose: %v", err)
	}

	result, err := mcpListBroadcasts(deps)(context.Background(),
		makeCallToolRequest("list_broadcasts", map[string]interface{}{"status": "draft"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var drafts []broadcast.Draft
	if err := json.Unmarshal([]byte(toolText(t, result)), &drafts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("drafts = %d, want 1", len(drafts))
	}

	// Filtering by a status nothing holds yields an empty array.
	result, err = mcpListBroadcasts(deps)(context.Background(),
		makeCallToolRequest("list_broadcasts", map[string]interface{}{"status": "sent"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Errorf("sent filter = %q, want []", text)
	}
}

func TestMCPResource_History(t *testing.T) {
	deps := newTestMCPDeps(map[string]func(string, agent.CallContext) (*agent.Envelope, error){
		routerID:       success(map[string]any{}),
		orchestratorID: success(map[string]any{"final_answer": "hi"}),
	})

	if _, err := deps.Pipeline.Submit(context.Background(), "hello", "user-student"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	contents, err := mcpResourceHistory(deps)(context.Background(), makeReadResourceRequest("conversation://history"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var turns []conversation.Turn
	if err := json.Unmarshal([]byte(tc.Text), &turns); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("turns = %d, want 2", len(turns))
	}
}
