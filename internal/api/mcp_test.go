package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/stage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, stages *fakeStages) (MCPDeps, *kvstore.Memory) {
	t.Helper()
	sess, store := newTestSession(t, stages)
	return MCPDeps{Session: sess, Version: "test"}, store
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

const summaryReply = "**Title:** Fraud Detection\n**Project Summary:**\nScores card transactions.\n**API Schema:**\n{\"amount\": \"number\"}"

// --- tests ---

func TestMCPTool_Chat(t *testing.T) {
	stages := &fakeStages{}
	deps, _ := newTestMCPDeps(t, stages)
	handler := mcpChat(deps)

	result, err := handler(context.Background(), makeCallToolRequest("chat", map[string]interface{}{
		"message": "What does the API do?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "answer to What does the API do?" {
		t.Fatalf("unexpected answer: %s", text)
	}
	if deps.Session.Chat.ThreadID() != "thread-1" {
		t.Fatalf("thread id not stored: %q", deps.Session.Chat.ThreadID())
	}
}

func TestMCPTool_Chat_MissingMessage(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeStages{})
	handler := mcpChat(deps)

	for _, args := range []map[string]interface{}{{}, {"message": "  "}} {
		result, err := handler(context.Background(), makeCallToolRequest("chat", args))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Fatalf("expected error result for %v", args)
		}
	}
}

func TestMCPTool_Chat_StageError(t *testing.T) {
	stages := &fakeStages{chatFn: func(_, _ string) (stage.ChatReply, error) {
		return stage.ChatReply{}, &stage.StageError{Stage: stage.StageChat, Kind: stage.KindTransport, Cause: errors.New("connection refused")}
	}}
	deps, _ := newTestMCPDeps(t, stages)

	result, err := mcpChat(deps)(context.Background(), makeCallToolRequest("chat", map[string]interface{}{"message": "hi"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(toolText(t, result), "connection refused") {
		t.Fatalf("expected cause in message, got: %s", toolText(t, result))
	}
}

func TestMCPTool_ProjectSummary(t *testing.T) {
	var calls int
	stages := &fakeStages{chatFn: func(_, _ string) (stage.ChatReply, error) {
		calls++
		return stage.ChatReply{Response: summaryReply, ThreadID: "onb-1"}, nil
	}}
	deps, store := newTestMCPDeps(t, stages)
	store.Set(kvstore.KeyProjectName, "Fraud Detection")
	handler := mcpProjectSummary(deps)

	result, err := handler(context.Background(), makeCallToolRequest("project_summary", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "## Project Summary\nScores card transactions.") {
		t.Fatalf("unexpected summary: %s", text)
	}

	// Cached.
	handler(context.Background(), makeCallToolRequest("project_summary", nil))
	if calls != 1 {
		t.Fatalf("expected 1 chat call, got %d", calls)
	}

	handler(context.Background(), makeCallToolRequest("project_summary", map[string]interface{}{"refresh": true}))
	if calls != 2 {
		t.Fatalf("expected refresh to refetch, got %d calls", calls)
	}
}

func TestMCPTool_ProjectSummary_Precondition(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeStages{})

	result, err := mcpProjectSummary(deps)(context.Background(), makeCallToolRequest("project_summary", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error without a project name")
	}
}

func TestMCPTool_APIDetails_Cached(t *testing.T) {
	stages := &fakeStages{}
	deps, store := newTestMCPDeps(t, stages)
	store.Set(kvstore.KeyAPIDetails, testDetails)

	result, err := mcpAPIDetails(deps)(context.Background(), makeCallToolRequest("api_details", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got project.APIDetails
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.BaseURL != testDetails.BaseURL || len(got.Endpoints) != 2 {
		t.Fatalf("unexpected details: %+v", got)
	}
	if len(stages.Calls()) != 0 {
		t.Fatalf("cached read hit the network: %v", stages.Calls())
	}
}

func TestMCPTool_GenerateAndRunBDD(t *testing.T) {
	stages := &fakeStages{}
	deps, store := newTestMCPDeps(t, stages)

	result, _ := mcpRunBDD(deps)(context.Background(), makeCallToolRequest("run_bdd", nil))
	if !result.IsError {
		t.Fatal("expected run_bdd to fail without a suite")
	}

	store.Set(kvstore.KeyProjectName, "Fraud Detection")
	store.Set(kvstore.KeyAPIDetails, testDetails)
	store.Set(kvstore.KeyProjectSummary, project.NewSummary(
		project.Section{Title: "API Schema", Body: `{"amount":"number"}`},
	))

	result, err := mcpGenerateBDD(deps)(context.Background(), makeCallToolRequest("generate_bdd", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || toolText(t, result) != "Feature: scoring" {
		t.Fatalf("unexpected generate result: %s", toolText(t, result))
	}

	result, err = mcpRunBDD(deps)(context.Background(), makeCallToolRequest("run_bdd", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || toolText(t, result) != "https://reports.example.com/run-1.html" {
		t.Fatalf("unexpected run result: %s", toolText(t, result))
	}
}

func TestMCPResource_Session(t *testing.T) {
	deps, store := newTestMCPDeps(t, &fakeStages{})
	store.Set(kvstore.KeyProjectName, "Fraud Detection")
	store.Put("garbage", "{not json")

	contents, err := mcpResourceSession(deps)(context.Background(), makeReadResourceRequest("vqa://session"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "vqa://session" || tc.MIMEType != "application/json" {
		t.Fatalf("unexpected resource meta: %s %s", tc.URI, tc.MIMEType)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &entries); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if string(entries[kvstore.KeyProjectName]) != `"Fraud Detection"` {
		t.Fatalf("unexpected project_name entry: %s", entries[kvstore.KeyProjectName])
	}
	if _, ok := entries["garbage"]; ok {
		t.Fatal("invalid entry should be omitted")
	}
}

func TestMCPResource_Chat(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeStages{})
	mcpChat(deps)(context.Background(), makeCallToolRequest("chat", map[string]interface{}{"message": "hi"}))

	contents, err := mcpResourceChat(deps)(context.Background(), makeReadResourceRequest("vqa://chat"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	var turns []map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &turns); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(turns) != 1 || turns[0]["user"] != "hi" || turns[0]["ai"] != "answer to hi" {
		t.Fatalf("unexpected turns: %v", turns)
	}
}

func TestMCPServer_ConcurrentChats(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeStages{})
	s := NewMCPServer(deps)
	if s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	handler := mcpChat(deps)

	var wg sync.WaitGroup
	errs := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := handler(context.Background(), makeCallToolRequest("chat", map[string]interface{}{"message": "ping"}))
			if err != nil {
				errs <- err.Error()
				return
			}
			if result.IsError {
				// Overlapping sends may supersede each other.
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("unexpected error: %s", e)
	}

	if n := len(deps.Session.Chat.Snapshot()); n != 10 {
		t.Fatalf("expected 10 turns, got %d", n)
	}
}
