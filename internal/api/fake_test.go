package api

import (
	"context"
	"sync"
	"testing"

	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/session"
	"github.com/visionqa/vqa/internal/stage"
)

type fakeStages struct {
	mu    sync.Mutex
	calls []string

	chatFn     func(message, threadID string) (stage.ChatReply, error)
	generateFn func(req stage.SuiteRequest) (project.Suite, error)
	executeFn  func(req stage.RunRequest) (project.Report, error)
}

func (f *fakeStages) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeStages) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStages) Ingest(_ context.Context, _ project.Form) (stage.UploadAck, error) {
	f.record("ingest")
	return stage.UploadAck{"status": "ok"}, nil
}

func (f *fakeStages) RefreshEmbeddings(_ context.Context, _ []string) error {
	f.record("refresh_embeddings")
	return nil
}

func (f *fakeStages) Chat(_ context.Context, message, threadID string) (stage.ChatReply, error) {
	f.record("chat")
	if f.chatFn != nil {
		return f.chatFn(message, threadID)
	}
	return stage.ChatReply{Response: "answer to " + message, ThreadID: "thread-1"}, nil
}

func (f *fakeStages) GenerateBDD(_ context.Context, req stage.SuiteRequest) (project.Suite, error) {
	f.record("generate_bdd")
	if f.generateFn != nil {
		return f.generateFn(req)
	}
	return project.Suite{"Feature: scoring"}, nil
}

func (f *fakeStages) ExecuteBDD(_ context.Context, req stage.RunRequest) (project.Report, error) {
	f.record("execute_bdd")
	if f.executeFn != nil {
		return f.executeFn(req)
	}
	return project.Report{URL: "https://reports.example.com/run-1.html"}, nil
}

func newTestSession(t *testing.T, stages *fakeStages) (*session.Orchestrator, *kvstore.Memory) {
	t.Helper()
	store := kvstore.NewMemory(0)
	return session.New(store, stages, session.Options{}), store
}

var testDetails = project.APIDetails{
	BaseURL: "https://api.fraud.io/v1",
	Endpoints: []project.Endpoint{
		{Method: "POST", Path: "/transactions/score"},
		{Method: "GET", Path: "/transactions/{id}"},
	},
}
