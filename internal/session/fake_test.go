package session

import (
	"context"
	"sync"

	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/stage"
)

// fakeStages records every call; unset functions succeed with zero values.
type fakeStages struct {
	mu    sync.Mutex
	calls []string

	ingestFn   func(ctx context.Context, form project.Form) (stage.UploadAck, error)
	refreshFn  func(ctx context.Context, urls []string) error
	chatFn     func(ctx context.Context, message, threadID string) (stage.ChatReply, error)
	generateFn func(ctx context.Context, req stage.SuiteRequest) (project.Suite, error)
	executeFn  func(ctx context.Context, req stage.RunRequest) (project.Report, error)
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

func (f *fakeStages) Ingest(ctx context.Context, form project.Form) (stage.UploadAck, error) {
	f.record("ingest")
	if f.ingestFn != nil {
		return f.ingestFn(ctx, form)
	}
	return stage.UploadAck{"status": "ok"}, nil
}

func (f *fakeStages) RefreshEmbeddings(ctx context.Context, urls []string) error {
	f.record("refresh_embeddings")
	if f.refreshFn != nil {
		return f.refreshFn(ctx, urls)
	}
	return nil
}

func (f *fakeStages) Chat(ctx context.Context, message, threadID string) (stage.ChatReply, error) {
	f.record("chat")
	if f.chatFn != nil {
		return f.chatFn(ctx, message, threadID)
	}
	return stage.ChatReply{Response: "ok", ThreadID: "thread-1"}, nil
}

func (f *fakeStages) GenerateBDD(ctx context.Context, req stage.SuiteRequest) (project.Suite, error) {
	f.record("generate_bdd")
	if f.generateFn != nil {
		return f.generateFn(ctx, req)
	}
	return project.Suite{"Feature: default"}, nil
}

func (f *fakeStages) ExecuteBDD(ctx context.Context, req stage.RunRequest) (project.Report, error) {
	f.record("execute_bdd")
	if f.executeFn != nil {
		return f.executeFn(ctx, req)
	}
	return project.Report{URL: "https://reports/default.html"}, nil
}

func transportError(name stage.Name) error {
	return &stage.StageError{Stage: name, Kind: stage.KindTransport, Status: 503, Cause: context.DeadlineExceeded}
}
