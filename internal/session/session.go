// Package session orchestrates a user's journey through the pipeline:
// onboarding, chat, the project summary, and BDD generation and execution.
// It owns every read and write of the key/value store and enforces the
// dependency order between stages.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/parser"
	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/stage"
)

// Stages is the remote pipeline. *stage.Client implements it.
type Stages interface {
	Ingest(ctx context.Context, form project.Form) (stage.UploadAck, error)
	RefreshEmbeddings(ctx context.Context, urls []string) error
	Chat(ctx context.Context, message, threadID string) (stage.ChatReply, error)
	GenerateBDD(ctx context.Context, req stage.SuiteRequest) (project.Suite, error)
	ExecuteBDD(ctx context.Context, req stage.RunRequest) (project.Report, error)
}

// Options configures an Orchestrator.
type Options struct {
	// AppName overrides the stored project name in prompts and BDD requests.
	AppName   string
	Extractor parser.Extractor
	Logger    *slog.Logger
}

// Orchestrator bundles the onboarding wizard, the chat session and the
// summary/reports pipeline over one store.
type Orchestrator struct {
	store kvstore.Store

	Chat     *ChatSession
	Pipeline *Pipeline
	wizard   *Wizard
}

// New creates an Orchestrator, rehydrating state from store.
func New(store kvstore.Store, stages Stages, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = parser.Regex{}
	}
	return &Orchestrator{
		store:    store,
		Chat:     newChatSession(store, stages, opts.Logger),
		Pipeline: newPipeline(store, stages, opts),
		wizard:   newWizard(store, stages, opts.Logger),
	}
}

// Wizard returns the onboarding wizard.
func (o *Orchestrator) Wizard() *Wizard { return o.wizard }

// Export returns every stored entry. Entries that are not valid JSON are
// omitted.
func (o *Orchestrator) Export() (map[string]json.RawMessage, error) {
	keys, err := o.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if raw, ok := o.store.Get(k); ok {
			out[k] = raw
		}
	}
	return out, nil
}

// Clear wipes the store and every in-memory view of it.
func (o *Orchestrator) Clear() error {
	if err := o.store.Clear(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	o.Chat.forget()
	o.Pipeline.forget()
	o.wizard.forget()
	return nil
}
