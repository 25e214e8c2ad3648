package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/visionqa/vqa/internal/kvstore"
)

// SectionAPISchema is the summary section the execution stage reads its
// schema from.
const SectionAPISchema = "API Schema"

const summaryPromptFormat = `Generate a detailed project summary for my %s API with the following structured format:

**Title:** Provide a concise, meaningful title.

**Project Summary:** Give a well-defined overview of the API, explaining its purpose, core functionality, and key features.

**Endpoints:** List the API endpoints in a structured format, including HTTP methods, paths, and their descriptions.

**Sample BDD Test Cases:** Provide at least three well-structured BDD test cases formatted with Given-When-Then statements.

**API Schema:** Define a clear JSON schema including attributes, types, and descriptions.

Ensure that the response is formatted in markdown with proper structuring. Do not include extra explanations outside the summary.`

const apiDetailsPromptFormat = "Extract the base URL and all API endpoints for the '%s API'. " +
	"Return it in this format: base_url: {base_url}, endpoints: {endpoint1, endpoint2, ...}"

func summaryPrompt(app string) string    { return fmt.Sprintf(summaryPromptFormat, app) }
func apiDetailsPrompt(app string) string { return fmt.Sprintf(apiDetailsPromptFormat, app) }

// threadSlot is a named thread-id slot. The first thread id offered wins;
// later ones are ignored.
type threadSlot struct {
	store  kvstore.Store
	key    string
	logger *slog.Logger
}

func (s threadSlot) get() string {
	id, _ := kvstore.Load[string](s.store, s.key)
	return id
}

func (s threadSlot) offer(id string) {
	if id == "" {
		return
	}
	if _, err := s.store.SetIfAbsent(s.key, id); err != nil {
		s.logger.Warn("storing thread id", "slot", s.key, "error", err)
	}
}

// ask sends one chat message on the slot's thread.
func ask(ctx context.Context, stages Stages, slot threadSlot, message string) (string, error) {
	reply, err := stages.Chat(ctx, message, slot.get())
	if err != nil {
		return "", err
	}
	slot.offer(reply.ThreadID)
	return reply.Response, nil
}
