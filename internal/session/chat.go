package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/visionqa/vqa/internal/kvstore"
)

// Placeholder answers shown in a chat turn.
const (
	PendingAnswer = "..."
	ErrorAnswer   = "Error retrieving response. Try again."
	EmptyAnswer   = "No response received"
)

// Turn is one question/answer exchange.
type Turn struct {
	Question   string `json:"user"`
	Answer     string `json:"ai"`
	Pending    bool   `json:"pending,omitempty"`
	Superseded bool   `json:"superseded,omitempty"`

	seq uint64
}

// ChatSession is the free-form chat against the project's knowledge base.
// Only the thread id carries context between turns.
type ChatSession struct {
	store  kvstore.Store
	stages Stages
	thread threadSlot
	logger *slog.Logger

	mu    sync.Mutex
	turns []Turn
	seq   uint64
}

func newChatSession(store kvstore.Store, stages Stages, logger *slog.Logger) *ChatSession {
	c := &ChatSession{
		store:  store,
		stages: stages,
		thread: threadSlot{store: store, key: kvstore.KeyChatThread, logger: logger},
		logger: logger,
	}
	if turns, ok := kvstore.Load[[]Turn](store, kvstore.KeyChatHistory); ok {
		for i := range turns {
			// A turn left pending by a previous process will never settle.
			if turns[i].Pending {
				turns[i].Pending = false
				turns[i].Answer = ErrorAnswer
			}
		}
		c.turns = turns
	}
	return c
}

// Send asks one question. A blank message is ignored and returns ok=false.
// A stage failure is not returned as an error: the turn's answer becomes
// ErrorAnswer and the cause is reported in err for logging.
func (c *ChatSession) Send(ctx context.Context, message string) (turn Turn, ok bool, err error) {
	if strings.TrimSpace(message) == "" {
		return Turn{}, false, nil
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.turns = append(c.turns[:len(c.turns):len(c.turns)], Turn{
		Question: message,
		Answer:   PendingAnswer,
		Pending:  true,
		seq:      seq,
	})
	c.persist()
	c.mu.Unlock()

	reply, stageErr := ask(ctx, c.stages, c.thread, message)

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.find(seq)
	if idx < 0 {
		// Reset while in flight.
		return Turn{Question: message, Answer: reply}, true, stageErr
	}

	// Copy so earlier snapshots never observe the settle.
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	t := &turns[idx]
	t.Pending = false
	switch {
	case seq != c.seq:
		c.logger.Debug("discarding superseded chat reply", "seq", seq, "latest", c.seq)
		t.Superseded = true
		t.Answer = ""
	case stageErr != nil:
		t.Answer = ErrorAnswer
	case reply == "":
		t.Answer = EmptyAnswer
	default:
		t.Answer = reply
	}
	c.turns = turns
	c.persist()
	return *t, true, stageErr
}

func (c *ChatSession) find(seq uint64) int {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].seq == seq {
			return i
		}
	}
	return -1
}

func (c *ChatSession) persist() {
	if err := c.store.Set(kvstore.KeyChatHistory, c.turns); err != nil {
		c.logger.Warn("saving chat history", "error", err)
	}
}

// Snapshot returns a copy of the conversation.
func (c *ChatSession) Snapshot() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Latest returns the newest turn that was not superseded.
func (c *ChatSession) Latest() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if !c.turns[i].Superseded {
			return c.turns[i], true
		}
	}
	return Turn{}, false
}

// ThreadID returns the stored chat thread id, if any.
func (c *ChatSession) ThreadID() string { return c.thread.get() }

// Reset clears the history and the chat thread. Replies still in flight are
// dropped when they arrive.
func (c *ChatSession) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.turns = nil
	if err := c.store.Remove(kvstore.KeyChatHistory); err != nil {
		return err
	}
	return c.store.Remove(kvstore.KeyChatThread)
}

func (c *ChatSession) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.turns = nil
}
