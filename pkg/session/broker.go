package session

import (
	"context"
	"errors"
	"sync"

	"uchef.app/cart-api/pkg/conflict"
)

var ErrPromptNotFound = errors.New("session: prompt not found")

type pendingPrompt struct {
	prompt   conflict.Prompt
	decision chan conflict.Decision
	stop     func() bool
}

// PromptBroker holds restaurant-change prompts until the client answers them.
// It satisfies conflict.Confirmer.
type PromptBroker struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
	order   []string
}

func NewPromptBroker() *PromptBroker {
	return &PromptBroker{pending: make(map[string]*pendingPrompt)}
}

// Confirm registers prompt and returns the channel its answer arrives on. The
// prompt is dropped when ctx ends.
func (b *PromptBroker) Confirm(ctx context.Context, prompt conflict.Prompt) <-chan conflict.Decision {
	p := &pendingPrompt{
		prompt:   prompt,
		decision: make(chan conflict.Decision, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[prompt.ID] = p
	b.order = append(b.order, prompt.ID)
	p.stop = context.AfterFunc(ctx, func() {
		b.dismiss(prompt.ID)
	})
	return p.decision
}

// Resolve delivers the answer for prompt id
func (b *PromptBroker) Resolve(id string, decision conflict.Decision) error {
	b.mu.Lock()
	p, ok := b.take(id)
	b.mu.Unlock()
	if !ok {
		return ErrPromptNotFound
	}

	if p.stop != nil {
		p.stop()
	}
	p.decision <- decision
	close(p.decision)
	return nil
}

// Pending lists the open prompts, oldest first
func (b *PromptBroker) Pending() []conflict.Prompt {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]conflict.Prompt, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.pending[id].prompt)
	}
	return out
}

// DismissAll closes every open prompt without an answer
func (b *PromptBroker) DismissAll() {
	b.mu.Lock()
	dropped := make([]*pendingPrompt, 0, len(b.order))
	for _, id := range b.order {
		dropped = append(dropped, b.pending[id])
	}
	b.pending = make(map[string]*pendingPrompt)
	b.order = nil
	b.mu.Unlock()

	for _, p := range dropped {
		if p.stop != nil {
			p.stop()
		}
		close(p.decision)
	}
}

func (b *PromptBroker) dismiss(id string) {
	b.mu.Lock()
	p, ok := b.take(id)
	b.mu.Unlock()
	if ok {
		close(p.decision)
	}
}

// take removes id from the registry. Caller holds mu.
func (b *PromptBroker) take(id string) (*pendingPrompt, bool) {
	p, ok := b.pending[id]
	if !ok {
		return nil, false
	}
	delete(b.pending, id)
	for i, pid := range b.order {
		if pid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return p, true
}
