package conflict

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"uchef.app/cart-api/pkg/models"
)

// Decision is the user's answer to a restaurant-change prompt
type Decision int

const (
	Cancelled Decision = iota
	Confirmed
)

func (d Decision) String() string {
	if d == Confirmed {
		return "confirmed"
	}
	return "cancelled"
}

// Prompt is what the user is asked before their cart is replaced
type Prompt struct {
	ID                    string `json:"promptId"`
	CurrentRestaurantName string `json:"currentRestaurantName"`
	NewRestaurantName     string `json:"newRestaurantName"`
}

// Confirmer presents a prompt and answers asynchronously. The channel yields a
// single decision; a closed channel counts as a dismissal.
type Confirmer interface {
	Confirm(ctx context.Context, prompt Prompt) <-chan Decision
}

// ConfirmFunc adapts a blocking function to a Confirmer
type ConfirmFunc func(ctx context.Context, prompt Prompt) Decision

func (f ConfirmFunc) Confirm(ctx context.Context, prompt Prompt) <-chan Decision {
	ch := make(chan Decision, 1)
	go func() {
		ch <- f(ctx, prompt)
	}()
	return ch
}

// CartStore is the part of the cart store the workflow drives
type CartStore interface {
	Snapshot() models.Cart
	HasRestaurantConflict(candidate models.Identity) bool
	AddItem(ctx context.Context, item models.CartItem, restaurantID models.Identity, restaurantName string, override bool) bool
}

// Result is the outcome of one add attempt
type Result struct {
	Added    bool   `json:"added"`
	Prompted bool   `json:"prompted"`
	Decision string `json:"decision,omitempty"`
}

// Attempt tracks one add-to-cart intent. The caller owns the pending payload:
// nothing is queued in the store while the prompt is open.
type Attempt struct {
	Prompt *Prompt
	done   chan Result
}

// Done yields the result once the attempt is settled
func (a *Attempt) Done() <-chan Result {
	return a.done
}

// Conflicted reports whether the attempt is waiting on a confirmation
func (a *Attempt) Conflicted() bool {
	return a.Prompt != nil
}

func settled(res Result) *Attempt {
	a := &Attempt{done: make(chan Result, 1)}
	a.done <- res
	return a
}

// Workflow inserts a confirmation step in front of AddItem when the cart holds
// another restaurant's items.
type Workflow struct {
	store     CartStore
	confirmer Confirmer
	logger    zerolog.Logger
}

func NewWorkflow(store CartStore, confirmer Confirmer) *Workflow {
	return &Workflow{store: store, confirmer: confirmer, logger: log.Logger}
}

func (w *Workflow) WithLogger(logger zerolog.Logger) *Workflow {
	w.logger = logger
	return w
}

// Add adds item unless the cart belongs to another restaurant, in which case the
// user is asked first. ctx bounds the wait: when it ends the prompt counts as
// dismissed. Concurrent attempts are not deduplicated.
func (w *Workflow) Add(ctx context.Context, item models.CartItem, restaurantID models.Identity, restaurantName string) *Attempt {
	current := w.store.Snapshot()
	if len(current.Items) == 0 || !w.store.HasRestaurantConflict(restaurantID) {
		added := w.store.AddItem(ctx, item, restaurantID, restaurantName, false)
		return settled(Result{Added: added})
	}

	prompt := Prompt{
		ID:                    uuid.NewString(),
		CurrentRestaurantName: current.RestaurantName,
		NewRestaurantName:     restaurantName,
	}
	decisions := w.confirmer.Confirm(ctx, prompt)

	attempt := &Attempt{Prompt: &prompt, done: make(chan Result, 1)}
	go func() {
		decision := Cancelled
		select {
		case d, ok := <-decisions:
			if ok {
				decision = d
			}
		case <-ctx.Done():
		}

		res := Result{Prompted: true, Decision: decision.String()}
		if decision == Confirmed {
			res.Added = w.store.AddItem(context.WithoutCancel(ctx), item, restaurantID, restaurantName, true)
		}
		w.logger.Debug().
			Str("prompt", prompt.ID).
			Str("decision", res.Decision).
			Bool("added", res.Added).
			Msg("restaurant change settled")
		attempt.done <- res
	}()

	return attempt
}
