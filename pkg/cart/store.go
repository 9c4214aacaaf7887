package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"uchef.app/cart-api/pkg/models"
)

const guestOwner = models.GuestOwner

// Store owns the cart of one session. Every operation runs to completion under
// the store mutex, recomputes the total and persists the snapshot for real users.
// Operations never fail: bad input is normalized and storage errors are logged.
type Store struct {
	mu      sync.Mutex
	state   models.Cart
	storage Storage

	newLineID func() string
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the clock used for updatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLineIDs overrides the cart line id generator
func WithLineIDs(next func() string) Option {
	return func(s *Store) { s.newLineID = next }
}

// NewStore returns a store holding an empty guest cart
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		state:     emptyCart(guestOwner),
		storage:   storage,
		newLineID: uuid.NewString,
		now:       time.Now,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	return s
}

func emptyCart(ownerID string) models.Cart {
	return models.Cart{
		Items:  []models.CartItem{},
		UserID: ownerID,
	}
}

func isPersistent(ownerID string) bool {
	return ownerID != "" && ownerID != guestOwner
}

// Snapshot returns a copy of the current cart
func (s *Store) Snapshot() models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Owner returns the owner the current cart belongs to
func (s *Store) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UserID
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ItemCount()
}

// InitializeForUser replaces the cart with the one stored for ownerID, or with an
// empty cart stamped with ownerID when nothing usable is stored.
func (s *Store) InitializeForUser(ctx context.Context, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := strings.TrimSpace(ownerID)
	if !isPersistent(owner) {
		s.state = emptyCart(guestOwner)
		return
	}

	key := RecordKey(owner)
	data, err := s.storage.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNoRecord) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to load cart, starting empty")
		}
		s.state = emptyCart(owner)
		return
	}

	saved, err := decodeRecord(data, owner)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable cart record")
		s.state = emptyCart(owner)
		return
	}
	s.state = saved
}

// HasRestaurantConflict reports whether the cart holds items from a restaurant
// other than candidate.
func (s *Store) HasRestaurantConflict(candidate models.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasConflict(candidate)
}

func (s *Store) hasConflict(candidate models.Identity) bool {
	return len(s.state.Items) > 0 && s.state.RestaurantID != "" && s.state.RestaurantID != candidate
}

// AddItem adds item to the cart attributed to restaurantID. On a restaurant
// conflict the call is a no-op unless override is set, in which case the cart is
// emptied first. Identical (kind, id) lines merge their quantities up to
// MaxLineQuantity.
// It reports whether the item was applied.
func (s *Store) AddItem(ctx context.Context, item models.CartItem, restaurantID models.Identity, restaurantName string, override bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := normalizeItem(item)
	if line.ID == "" || restaurantID == "" {
		s.logger.Debug().Str("restaurant", restaurantID.String()).Msg("ignoring add without item or restaurant identity")
		return false
	}

	if s.hasConflict(restaurantID) {
		if !override {
			return false
		}
		s.state.Items = []models.CartItem{}
	}

	s.state.RestaurantID = restaurantID
	s.state.RestaurantName = restaurantName

	if idx := s.indexOf(line.Kind, line.ID); idx >= 0 {
		existing := s.state.Items[idx].Quantity
		if line.Quantity > MaxLineQuantity-existing {
			s.state.Items[idx].Quantity = MaxLineQuantity
		} else {
			s.state.Items[idx].Quantity = existing + line.Quantity
		}
	} else {
		line.CartItemID = s.newLineID()
		s.state.Items = append(s.state.Items, line)
	}

	s.commit(ctx)
	return true
}

// RemoveItem drops every line addressed by (kind, id). Missing lines are ignored.
func (s *Store) RemoveItem(ctx context.Context, kind models.ItemKind, id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.CartItem, 0, len(s.state.Items))
	for _, item := range s.state.Items {
		if !item.Matches(kind, id) {
			kept = append(kept, item)
		}
	}
	s.state.Items = kept

	s.commit(ctx)
}

// SetQuantity sets the quantity of the line addressed by (kind, id), capped at
// MaxLineQuantity; a quantity of zero or less removes the line.
func (s *Store) SetQuantity(ctx context.Context, kind models.ItemKind, id models.Identity, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.state.Items {
		if !item.Matches(kind, id) {
			continue
		}
		if quantity > 0 {
			s.state.Items[i].Quantity = clampQuantity(quantity)
		} else {
			s.state.Items = append(s.state.Items[:i:i], s.state.Items[i+1:]...)
		}
		break
	}

	s.commit(ctx)
}

// Clear empties the cart but keeps its owner
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Items = []models.CartItem{}
	s.commit(ctx)
}

// OnSessionEnd resets the cart to the empty guest cart and removes the durable
// record of the owner that just left.
func (s *Store) OnSessionEnd(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.state.UserID
	s.state = emptyCart(guestOwner)

	if !isPersistent(prior) {
		return
	}
	key := RecordKey(prior)
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete cart record")
	}
}

func (s *Store) indexOf(kind models.ItemKind, id models.Identity) int {
	for i, item := range s.state.Items {
		if item.Kind == kind && item.ID == id {
			return i
		}
	}
	return -1
}

// commit restores the derived fields and persists the snapshot. Caller holds mu.
func (s *Store) commit(ctx context.Context) {
	if len(s.state.Items) == 0 {
		s.state.RestaurantID = ""
		s.state.RestaurantName = ""
	}
	s.state.Total = computeTotal(s.state.Items)
	s.state.UpdatedAt = s.now().UTC()

	if !isPersistent(s.state.UserID) {
		return
	}

	key := RecordKey(s.state.UserID)
	data, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to encode cart")
		return
	}
	if err := s.storage.Save(ctx, key, data); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to persist cart")
	}
}
