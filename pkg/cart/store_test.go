package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uchef.app/cart-api/pkg/models"
)

type failingStorage struct {
	loadErr, saveErr, deleteErr error
	saves, deletes              int
}

func (f *failingStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, f.loadErr
}

func (f *failingStorage) Save(ctx context.Context, key string, data []byte) error {
	f.saves++
	return f.saveErr
}

func (f *failingStorage) Delete(ctx context.Context, key string) error {
	f.deletes++
	return f.deleteErr
}

func newTestStore(t *testing.T, storage Storage) *Store {
	t.Helper()
	n := 0
	return NewStore(storage,
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		WithLineIDs(func() string {
			n++
			return fmt.Sprintf("line-%d", n)
		}),
	)
}

func regular(id string, price float64) models.CartItem {
	return models.CartItem{Kind: models.KindRegular, ID: models.Identity(id), Name: "meal " + id, Price: price}
}

func assertInvariants(t *testing.T, c models.Cart) {
	t.Helper()
	assert.Equal(t, computeTotal(c.Items), c.Total, "total must equal sum of lines")
	if len(c.Items) == 0 {
		assert.Empty(t, c.RestaurantID)
		assert.Empty(t, c.RestaurantName)
	} else {
		assert.NotEmpty(t, c.RestaurantID)
	}
	seen := map[string]bool{}
	for _, item := range c.Items {
		key := string(item.Kind) + "/" + string(item.ID)
		assert.False(t, seen[key], "duplicate line %s", key)
		seen[key] = true
		assert.Positive(t, item.Quantity)
	}
}

func TestAddItemToEmptyCart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	applied := s.AddItem(ctx, regular("42", 10), "1", "Pizza Place", false)
	require.True(t, applied)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.Identity("42"), c.Items[0].ID)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, "line-1", c.Items[0].CartItemID)
	assert.Equal(t, 10.0, c.Total)
	assert.Equal(t, models.Identity("1"), c.RestaurantID)
	assert.Equal(t, "Pizza Place", c.RestaurantName)
	assertInvariants(t, c)
}

func TestAddItemMergesSameLine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	item := regular("42", 7.5)
	item.Quantity = 3
	s.AddItem(ctx, item, "1", "Pizza Place", false)
	s.AddItem(ctx, item, "1", "Pizza Place", false)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 6, c.Items[0].Quantity)
	assert.Equal(t, "line-1", c.Items[0].CartItemID)
	assert.Equal(t, 45.0, c.Total)
	assertInvariants(t, c)
}

func TestAddItemQuantitySaturatesAtCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	huge := regular("42", 2)
	huge.Quantity = math.MaxInt
	require.True(t, s.AddItem(ctx, huge, "1", "Pizza Place", false))
	assert.Equal(t, MaxLineQuantity, s.Snapshot().Items[0].Quantity)

	one := regular("42", 2)
	one.Quantity = 1
	require.True(t, s.AddItem(ctx, one, "1", "Pizza Place", false))
	s.AddItem(ctx, huge, "1", "Pizza Place", false)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, MaxLineQuantity, c.Items[0].Quantity)
	assert.Equal(t, 2.0*MaxLineQuantity, c.Total)
	assert.Equal(t, MaxLineQuantity, c.ItemCount())
	assertInvariants(t, c)

	s.SetQuantity(ctx, models.KindRegular, "42", math.MaxInt)
	c = s.Snapshot()
	assert.Equal(t, MaxLineQuantity, c.Items[0].Quantity)
	assertInvariants(t, c)
}

func TestAddItemMergeBelowCapIsExact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	item := regular("42", 1)
	item.Quantity = MaxLineQuantity - 1
	s.AddItem(ctx, item, "1", "Pizza Place", false)
	item.Quantity = 1
	s.AddItem(ctx, item, "1", "Pizza Place", false)

	assert.Equal(t, MaxLineQuantity, s.Snapshot().Items[0].Quantity)
}

func TestAddItemDefaultsQuantityAndPrice(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	item := regular("1", -4)
	item.Quantity = -2
	s.AddItem(ctx, item, "1", "Pizza Place", false)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, 0.0, c.Items[0].Price)
	assertInvariants(t, c)
}

func TestAddItemUnknownKindIsRegular(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())

	s.AddItem(context.Background(), models.CartItem{Kind: "combo", ID: "9", Price: 2}, "1", "Pizza Place", false)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.KindRegular, c.Items[0].Kind)
}

func TestAddItemWithoutIdentityIsIgnored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	assert.False(t, s.AddItem(ctx, regular("", 3), "1", "Pizza Place", false))
	assert.False(t, s.AddItem(ctx, regular("5", 3), "", "Pizza Place", false))
	assert.Empty(t, s.Snapshot().Items)
}

func TestCustomMealIdentityIsNormalized(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	first := models.CartItem{Kind: models.KindCustom, ID: "tmp-1", CustomMealID: "77", Price: 12}
	second := models.CartItem{Kind: models.KindCustom, ID: "77", Price: 12}
	s.AddItem(ctx, first, "3", "Burger Barn", false)
	s.AddItem(ctx, second, "3", "Burger Barn", false)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.Identity("77"), c.Items[0].ID)
	assert.Equal(t, models.Identity("77"), c.Items[0].CustomMealID)
	assert.Equal(t, 2, c.Items[0].Quantity)

	// a regular meal with the same id is a different line
	s.AddItem(ctx, regular("77", 5), "3", "Burger Barn", false)
	c = s.Snapshot()
	assert.Len(t, c.Items, 2)
	assertInvariants(t, c)
}

func TestTotalUsesExactArithmetic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	item := regular("1", 0.1)
	item.Quantity = 3
	s.AddItem(ctx, item, "1", "Pizza Place", false)
	s.AddItem(ctx, regular("2", 0.2), "1", "Pizza Place", false)

	assert.Equal(t, 0.5, s.Snapshot().Total)
}

func TestHasRestaurantConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())

	assert.False(t, s.HasRestaurantConflict("2"), "empty cart never conflicts")

	s.AddItem(ctx, regular("42", 10), "1", "Pizza Place", false)
	assert.True(t, s.HasRestaurantConflict("2"))
	assert.False(t, s.HasRestaurantConflict("1"))
}

func TestAddItemConflictWithoutOverrideIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.AddItem(ctx, regular("42", 10), "A", "A", false)
	before := s.Snapshot()

	applied := s.AddItem(ctx, regular("7", 3), "B", "B", false)

	assert.False(t, applied)
	assert.Equal(t, before, s.Snapshot())
}

func TestAddItemConflictWithOverrideReplacesCart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.AddItem(ctx, regular("42", 10), "A", "A", false)
	s.AddItem(ctx, regular("43", 11), "A", "A", false)

	applied := s.AddItem(ctx, regular("7", 3), "B", "B", true)

	require.True(t, applied)
	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.Identity("7"), c.Items[0].ID)
	assert.Equal(t, models.Identity("B"), c.RestaurantID)
	assert.Equal(t, "B", c.RestaurantName)
	assert.Equal(t, 3.0, c.Total)
	assertInvariants(t, c)
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.AddItem(ctx, regular("1", 10), "1", "Pizza Place", false)
	s.AddItem(ctx, regular("2", 4), "1", "Pizza Place", false)

	s.RemoveItem(ctx, models.KindRegular, "1")
	once := s.Snapshot()
	s.RemoveItem(ctx, models.KindRegular, "1")
	twice := s.Snapshot()

	require.Len(t, once.Items, 1)
	assert.Equal(t, 4.0, once.Total)
	assert.Equal(t, once.Items, twice.Items)
	assert.Equal(t, once.Total, twice.Total)
	assert.Equal(t, once.RestaurantID, twice.RestaurantID)

	s.RemoveItem(ctx, models.KindRegular, "2")
	c := s.Snapshot()
	assert.Empty(t, c.Items)
	assert.Empty(t, c.RestaurantID)
	assert.Empty(t, c.RestaurantName)
	assert.Zero(t, c.Total)
}

func TestRemoveItemMatchesCustomMealAlias(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.AddItem(ctx, models.CartItem{Kind: models.KindCustom, ID: "9", CustomMealID: "9", Price: 8}, "1", "Pizza Place", false)
	s.AddItem(ctx, regular("9", 2), "1", "Pizza Place", false)

	s.RemoveItem(ctx, models.KindCustom, "9")

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.KindRegular, c.Items[0].Kind)
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.AddItem(ctx, regular("1", 2.5), "1", "Pizza Place", false)

	s.SetQuantity(ctx, models.KindRegular, "1", 4)
	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, 10.0, c.Total)

	s.SetQuantity(ctx, models.KindRegular, "missing", 9)
	assert.Equal(t, c.Items, s.Snapshot().Items)

	s.SetQuantity(ctx, models.KindRegular, "1", 0)
	c = s.Snapshot()
	assert.Empty(t, c.Items)
	assert.Empty(t, c.RestaurantID)
	assert.Zero(t, c.Total)
}

func TestSetQuantityNegativeRemovesOnlyThatLine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.AddItem(ctx, regular("1", 1), "1", "Pizza Place", false)
	s.AddItem(ctx, regular("2", 2), "1", "Pizza Place", false)

	s.SetQuantity(ctx, models.KindRegular, "1", -1)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.Identity("2"), c.Items[0].ID)
	assert.Equal(t, models.Identity("1"), c.RestaurantID)
	assertInvariants(t, c)
}

func TestClearKeepsOwner(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	s.InitializeForUser(ctx, "u1")
	s.AddItem(ctx, regular("1", 3), "1", "Pizza Place", false)

	s.Clear(ctx)

	c := s.Snapshot()
	assert.Empty(t, c.Items)
	assert.Empty(t, c.RestaurantID)
	assert.Zero(t, c.Total)
	assert.Equal(t, "u1", c.UserID)

	data, err := storage.Load(ctx, "cart:u1")
	require.NoError(t, err)
	var stored models.Cart
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Empty(t, stored.Items)
	assert.Equal(t, "u1", stored.UserID)
}

func TestInitializeForUserWithoutRecord(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())

	s.InitializeForUser(context.Background(), "u1")

	c := s.Snapshot()
	assert.Empty(t, c.Items)
	assert.Equal(t, "u1", c.UserID)
	assert.Empty(t, c.RestaurantID)
}

func TestInitializeForUserRestoresRecord(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	first := newTestStore(t, storage)
	first.InitializeForUser(ctx, "u1")
	first.AddItem(ctx, regular("42", 10), "1", "Pizza Place", false)
	first.AddItem(ctx, regular("42", 10), "1", "Pizza Place", false)

	second := newTestStore(t, storage)
	second.InitializeForUser(ctx, "u1")

	c := second.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, 20.0, c.Total)
	assert.Equal(t, models.Identity("1"), c.RestaurantID)
	assert.Equal(t, "u1", c.UserID)
}

func TestInitializeForUserDiscardsMalformedRecords(t *testing.T) {
	records := map[string]string{
		"not json":       `{"items": [`,
		"wrong shape":    `{"items": "nope"}`,
		"zero quantity":  `{"items":[{"type":"regular","id":1,"price":2,"quantity":0}],"restaurantId":1}`,
		"unknown type":   `{"items":[{"type":"combo","id":1,"price":2,"quantity":1}],"restaurantId":1}`,
		"no restaurant":  `{"items":[{"type":"regular","id":1,"price":2,"quantity":1}]}`,
		"duplicate line": `{"items":[{"type":"regular","id":1,"price":2,"quantity":1},{"type":"regular","id":"1","price":2,"quantity":1}],"restaurantId":1}`,
		"other owner":    `{"items":[],"userId":"u2"}`,
		"negative price": `{"items":[{"type":"regular","id":1,"price":-2,"quantity":1}],"restaurantId":1}`,
		"over the cap":   `{"items":[{"type":"regular","id":1,"price":2,"quantity":1000}],"restaurantId":1}`,
		"collapsed dup":  `{"items":[{"type":"custom","id":"tmp","customMealId":9,"price":2,"quantity":1},{"type":"custom","id":9,"price":2,"quantity":1}],"restaurantId":1}`,
	}

	for name, record := range records {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			storage := NewMemoryStorage()
			require.NoError(t, storage.Save(ctx, "cart:u1", []byte(record)))
			s := newTestStore(t, storage)

			s.InitializeForUser(ctx, "u1")

			c := s.Snapshot()
			assert.Empty(t, c.Items)
			assert.Equal(t, "u1", c.UserID)
		})
	}
}

func TestInitializeForUserCollapsesCustomMealIdentity(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	record := `{"items":[{"type":"custom","id":"5","customMealId":" 9 ","price":3,"quantity":2,"cartItemId":"x"}],"restaurantId":1,"restaurantName":"Burger Barn","userId":"u1"}`
	require.NoError(t, storage.Save(ctx, "cart:u1", []byte(record)))
	s := newTestStore(t, storage)

	s.InitializeForUser(ctx, "u1")
	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.Identity("9"), c.Items[0].ID)
	assert.Equal(t, models.Identity("9"), c.Items[0].CustomMealID)

	// the restored line and a fresh add of the same custom meal are one line
	s.AddItem(ctx, models.CartItem{Kind: models.KindCustom, ID: "9", Price: 3}, "1", "Burger Barn", false)
	c = s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "x", c.Items[0].CartItemID)
	assertInvariants(t, c)

	s.RemoveItem(ctx, models.KindCustom, "9")
	assert.Empty(t, s.Snapshot().Items)
}

func TestInitializeForUserRecomputesStoredTotal(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	record := `{"items":[{"type":"regular","id":42,"price":10,"quantity":2,"cartItemId":"x"}],"restaurantId":1,"restaurantName":"Pizza Place","total":999,"userId":"u1"}`
	require.NoError(t, storage.Save(ctx, "cart:u1", []byte(record)))
	s := newTestStore(t, storage)

	s.InitializeForUser(ctx, "u1")

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.Identity("42"), c.Items[0].ID)
	assert.Equal(t, 20.0, c.Total)
}

func TestInitializeForUserLoadErrorFallsBack(t *testing.T) {
	s := newTestStore(t, &failingStorage{loadErr: errors.New("connection refused")})

	s.InitializeForUser(context.Background(), "u1")

	c := s.Snapshot()
	assert.Empty(t, c.Items)
	assert.Equal(t, "u1", c.UserID)
}

func TestGuestCartIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)

	s.InitializeForUser(ctx, "")
	s.AddItem(ctx, regular("1", 3), "1", "Pizza Place", false)
	s.SetQuantity(ctx, models.KindRegular, "1", 2)
	s.Clear(ctx)

	assert.Equal(t, models.GuestOwner, s.Owner())
	assert.Empty(t, storage.Keys())
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{loadErr: ErrNoRecord, saveErr: errors.New("disk full"), deleteErr: errors.New("gone")}
	s := newTestStore(t, storage)
	s.InitializeForUser(ctx, "u1")

	assert.True(t, s.AddItem(ctx, regular("1", 3), "1", "Pizza Place", false))
	assert.Equal(t, 3.0, s.Snapshot().Total)
	assert.Equal(t, 1, storage.saves)

	s.OnSessionEnd(ctx)
	assert.Equal(t, 1, storage.deletes)
	assert.Empty(t, s.Snapshot().Items)
}

func TestOnSessionEnd(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	s.InitializeForUser(ctx, "u1")
	s.AddItem(ctx, regular("1", 3), "1", "Pizza Place", false)
	_, err := storage.Load(ctx, "cart:u1")
	require.NoError(t, err)

	s.OnSessionEnd(ctx)

	c := s.Snapshot()
	assert.Empty(t, c.Items)
	assert.Empty(t, c.RestaurantID)
	assert.Zero(t, c.Total)
	assert.Equal(t, models.GuestOwner, c.UserID)

	_, err = storage.Load(ctx, "cart:u1")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestInvariantsHoldAcrossOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryStorage())
	s.InitializeForUser(ctx, "u1")

	steps := []func(){
		func() { s.AddItem(ctx, regular("1", 9.99), "1", "Pizza Place", false) },
		func() { s.AddItem(ctx, regular("2", 4.25), "1", "Pizza Place", false) },
		func() { s.AddItem(ctx, regular("1", 9.99), "1", "Pizza Place", false) },
		func() { s.AddItem(ctx, regular("3", 1), "2", "Sushi Bar", false) },
		func() { s.SetQuantity(ctx, models.KindRegular, "2", 5) },
		func() {
			s.AddItem(ctx, models.CartItem{Kind: models.KindCustom, CustomMealID: "c1", Price: 13.1}, "1", "Pizza Place", false)
		},
		func() { s.RemoveItem(ctx, models.KindRegular, "1") },
		func() { s.AddItem(ctx, regular("3", 1), "2", "Sushi Bar", true) },
		func() { s.SetQuantity(ctx, models.KindRegular, "3", 0) },
		func() { s.AddItem(ctx, regular("4", 0.3), "3", "Taco Stand", false) },
		func() { s.Clear(ctx) },
	}
	for i, step := range steps {
		step()
		t.Run(fmt.Sprintf("step %d", i), func(t *testing.T) {
			assertInvariants(t, s.Snapshot())
		})
	}
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "cart:u1", RecordKey("u1"))
	assert.Equal(t, "cart:guest", RecordKey(""))
}
