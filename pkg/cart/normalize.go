package cart

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"uchef.app/cart-api/pkg/models"
)

// MaxLineQuantity caps the quantity of a single cart line. Adds and updates
// beyond it saturate at the cap.
const MaxLineQuantity = 999

// clampQuantity bounds an already positive quantity by MaxLineQuantity
func clampQuantity(q int) int {
	if q > MaxLineQuantity {
		return MaxLineQuantity
	}
	return q
}

// normalizeItem collapses a custom meal reference onto the primary id and
// coerces kind, price and quantity into their valid ranges.
func normalizeItem(item models.CartItem) models.CartItem {
	line := item
	line.CartItemID = ""
	line.ID = models.Identity(strings.TrimSpace(line.ID.String()))
	line.CustomMealID = models.Identity(strings.TrimSpace(line.CustomMealID.String()))

	if !line.Kind.Valid() {
		line.Kind = models.KindRegular
	}
	if line.Kind == models.KindCustom && line.CustomMealID != "" {
		line.ID = line.CustomMealID
	}
	if line.Price < 0 || math.IsNaN(line.Price) || math.IsInf(line.Price, 0) {
		line.Price = 0
	}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	line.Quantity = clampQuantity(line.Quantity)
	return line
}

// computeTotal sums price * quantity in decimal so totals do not drift
func computeTotal(items []models.CartItem) float64 {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	total, _ := sum.Float64()
	return total
}

// decodeRecord parses a stored snapshot for ownerID. Records that do not describe
// a valid cart for that owner are rejected so the caller can start empty.
func decodeRecord(data []byte, ownerID string) (models.Cart, error) {
	var saved models.Cart
	if err := json.Unmarshal(data, &saved); err != nil {
		return models.Cart{}, fmt.Errorf("decode cart record: %w", err)
	}

	if saved.UserID != "" && saved.UserID != ownerID {
		return models.Cart{}, fmt.Errorf("record belongs to %q", saved.UserID)
	}
	if len(saved.Items) > 0 && saved.RestaurantID == "" {
		return models.Cart{}, fmt.Errorf("items without a restaurant")
	}

	seen := make(map[string]struct{}, len(saved.Items))
	for i := range saved.Items {
		item := &saved.Items[i]
		item.ID = models.Identity(strings.TrimSpace(item.ID.String()))
		item.CustomMealID = models.Identity(strings.TrimSpace(item.CustomMealID.String()))
		if item.Kind == models.KindCustom && item.CustomMealID != "" {
			item.ID = item.CustomMealID
		}

		switch {
		case !item.Kind.Valid():
			return models.Cart{}, fmt.Errorf("item %d: unknown type %q", i, item.Kind)
		case item.ID == "":
			return models.Cart{}, fmt.Errorf("item %d: missing id", i)
		case item.Quantity <= 0 || item.Quantity > MaxLineQuantity:
			return models.Cart{}, fmt.Errorf("item %d: quantity %d", i, item.Quantity)
		case item.Price < 0 || math.IsNaN(item.Price) || math.IsInf(item.Price, 0):
			return models.Cart{}, fmt.Errorf("item %d: price %v", i, item.Price)
		}
		key := string(item.Kind) + "\x00" + string(item.ID)
		if _, dup := seen[key]; dup {
			return models.Cart{}, fmt.Errorf("item %d: duplicate line", i)
		}
		seen[key] = struct{}{}
	}

	if saved.Items == nil {
		saved.Items = []models.CartItem{}
	}
	if len(saved.Items) == 0 {
		saved.RestaurantID = ""
		saved.RestaurantName = ""
	}
	saved.UserID = ownerID
	saved.Total = computeTotal(saved.Items)
	return saved, nil
}
