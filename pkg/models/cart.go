package models

import (
	"time"
)

// Cart models shared by the cart store, the storage backends and the HTTP layer.
// JSON names follow the shape the web client has always persisted.

// ItemKind distinguishes catalog meals from user-assembled custom meals
type ItemKind string

const (
	KindRegular ItemKind = "regular"
	KindCustom  ItemKind = "custom"
)

// Valid reports whether k is one of the known kinds
func (k ItemKind) Valid() bool {
	return k == KindRegular || k == KindCustom
}

// GuestOwner is the owner stamped on carts that belong to no authenticated user
const GuestOwner = "guest"

// CartItem represents one line in the cart
type CartItem struct {
	Kind         ItemKind `json:"type"`
	ID           Identity `json:"id"`
	CustomMealID Identity `json:"customMealId,omitempty"`
	Name         string   `json:"name,omitempty"`
	Image        string   `json:"image,omitempty"`
	Price        float64  `json:"price"`
	Quantity     int      `json:"quantity"`
	CartItemID   string   `json:"cartItemId"`
}

// Matches reports whether the line is addressed by (kind, id).
// Custom lines also answer to their custom meal reference.
func (i CartItem) Matches(kind ItemKind, id Identity) bool {
	if i.Kind != kind || id == "" {
		return false
	}
	if kind == KindCustom {
		return i.ID == id || i.CustomMealID == id
	}
	return i.ID == id
}

// Cart is the full snapshot persisted under cart:<userId>
type Cart struct {
	Items          []CartItem `json:"items"`
	RestaurantID   Identity   `json:"restaurantId"`
	RestaurantName string     `json:"restaurantName"`
	Total          float64    `json:"total"`
	UserID         string     `json:"userId"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand out to readers
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

// ItemCount returns the number of meals in the cart, counting quantities
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// AddToCartRequest is the payload of an "add meal to cart" intent
type AddToCartRequest struct {
	Item           CartItem `json:"item"`
	RestaurantID   Identity `json:"restaurantId" binding:"required"`
	RestaurantName string   `json:"restaurantName"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// PromptAnswerRequest carries the user's answer to a restaurant-change prompt
type PromptAnswerRequest struct {
	Confirmed bool `json:"confirmed"`
}
