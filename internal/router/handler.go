package router

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"uchef.app/cart-api/pkg/global"
	"uchef.app/cart-api/pkg/models"
	"uchef.app/cart-api/pkg/session"
)

// Pinger reports whether the durable cart storage is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	sessions *session.Manager
	storage  Pinger
}

// NewHandler wires the cart routes to sessions. storage may be nil for the
// in-memory backend.
func NewHandler(sessions *session.Manager, storage Pinger) *Handler {
	return &Handler{sessions: sessions, storage: storage}
}

type cartView struct {
	Cart      models.Cart `json:"cart"`
	ItemCount int         `json:"itemCount"`
}

func viewOf(s *session.Session) cartView {
	snap := s.Store.Snapshot()
	return cartView{Cart: snap, ItemCount: snap.ItemCount()}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if h.storage != nil {
		if err := h.storage.Ping(c.Request.Context()); err != nil {
			log.Error().Err(err).Msg("storage ping failed")
			c.JSON(http.StatusServiceUnavailable, global.ErrorResponse("Storage connection failed", nil))
			return
		}
	}
	c.JSON(http.StatusOK, global.SuccessResponse(map[string]string{"status": "OK", "storage": "Connected"}))
}

func (h *Handler) GetCart(c *gin.Context) {
	s := h.sessions.Session(c.Param("sessionId"))
	c.JSON(http.StatusOK, global.SuccessResponse(viewOf(s)))
}

func (h *Handler) GetCartCount(c *gin.Context) {
	s := h.sessions.Session(c.Param("sessionId"))
	c.JSON(http.StatusOK, global.SuccessResponse(map[string]int{"count": s.Store.ItemCount()}))
}

func (h *Handler) CheckRestaurantConflict(c *gin.Context) {
	restaurantID := strings.TrimSpace(c.Query("restaurantId"))
	if restaurantID == "" {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("restaurantId query parameter required",
			global.FieldError("restaurantId", "restaurantId query parameter is required", "required")))
		return
	}

	s := h.sessions.Session(c.Param("sessionId"))
	snap := s.Store.Snapshot()
	c.JSON(http.StatusOK, global.SuccessResponse(map[string]interface{}{
		"conflict":              s.Store.HasRestaurantConflict(models.Identity(restaurantID)),
		"currentRestaurantId":   snap.RestaurantID,
		"currentRestaurantName": snap.RestaurantName,
	}))
}

// AddToCart answers 200 when the item went in and 409 with a prompt when the
// cart holds another restaurant's items.
func (h *Handler) AddToCart(c *gin.Context) {
	var req models.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("Invalid request data",
			global.FieldError("request", err.Error(), "validation_error")))
		return
	}
	if strings.TrimSpace(req.Item.ID.String()) == "" && strings.TrimSpace(req.Item.CustomMealID.String()) == "" {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("Invalid request data",
			global.FieldError("item.id", "item id is required", "required")))
		return
	}

	s := h.sessions.Session(c.Param("sessionId"))
	attempt := s.AddItem(req.Item, req.RestaurantID, req.RestaurantName)

	if attempt.Conflicted() {
		c.JSON(http.StatusConflict, global.APIResponse{
			Success: false,
			Message: "Cart holds items from another restaurant",
			Data:    map[string]interface{}{"prompt": attempt.Prompt},
			Errors:  global.FieldError("restaurantId", "confirm the prompt to replace the cart", "restaurant_conflict"),
		})
		return
	}

	res := <-attempt.Done()
	c.JSON(http.StatusOK, global.SuccessResponse(map[string]interface{}{
		"added": res.Added,
		"cart":  viewOf(s),
	}))
}

func itemParams(c *gin.Context) (models.ItemKind, models.Identity, bool) {
	kind := models.ItemKind(c.Param("type"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("Invalid item type",
			global.FieldError("type", "type must be regular or custom", "invalid_format")))
		return "", "", false
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("Invalid item id",
			global.FieldError("id", "id is required", "required")))
		return "", "", false
	}
	return kind, models.Identity(id), true
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	kind, id, ok := itemParams(c)
	if !ok {
		return
	}

	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("Invalid request data",
			global.FieldError("quantity", err.Error(), "validation_error")))
		return
	}

	s := h.sessions.Session(c.Param("sessionId"))
	s.Store.SetQuantity(c.Request.Context(), kind, id, *req.Quantity)
	c.JSON(http.StatusOK, global.SuccessResponse(viewOf(s)))
}

func (h *Handler) RemoveFromCart(c *gin.Context) {
	kind, id, ok := itemParams(c)
	if !ok {
		return
	}

	s := h.sessions.Session(c.Param("sessionId"))
	s.Store.RemoveItem(c.Request.Context(), kind, id)
	c.JSON(http.StatusOK, global.SuccessResponse(viewOf(s)))
}

func (h *Handler) ClearCart(c *gin.Context) {
	s := h.sessions.Session(c.Param("sessionId"))
	s.Store.Clear(c.Request.Context())
	c.JSON(http.StatusOK, global.SuccessResponse(viewOf(s)))
}

func (h *Handler) GetPrompts(c *gin.Context) {
	s := h.sessions.Session(c.Param("sessionId"))
	c.JSON(http.StatusOK, global.SuccessResponse(map[string]interface{}{
		"prompts": s.Prompts.Pending(),
	}))
}

func (h *Handler) AnswerPrompt(c *gin.Context) {
	s, err := h.sessions.Lookup(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, global.ErrorResponse("Session not found",
			global.FieldError("sessionId", "No session exists with this id", "not_found")))
		return
	}

	var req models.PromptAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, global.ErrorResponse("Invalid request data",
			global.FieldError("confirmed", err.Error(), "validation_error")))
		return
	}

	res, err := s.Answer(c.Request.Context(), c.Param("promptId"), req.Confirmed)
	if err != nil {
		if errors.Is(err, session.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, global.ErrorResponse("Prompt not found",
				global.FieldError("promptId", "No open prompt exists with this id", "not_found")))
			return
		}
		log.Error().Err(err).Str("session", s.ID).Msg("failed to settle prompt")
		c.JSON(http.StatusInternalServerError, global.ErrorResponse("Failed to settle prompt", nil))
		return
	}

	c.JSON(http.StatusOK, global.SuccessResponse(map[string]interface{}{
		"added":    res.Added,
		"decision": res.Decision,
		"cart":     viewOf(s),
	}))
}

func (h *Handler) LoginSucceeded(c *gin.Context) {
	s := h.sessions.LoginSucceeded(c.Request.Context(), c.Param("sessionId"), c.GetString(userIDKey))
	c.JSON(http.StatusOK, global.SuccessResponse(viewOf(s)))
}

func (h *Handler) CurrentUserResolved(c *gin.Context) {
	s := h.sessions.CurrentUserResolved(c.Request.Context(), c.Param("sessionId"), c.GetString(userIDKey))
	c.JSON(http.StatusOK, global.SuccessResponse(viewOf(s)))
}

// Logout is idempotent: an unknown session already has nothing to end. A session
// holding another user's cart is refused.
func (h *Handler) Logout(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if s, err := h.sessions.Lookup(sessionID); err == nil {
		owner := s.Store.Owner()
		if owner != models.GuestOwner && owner != c.GetString(userIDKey) {
			c.JSON(http.StatusForbidden, global.ErrorResponse("Forbidden",
				global.FieldError("sessionId", "session belongs to another user", "forbidden")))
			return
		}
	}

	err := h.sessions.Logout(c.Request.Context(), sessionID)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.Error().Err(err).Msg("logout failed")
		c.JSON(http.StatusInternalServerError, global.ErrorResponse("Failed to end session", nil))
		return
	}
	c.JSON(http.StatusOK, global.SuccessResponse(map[string]string{"status": "logged_out"}))
}
