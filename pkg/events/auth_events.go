package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMalformedEvent = errors.New("events: malformed event")

type EventUser struct {
	ID string `json:"id"`
}

// AuthEvent is published by the auth service on every session lifecycle change
type AuthEvent struct {
	EventType string     `json:"eventType"`
	SessionID string     `json:"sessionId"`
	User      *EventUser `json:"user,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func (e AuthEvent) UserID() string {
	if e.User == nil {
		return ""
	}
	return strings.TrimSpace(e.User.ID)
}

func parseAuthEvent(body []byte, requireUser bool) (AuthEvent, error) {
	var ev AuthEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return AuthEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.SessionID = strings.TrimSpace(ev.SessionID)
	if ev.SessionID == "" {
		return AuthEvent{}, fmt.Errorf("%w: missing sessionId", ErrMalformedEvent)
	}
	if requireUser && ev.UserID() == "" {
		return AuthEvent{}, fmt.Errorf("%w: missing user.id", ErrMalformedEvent)
	}
	return ev, nil
}
