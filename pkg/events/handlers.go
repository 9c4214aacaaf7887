package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"uchef.app/cart-api/pkg/session"
)

// HandlerFunc handles one message body. A returned error nacks the message.
type HandlerFunc func(ctx context.Context, body []byte) error

// SessionLifecycle is the part of the session manager auth events drive
type SessionLifecycle interface {
	LoginSucceeded(ctx context.Context, sessionID, userID string) *session.Session
	CurrentUserResolved(ctx context.Context, sessionID, userID string) *session.Session
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlers maps each auth routing key to its handler
func AuthHandlers(sessions SessionLifecycle, logger zerolog.Logger) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		LoginSucceededRoutingKey: LoginSucceededHandler(sessions, logger),
		UserResolvedRoutingKey:   UserResolvedHandler(sessions, logger),
		LogoutRoutingKey:         LogoutHandler(sessions, logger),
	}
}

func LoginSucceededHandler(sessions SessionLifecycle, logger zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		ev, err := parseAuthEvent(body, true)
		if err != nil {
			return err
		}
		sessions.LoginSucceeded(ctx, ev.SessionID, ev.UserID())
		logger.Debug().Str("session", ev.SessionID).Str("owner", ev.UserID()).Msg("login event applied")
		return nil
	}
}

func UserResolvedHandler(sessions SessionLifecycle, logger zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		ev, err := parseAuthEvent(body, true)
		if err != nil {
			return err
		}
		sessions.CurrentUserResolved(ctx, ev.SessionID, ev.UserID())
		logger.Debug().Str("session", ev.SessionID).Str("owner", ev.UserID()).Msg("user resolved event applied")
		return nil
	}
}

func LogoutHandler(sessions SessionLifecycle, logger zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		ev, err := parseAuthEvent(body, false)
		if err != nil {
			return err
		}
		if err := sessions.Logout(ctx, ev.SessionID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				logger.Debug().Str("session", ev.SessionID).Msg("logout for unknown session")
				return nil
			}
			return fmt.Errorf("logout %s: %w", ev.SessionID, err)
		}
		return nil
	}
}
