package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleNone    Role = ""
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole maps a claim value to a Role. Unknown values become RoleNone.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient
	case RoleDoctor:
		return RoleDoctor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleNone
	}
}

// Actor is the caller of an operation as established by the auth middleware.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) Authenticated() bool {
	return a.UserID != uuid.Nil
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the actor stored in ctx, or the anonymous actor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey).(Actor); ok {
		return a
	}
	return Actor{}
}
