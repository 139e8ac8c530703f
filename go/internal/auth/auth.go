package auth

import (
	"context"
	"net/http"
	"strings"
)

// Actor is the caller identity forwarded by the gateway.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// Anonymous reports whether no identity was forwarded.
func (a Actor) Anonymous() bool {
	return a.ID == ""
}

// Checker decides whether an actor may mutate live session state.
type Checker interface {
	HasMutationCapability(actor Actor) bool
}

// RoleChecker grants mutation capability to actors holding any configured role.
type RoleChecker struct {
	roles map[string]struct{}
}

// NewRoleChecker creates a checker for the given role names (case-insensitive).
func NewRoleChecker(roles []string) *RoleChecker {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return &RoleChecker{roles: set}
}

// HasMutationCapability implements Checker.
func (c *RoleChecker) HasMutationCapability(actor Actor) bool {
	if actor.Anonymous() {
		return false
	}
	for _, r := range actor.Roles {
		if _, ok := c.roles[strings.ToLower(r)]; ok {
			return true
		}
	}
	return false
}

// CheckerFunc adapts a plain predicate to Checker.
type CheckerFunc func(actor Actor) bool

// HasMutationCapability implements Checker.
func (f CheckerFunc) HasMutationCapability(actor Actor) bool {
	return f(actor)
}

type ctxKey struct{}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// FromContext returns the actor stored in ctx, or an anonymous actor.
func FromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(ctxKey{}).(Actor)
	return actor
}

// Middleware extracts the identity and roles set by the upstream gateway.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := Actor{ID: strings.TrimSpace(r.Header.Get("X-User-ID"))}
		if raw := r.Header.Get("X-User-Roles"); raw != "" {
			for _, role := range strings.Split(raw, ",") {
				role = strings.TrimSpace(role)
				if role != "" {
					actor.Roles = append(actor.Roles, role)
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
