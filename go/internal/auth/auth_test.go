package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleChecker(t *testing.T) {
	checker := NewRoleChecker([]string{"Admin", " director "})

	assert.True(t, checker.HasMutationCapability(Actor{ID: "u1", Roles: []string{"admin"}}))
	assert.True(t, checker.HasMutationCapability(Actor{ID: "u1", Roles: []string{"player", "DIRECTOR"}}))
	assert.False(t, checker.HasMutationCapability(Actor{ID: "u1", Roles: []string{"player"}}))
	assert.False(t, checker.HasMutationCapability(Actor{Roles: []string{"admin"}}))
}

func TestMiddleware(t *testing.T) {
	var got Actor
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-7")
	req.Header.Set("X-User-Roles", "admin, ,player")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-7", got.ID)
	assert.Equal(t, []string{"admin", "player"}, got.Roles)
}

func TestFromContextAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, FromContext(req.Context()).Anonymous())
}
