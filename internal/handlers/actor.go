// Package handlers exposes the scheduling engine over HTTP. Handlers decode
// and validate transport concerns, then delegate every decision to the
// engine; authorization logic never lives here.
package handlers

import (
	"net/http"
	"strings"

	"github.com/slotbook/slotbook/internal/schedule"
	"github.com/slotbook/slotbook/libs/auth"
)

// ActorResolver extracts the acting identity from a request. A Bearer token
// signed by the identity service wins; the X-Actor-Id and X-Actor-Role
// headers are the dev fallback when no JWT secret is configured.
type ActorResolver struct {
	JWTSecret string
}

func (res ActorResolver) Resolve(r *http.Request) (schedule.Actor, string, bool) {
	if header := r.Header.Get("Authorization"); header != "" && res.JWTSecret != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return schedule.Actor{}, "", false
		}
		claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(token), res.JWTSecret)
		if err != nil {
			return schedule.Actor{}, "", false
		}
		return schedule.Actor{ID: claims.Sub, Role: schedule.Role(claims.Role)}, claims.Name, true
	}

	id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	role := strings.TrimSpace(r.Header.Get("X-Actor-Role"))
	if id == "" || role == "" {
		return schedule.Actor{}, "", false
	}
	return schedule.Actor{ID: id, Role: schedule.Role(role)}, r.Header.Get("X-Actor-Name"), true
}
