package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Identity headers are set by the upstream auth service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Identity struct {
	UserID uint64
	Role   string
}

func (id Identity) Admin() bool {
	return id.Role == RoleAdmin
}

type identityKey struct{}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)

	return id, ok
}

// identify reads the identity headers when present. Malformed headers are
// rejected; missing ones leave the request anonymous.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			next.ServeHTTP(w, r)

			return
		}

		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || userID == 0 {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid "+HeaderUserID)

			return
		}

		role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
		if role == "" {
			role = RoleUser
		}

		ctx := context.WithValue(r.Context(), identityKey{}, Identity{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := identityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing "+HeaderUserID)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing "+HeaderUserID)

			return
		}

		if !id.Admin() {
			writeError(w, http.StatusForbidden, CodeForbidden, "admin role required")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// accessLog writes one slog line per request.
func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			log.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(started).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
