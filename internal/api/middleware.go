package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/clage-homeserver/internal/auth"
)

type contextKey string

// ctxKeyClaims holds the validated token claims.
const ctxKeyClaims contextKey = "claims"

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// echoRequestID returns the ID assigned by middleware.RequestID in the
// X-Request-Id response header.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// accessLog writes one entry per request once the handler returns.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r),
		)
	})
}

// recoverJSON turns a handler panic into a JSON 500.
func (s *Server) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panicked",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestID(r),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-Request-Id"
)

// cors answers preflight requests and sets CORS headers for allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.isAllowedOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin reports whether origin is listed. An empty list or "*"
// admits every origin.
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// require returns middleware that admits only tokens whose role grants perm.
// It passes every request through when no JWT secret is configured.
//
// The token is read from "Authorization: Bearer <token>", or from the
// "token" query parameter for WebSocket upgrades, which browsers cannot
// send headers with.
func (s *Server) require(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := s.cfg.Auth.JWTSecret
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
				return
			}
			claims, err := auth.ParseToken(raw, secret)
			if err != nil {
				s.logger.Warn("rejected API token",
					"error", err,
					"path", r.URL.Path,
					"request_id", requestID(r),
				)
				writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			if err := auth.Authorize(claims.Role, perm); err != nil {
				writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// caller returns the token subject, or "" when auth is disabled.
func caller(r *http.Request) string {
	if c, ok := r.Context().Value(ctxKeyClaims).(*auth.Claims); ok {
		return c.Subject
	}
	return ""
}
