package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// HeaderIdempotencyKey names the client-chosen key of a create request.
const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyStore reserves request keys.
type IdempotencyStore interface {
	// Reserve claims key and reports false when it is already held.
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// idempotent rejects a repeated create with 409 while its key is held. Keys
// of failed requests are released so the client can retry. A store outage
// lets requests through.
func (h *Handler) idempotent(style errorStyle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if h.idempotency == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			lg := zctx.From(ctx)
			scoped := r.Method + " " + r.URL.Path + " " + key

			ok, err := h.idempotency.Reserve(ctx, scoped)
			if err != nil {
				lg.Warn("Idempotency reserve failed", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				h.fail(w, r, style, errDuplicateRequest)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if ww.Status() >= http.StatusBadRequest {
				if err := h.idempotency.Release(context.WithoutCancel(ctx), scoped); err != nil {
					lg.Warn("Idempotency release failed", zap.String("key", key), zap.Error(err))
				}
			}
		})
	}
}
