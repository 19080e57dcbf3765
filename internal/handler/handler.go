// Package handler serves the JSON API over chi.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/events"
)

// Config holds the optional collaborators of the Handler.
type Config struct {
	// Publisher receives coupon lifecycle events. Nil discards them.
	Publisher events.Publisher
	// Idempotency deduplicates create requests carrying an Idempotency-Key
	// header. Nil disables deduplication.
	Idempotency IdempotencyStore
}

// Handler maps HTTP requests onto the domain services.
type Handler struct {
	merchants merchant.Repository
	items     item.Repository
	customers customer.Repository
	coupons   *coupon.Policy
	usage     *coupon.UsageReporter
	invoices  *invoice.Service

	publisher   events.Publisher
	idempotency IdempotencyStore
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	merchants merchant.Repository,
	items item.Repository,
	customers customer.Repository,
	coupons *coupon.Policy,
	usage *coupon.UsageReporter,
	invoices *invoice.Service,
) *Handler {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Handler{
		merchants:   merchants,
		items:       items,
		customers:   customers,
		coupons:     coupons,
		usage:       usage,
		invoices:    invoices,
		publisher:   publisher,
		idempotency: cfg.Idempotency,
	}
}

// Routes returns the /api/v1 route table.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/merchants", func(r chi.Router) {
		r.Get("/", h.listMerchants)
		r.With(h.idempotent(queryErrors)).Post("/", h.createMerchant)
		r.Get("/find", h.findMerchant)

		r.Route("/{merchantID}", func(r chi.Router) {
			r.Get("/", h.getMerchant)
			r.Patch("/", h.updateMerchant)
			r.Delete("/", h.deleteMerchant)
			r.Get("/items", h.listMerchantItems)
			r.Get("/invoices", h.listMerchantInvoices)
			r.With(h.idempotent(queryErrors)).Post("/invoices", h.createInvoice)

			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", h.listCoupons)
				r.Get("/summary", h.couponSummary)
				r.With(h.idempotent(plainErrors)).Post("/", h.createCoupon)
				r.Get("/{couponID}", h.getCoupon)
				r.Patch("/{couponID}", h.deactivateCoupon)
				r.Patch("/{couponID}/activate", h.activateCoupon)
				r.Delete("/{couponID}", h.deleteCoupon)
			})
		})
	})

	r.Route("/items", func(r chi.Router) {
		r.With(h.idempotent(queryErrors)).Post("/", h.createItem)
		r.Get("/{itemID}", h.getItem)
		r.Delete("/{itemID}", h.deleteItem)
	})

	r.With(h.idempotent(queryErrors)).Post("/customers", h.createCustomer)

	r.Route("/invoices/{invoiceID}", func(r chi.Router) {
		r.Get("/", h.getInvoice)
		r.Put("/total", h.recordInvoiceTotal)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, plainErrors, []string{"Not Found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, plainErrors, []string{"Method Not Allowed"})
	})

	return r
}

func (h *Handler) publish(ctx context.Context, t events.Type, c coupon.Coupon) {
	if err := h.publisher.Publish(ctx, events.NewEvent(t, c)); err != nil {
		zctx.From(ctx).Warn("Publish event failed",
			zap.String("type", string(t)),
			zap.Int64("coupon_id", c.ID),
			zap.Error(err),
		)
	}
}
