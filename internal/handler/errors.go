package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

var errDuplicateRequest = errors.New("duplicate request")

// bodyError is a request body that could not be decoded.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "decode body: " + e.err.Error() }

func (e *bodyError) Unwrap() error { return e.err }

// fail maps err onto a status and body. Unexpected errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, style errorStyle, err error) {
	status, msgs := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, style, msgs)
}

func classify(err error) (int, []string) {
	var (
		verr *validation.Error
		cerr *coupon.ConflictError
		perr *coupon.PersistenceError
		berr *bodyError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.FullMessages()
	case errors.As(err, &cerr):
		return http.StatusUnprocessableEntity, []string{cerr.Message}
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity, []string{perr.Message}
	case errors.As(err, &berr):
		return http.StatusBadRequest, []string{"Malformed request body"}
	case errors.Is(err, errDuplicateRequest):
		return http.StatusConflict, []string{"Duplicate request"}
	case errors.Is(err, merchant.ErrNotFound):
		return http.StatusNotFound, []string{"Merchant not found"}
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusNotFound, []string{"Coupon not found"}
	case errors.Is(err, item.ErrNotFound):
		return http.StatusNotFound, []string{"Item not found"}
	case errors.Is(err, invoice.ErrNotFound):
		return http.StatusNotFound, []string{"Invoice not found"}
	case errors.Is(err, customer.ErrNotFound):
		return http.StatusNotFound, []string{"Customer not found"}
	default:
		return http.StatusInternalServerError, []string{"Internal Server Error"}
	}
}

// pathID reads a positive integer URL parameter. Anything else is reported
// as notFound.
func pathID(r *http.Request, name string, notFound error) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound
	}
	return id, nil
}
