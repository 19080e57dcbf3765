package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

// listMerchants supports sorted=age, status=returned and count=true.
func (h *Handler) listMerchants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := merchant.ListOptions{
		NewestFirst:  q.Get("sorted") == "age",
		ReturnedOnly: q.Get("status") == "returned",
	}
	withItemCount := q.Get("count") == "true"

	merchants, err := h.merchants.List(r.Context(), opts)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, m := range merchants {
			resource(e, "merchant", m.ID, func(e *jx.Encoder) {
				e.FieldStart("name")
				e.Str(m.Name)
				if withItemCount {
					e.FieldStart("item_count")
					e.Int(m.ItemCount)
				}
				e.FieldStart("coupons_count")
				e.Int(m.CouponsCount)
				e.FieldStart("invoice_coupon_count")
				e.Int(m.InvoiceCouponCount)
			})
		}
		e.ArrEnd()
	})
}

// findMerchant answers 200 even when nothing matches.
func (h *Handler) findMerchant(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		h.fail(w, r, queryErrors, validation.Single("name", validation.MsgBlank))
		return
	}

	m, err := h.merchants.FindByName(r.Context(), name)
	switch {
	case errors.Is(err, merchant.ErrNotFound):
		writeData(w, http.StatusOK, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("message")
			e.Str("no merchant found")
			e.FieldStart("errors")
			e.ArrStart()
			e.Str("no merchant matches " + name)
			e.ArrEnd()
			e.ObjEnd()
		})
	case err != nil:
		h.fail(w, r, queryErrors, err)
	default:
		renderMerchant(w, http.StatusOK, *m)
	}
}

func (h *Handler) getMerchant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	m, err := h.merchants.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	renderMerchant(w, http.StatusOK, *m)
}

func (h *Handler) createMerchant(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, "merchant")
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	var m merchant.Merchant
	if m.Name, err = f.text("name"); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if err := merchant.Validate(m); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if err := h.merchants.Create(r.Context(), &m); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	renderMerchant(w, http.StatusCreated, m)
}

// updateMerchant changes the fields present in the body.
func (h *Handler) updateMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	m, err := h.merchants.Get(ctx, id)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	f, err := readFields(w, r, "merchant")
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	name, ok, err := f.str("name")
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if ok {
		m.Name = name
	}

	if err := merchant.Validate(*m); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if err := h.merchants.Update(ctx, m); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	renderMerchant(w, http.StatusOK, *m)
}

func (h *Handler) deleteMerchant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	if err := h.merchants.Delete(r.Context(), id); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMerchantItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	if _, err := h.merchants.Get(ctx, id); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	items, err := h.items.ListByMerchant(ctx, id)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range items {
			encodeItem(e, it)
		}
		e.ArrEnd()
	})
}

func renderMerchant(w http.ResponseWriter, status int, m merchant.Merchant) {
	writeData(w, status, func(e *jx.Encoder) {
		resource(e, "merchant", m.ID, func(e *jx.Encoder) {
			e.FieldStart("name")
			e.Str(m.Name)
		})
	})
}
