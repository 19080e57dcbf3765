package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID", item.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	it, err := h.items.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeItem(e, *it)
	})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := readFields(w, r, "item")
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	var (
		it    item.Item
		vs    validation.Set
		price string
	)
	if it.Name, err = f.text("name"); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if it.Description, err = f.text("description"); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if price, err = f.text("unit_price"); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	merchantID, _, err := f.int64("merchant_id")
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	it.MerchantID = merchantID

	merchantExists := false
	if merchantID > 0 {
		_, err := h.merchants.Get(ctx, merchantID)
		switch {
		case err == nil:
			merchantExists = true
		case !errors.Is(err, merchant.ErrNotFound):
			h.fail(w, r, queryErrors, err)
			return
		}
	}

	switch price = strings.TrimSpace(price); {
	case price == "":
		vs.Add("unit_price", validation.MsgBlank)
	default:
		v, err := decimal.NewFromString(price)
		if err != nil {
			vs.Add("unit_price", validation.MsgNotANumber)
			break
		}
		it.UnitPrice = v
	}
	vs.Merge(item.Validate(it, merchantExists))
	if err := vs.Err(); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	if err := h.items.Create(ctx, &it); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeItem(e, it)
	})
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID", item.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	if err := h.items.Delete(r.Context(), id); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, "customer")
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	var c customer.Customer
	if c.FirstName, err = f.text("first_name"); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if c.LastName, err = f.text("last_name"); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if err := customer.Validate(c); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	if err := h.customers.Create(r.Context(), &c); err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		resource(e, "customer", c.ID, func(e *jx.Encoder) {
			e.FieldStart("first_name")
			e.Str(c.FirstName)
			e.FieldStart("last_name")
			e.Str(c.LastName)
		})
	})
}

func encodeItem(e *jx.Encoder, it item.Item) {
	resource(e, "item", it.ID, func(e *jx.Encoder) {
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("description")
		e.Str(it.Description)
		e.FieldStart("unit_price")
		writeDecimal(e, it.UnitPrice)
		e.FieldStart("merchant_id")
		e.Int64(it.MerchantID)
	})
}
