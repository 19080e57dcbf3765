package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/merchant"
)

func (h *Handler) listMerchantInvoices(w http.ResponseWriter, r *http.Request) {
	merchantID, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	invoices, err := h.invoices.ListByMerchant(r.Context(), merchantID, r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, inv := range invoices {
			resource(e, "invoice", inv.ID, func(e *jx.Encoder) {
				encodeInvoiceHeader(e, inv)
			})
		}
		e.ArrEnd()
	})
}

// createInvoice reads {customer_id, coupon_id, status, items: [{item_id, quantity}]}.
func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	merchantID, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	req, err := readInvoiceRequest(w, r)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	req.MerchantID = merchantID

	d, err := h.invoices.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	renderInvoice(w, http.StatusCreated, d)
}

// getInvoice computes the total on every read.
func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "invoiceID", invoice.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	d, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	renderInvoice(w, http.StatusOK, d)
}

func (h *Handler) recordInvoiceTotal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "invoiceID", invoice.ErrNotFound)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}

	d, err := h.invoices.RecordTotal(r.Context(), id)
	if err != nil {
		h.fail(w, r, queryErrors, err)
		return
	}
	renderInvoice(w, http.StatusOK, d)
}

func readInvoiceRequest(w http.ResponseWriter, r *http.Request) (invoice.CreateRequest, error) {
	var req invoice.CreateRequest

	f, err := readFields(w, r, "invoice")
	if err != nil {
		return req, err
	}
	if req.CustomerID, _, err = f.int64("customer_id"); err != nil {
		return req, err
	}
	couponID, ok, err := f.int64("coupon_id")
	if err != nil {
		return req, err
	}
	if ok {
		req.CouponID = &couponID
	}
	if req.Status, err = f.text("status"); err != nil {
		return req, err
	}

	lines, err := f.objects("items")
	if err != nil {
		return req, err
	}
	for _, l := range lines {
		itemID, _, err := l.int64("item_id")
		if err != nil {
			return req, err
		}
		qty, _, err := l.int64("quantity")
		if err != nil {
			return req, err
		}
		req.Items = append(req.Items, invoice.LineRequest{ItemID: itemID, Quantity: qty})
	}
	return req, nil
}

func renderInvoice(w http.ResponseWriter, status int, d *invoice.Detail) {
	writeData(w, status, func(e *jx.Encoder) {
		resource(e, "invoice", d.ID, func(e *jx.Encoder) {
			encodeInvoiceHeader(e, d.Invoice)
			e.FieldStart("total")
			writeMoney(e, d.Computed)
			e.FieldStart("recorded_total")
			writeNullMoney(e, d.Total)
			e.FieldStart("invoice_items")
			e.ArrStart()
			for _, l := range d.Lines {
				e.ObjStart()
				e.FieldStart("id")
				e.Int64(l.ID)
				e.FieldStart("item_id")
				e.Int64(l.ItemID)
				e.FieldStart("merchant_id")
				e.Int64(l.ItemMerchantID)
				e.FieldStart("name")
				e.Str(l.Name)
				e.FieldStart("quantity")
				if l.Quantity != nil {
					e.Int(*l.Quantity)
				} else {
					e.Null()
				}
				e.FieldStart("unit_price")
				writeNullMoney(e, l.UnitPrice)
				e.ObjEnd()
			}
			e.ArrEnd()
		})
	})
}

func encodeInvoiceHeader(e *jx.Encoder, inv invoice.Invoice) {
	e.FieldStart("merchant_id")
	e.Int64(inv.MerchantID)
	e.FieldStart("customer_id")
	e.Int64(inv.CustomerID)
	e.FieldStart("coupon_id")
	if inv.CouponID != nil {
		e.Int64(*inv.CouponID)
	} else {
		e.Null()
	}
	e.FieldStart("status")
	e.Str(inv.Status)
}
