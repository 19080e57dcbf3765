package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/events"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	h.renderCouponList(w, r, false, func(ctx context.Context, merchantID int64) ([]coupon.Coupon, error) {
		return h.coupons.FilterByBooleanString(ctx, merchantID, r.URL.Query().Get("status"))
	})
}

// couponSummary lists coupons with their status rendered as a label.
func (h *Handler) couponSummary(w http.ResponseWriter, r *http.Request) {
	h.renderCouponList(w, r, true, func(ctx context.Context, merchantID int64) ([]coupon.Coupon, error) {
		return h.coupons.FilterByActiveLabel(ctx, merchantID, r.URL.Query().Get("status"))
	})
}

func (h *Handler) renderCouponList(
	w http.ResponseWriter,
	r *http.Request,
	labeled bool,
	list func(ctx context.Context, merchantID int64) ([]coupon.Coupon, error),
) {
	ctx := r.Context()
	merchantID, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}

	coupons, err := list(ctx, merchantID)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}

	usages := make([]coupon.Usage, 0, len(coupons))
	for _, c := range coupons {
		u, err := h.usage.Report(ctx, c)
		if err != nil {
			h.fail(w, r, plainErrors, err)
			return
		}
		usages = append(usages, u)
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, u := range usages {
			encodeCoupon(e, u, labeled)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	merchantID, couponID, err := couponPath(r)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}

	c, err := h.coupons.Get(r.Context(), merchantID, couponID)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}
	h.renderCoupon(w, r, http.StatusOK, *c)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, err := pathID(r, "merchantID", merchant.ErrNotFound)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}

	d, err := readDraft(w, r)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}
	d.MerchantID = merchantID

	c, err := h.coupons.Create(ctx, d)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}
	h.publish(ctx, events.CouponCreated, *c)
	h.renderCoupon(w, r, http.StatusCreated, *c)
}

func (h *Handler) activateCoupon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, events.CouponActivated, h.coupons.Activate)
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, events.CouponDeactivated, h.coupons.Deactivate)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	t events.Type,
	apply func(ctx context.Context, merchantID, id int64) (*coupon.Coupon, error),
) {
	ctx := r.Context()
	merchantID, couponID, err := couponPath(r)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}

	c, err := apply(ctx, merchantID, couponID)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}
	h.publish(ctx, t, *c)
	h.renderCoupon(w, r, http.StatusOK, *c)
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, couponID, err := couponPath(r)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}

	if err := h.coupons.Delete(ctx, merchantID, couponID); err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}
	h.publish(ctx, events.CouponDeleted, coupon.Coupon{ID: couponID, MerchantID: merchantID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renderCoupon(w http.ResponseWriter, r *http.Request, status int, c coupon.Coupon) {
	u, err := h.usage.Report(r.Context(), c)
	if err != nil {
		h.fail(w, r, plainErrors, err)
		return
	}
	writeData(w, status, func(e *jx.Encoder) {
		encodeCoupon(e, u, false)
	})
}

func couponPath(r *http.Request) (merchantID, couponID int64, err error) {
	if merchantID, err = pathID(r, "merchantID", merchant.ErrNotFound); err != nil {
		return 0, 0, err
	}
	if couponID, err = pathID(r, "couponID", coupon.ErrNotFound); err != nil {
		return 0, 0, err
	}
	return merchantID, couponID, nil
}

// readDraft reads a coupon from {"coupon": {...}} or a flat body. New
// coupons are active unless status says otherwise.
func readDraft(w http.ResponseWriter, r *http.Request) (coupon.Draft, error) {
	f, err := readFields(w, r, "coupon")
	if err != nil {
		return coupon.Draft{}, err
	}

	var d coupon.Draft
	if d.Name, err = f.text("name"); err != nil {
		return d, err
	}
	if d.Code, err = f.text("code"); err != nil {
		return d, err
	}
	if d.DiscountType, err = f.text("discount_type"); err != nil {
		return d, err
	}
	if d.DiscountValue, err = f.text("discount_value"); err != nil {
		return d, err
	}
	if d.Active, err = f.boolean("status", true); err != nil {
		return d, errors.Wrap(err, "status")
	}
	return d, nil
}

func encodeCoupon(e *jx.Encoder, u coupon.Usage, labeled bool) {
	resource(e, "coupon", u.ID, func(e *jx.Encoder) {
		e.FieldStart("name")
		e.Str(u.Name)
		e.FieldStart("code")
		e.Str(u.Code)
		e.FieldStart("discount_type")
		e.Str(string(u.DiscountType))
		e.FieldStart("discount_value")
		writeDecimal(e, u.DiscountValue)
		e.FieldStart("status")
		if labeled {
			e.Str(coupon.Label(u.Active))
		} else {
			e.Bool(u.Active)
		}
		e.FieldStart("merchant_id")
		e.Int64(u.MerchantID)
		e.FieldStart("usage_count")
		e.Int(u.Count)
	})
}
