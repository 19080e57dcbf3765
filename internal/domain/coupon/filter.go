package coupon

import (
	"github.com/xenking/little-shop/internal/domain/validation"
)

// StatusFilter selects coupons by their active flag. The zero value selects
// every coupon.
type StatusFilter struct {
	active *bool
}

// AnyStatus selects all coupons.
var AnyStatus = StatusFilter{}

// OnlyActive selects coupons with status=true.
func OnlyActive() StatusFilter {
	v := true
	return StatusFilter{active: &v}
}

// OnlyInactive selects coupons with status=false.
func OnlyInactive() StatusFilter {
	v := false
	return StatusFilter{active: &v}
}

// Active returns the wanted status and whether the filter restricts at all.
func (f StatusFilter) Active() (active, ok bool) {
	if f.active == nil {
		return false, false
	}
	return *f.active, true
}

// Matches reports whether c passes the filter.
func (f StatusFilter) Matches(c Coupon) bool {
	return f.active == nil || *f.active == c.Active
}

// ParseBooleanFilter reads the index listing filter: "true", "false", or
// empty for no filtering. Any other value is a validation failure.
func ParseBooleanFilter(s string) (StatusFilter, error) {
	switch s {
	case "":
		return AnyStatus, nil
	case "true":
		return OnlyActive(), nil
	case "false":
		return OnlyInactive(), nil
	default:
		return AnyStatus, validation.Single(validation.Base, MsgInvalidStatusFilter)
	}
}

// ParseActiveLabel reads the label filter: "active", "inactive", anything
// else selects all coupons.
func ParseActiveLabel(s string) StatusFilter {
	switch s {
	case "active":
		return OnlyActive()
	case "inactive":
		return OnlyInactive()
	default:
		return AnyStatus
	}
}

// Label renders the active flag as "active" or "inactive".
func Label(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
