package invoice

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/coupon"
)

// CalculateTotal returns the invoice total for lines with an optional coupon.
//
// Lines are grouped by the merchant owning each underlying item. The coupon
// discounts only the group of its own merchant, and no group goes below
// zero. Missing prices or quantities count as zero. The result is not
// rounded.
func CalculateTotal(lines []LineItem, c *coupon.Coupon) decimal.Decimal {
	subtotals := make(map[int64]decimal.Decimal)
	for _, l := range lines {
		subtotals[l.ItemMerchantID] = subtotals[l.ItemMerchantID].Add(lineAmount(l))
	}

	total := decimal.Zero
	for merchantID, sub := range subtotals {
		if c != nil && c.MerchantID == merchantID {
			sub = Discount(sub, *c)
		}
		total = total.Add(sub)
	}
	return total
}

// Discount applies c to a single merchant subtotal, floored at zero.
func Discount(subtotal decimal.Decimal, c coupon.Coupon) decimal.Decimal {
	var out decimal.Decimal
	switch c.DiscountType {
	case coupon.DiscountDollar:
		out = subtotal.Sub(c.DiscountValue)
	case coupon.DiscountPercent:
		out = subtotal.Sub(subtotal.Mul(c.DiscountValue).Shift(-2))
	default:
		out = subtotal
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

func lineAmount(l LineItem) decimal.Decimal {
	if !l.UnitPrice.Valid || l.Quantity == nil {
		return decimal.Zero
	}
	return l.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(*l.Quantity)))
}
