package catalog

import (
	"sort"

	"github.com/rotisserie/eris"
)

// PriceBreak is one quantity tier. SellPrice comes from the client-facing
// presentation, NetCost from the distributor-facing detail source; either
// may be absent when only one source covered this tier.
type PriceBreak struct {
	Quantity      int      `json:"quantity"`
	SellPrice     *float64 `json:"sell_price,omitempty"`
	NetCost       *float64 `json:"net_cost,omitempty"`
	CatalogPrice  *float64 `json:"catalog_price,omitempty"`
	Margin        *float64 `json:"margin,omitempty"`
	MarginPercent *float64 `json:"margin_percent,omitempty"`
	PriceCode     string   `json:"price_code,omitempty"`
}

// ErrBelowMinimum reports a requested quantity under the lowest break tier.
var ErrBelowMinimum = eris.New("quantity below minimum order quantity")

// SortBreaks orders breaks ascending by quantity, in place.
func SortBreaks(breaks []PriceBreak) {
	sort.Slice(breaks, func(i, j int) bool {
		return breaks[i].Quantity < breaks[j].Quantity
	})
}

// ValidateBreaks checks that quantities are positive and strictly
// increasing. The slice must already be sorted.
func ValidateBreaks(breaks []PriceBreak) error {
	for i, b := range breaks {
		if b.Quantity <= 0 {
			return eris.Errorf("price break %d: non-positive quantity %d", i, b.Quantity)
		}
		if i > 0 && breaks[i-1].Quantity >= b.Quantity {
			return eris.Errorf("price break %d: quantity %d not above previous %d",
				i, b.Quantity, breaks[i-1].Quantity)
		}
	}
	return nil
}

// ComputeMargins fills Margin and MarginPercent for every break where both
// sell price and net cost are known. Tiers missing either operand are left
// with nil margins rather than a guessed zero, and a zero sell price never
// produces a percentage.
func ComputeMargins(breaks []PriceBreak) {
	for i := range breaks {
		b := &breaks[i]
		if b.SellPrice == nil || b.NetCost == nil {
			b.Margin = nil
			b.MarginPercent = nil
			continue
		}
		m := *b.SellPrice - *b.NetCost
		b.Margin = &m
		if *b.SellPrice != 0 {
			pct := m / *b.SellPrice * 100
			b.MarginPercent = &pct
		} else {
			b.MarginPercent = nil
		}
	}
}

// SelectBreak resolves the price tier for a requested quantity: the highest
// break whose quantity does not exceed the request. Quantities between tiers
// round down to the lower tier; quantities at or past the top tier use the
// top tier. A request below the lowest tier returns ErrBelowMinimum, never a
// silently bumped price.
func SelectBreak(breaks []PriceBreak, quantity int) (PriceBreak, error) {
	if len(breaks) == 0 {
		return PriceBreak{}, eris.New("product has no price breaks")
	}
	if quantity < breaks[0].Quantity {
		return PriceBreak{}, eris.Wrapf(ErrBelowMinimum,
			"requested %d, minimum is %d", quantity, breaks[0].Quantity)
	}
	chosen := breaks[0]
	for _, b := range breaks[1:] {
		if b.Quantity > quantity {
			break
		}
		chosen = b
	}
	return chosen, nil
}
