package pricing

import (
	"github.com/jogardn/offer-configurator/internal/catalog"
	"github.com/jogardn/offer-configurator/pkg/models"
)

// Quote is the per-component price of a selection.
type Quote struct {
	BasePrice       float64 `json:"base_price"`
	ColorPrice      float64 `json:"color_price"`
	UpholsteryPrice float64 `json:"upholstery_price"`
	FactoryOptions  float64 `json:"factory_options"`
	Accessories     float64 `json:"accessories"`
	Total           float64 `json:"total"`
}

// ComputeTotal prices a selection against the catalog. Codes missing from the
// catalog contribute nothing.
func ComputeTotal(sel models.Selection, store *catalog.Store) float64 {
	return Breakdown(sel, store).Total
}

func Breakdown(sel models.Selection, store *catalog.Store) Quote {
	var q Quote
	if v, ok := store.Vehicle(sel.VehicleID); ok {
		q.BasePrice = v.BasePrice
	}
	if c, ok := store.Color(sel.ColorCode); ok {
		q.ColorPrice = c.Price
	}
	if u, ok := store.Upholstery(sel.UpholsteryCode); ok {
		q.UpholsteryPrice = u.Price
	}

	// Sum over catalog entries, so a code selected twice still counts once.
	q.FactoryOptions = sumSelected(store.FactoryOptions(), sel.FactoryOptions)
	q.Accessories = sumSelected(store.Accessories(), sel.Accessories)

	q.Total = q.BasePrice + q.ColorPrice + q.UpholsteryPrice + q.FactoryOptions + q.Accessories
	return q
}

func sumSelected(items []catalog.Item, selected []string) float64 {
	if len(selected) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(selected))
	for _, code := range selected {
		set[code] = struct{}{}
	}
	var sum float64
	for _, it := range items {
		if _, ok := set[it.Code]; ok {
			sum += it.Price
		}
	}
	return sum
}
