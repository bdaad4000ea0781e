package pipeline

import (
	"sort"
	"strings"

	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

// Merge joins presentation and distributor fragments into one catalog.
// Distributor data wins for cost, vendor, and identity; presentation data
// wins for sell prices and categories. A fragment without any usable
// identifier cannot be matched and is excluded with a job-level error.
//
// Output ordering is deterministic (sorted by merge key), so merging the
// same fragments twice yields byte-identical JSON.
func Merge(meta catalog.Metadata, presentation, distributor []model.Fragment) (*catalog.Catalog, []model.JobError) {
	var errs []model.JobError

	presByKey, presErrs := indexFragments(presentation)
	errs = append(errs, presErrs...)
	distByKey, distErrs := indexFragments(distributor)
	errs = append(errs, distErrs...)

	keys := make([]string, 0, len(presByKey)+len(distByKey))
	seen := make(map[string]bool, len(presByKey)+len(distByKey))
	for k := range presByKey {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range distByKey {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	cat := &catalog.Catalog{
		Metadata: meta,
		Products: make([]catalog.Product, 0, len(keys)),
	}

	for _, key := range keys {
		pres, hasPres := presByKey[key]
		dist, hasDist := distByKey[key]

		var merged catalog.Product
		switch {
		case hasPres && hasDist:
			merged = mergePair(pres.Product, dist.Product)
		case hasDist:
			merged = dist.Product
			merged.Incomplete = true
		default:
			merged = pres.Product
			merged.Incomplete = true
		}

		catalog.SortBreaks(merged.Pricing.Breaks)
		catalog.ComputeMargins(merged.Pricing.Breaks)

		if merged.Incomplete {
			cat.IncompleteProducts++
		}
		cat.Products = append(cat.Products, merged)
	}

	return cat, errs
}

// indexFragments builds a case-normalized key map, dropping keyless
// fragments with a recorded error.
func indexFragments(frags []model.Fragment) (map[string]model.Fragment, []model.JobError) {
	var errs []model.JobError
	byKey := make(map[string]model.Fragment, len(frags))
	for _, f := range frags {
		key := catalog.NormalizeKey(f.Key())
		if key == "" {
			errs = append(errs, model.JobError{
				Stage:       "merge",
				ProductID:   f.Product.Item.Name,
				Message:     "product has no usable identifier, excluded from merge",
				Recoverable: true,
			})
			continue
		}
		byKey[key] = f
	}
	return byKey, errs
}

// mergePair combines one product's presentation and distributor sides.
func mergePair(pres, dist catalog.Product) catalog.Product {
	out := dist
	out.Source = "merged"

	// Identity is the distributor's, filled from the presentation where
	// the distributor side is silent.
	if out.Identifiers.CPN == "" {
		out.Identifiers.CPN = pres.Identifiers.CPN
	}
	if out.Identifiers.VendorSKU == "" {
		out.Identifiers.VendorSKU = pres.Identifiers.VendorSKU
	}

	if out.Item.Name == "" {
		out.Item.Name = pres.Item.Name
	} else if materiallyDifferent(out.Item.Name, pres.Item.Name) {
		out.Item.PresentationName = pres.Item.Name
	}

	// Presentation wins for categories; everything else descriptive falls
	// back to whichever side has it.
	if len(pres.Item.Categories) > 0 {
		out.Item.Categories = pres.Item.Categories
	}
	if out.Item.Description == "" {
		out.Item.Description = pres.Item.Description
	}
	if len(out.Item.Colors) == 0 {
		out.Item.Colors = pres.Item.Colors
	}
	if len(out.Images) == 0 {
		out.Images = pres.Images
	}
	if out.Vendor.Name == "" {
		out.Vendor = pres.Vendor
	}

	out.Pricing.Breaks = mergeBreaks(pres.Pricing.Breaks, dist.Pricing.Breaks)
	if out.Pricing.PriceCode == "" {
		out.Pricing.PriceCode = pres.Pricing.PriceCode
	}
	if out.Pricing.PriceIncludes == "" {
		out.Pricing.PriceIncludes = pres.Pricing.PriceIncludes
	}

	out.Fees = mergeFees(pres.Fees, dist.Fees)

	return out
}

// mergeBreaks unions the two tier lists by quantity: sell prices from the
// presentation side, net and catalog costs from the distributor side.
func mergeBreaks(pres, dist []catalog.PriceBreak) []catalog.PriceBreak {
	byQty := make(map[int]catalog.PriceBreak, len(dist))
	for _, b := range dist {
		byQty[b.Quantity] = catalog.PriceBreak{
			Quantity:     b.Quantity,
			NetCost:      b.NetCost,
			CatalogPrice: b.CatalogPrice,
			PriceCode:    b.PriceCode,
		}
	}
	for _, b := range pres {
		merged := byQty[b.Quantity]
		merged.Quantity = b.Quantity
		merged.SellPrice = b.SellPrice
		if merged.PriceCode == "" {
			merged.PriceCode = b.PriceCode
		}
		byQty[b.Quantity] = merged
	}

	out := make([]catalog.PriceBreak, 0, len(byQty))
	for _, b := range byQty {
		out = append(out, b)
	}
	catalog.SortBreaks(out)
	return out
}

// mergeFees keeps distributor fees (they carry net costs) and adds
// presentation-only fees not already present by name.
func mergeFees(pres, dist []catalog.Fee) []catalog.Fee {
	out := append([]catalog.Fee(nil), dist...)
	have := make(map[string]bool, len(dist))
	for _, f := range dist {
		have[strings.ToLower(f.Name)] = true
	}
	for _, f := range pres {
		if !have[strings.ToLower(f.Name)] {
			out = append(out, f)
		}
	}
	return out
}

// materiallyDifferent ignores case and whitespace runs when comparing the
// two sides' product names.
func materiallyDifferent(a, b string) bool {
	if b == "" {
		return false
	}
	return squash(a) != squash(b)
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
