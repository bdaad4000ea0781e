package pipeline

import (
	"strings"
	"time"

	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

// Normalize tidies a merged catalog in place: trims and collapses
// whitespace in display fields, dedupes list fields, defaults the
// currency, and stamps generation metadata. It never invents pricing.
func Normalize(cat *catalog.Catalog, jobID string) {
	if cat.Metadata.Currency == "" {
		cat.Metadata.Currency = "USD"
	}
	if cat.Metadata.GeneratedAt.IsZero() {
		cat.Metadata.GeneratedAt = time.Now().UTC()
	}
	cat.Metadata.JobID = jobID
	cat.Metadata.PresentationName = clean(cat.Metadata.PresentationName)

	for i := range cat.Products {
		p := &cat.Products[i]

		p.Item.Name = clean(p.Item.Name)
		p.Item.PresentationName = clean(p.Item.PresentationName)
		p.Item.Description = strings.TrimSpace(p.Item.Description)
		p.Item.Categories = dedupe(p.Item.Categories)
		p.Item.Themes = dedupe(p.Item.Themes)
		p.Item.Materials = dedupe(p.Item.Materials)
		p.Item.Colors = dedupe(p.Item.Colors)

		p.Vendor.Name = clean(p.Vendor.Name)
		p.Vendor.Website = strings.TrimSpace(p.Vendor.Website)

		if p.Pricing.Currency == "" {
			p.Pricing.Currency = cat.Metadata.Currency
		}
		catalog.SortBreaks(p.Pricing.Breaks)
		catalog.ComputeMargins(p.Pricing.Breaks)
	}
}

// clean collapses internal whitespace runs and trims.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedupe removes case-insensitive duplicates, keeping first occurrence
// order and dropping empties.
func dedupe(vals []string) []string {
	if len(vals) == 0 {
		return vals
	}
	seen := make(map[string]bool, len(vals))
	out := vals[:0]
	for _, v := range vals {
		v = clean(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
