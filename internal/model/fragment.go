package model

import "github.com/stbl-strategies/catalog-cli/pkg/catalog"

// FragmentOrigin says which side of the merge a fragment came from.
type FragmentOrigin string

const (
	// OriginPresentation fragments carry client-facing sell prices.
	OriginPresentation FragmentOrigin = "presentation"
	// OriginDistributor fragments carry authoritative net costs and
	// supplier identity.
	OriginDistributor FragmentOrigin = "distributor"
)

// Fragment is one product's data from one source, before the merge. The
// embedded Product is partial; which fields are trustworthy depends on
// Origin.
type Fragment struct {
	Origin    FragmentOrigin
	ProductID string
	Product   catalog.Product
}

// Key returns ProductID when set, otherwise the product's identifier key.
func (f Fragment) Key() string {
	if f.ProductID != "" {
		return f.ProductID
	}
	return f.Product.Identifiers.Key()
}
