package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

func fptr(f float64) *float64 { return &f }

func presFrag(cpn, name string, breaks ...catalog.PriceBreak) model.Fragment {
	return model.Fragment{
		Origin: model.OriginPresentation,
		Product: catalog.Product{
			Source:      "esp",
			Identifiers: catalog.Identifiers{CPN: cpn},
			Item:        catalog.Item{Name: name, Categories: []string{"Drinkware"}},
			Pricing:     catalog.Pricing{Breaks: breaks},
		},
	}
}

func distFrag(cpn, name string, breaks ...catalog.PriceBreak) model.Fragment {
	return model.Fragment{
		Origin: model.OriginDistributor,
		Product: catalog.Product{
			Source:      "esp",
			Identifiers: catalog.Identifiers{CPN: cpn, MPN: "HIT-5500"},
			Item:        catalog.Item{Name: name},
			Vendor:      catalog.Vendor{Name: "Hit Promotional Products", Website: "hitpromo.net"},
			Pricing:     catalog.Pricing{Breaks: breaks},
		},
	}
}

func TestMergeJoinsBothSides(t *testing.T) {
	pres := presFrag("550123456", "Custom Can Cooler",
		catalog.PriceBreak{Quantity: 100, SellPrice: fptr(1.50)},
		catalog.PriceBreak{Quantity: 250, SellPrice: fptr(1.35)},
	)
	dist := distFrag("550123456", "Custom Can Cooler",
		catalog.PriceBreak{Quantity: 100, NetCost: fptr(0.90), CatalogPrice: fptr(1.80)},
		catalog.PriceBreak{Quantity: 250, NetCost: fptr(0.82)},
	)

	cat, errs := Merge(catalog.Metadata{Source: "esp"}, []model.Fragment{pres}, []model.Fragment{dist})
	require.Empty(t, errs)
	require.Len(t, cat.Products, 1)

	p := cat.Products[0]
	assert.Equal(t, "merged", p.Source)
	assert.Equal(t, "HIT-5500", p.Identifiers.MPN)
	assert.Equal(t, "Hit Promotional Products", p.Vendor.Name)
	assert.Equal(t, []string{"Drinkware"}, p.Item.Categories)
	assert.False(t, p.Incomplete)
	assert.Zero(t, cat.IncompleteProducts)

	require.Len(t, p.Pricing.Breaks, 2)
	b := p.Pricing.Breaks[0]
	assert.Equal(t, 100, b.Quantity)
	require.NotNil(t, b.SellPrice)
	require.NotNil(t, b.NetCost)
	require.NotNil(t, b.Margin)
	assert.InDelta(t, 0.60, *b.Margin, 1e-9)
	require.NotNil(t, b.MarginPercent)
	assert.InDelta(t, 40.0, *b.MarginPercent, 1e-9)
}

func TestMergeUnionsTiers(t *testing.T) {
	pres := presFrag("c1", "Mug",
		catalog.PriceBreak{Quantity: 100, SellPrice: fptr(5)},
		catalog.PriceBreak{Quantity: 250, SellPrice: fptr(4.5)},
	)
	dist := distFrag("c1", "Mug",
		catalog.PriceBreak{Quantity: 250, NetCost: fptr(3)},
		catalog.PriceBreak{Quantity: 500, NetCost: fptr(2.8)},
	)

	cat, errs := Merge(catalog.Metadata{}, []model.Fragment{pres}, []model.Fragment{dist})
	require.Empty(t, errs)
	require.Len(t, cat.Products, 1)

	breaks := cat.Products[0].Pricing.Breaks
	require.Len(t, breaks, 3)
	assert.Equal(t, []int{100, 250, 500},
		[]int{breaks[0].Quantity, breaks[1].Quantity, breaks[2].Quantity})

	// 100 has no distributor cost, 500 has no sell price; neither gets a
	// margin.
	assert.Nil(t, breaks[0].NetCost)
	assert.Nil(t, breaks[0].Margin)
	assert.Nil(t, breaks[2].SellPrice)
	assert.Nil(t, breaks[2].Margin)
	require.NotNil(t, breaks[1].Margin)
	assert.InDelta(t, 1.5, *breaks[1].Margin, 1e-9)
}

func TestMergePresentationOnlyIsIncomplete(t *testing.T) {
	pres := presFrag("c9", "Tote Bag", catalog.PriceBreak{Quantity: 50, SellPrice: fptr(3)})

	cat, errs := Merge(catalog.Metadata{}, []model.Fragment{pres}, nil)
	require.Empty(t, errs)
	require.Len(t, cat.Products, 1)
	assert.True(t, cat.Products[0].Incomplete)
	assert.Equal(t, 1, cat.IncompleteProducts)
	assert.Nil(t, cat.Products[0].Pricing.Breaks[0].NetCost)
}

func TestMergeDistributorOnlyIsIncomplete(t *testing.T) {
	dist := distFrag("c9", "Tote Bag", catalog.PriceBreak{Quantity: 50, NetCost: fptr(2)})

	cat, errs := Merge(catalog.Metadata{}, nil, []model.Fragment{dist})
	require.Empty(t, errs)
	require.Len(t, cat.Products, 1)
	assert.True(t, cat.Products[0].Incomplete)
	assert.Equal(t, 1, cat.IncompleteProducts)
}

func TestMergeKeylessFragmentExcluded(t *testing.T) {
	keyless := model.Fragment{
		Origin:  model.OriginPresentation,
		Product: catalog.Product{Item: catalog.Item{Name: "Mystery Item"}},
	}
	pres := presFrag("c2", "Pen", catalog.PriceBreak{Quantity: 100, SellPrice: fptr(1)})

	cat, errs := Merge(catalog.Metadata{}, []model.Fragment{keyless, pres}, nil)
	require.Len(t, errs, 1)
	assert.True(t, errs[0].Recoverable)
	assert.Equal(t, "Mystery Item", errs[0].ProductID)
	require.Len(t, cat.Products, 1)
	assert.Equal(t, "Pen", cat.Products[0].Item.Name)
}

func TestMergeKeysAreCaseInsensitive(t *testing.T) {
	pres := presFrag("AbC-100", "Bottle", catalog.PriceBreak{Quantity: 24, SellPrice: fptr(8)})
	dist := distFrag("abc-100", "Bottle", catalog.PriceBreak{Quantity: 24, NetCost: fptr(5)})

	cat, errs := Merge(catalog.Metadata{}, []model.Fragment{pres}, []model.Fragment{dist})
	require.Empty(t, errs)
	require.Len(t, cat.Products, 1)
	assert.False(t, cat.Products[0].Incomplete)
}

func TestMergeKeepsClientFacingNameWhenDifferent(t *testing.T) {
	pres := presFrag("c3", "Your Logo Here Deluxe Tumbler")
	dist := distFrag("c3", "20oz Stainless Tumbler")

	cat, _ := Merge(catalog.Metadata{}, []model.Fragment{pres}, []model.Fragment{dist})
	require.Len(t, cat.Products, 1)
	assert.Equal(t, "20oz Stainless Tumbler", cat.Products[0].Item.Name)
	assert.Equal(t, "Your Logo Here Deluxe Tumbler", cat.Products[0].Item.PresentationName)
}

func TestMergeSameNameLeavesPresentationNameEmpty(t *testing.T) {
	pres := presFrag("c3", "20oz  stainless tumbler")
	dist := distFrag("c3", "20oz Stainless Tumbler")

	cat, _ := Merge(catalog.Metadata{}, []model.Fragment{pres}, []model.Fragment{dist})
	require.Len(t, cat.Products, 1)
	assert.Empty(t, cat.Products[0].Item.PresentationName)
}

func TestMergeDeduplicatesFees(t *testing.T) {
	pres := presFrag("c4", "Cap")
	pres.Product.Fees = []catalog.Fee{
		{Name: "Setup Charge", ListPrice: fptr(50)},
		{Name: "Proof Charge", ListPrice: fptr(10)},
	}
	dist := distFrag("c4", "Cap")
	dist.Product.Fees = []catalog.Fee{
		{Name: "setup charge", ListPrice: fptr(50), NetCost: fptr(30)},
	}

	cat, _ := Merge(catalog.Metadata{}, []model.Fragment{pres}, []model.Fragment{dist})
	require.Len(t, cat.Products, 1)
	fees := cat.Products[0].Fees
	require.Len(t, fees, 2)
	// Distributor copy wins for the shared fee; it carries the net cost.
	assert.NotNil(t, fees[0].NetCost)
	assert.Equal(t, "Proof Charge", fees[1].Name)
}

func TestMergeIsDeterministic(t *testing.T) {
	pres := []model.Fragment{
		presFrag("z9", "Last", catalog.PriceBreak{Quantity: 10, SellPrice: fptr(1)}),
		presFrag("a1", "First", catalog.PriceBreak{Quantity: 10, SellPrice: fptr(2)}),
		presFrag("m5", "Middle", catalog.PriceBreak{Quantity: 10, SellPrice: fptr(3)}),
	}
	dist := []model.Fragment{
		distFrag("m5", "Middle", catalog.PriceBreak{Quantity: 10, NetCost: fptr(2)}),
		distFrag("a1", "First", catalog.PriceBreak{Quantity: 10, NetCost: fptr(1)}),
	}

	first, _ := Merge(catalog.Metadata{Source: "esp"}, pres, dist)
	second, _ := Merge(catalog.Metadata{Source: "esp"}, pres, dist)

	fj, err := json.Marshal(first)
	require.NoError(t, err)
	sj, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, fj, sj)

	names := []string{first.Products[0].Item.Name, first.Products[1].Item.Name, first.Products[2].Item.Name}
	assert.Equal(t, []string{"First", "Middle", "Last"}, names)
}
