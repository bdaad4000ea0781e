package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexStringAcceptsNumbers(t *testing.T) {
	var p presentationProduct
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Pen","cpn":550123456}`), &p))
	assert.Equal(t, "550123456", p.CPN.String())

	require.NoError(t, json.Unmarshal([]byte(`{"name":"Pen","cpn":"550123456"}`), &p))
	assert.Equal(t, "550123456", p.CPN.String())

	require.NoError(t, json.Unmarshal([]byte(`{"name":"Pen","cpn":null}`), &p))
	assert.Equal(t, "", p.CPN.String())
}

func TestDistributorFragmentFallsBackToSearchKey(t *testing.T) {
	frag := distributorFragment("550999", distributorProduct{Name: "Koozie"})
	assert.Equal(t, "550999", frag.Product.Identifiers.CPN)
	assert.Equal(t, "550999", frag.Key())

	frag = distributorFragment("550999", distributorProduct{Name: "Koozie", CPN: "551000"})
	assert.Equal(t, "551000", frag.Product.Identifiers.CPN)
}

func TestDistributorFragmentParsesDimensions(t *testing.T) {
	frag := distributorFragment("550999", distributorProduct{
		Name:          "Koozie",
		DimensionsRaw: `7" x 5" x 2"`,
	})
	dims := frag.Product.Item.Dimensions
	require.NotNil(t, dims)
	assert.Equal(t, `7" x 5" x 2"`, dims.Raw)
	require.NotNil(t, dims.Length)
	assert.InDelta(t, 7.0, *dims.Length, 1e-9)

	frag = distributorFragment("550999", distributorProduct{Name: "Koozie"})
	assert.Nil(t, frag.Product.Item.Dimensions)
}

func TestPresentationFragmentSkipsZeroQuantityTiers(t *testing.T) {
	p := presentationProduct{Name: "Mug", CPN: "c1"}
	p.PriceBreaks = []struct {
		Quantity  int      `json:"quantity"`
		SellPrice *float64 `json:"sell_price"`
	}{
		{Quantity: 0, SellPrice: fptr(1)},
		{Quantity: 100, SellPrice: fptr(2)},
	}

	frag := presentationFragment(p)
	require.Len(t, frag.Product.Pricing.Breaks, 1)
	assert.Equal(t, 100, frag.Product.Pricing.Breaks[0].Quantity)
}
