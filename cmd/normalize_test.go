package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

func TestNormalizeCatalogFile(t *testing.T) {
	sell := 10.0
	net := 6.0
	messy := catalog.Catalog{
		Metadata: catalog.Metadata{JobID: "job-1"},
		Products: []catalog.Product{{
			Source:      "merged",
			Identifiers: catalog.Identifiers{CPN: "550111"},
			Item: catalog.Item{
				Name:       "  Insulated   Bottle ",
				Categories: []string{"Drinkware", "drinkware"},
			},
			Pricing: catalog.Pricing{Breaks: []catalog.PriceBreak{
				{Quantity: 250, SellPrice: &sell, NetCost: &net},
				{Quantity: 100, SellPrice: &sell, NetCost: &net},
			}},
		}},
	}
	path := filepath.Join(t.TempDir(), "catalog.json")
	data, err := json.Marshal(&messy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cat, err := normalizeCatalogFile(path)
	require.NoError(t, err)

	// The rewritten file carries the normalized form.
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	var reread catalog.Catalog
	require.NoError(t, json.Unmarshal(data, &reread))

	for _, c := range []*catalog.Catalog{cat, &reread} {
		assert.Equal(t, "USD", c.Metadata.Currency)
		assert.Equal(t, "job-1", c.Metadata.JobID)
		p := c.Products[0]
		assert.Equal(t, "Insulated Bottle", p.Item.Name)
		assert.Equal(t, []string{"Drinkware"}, p.Item.Categories)
		require.Len(t, p.Pricing.Breaks, 2)
		assert.Equal(t, 100, p.Pricing.Breaks[0].Quantity)
		require.NotNil(t, p.Pricing.Breaks[0].Margin)
		assert.InDelta(t, 4.0, *p.Pricing.Breaks[0].Margin, 1e-9)
	}
}

func TestNormalizeCatalogFileMissing(t *testing.T) {
	_, err := normalizeCatalogFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
