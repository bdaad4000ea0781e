package sage

import "strconv"

// Wire types for the Connect API. Field names mirror the JSON the service
// returns; numeric columns arrive as parallel string arrays.

// Presentation is one presentation from the serviceId 301 response.
type Presentation struct {
	PresID    int64      `json:"presId"`
	ItemCount int        `json:"itemCnt"`
	General   General    `json:"general"`
	Client    ClientInfo `json:"client"`
	Header    Header     `json:"header"`
	Items     []Item     `json:"items"`
}

// General holds presentation-level metadata.
type General struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

// ClientInfo is the end customer the presentation was built for.
type ClientInfo struct {
	ClientID int64  `json:"clientId"`
	Name     string `json:"name"`
	Company  string `json:"clientCompany"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address1 string `json:"address1"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	TaxRate  string `json:"taxRate"`
}

// Header carries the free-text presenter block.
type Header struct {
	HeadFirstText string `json:"headFirstText"`
	HeadAddtlText string `json:"headAddtlText"`
}

// Supplier is the vendor record attached to an item.
type Supplier struct {
	SageID       string `json:"sageId"`
	Company      string `json:"company"`
	Line         string `json:"line"`
	Web          string `json:"web"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	MyCustNum    string `json:"myCustNum"`
	MyCsRep      string `json:"myCsRep"`
	MyCsRepEmail string `json:"myCsRepEmail"`
}

// Pic is one product image.
type Pic struct {
	URL string `json:"url"`
}

// Item is one product in a presentation.
type Item struct {
	PresItemID      int64  `json:"presItemId"`
	ProdID          int64  `json:"prodId"`
	EncryptedProdID string `json:"encryptedProdId"`
	InternalItemNum string `json:"internalItemNum"`
	SPC             string `json:"spc"`
	ItemNum         string `json:"itemNum"`

	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`

	// Parallel pricing columns, index-aligned by tier.
	Qtys     []string `json:"qtys"`
	CatPrcs  []string `json:"catPrcs"`
	SellPrcs []string `json:"sellPrcs"`
	Costs    []string `json:"costs"`

	PriceIncludes string `json:"priceIncludes"`
	PriceCode     string `json:"priceCode"`

	SetupChg              string `json:"setupChg"`
	SetupChgCode          string `json:"setupChgCode"`
	RepeatChg             string `json:"repeatChg"`
	ScreenChg             string `json:"screenChg"`
	ProofChg              string `json:"proofChg"`
	PMSChg                string `json:"pmsChg"`
	SpecSampleChg         string `json:"specSampleChg"`
	CopyChg               string `json:"copyChg"`
	AdditionalChargesText string `json:"additionalChargesText"`

	ColorInfoText   string `json:"colorInfoText"`
	ImprintInfoText string `json:"imprintInfoText"`
	PackagingText   string `json:"packagingText"`

	ShipPoint    string `json:"shipPoint"`
	UnitsPerCtn  string `json:"unitsPerCtn"`
	WeightPerCtn string `json:"weightPerCtn"`

	Supplier Supplier `json:"supplier"`
	Pics     []Pic    `json:"pics"`

	CatYear    string `json:"catYear"`
	CatExpires string `json:"catExpires"`
}

// Break is one parsed price tier from an item's parallel columns.
type Break struct {
	Quantity     int
	CatalogPrice float64
	SellPrice    float64
	NetCost      float64
}

// Breaks parses the item's parallel pricing columns into tiers. Zero or
// unparseable quantities are skipped, matching how the presentation view
// renders them.
func (it Item) Breaks() []Break {
	var out []Break
	for i, qs := range it.Qtys {
		qty, ok := parseQty(qs)
		if !ok || qty <= 0 {
			continue
		}
		out = append(out, Break{
			Quantity:     qty,
			CatalogPrice: column(it.CatPrcs, i),
			SellPrice:    column(it.SellPrcs, i),
			NetCost:      column(it.Costs, i),
		})
	}
	return out
}

// ProductDetail is the serviceId 105 Full Product Detail payload.
type ProductDetail struct {
	Qty []string `json:"qty"`
	Net []string `json:"net"`

	ProdTime          string `json:"prodTime"`
	DecorationMethod  string `json:"decorationMethod"`
	ImprintArea       string `json:"imprintArea"`
	ImprintLoc        string `json:"imprintLoc"`
	SecondImprintArea string `json:"secondImprintArea"`
	SecondImprintLoc  string `json:"secondImprintLoc"`
	Recyclable        bool   `json:"recyclable"`
	EnvFriendly       bool   `json:"envFriendly"`
	Themes            string `json:"themes"`
	PriceIncludes     string `json:"priceIncludes"`
}

// NetByQty builds a quantity-keyed lookup of the authoritative net costs.
func (d *ProductDetail) NetByQty() map[int]float64 {
	out := make(map[int]float64, len(d.Qty))
	for i, qs := range d.Qty {
		qty, ok := parseQty(qs)
		if !ok || qty <= 0 {
			continue
		}
		out[qty] = column(d.Net, i)
	}
	return out
}

func parseQty(s string) (int, bool) {
	if s == "" || s == "0" {
		return 0, false
	}
	cleaned := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ',' && s[i] != ' ' {
			cleaned = append(cleaned, s[i])
		}
	}
	n, err := strconv.Atoi(string(cleaned))
	if err != nil {
		return 0, false
	}
	return n, true
}

func column(vals []string, i int) float64 {
	if i >= len(vals) || vals[i] == "" {
		return 0
	}
	f, err := strconv.ParseFloat(vals[i], 64)
	if err != nil {
		return 0
	}
	return f
}
