// Package catalog defines the unified product catalog schema produced by the
// acquisition pipelines, plus the query helpers downstream consumers (quote
// agents, item-master uploaders, calculators) use to read it.
//
// Both source platforms normalize into this one shape. Shared fields use
// identical names regardless of source; platform-specific identifiers are
// kept side by side so either platform's records can be traced back.
package catalog

// Identifiers holds every product identifier we know about, shared and
// platform-specific. MPN and VendorSKU drive the downstream item master;
// CPN is the ESP customer product number, SPC the SAGE product code.
type Identifiers struct {
	MPN             string `json:"mpn,omitempty"`
	VendorSKU       string `json:"vendor_sku,omitempty"`
	CPN             string `json:"cpn,omitempty"`
	SPC             string `json:"spc,omitempty"`
	ProdID          int64  `json:"prod_id,omitempty"`
	EncryptedProdID string `json:"encrypted_prod_id,omitempty"`
	PresItemID      int64  `json:"pres_item_id,omitempty"`
	InternalItemNum string `json:"internal_item_num,omitempty"`
	ItemNum         string `json:"item_num,omitempty"`
}

// Key returns the identifier used to join presentation and distributor
// fragments for this product: CPN for ESP, SPC (falling back to the
// encrypted product id) for SAGE, then vendor SKU as a last resort.
func (id Identifiers) Key() string {
	switch {
	case id.CPN != "":
		return id.CPN
	case id.SPC != "":
		return id.SPC
	case id.EncryptedProdID != "":
		return id.EncryptedProdID
	default:
		return id.VendorSKU
	}
}

// Dimensions is a parsed dimension set. Raw always preserves the original
// source string; the numeric fields are populated only when parsing
// succeeded.
type Dimensions struct {
	Length   *float64 `json:"length,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Diameter *float64 `json:"diameter,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Raw      string   `json:"raw,omitempty"`
}

// Item is the descriptive core of a product.
type Item struct {
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	DescriptionShort string      `json:"description_short,omitempty"`
	// PresentationName keeps the client-facing name when it differs
	// materially from the distributor report's authoritative name.
	PresentationName string      `json:"presentation_name,omitempty"`
	Categories       []string    `json:"categories,omitempty"`
	Themes           []string    `json:"themes,omitempty"`
	Materials        []string    `json:"materials,omitempty"`
	Colors           []string    `json:"colors,omitempty"`
	PrimaryColor     string      `json:"primary_color,omitempty"`
	Dimensions       *Dimensions `json:"dimensions,omitempty"`
	WeightValue      *float64    `json:"weight_value,omitempty"`
	WeightUnit       string      `json:"weight_unit,omitempty"`
	Sustainability   string      `json:"sustainability_credential,omitempty"`
}

// Address is a standardized postal address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Vendor identifies the supplier. Website is the cross-platform match key:
// vendor display names vary between sources ("Hit Promo" vs "HIT
// Promotional Products"), the registered domain does not.
type Vendor struct {
	Name        string   `json:"name"`
	Website     string   `json:"website,omitempty"`
	ASI         string   `json:"asi,omitempty"`
	SageID      string   `json:"sage_id,omitempty"`
	LineName    string   `json:"line_name,omitempty"`
	TradeName   string   `json:"trade_name,omitempty"`
	ContactName string   `json:"contact_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

// Fee is a one-off or per-unit charge attached to a product (setup, proof,
// PMS match, additional color, and so on).
type Fee struct {
	Type             string   `json:"fee_type"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	ListPrice        *float64 `json:"list_price,omitempty"`
	NetCost          *float64 `json:"net_cost,omitempty"`
	PriceCode        string   `json:"price_code,omitempty"`
	ChargeBasis      string   `json:"charge_basis,omitempty"`
	MinQty           *int     `json:"min_qty,omitempty"`
	DecorationMethod string   `json:"decoration_method,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// ImprintArea is one printable area specification.
type ImprintArea struct {
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Diameter *float64 `json:"diameter,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Raw      string   `json:"raw,omitempty"`
}

// DecorationMethod describes one available imprint method.
type DecorationMethod struct {
	Name      string `json:"name"`
	FullColor bool   `json:"full_color,omitempty"`
	MaxColors *int   `json:"max_colors,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// DecorationLocation is a spot on the product that can carry an imprint.
type DecorationLocation struct {
	Name           string        `json:"name"`
	Component      string        `json:"component,omitempty"`
	MethodsAllowed []string      `json:"methods_allowed,omitempty"`
	ImprintAreas   []ImprintArea `json:"imprint_areas,omitempty"`
}

// Decoration aggregates imprint capability metadata.
type Decoration struct {
	Methods          []DecorationMethod   `json:"methods,omitempty"`
	Locations        []DecorationLocation `json:"locations,omitempty"`
	SoldUnimprinted  *bool                `json:"sold_unimprinted,omitempty"`
	Personalization  *bool                `json:"personalization_available,omitempty"`
	FullColorProcess *bool                `json:"full_color_process_available,omitempty"`
	ImprintInfo      string               `json:"imprint_info,omitempty"`
	ImprintColors    string               `json:"imprint_colors_description,omitempty"`
}

// Variant is a selectable product option (color, size, component).
type Variant struct {
	Attribute string   `json:"attribute"`
	Label     string   `json:"label"`
	Component string   `json:"component,omitempty"`
	Options   []string `json:"options,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// FOBPoint is a shipping origin.
type FOBPoint struct {
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Shipping carries logistics metadata.
type Shipping struct {
	ShipPoint       string     `json:"ship_point,omitempty"`
	FOBPoints       []FOBPoint `json:"fob_points,omitempty"`
	UnitsPerCarton  *int       `json:"units_per_carton,omitempty"`
	WeightPerCarton *float64   `json:"weight_per_carton,omitempty"`
	Packaging       string     `json:"packaging,omitempty"`
	LeadTime        string     `json:"lead_time,omitempty"`
}

// Notes holds free-text disclaimers and remarks that survive normalization.
type Notes struct {
	Packaging         string   `json:"packaging,omitempty"`
	LeadTime          string   `json:"lead_time,omitempty"`
	Disclaimers       []string `json:"supplier_disclaimers,omitempty"`
	AdditionalCharges string   `json:"additional_charges_text,omitempty"`
	Other             string   `json:"other,omitempty"`
}

// Pricing wraps the ordered break list plus pricing-wide attributes.
//
// The break list is the source of truth for every order quantity. There is
// deliberately no "default price" field here: which tier a summary view
// should show is unresolved policy, so consumers query SelectBreak instead.
type Pricing struct {
	Breaks        []PriceBreak `json:"breaks"`
	PriceCode     string       `json:"price_code,omitempty"`
	Currency      string       `json:"currency,omitempty"`
	ValidThrough  string       `json:"valid_through,omitempty"`
	PriceIncludes string       `json:"price_includes,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

// Product is the canonical catalog record, one per presentation item,
// regardless of which platform it came from.
type Product struct {
	Source      string      `json:"source"`
	Identifiers Identifiers `json:"identifiers"`
	Item        Item        `json:"item"`
	Vendor      Vendor      `json:"vendor"`
	Pricing     Pricing     `json:"pricing"`
	Fees        []Fee       `json:"fees,omitempty"`
	Decoration  Decoration  `json:"decoration,omitzero"`
	Variants    []Variant   `json:"variants,omitempty"`
	Shipping    Shipping    `json:"shipping,omitzero"`
	Images      []string    `json:"images,omitempty"`
	Notes       Notes       `json:"notes,omitzero"`

	// Incomplete marks products missing one side of the price merge
	// (presentation-only or distributor-only).
	Incomplete bool `json:"incomplete,omitempty"`
}
