package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

// flexString tolerates a model emitting a bare number where the schema
// asks for a string (customer product numbers trip this constantly).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

// presentationPayload mirrors the presentation_overview extraction schema.
type presentationPayload struct {
	Presentation struct {
		PresentationName string `json:"presentation_name"`
		Client           struct {
			Name    string `json:"name"`
			Contact string `json:"contact"`
			Email   string `json:"email"`
			Phone   string `json:"phone"`
		} `json:"client"`
		Presenter struct {
			Name    string `json:"name"`
			Company string `json:"company"`
			Email   string `json:"email"`
			Phone   string `json:"phone"`
		} `json:"presenter"`
		ExpirationDate string `json:"expiration_date"`
		Currency       string `json:"currency"`
	} `json:"presentation"`
	Products []presentationProduct `json:"products"`
}

type presentationProduct struct {
	Name      string     `json:"name"`
	CPN       flexString `json:"cpn"`
	VendorSKU string     `json:"vendor_sku"`
	Vendor    struct {
		Name    string `json:"name"`
		Website string `json:"website"`
	} `json:"vendor"`
	Categories   []string `json:"categories"`
	Colors       []string `json:"colors"`
	Description  string   `json:"description"`
	ImageCaption string   `json:"image_caption"`
	PriceBreaks  []struct {
		Quantity  int      `json:"quantity"`
		SellPrice *float64 `json:"sell_price"`
	} `json:"price_breaks"`
	Fees []struct {
		Name      string   `json:"name"`
		ListPrice *float64 `json:"list_price"`
	} `json:"fees"`
	Notes string `json:"notes"`
}

// distributorPayload mirrors the distributor_report extraction schema.
type distributorPayload struct {
	Product distributorProduct `json:"product"`
}

type distributorProduct struct {
	Name      string     `json:"name"`
	MPN       string     `json:"mpn"`
	VendorSKU string     `json:"vendor_sku"`
	CPN       flexString `json:"cpn"`
	Vendor    struct {
		Name        string `json:"name"`
		Website     string `json:"website"`
		ASI         string `json:"asi"`
		ContactName string `json:"contact_name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		Address     struct {
			Line1      string `json:"line1"`
			Line2      string `json:"line2"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postal_code"`
			Country    string `json:"country"`
		} `json:"address"`
	} `json:"vendor"`
	Description   string   `json:"description"`
	Categories    []string `json:"categories"`
	Materials     []string `json:"materials"`
	Colors        []string `json:"colors"`
	DimensionsRaw string   `json:"dimensions_raw"`
	WeightValue   *float64 `json:"weight_value"`
	WeightUnit    string   `json:"weight_unit"`
	PriceBreaks   []struct {
		Quantity     int      `json:"quantity"`
		NetCost      *float64 `json:"net_cost"`
		CatalogPrice *float64 `json:"catalog_price"`
		PriceCode    string   `json:"price_code"`
	} `json:"price_breaks"`
	Fees []struct {
		FeeType          string   `json:"fee_type"`
		Name             string   `json:"name"`
		NetCost          *float64 `json:"net_cost"`
		ListPrice        *float64 `json:"list_price"`
		PriceCode        string   `json:"price_code"`
		ChargeBasis      string   `json:"charge_basis"`
		DecorationMethod string   `json:"decoration_method"`
	} `json:"fees"`
	Decoration struct {
		Methods []struct {
			Name      string `json:"name"`
			FullColor bool   `json:"full_color"`
			MaxColors *int   `json:"max_colors"`
		} `json:"methods"`
		Locations []struct {
			Name           string   `json:"name"`
			MethodsAllowed []string `json:"methods_allowed"`
			ImprintAreaRaw string   `json:"imprint_area_raw"`
		} `json:"locations"`
		SoldUnimprinted          *bool  `json:"sold_unimprinted"`
		ImprintColorsDescription string `json:"imprint_colors_description"`
	} `json:"decoration"`
	Shipping struct {
		ShipPoint       string   `json:"ship_point"`
		UnitsPerCarton  *int     `json:"units_per_carton"`
		WeightPerCarton *float64 `json:"weight_per_carton"`
		Packaging       string   `json:"packaging"`
		LeadTime        string   `json:"lead_time"`
	} `json:"shipping"`
	SupplierDisclaimers   []string `json:"supplier_disclaimers"`
	AdditionalChargesText string   `json:"additional_charges_text"`
}

// presentationMeta lifts the payload header into catalog metadata.
func presentationMeta(sourceURL string, p *presentationPayload) catalog.Metadata {
	return catalog.Metadata{
		Source:           string(model.PlatformESP),
		SourceURL:        sourceURL,
		PresentationName: p.Presentation.PresentationName,
		Client: catalog.Client{
			Name:    p.Presentation.Client.Name,
			Contact: p.Presentation.Client.Contact,
			Email:   p.Presentation.Client.Email,
			Phone:   p.Presentation.Client.Phone,
		},
		Presenter: catalog.Presenter{
			Name:    p.Presentation.Presenter.Name,
			Company: p.Presentation.Presenter.Company,
			Email:   p.Presentation.Presenter.Email,
			Phone:   p.Presentation.Presenter.Phone,
		},
		ExpirationDate: p.Presentation.ExpirationDate,
		Currency:       p.Presentation.Currency,
	}
}

// presentationFragment converts one extracted presentation product.
func presentationFragment(p presentationProduct) model.Fragment {
	var breaks []catalog.PriceBreak
	for _, b := range p.PriceBreaks {
		if b.Quantity <= 0 {
			continue
		}
		breaks = append(breaks, catalog.PriceBreak{
			Quantity:  b.Quantity,
			SellPrice: b.SellPrice,
		})
	}

	var fees []catalog.Fee
	for _, f := range p.Fees {
		if f.Name == "" {
			continue
		}
		fees = append(fees, catalog.Fee{Name: f.Name, ListPrice: f.ListPrice})
	}

	var images []string
	if p.ImageCaption != "" {
		images = append(images, p.ImageCaption)
	}

	return model.Fragment{
		Origin:    model.OriginPresentation,
		ProductID: p.CPN.String(),
		Product: catalog.Product{
			Source: string(model.PlatformESP),
			Identifiers: catalog.Identifiers{
				CPN:       p.CPN.String(),
				VendorSKU: p.VendorSKU,
			},
			Item: catalog.Item{
				Name:        p.Name,
				Description: p.Description,
				Categories:  p.Categories,
				Colors:      p.Colors,
			},
			Vendor: catalog.Vendor{
				Name:    p.Vendor.Name,
				Website: p.Vendor.Website,
			},
			Pricing: catalog.Pricing{Breaks: breaks},
			Fees:    fees,
			Notes:   catalog.Notes{Other: p.Notes},
		},
	}
}

// distributorFragment converts one extracted distributor report. The cpn
// the portal was searched with keys the fragment even when the report
// itself omits it.
func distributorFragment(cpn string, p distributorProduct) model.Fragment {
	var breaks []catalog.PriceBreak
	for _, b := range p.PriceBreaks {
		if b.Quantity <= 0 {
			continue
		}
		breaks = append(breaks, catalog.PriceBreak{
			Quantity:     b.Quantity,
			NetCost:      b.NetCost,
			CatalogPrice: b.CatalogPrice,
			PriceCode:    b.PriceCode,
		})
	}

	var fees []catalog.Fee
	for _, f := range p.Fees {
		if f.Name == "" {
			continue
		}
		fees = append(fees, catalog.Fee{
			Type:             f.FeeType,
			Name:             f.Name,
			NetCost:          f.NetCost,
			ListPrice:        f.ListPrice,
			PriceCode:        f.PriceCode,
			ChargeBasis:      f.ChargeBasis,
			DecorationMethod: f.DecorationMethod,
		})
	}

	prodCPN := p.CPN.String()
	if prodCPN == "" {
		prodCPN = cpn
	}

	product := catalog.Product{
		Source: string(model.PlatformESP),
		Identifiers: catalog.Identifiers{
			MPN:       p.MPN,
			VendorSKU: p.VendorSKU,
			CPN:       prodCPN,
		},
		Item: catalog.Item{
			Name:        p.Name,
			Description: p.Description,
			Categories:  p.Categories,
			Materials:   p.Materials,
			Colors:      p.Colors,
			WeightValue: p.WeightValue,
			WeightUnit:  p.WeightUnit,
		},
		Vendor: catalog.Vendor{
			Name:        p.Vendor.Name,
			Website:     p.Vendor.Website,
			ASI:         p.Vendor.ASI,
			ContactName: p.Vendor.ContactName,
			Email:       p.Vendor.Email,
			Phone:       p.Vendor.Phone,
		},
		Pricing: catalog.Pricing{Breaks: breaks},
		Fees:    fees,
		Shipping: catalog.Shipping{
			ShipPoint:       p.Shipping.ShipPoint,
			UnitsPerCarton:  p.Shipping.UnitsPerCarton,
			WeightPerCarton: p.Shipping.WeightPerCarton,
			Packaging:       p.Shipping.Packaging,
			LeadTime:        p.Shipping.LeadTime,
		},
		Notes: catalog.Notes{
			Disclaimers:       p.SupplierDisclaimers,
			AdditionalCharges: p.AdditionalChargesText,
		},
	}

	product.Item.Dimensions = catalog.ParseDimensions(p.DimensionsRaw)
	if addr := p.Vendor.Address; addr.Line1 != "" || addr.City != "" {
		product.Vendor.Address = &catalog.Address{
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		}
	}

	for _, m := range p.Decoration.Methods {
		if m.Name == "" {
			continue
		}
		product.Decoration.Methods = append(product.Decoration.Methods, catalog.DecorationMethod{
			Name:      m.Name,
			FullColor: m.FullColor,
			MaxColors: m.MaxColors,
		})
	}
	for _, loc := range p.Decoration.Locations {
		product.Decoration.Locations = append(product.Decoration.Locations, catalog.DecorationLocation{
			Name:           loc.Name,
			MethodsAllowed: loc.MethodsAllowed,
			ImprintAreas:   imprintAreas(loc.ImprintAreaRaw),
		})
	}
	product.Decoration.SoldUnimprinted = p.Decoration.SoldUnimprinted
	product.Decoration.ImprintColors = p.Decoration.ImprintColorsDescription

	return model.Fragment{
		Origin:    model.OriginDistributor,
		ProductID: cpn,
		Product:   product,
	}
}
