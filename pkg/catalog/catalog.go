package catalog

import (
	"net/url"
	"strings"
	"time"
)

// Client is the end customer the presentation was prepared for.
type Client struct {
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Presenter is the distributor rep who assembled the presentation.
type Presenter struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Metadata describes the presentation the catalog was built from.
type Metadata struct {
	Source           string    `json:"source"`
	SourceURL        string    `json:"source_url"`
	PresentationID   string    `json:"presentation_id,omitempty"`
	PresentationName string    `json:"presentation_name,omitempty"`
	Client           Client    `json:"client,omitzero"`
	Presenter        Presenter `json:"presenter,omitzero"`
	ExpirationDate   string    `json:"expiration_date,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
	JobID            string    `json:"job_id,omitempty"`
}

// Catalog is the unified output of a completed acquisition job.
type Catalog struct {
	Metadata Metadata  `json:"metadata"`
	Products []Product `json:"products"`

	// IncompleteProducts counts products that carried only one pricing
	// side after the merge. Nonzero means the job is a partial success.
	IncompleteProducts int `json:"incomplete_products,omitempty"`
}

// ProductByKey returns the product whose identifier key matches,
// case-insensitively, or nil.
func (c *Catalog) ProductByKey(key string) *Product {
	want := NormalizeKey(key)
	for i := range c.Products {
		if NormalizeKey(c.Products[i].Identifiers.Key()) == want {
			return &c.Products[i]
		}
	}
	return nil
}

// VendorByDomain returns every product supplied by the vendor with the
// given website, matching on registered domain so display-name variance
// between platforms does not split a supplier in two.
func (c *Catalog) VendorByDomain(website string) []*Product {
	want := NormalizeDomain(website)
	if want == "" {
		return nil
	}
	var out []*Product
	for i := range c.Products {
		if NormalizeDomain(c.Products[i].Vendor.Website) == want {
			out = append(out, &c.Products[i])
		}
	}
	return out
}

// NormalizeKey lower-cases and trims an identifier for join comparisons.
// Identifier casing is not significant on either platform.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDomain reduces a website value to its bare host: scheme, "www."
// prefix, path, and port are stripped and the result lower-cased.
// "https://www.hitpromo.net/catalog" and "hitpromo.net" normalize equal.
func NormalizeDomain(website string) string {
	s := strings.ToLower(strings.TrimSpace(website))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, ".")
}
