package pipeline

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stbl-strategies/catalog-cli/internal/config"
	"github.com/stbl-strategies/catalog-cli/internal/jobstate"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/resilience"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
	"github.com/stbl-strategies/catalog-cli/pkg/sage"
)

// AcquireResult is what either acquisition path hands to the merge: the
// presentation metadata plus both fragment sets.
type AcquireResult struct {
	Meta         catalog.Metadata
	Presentation []model.Fragment
	Distributor  []model.Fragment
}

// RunSage acquires a presentation through the Connect API: one
// presentation fetch (job-fatal on failure), then concurrent Full Product
// Detail calls to replace presentation costs with authoritative nets and
// pick up the detail-only fields. A disabled detail service (error 10010
// on the probe call) falls back to presentation costs with a job note.
func RunSage(ctx context.Context, client sage.Client, tr *jobstate.Tracker, rawURL string, cfg config.PipelineConfig) (*AcquireResult, error) {
	ref, err := sage.ExtractPresRef(rawURL)
	if err != nil {
		return nil, &resilience.InitialFetchError{Err: err}
	}
	if !ref.Numeric() {
		// Share-code links resolve inside the viewer app only; the
		// Connect API needs the numeric id from the long-form URL.
		return nil, &resilience.InitialFetchError{
			Err: eris.Errorf("sage: share code %q is not API-addressable, use the numeric share URL", ref.Code),
		}
	}

	tr.SetStatus(model.StatusSageCallingAPI, 0, 0, "")
	pres, err := client.GetPresentation(ctx, ref.ID)
	if err != nil {
		return nil, &resilience.InitialFetchError{Err: err}
	}

	tr.SetStatus(model.StatusSageParsingResponse, 0, len(pres.Items), "")
	result := buildSageFragments(rawURL, pres)

	if err := enrichFromDetails(ctx, client, tr, pres, result, cfg); err != nil {
		return nil, err
	}
	return result, nil
}

// buildSageFragments splits each presentation item into its two merge
// sides: sell prices and client-facing charges on the presentation side,
// supplier identity and net costs on the distributor side.
func buildSageFragments(sourceURL string, pres *sage.Presentation) *AcquireResult {
	result := &AcquireResult{
		Meta: catalog.Metadata{
			Source:           string(model.PlatformSage),
			SourceURL:        sourceURL,
			PresentationID:   strconv.FormatInt(pres.PresID, 10),
			PresentationName: pres.General.Title,
			Client: catalog.Client{
				Name:    pres.Client.Company,
				Contact: pres.Client.Name,
				Email:   pres.Client.Email,
				Phone:   pres.Client.Phone,
			},
			Presenter: catalog.Presenter{
				Name: firstLine(pres.Header.HeadFirstText),
			},
		},
	}

	for _, item := range pres.Items {
		ids := catalog.Identifiers{
			SPC:             item.SPC,
			ProdID:          item.ProdID,
			EncryptedProdID: item.EncryptedProdID,
			PresItemID:      item.PresItemID,
			InternalItemNum: item.InternalItemNum,
			ItemNum:         item.ItemNum,
		}

		var sellBreaks, costBreaks []catalog.PriceBreak
		for _, b := range item.Breaks() {
			sellBreaks = append(sellBreaks, catalog.PriceBreak{
				Quantity:  b.Quantity,
				SellPrice: nonZero(b.SellPrice),
				PriceCode: item.PriceCode,
			})
			costBreaks = append(costBreaks, catalog.PriceBreak{
				Quantity:     b.Quantity,
				NetCost:      nonZero(b.NetCost),
				CatalogPrice: nonZero(b.CatalogPrice),
				PriceCode:    item.PriceCode,
			})
		}

		var images []string
		for _, pic := range item.Pics {
			if pic.URL != "" {
				images = append(images, pic.URL)
			}
		}

		result.Presentation = append(result.Presentation, model.Fragment{
			Origin: model.OriginPresentation,
			Product: catalog.Product{
				Source:      string(model.PlatformSage),
				Identifiers: ids,
				Item: catalog.Item{
					Name:        item.Name,
					Description: item.Description,
					Categories:  splitList(item.Category),
				},
				Pricing: catalog.Pricing{
					Breaks:        sellBreaks,
					PriceCode:     item.PriceCode,
					PriceIncludes: item.PriceIncludes,
					ValidThrough:  item.CatExpires,
				},
				Fees:   presentationFees(item),
				Images: images,
			},
		})

		dims := sage.ExtractDimensions(item.Description)
		dist := catalog.Product{
			Source:      string(model.PlatformSage),
			Identifiers: ids,
			Item: catalog.Item{
				Name:        item.Name,
				Description: item.Description,
			},
			Vendor: catalog.Vendor{
				Name:     item.Supplier.Company,
				Website:  item.Supplier.Web,
				SageID:   item.Supplier.SageID,
				LineName: item.Supplier.Line,
				Email:    item.Supplier.Email,
				Phone:    item.Supplier.Phone,
				Address: &catalog.Address{
					City:       item.Supplier.City,
					State:      item.Supplier.State,
					PostalCode: item.Supplier.Zip,
				},
			},
			Pricing: catalog.Pricing{
				Breaks:    costBreaks,
				PriceCode: item.PriceCode,
			},
			Shipping: catalog.Shipping{
				ShipPoint:       item.ShipPoint,
				UnitsPerCarton:  parseIntPtr(item.UnitsPerCtn),
				WeightPerCarton: parseFloatPtr(item.WeightPerCtn),
				Packaging:       item.PackagingText,
			},
			Notes: catalog.Notes{
				AdditionalCharges: item.AdditionalChargesText,
			},
		}
		dist.Item.Dimensions = catalog.ParseDimensions(dims)
		if item.ImprintInfoText != "" {
			dist.Decoration.ImprintInfo = item.ImprintInfoText
		}
		if item.ColorInfoText != "" {
			dist.Decoration.ImprintColors = item.ColorInfoText
		}

		result.Distributor = append(result.Distributor, model.Fragment{
			Origin:  model.OriginDistributor,
			Product: dist,
		})
	}
	return result
}

// enrichFromDetails issues the serviceId 105 calls. The first item acts
// as a probe: a service-disabled response skips enrichment entirely.
func enrichFromDetails(ctx context.Context, client sage.Client, tr *jobstate.Tracker, pres *sage.Presentation, result *AcquireResult, cfg config.PipelineConfig) error {
	type target struct {
		idx     int
		prodEID string
		name    string
	}
	var targets []target
	for i, item := range pres.Items {
		if item.EncryptedProdID != "" {
			targets = append(targets, target{i, item.EncryptedProdID, item.Name})
		}
	}
	if len(targets) == 0 {
		return nil
	}

	probe, err := client.GetProductDetail(ctx, targets[0].prodEID, true)
	if err != nil {
		if sage.IsServiceDisabled(err) {
			tr.Note("product detail service disabled for this account, keeping presentation costs")
			return nil
		}
		tr.RecordError(model.JobError{
			Stage:       model.StatusSageEnrichingProducts,
			ProductID:   targets[0].prodEID,
			Message:     err.Error(),
			Recoverable: true,
		})
	} else {
		applyDetail(&result.Distributor[targets[0].idx].Product, probe)
	}

	tr.SetStatus(model.StatusSageEnrichingProducts, 1, len(targets), targets[0].name)

	limiter := rate.NewLimiter(rate.Limit(cfg.SageRatePerSec), 1)

	// A breaker stops the remaining calls once the detail service starts
	// failing consistently; affected products keep presentation costs.
	bcfg := resilience.FromCircuitConfig(cfg.CircuitFailureThreshold, cfg.CircuitResetSecs)
	bcfg.ShouldTrip = func(error) bool { return true }
	breaker := resilience.NewCircuitBreaker(bcfg)

	var mu sync.Mutex
	done := 1

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrentDetailCalls)
	for _, t := range targets[1:] {
		g.Go(func() error {
			if err := limiter.Wait(gCtx); err != nil {
				return err
			}
			detail, err := resilience.ExecuteVal(gCtx, breaker, func(ctx context.Context) (*sage.ProductDetail, error) {
				return client.GetProductDetail(ctx, t.prodEID, true)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Per-product failure keeps presentation costs for
				// this item only.
				tr.RecordError(model.JobError{
					Stage:       model.StatusSageEnrichingProducts,
					ProductID:   t.prodEID,
					Message:     err.Error(),
					Recoverable: true,
				})
			} else {
				applyDetail(&result.Distributor[t.idx].Product, detail)
			}
			done++
			tr.Item(done, len(targets), t.name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("sage detail enrichment complete",
		zap.Int("products", len(targets)))
	return nil
}

// applyDetail overlays the Full Product Detail record onto a distributor
// fragment. Detail nets are authoritative: where a quantity matches an
// existing tier its cost is replaced, and detail-only tiers are added.
func applyDetail(p *catalog.Product, d *sage.ProductDetail) {
	nets := d.NetByQty()
	seen := make(map[int]bool, len(p.Pricing.Breaks))
	for i := range p.Pricing.Breaks {
		b := &p.Pricing.Breaks[i]
		seen[b.Quantity] = true
		if net, ok := nets[b.Quantity]; ok && net > 0 {
			b.NetCost = &net
		}
	}
	for qty, net := range nets {
		if !seen[qty] && net > 0 {
			p.Pricing.Breaks = append(p.Pricing.Breaks, catalog.PriceBreak{
				Quantity: qty,
				NetCost:  &net,
			})
		}
	}
	catalog.SortBreaks(p.Pricing.Breaks)

	if d.ProdTime != "" {
		p.Shipping.LeadTime = d.ProdTime
	}
	if d.PriceIncludes != "" {
		p.Pricing.PriceIncludes = d.PriceIncludes
	}
	if d.Themes != "" {
		p.Item.Themes = splitList(d.Themes)
	}
	switch {
	case d.Recyclable && d.EnvFriendly:
		p.Item.Sustainability = "recyclable, environmentally friendly"
	case d.Recyclable:
		p.Item.Sustainability = "recyclable"
	case d.EnvFriendly:
		p.Item.Sustainability = "environmentally friendly"
	}
	if d.DecorationMethod != "" {
		p.Decoration.Methods = []catalog.DecorationMethod{{Name: d.DecorationMethod}}
	}
	p.Decoration.Locations = detailLocations(d)
}

func detailLocations(d *sage.ProductDetail) []catalog.DecorationLocation {
	var out []catalog.DecorationLocation
	if d.ImprintLoc != "" || d.ImprintArea != "" {
		out = append(out, catalog.DecorationLocation{
			Name:         d.ImprintLoc,
			ImprintAreas: imprintAreas(d.ImprintArea),
		})
	}
	if d.SecondImprintLoc != "" || d.SecondImprintArea != "" {
		out = append(out, catalog.DecorationLocation{
			Name:         d.SecondImprintLoc,
			ImprintAreas: imprintAreas(d.SecondImprintArea),
		})
	}
	return out
}

func imprintAreas(raw string) []catalog.ImprintArea {
	if raw == "" {
		return nil
	}
	return []catalog.ImprintArea{{Raw: raw}}
}

// presentationFees maps the 301 item's charge columns to client-facing
// fees, skipping zero or unparseable amounts.
func presentationFees(item sage.Item) []catalog.Fee {
	charges := []struct {
		feeType string
		name    string
		amount  string
		code    string
	}{
		{"setup", "Setup Charge", item.SetupChg, item.SetupChgCode},
		{"repeat_setup", "Repeat Setup Charge", item.RepeatChg, ""},
		{"screen", "Screen Charge", item.ScreenChg, ""},
		{"proof", "Proof Charge", item.ProofChg, ""},
		{"pms_match", "PMS Color Match Charge", item.PMSChg, ""},
		{"spec_sample", "Spec Sample Charge", item.SpecSampleChg, ""},
		{"copy_change", "Copy Change Charge", item.CopyChg, ""},
	}

	var fees []catalog.Fee
	for _, c := range charges {
		amount := parseFloatPtr(c.amount)
		if amount == nil || *amount == 0 {
			continue
		}
		fees = append(fees, catalog.Fee{
			Type:      c.feeType,
			Name:      c.name,
			ListPrice: amount,
			PriceCode: c.code,
		})
	}
	return fees
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func nonZero(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

func parseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseIntPtr(s string) *int {
	f := parseFloatPtr(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}
