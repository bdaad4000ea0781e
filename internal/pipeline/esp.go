package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stbl-strategies/catalog-cli/internal/artifacts"
	"github.com/stbl-strategies/catalog-cli/internal/config"
	"github.com/stbl-strategies/catalog-cli/internal/extract"
	"github.com/stbl-strategies/catalog-cli/internal/jobstate"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/resilience"
	"github.com/stbl-strategies/catalog-cli/pkg/orgo"
)

// PortalSession drives the distributor portal desktop. The desktop is an
// exclusive resource, so the acquisition loop calls it one task at a time.
// Satisfied by *orgo.Session.
type PortalSession interface {
	Login(ctx context.Context) error
	DownloadPresentation(ctx context.Context, shareURL string) ([]byte, error)
	DownloadDistributorReport(ctx context.Context, cpn string) ([]byte, error)
}

// Extractor turns a PDF into structured JSON per a named prompt spec.
// Satisfied by *extract.Engine.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document, spec extract.PromptSpec) (json.RawMessage, error)
}

// ESPDeps bundles what the ESP acquisition needs.
type ESPDeps struct {
	Session   PortalSession
	Extractor Extractor
	Artifacts *artifacts.Store
}

// RunESP acquires a presentation through the portal: download the shared
// presentation PDF, extract its product list, then fetch and extract one
// distributor report per product. Portal navigation is strictly
// sequential; report extraction runs concurrently behind it.
//
// The tracker's checkpoint makes the portal loop resumable: products
// already fetched in a previous run are skipped and their reports reused
// from the artifact store.
func RunESP(ctx context.Context, deps ESPDeps, tr *jobstate.Tracker, rawURL string, cfg config.PipelineConfig, opts Options) (*AcquireResult, error) {
	jobID := tr.Snapshot().ID
	log := zap.L().With(zap.String("jobID", jobID))

	presPDF, err := acquirePresentationPDF(ctx, deps, tr, jobID, rawURL, opts)
	if err != nil {
		return nil, err
	}

	tr.SetStatus(model.StatusESPParsingPresentation, 0, 0, "")
	spec, err := extract.Spec(extract.SpecPresentationOverview)
	if err != nil {
		return nil, err
	}
	raw, err := deps.Extractor.Extract(ctx, extract.Document{Name: "presentation.pdf", Data: presPDF}, spec)
	if err != nil {
		// Without the overview there is no product list to work from.
		return nil, &resilience.InitialFetchError{Err: eris.Wrap(err, "extract presentation overview")}
	}
	var pres presentationPayload
	if err := json.Unmarshal(raw, &pres); err != nil {
		return nil, &resilience.InitialFetchError{Err: eris.Wrap(err, "decode presentation overview")}
	}

	products := pres.Products
	if opts.Limit > 0 && opts.Limit < len(products) {
		products = products[:opts.Limit]
	}
	log.Info("presentation parsed",
		zap.String("presentation", pres.Presentation.PresentationName),
		zap.Int("products", len(products)))

	result := &AcquireResult{Meta: presentationMeta(rawURL, &pres)}
	for _, p := range products {
		result.Presentation = append(result.Presentation, presentationFragment(p))
	}

	distributor, err := acquireDistributorReports(ctx, deps, tr, jobID, products, cfg, opts)
	if err != nil {
		return nil, err
	}
	result.Distributor = distributor
	return result, nil
}

// acquirePresentationPDF downloads the shared presentation, or reuses the
// stored artifact when the caller asked to skip downloads.
func acquirePresentationPDF(ctx context.Context, deps ESPDeps, tr *jobstate.Tracker, jobID, rawURL string, opts Options) ([]byte, error) {
	presPath := filepath.Join(deps.Artifacts.PDFDir(jobID), "presentation.pdf")
	if opts.SkipDownload {
		if data, err := deps.Artifacts.Read(presPath); err == nil {
			tr.Note("reusing stored presentation PDF")
			return data, nil
		}
	}

	tr.SetStatus(model.StatusESPDownloadingPresentation, 0, 0, "")
	if err := deps.Session.Login(ctx); err != nil {
		return nil, &resilience.InitialFetchError{Err: eris.Wrap(err, "portal login")}
	}
	data, err := deps.Session.DownloadPresentation(ctx, rawURL)
	if err != nil {
		return nil, &resilience.InitialFetchError{Err: eris.Wrap(err, "download presentation")}
	}

	tr.SetStatus(model.StatusESPStoringArtifacts, 0, 0, "")
	path, err := deps.Artifacts.SavePDF(jobID, "presentation.pdf", data)
	if err != nil {
		return nil, &resilience.InitialFetchError{Err: eris.Wrap(err, "store presentation")}
	}
	tr.AddArtifact("presentation", path)
	return data, nil
}

// acquireDistributorReports walks the product list from the tracker's
// checkpoint, downloading each product's distributor report through the
// portal and handing the bytes to a bounded pool of extraction workers.
func acquireDistributorReports(ctx context.Context, deps ESPDeps, tr *jobstate.Tracker, jobID string, products []presentationProduct, cfg config.PipelineConfig, opts Options) ([]model.Fragment, error) {
	spec, err := extract.Spec(extract.SpecDistributorReport)
	if err != nil {
		return nil, err
	}

	total := len(products)
	tr.SetStatus(model.StatusESPLookingUpProducts, 0, total, "")

	var (
		mu        sync.Mutex
		fragments []model.Fragment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrentExtractions)

	extractReport := func(cpn, name string, data []byte) {
		g.Go(func() error {
			raw, err := deps.Extractor.Extract(gctx, extract.Document{Name: "report_" + cpn + ".pdf", Data: data}, spec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				tr.RecordError(model.JobError{
					Stage:       model.StatusESPParsingProducts,
					Message:     fmt.Sprintf("extract distributor report for %s: %v", name, err),
					ProductID:   cpn,
					Recoverable: true,
				})
				return nil
			}
			var payload distributorPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				tr.RecordError(model.JobError{
					Stage:       model.StatusESPParsingProducts,
					Message:     fmt.Sprintf("decode distributor report for %s: %v", name, err),
					ProductID:   cpn,
					Recoverable: true,
				})
				return nil
			}
			fragments = append(fragments, distributorFragment(cpn, payload.Product))
			return nil
		})
	}

	reauthed := false
	start := tr.Snapshot().Checkpoint
	if start > 0 {
		tr.Note(fmt.Sprintf("resuming portal loop at product %d of %d", start+1, total))
	}

	for i := start; i < total; i++ {
		if err := ctx.Err(); err != nil {
			break
		}
		p := products[i]
		cpn := p.CPN.String()
		tr.SetStatus(model.StatusESPDownloadingProducts, i+1, total, p.Name)

		if cpn == "" {
			tr.RecordError(model.JobError{
				Stage:       model.StatusESPLookingUpProducts,
				Message:     fmt.Sprintf("no customer product number for %q, distributor report lookup skipped", p.Name),
				ProductID:   p.VendorSKU,
				Recoverable: true,
			})
			tr.Checkpoint(i + 1)
			continue
		}

		reportName := "report_" + cpn + ".pdf"
		reportPath := filepath.Join(deps.Artifacts.PDFDir(jobID), reportName)
		if data, err := deps.Artifacts.Read(reportPath); err == nil {
			// Already fetched in a previous run.
			extractReport(cpn, p.Name, data)
			tr.Checkpoint(i + 1)
			continue
		}
		if opts.SkipDownload {
			tr.Checkpoint(i + 1)
			continue
		}

		data, err := deps.Session.DownloadDistributorReport(ctx, cpn)
		switch {
		case err == nil:
		case errors.Is(err, orgo.ErrProductNotFound):
			tr.RecordError(model.JobError{
				Stage:       model.StatusESPLookingUpProducts,
				Message:     fmt.Sprintf("product %s not found in portal", cpn),
				ProductID:   cpn,
				Recoverable: true,
			})
			tr.Checkpoint(i + 1)
			continue
		case errors.Is(err, orgo.ErrAuthLost):
			if !reauthed {
				reauthed = true
				tr.Note("portal session lost, re-authenticating")
				if lerr := deps.Session.Login(ctx); lerr != nil {
					tr.RecordError(model.JobError{
						Stage:       model.StatusESPDownloadingProducts,
						Message:     fmt.Sprintf("portal re-login failed, %d products left unfetched: %v", total-i, lerr),
						ProductID:   cpn,
						Recoverable: false,
					})
					break
				}
				i-- // retry the same product
				continue
			}
			tr.RecordError(model.JobError{
				Stage:       model.StatusESPDownloadingProducts,
				Message:     fmt.Sprintf("portal session lost again, %d products left unfetched", total-i),
				ProductID:   cpn,
				Recoverable: false,
			})
		default:
			tr.RecordError(model.JobError{
				Stage:       model.StatusESPDownloadingProducts,
				Message:     fmt.Sprintf("download distributor report for %s: %v", cpn, err),
				ProductID:   cpn,
				Recoverable: true,
			})
			tr.Checkpoint(i + 1)
			continue
		}
		if err != nil {
			break
		}

		path, err := deps.Artifacts.SavePDF(jobID, reportName, data)
		if err != nil {
			tr.RecordError(model.JobError{
				Stage:       model.StatusESPStoringArtifacts,
				Message:     fmt.Sprintf("store distributor report for %s: %v", cpn, err),
				ProductID:   cpn,
				Recoverable: true,
			})
			tr.Checkpoint(i + 1)
			continue
		}
		tr.AddArtifact("report_"+cpn, path)

		extractReport(cpn, p.Name, data)
		tr.Checkpoint(i + 1)
	}

	tr.SetStatus(model.StatusESPParsingProducts, 0, total, "")
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zap.L().Info("distributor reports acquired",
		zap.String("jobID", jobID),
		zap.Int("extracted", len(fragments)),
		zap.Int("requested", total))
	return fragments, nil
}
