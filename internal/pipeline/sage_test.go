package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stbl-strategies/catalog-cli/internal/config"
	"github.com/stbl-strategies/catalog-cli/internal/jobstate"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/resilience"
	"github.com/stbl-strategies/catalog-cli/pkg/sage"
)

type mockSageClient struct {
	mock.Mock
}

func (m *mockSageClient) GetPresentation(ctx context.Context, presID int64) (*sage.Presentation, error) {
	args := m.Called(ctx, presID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sage.Presentation), args.Error(1)
}

func (m *mockSageClient) GetProductDetail(ctx context.Context, prodEID string, includeSupplier bool) (*sage.ProductDetail, error) {
	args := m.Called(ctx, prodEID, includeSupplier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sage.ProductDetail), args.Error(1)
}

func fastPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxConcurrentExtractions: 4,
		MaxConcurrentDetailCalls: 4,
		ExtractionRatePerSec:     1000,
		SageRatePerSec:           1000,
		RetryMaxAttempts:         1,
	}
}

func newTestTracker(t *testing.T, id string) *jobstate.Tracker {
	t.Helper()
	tr, err := jobstate.New(t.TempDir(), model.Job{ID: id, URL: "https://www.viewpresentation.com/1234567", Status: model.StatusQueued})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func sagePresentation() *sage.Presentation {
	return &sage.Presentation{
		PresID:    1234567,
		ItemCount: 2,
		General:   sage.General{Title: "Spring Campaign"},
		Client:    sage.ClientInfo{Name: "Jordan Reyes", Company: "Acme Corp", Email: "jordan@acme.test"},
		Header:    sage.Header{HeadFirstText: "Taylor Brooks\nSenior Account Manager"},
		Items: []sage.Item{
			{
				PresItemID:      1,
				EncryptedProdID: "enc-aaa",
				SPC:             "SPC-100",
				Name:            "Insulated Bottle",
				Category:        "Drinkware, Outdoor",
				Qtys:            []string{"100", "250"},
				SellPrcs:        []string{"10.00", "9.00"},
				Costs:           []string{"6.00", "5.50"},
				CatPrcs:         []string{"12.00", "11.00"},
				PriceCode:       "5R",
				SetupChg:        "$55.00",
				SetupChgCode:    "V",
				Supplier:        sage.Supplier{Company: "Hit Promotional Products", Web: "hitpromo.net"},
			},
			{
				PresItemID:      2,
				EncryptedProdID: "enc-bbb",
				SPC:             "SPC-200",
				Name:            "Canvas Tote",
				Qtys:            []string{"150"},
				SellPrcs:        []string{"4.00"},
				Costs:           []string{"2.40"},
				Supplier:        sage.Supplier{Company: "Bag Makers"},
			},
		},
	}
}

func TestRunSageBuildsBothFragmentSets(t *testing.T) {
	client := new(mockSageClient)
	client.On("GetPresentation", mock.Anything, int64(1234567)).Return(sagePresentation(), nil).Once()
	client.On("GetProductDetail", mock.Anything, "enc-aaa", true).Return(&sage.ProductDetail{
		Qty: []string{"100", "250", "500"},
		Net: []string{"5.80", "5.30", "5.00"},
	}, nil).Once()
	client.On("GetProductDetail", mock.Anything, "enc-bbb", true).Return(&sage.ProductDetail{
		Qty:      []string{"150"},
		Net:      []string{"2.20"},
		ProdTime: "5-7 business days",
	}, nil).Once()

	tr := newTestTracker(t, "job-sage-1")
	res, err := RunSage(context.Background(), client, tr, "https://www.viewpresentation.com/1234567", fastPipelineConfig())
	require.NoError(t, err)
	client.AssertExpectations(t)

	assert.Equal(t, "1234567", res.Meta.PresentationID)
	assert.Equal(t, "Spring Campaign", res.Meta.PresentationName)
	assert.Equal(t, "Acme Corp", res.Meta.Client.Name)
	assert.Equal(t, "Taylor Brooks", res.Meta.Presenter.Name)

	require.Len(t, res.Presentation, 2)
	require.Len(t, res.Distributor, 2)

	pres := res.Presentation[0].Product
	assert.Equal(t, "SPC-100", pres.Identifiers.SPC)
	assert.Equal(t, []string{"Drinkware", "Outdoor"}, pres.Item.Categories)
	require.Len(t, pres.Pricing.Breaks, 2)
	require.NotNil(t, pres.Pricing.Breaks[0].SellPrice)
	assert.Equal(t, 10.0, *pres.Pricing.Breaks[0].SellPrice)
	require.Len(t, pres.Fees, 1)
	assert.Equal(t, "setup", pres.Fees[0].Type)
	assert.Equal(t, 55.0, *pres.Fees[0].ListPrice)
	assert.Equal(t, "V", pres.Fees[0].PriceCode)

	dist := res.Distributor[0].Product
	assert.Equal(t, "Hit Promotional Products", dist.Vendor.Name)
	// Detail nets override the 301 costs and bring the extra 500 tier.
	require.Len(t, dist.Pricing.Breaks, 3)
	assert.Equal(t, 5.80, *dist.Pricing.Breaks[0].NetCost)
	assert.Equal(t, 500, dist.Pricing.Breaks[2].Quantity)
	assert.Equal(t, 5.00, *dist.Pricing.Breaks[2].NetCost)

	assert.Equal(t, "5-7 business days", res.Distributor[1].Product.Shipping.LeadTime)

	snap := tr.Snapshot()
	assert.Equal(t, model.StatusSageEnrichingProducts, snap.Status)
	assert.Empty(t, snap.Errors)
}

func TestRunSageShareCodeIsJobFatal(t *testing.T) {
	client := new(mockSageClient)
	tr := newTestTracker(t, "job-sage-2")

	_, err := RunSage(context.Background(), client, tr, "https://www.viewpresentation.com/p/6GMWK4", fastPipelineConfig())
	require.Error(t, err)
	assert.True(t, resilience.IsJobFatal(err))
	client.AssertNotCalled(t, "GetPresentation", mock.Anything, mock.Anything)
}

func TestRunSagePresentationFetchFailureIsJobFatal(t *testing.T) {
	client := new(mockSageClient)
	client.On("GetPresentation", mock.Anything, int64(1234567)).
		Return(nil, eris.New("http 500")).Once()
	tr := newTestTracker(t, "job-sage-3")

	_, err := RunSage(context.Background(), client, tr, "https://www.viewpresentation.com/1234567", fastPipelineConfig())
	require.Error(t, err)
	assert.True(t, resilience.IsJobFatal(err))
}

func TestRunSageDetailServiceDisabledFallsBack(t *testing.T) {
	client := new(mockSageClient)
	client.On("GetPresentation", mock.Anything, int64(1234567)).Return(sagePresentation(), nil).Once()
	// The probe call reports 10010; no further detail calls follow.
	client.On("GetProductDetail", mock.Anything, "enc-aaa", true).
		Return(nil, &sage.APIError{ErrNum: "10010", ErrMsg: "service is not currently enabled"}).Once()

	tr := newTestTracker(t, "job-sage-4")
	res, err := RunSage(context.Background(), client, tr, "https://www.viewpresentation.com/1234567", fastPipelineConfig())
	require.NoError(t, err)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "GetProductDetail", 1)

	// Presentation costs from the 301 survive untouched.
	dist := res.Distributor[0].Product
	require.Len(t, dist.Pricing.Breaks, 2)
	assert.Equal(t, 6.0, *dist.Pricing.Breaks[0].NetCost)
	assert.Empty(t, tr.Snapshot().Errors)
}

func TestRunSagePerProductDetailFailureIsRecoverable(t *testing.T) {
	client := new(mockSageClient)
	client.On("GetPresentation", mock.Anything, int64(1234567)).Return(sagePresentation(), nil).Once()
	client.On("GetProductDetail", mock.Anything, "enc-aaa", true).Return(&sage.ProductDetail{
		Qty: []string{"100"},
		Net: []string{"5.80"},
	}, nil).Once()
	client.On("GetProductDetail", mock.Anything, "enc-bbb", true).
		Return(nil, eris.New("http 503")).Once()

	tr := newTestTracker(t, "job-sage-5")
	res, err := RunSage(context.Background(), client, tr, "https://www.viewpresentation.com/1234567", fastPipelineConfig())
	require.NoError(t, err)

	snap := tr.Snapshot()
	require.Len(t, snap.Errors, 1)
	assert.True(t, snap.Errors[0].Recoverable)
	assert.Equal(t, "enc-bbb", snap.Errors[0].ProductID)

	// The failed product keeps its 301 costs.
	require.Len(t, res.Distributor[1].Product.Pricing.Breaks, 1)
	assert.Equal(t, 2.40, *res.Distributor[1].Product.Pricing.Breaks[0].NetCost)
}
