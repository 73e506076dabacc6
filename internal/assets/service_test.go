package assets

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/zoho"
)

func TestAssetsService(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Assets Service Suite")
}

type mockFixedAssetsClient struct {
	createCalls []zoho.FixedAssetRequest
	created     zoho.FixedAsset
	assets      []zoho.FixedAsset
	raw         json.RawMessage

	createError error
	listError   error
	getError    error
}

func (m *mockFixedAssetsClient) CreateFixedAsset(_ context.Context, req zoho.FixedAssetRequest) (*zoho.FixedAsset, error) {
	if m.createError != nil {
		return nil, m.createError
	}
	m.createCalls = append(m.createCalls, req)
	return &m.created, nil
}

func (m *mockFixedAssetsClient) ListFixedAssets(_ context.Context) ([]zoho.FixedAsset, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.assets, nil
}

func (m *mockFixedAssetsClient) GetFixedAsset(_ context.Context, assetID string) (json.RawMessage, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.raw, nil
}

var _ = ginkgo.Describe("AssetsService", func() {
	var (
		service *Service
		client  *mockFixedAssetsClient
		ctx     context.Context
	)

	validDTO := func() *CreateAssetDTO {
		return &CreateAssetDTO{
			AssetName:             "ThinkPad T14",
			AssetCategory:         "COMPUTERS",
			AssetCost:             decimal.NewFromInt(1500),
			PurchaseDate:          "2025-02-01",
			DepreciationStartDate: "2025-03-01",
			UsefulLifeMonths:      36,
		}
	}

	ginkgo.BeforeEach(func() {
		client = &mockFixedAssetsClient{
			created: zoho.FixedAsset{FixedAssetID: "fa-1", AssetNumber: "FA-0001", Status: "active"},
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = NewService(client, nil, logger)
		ctx = context.Background()
	})

	ginkgo.Describe("Create", func() {
		ginkgo.It("maps the category onto the fixed asset accounts", func() {
			// When
			asset, err := service.Create(ctx, validDTO())

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(asset.FixedAssetID).To(gomega.Equal("fa-1"))
			gomega.Expect(client.createCalls).To(gomega.HaveLen(1))

			req := client.createCalls[0]
			mapping := DefaultCategories["COMPUTERS"]
			gomega.Expect(req.FixedAssetTypeID).To(gomega.Equal(mapping.FixedAssetTypeID))
			gomega.Expect(req.AssetAccountID).To(gomega.Equal(mapping.AssetAccountID))
			gomega.Expect(req.ExpenseAccountID).To(gomega.Equal(mapping.ExpenseAccountID))
			gomega.Expect(req.DepreciationAccountID).To(gomega.Equal(mapping.DepreciationAccountID))
			gomega.Expect(req.AssetCost.Equal(decimal.NewFromInt(1500))).To(gomega.BeTrue())
			gomega.Expect(req.UsefulLifeMonths).To(gomega.Equal(36))
		})

		ginkgo.It("defaults the salvage value to zero", func() {
			// When
			_, err := service.Create(ctx, validDTO())

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(client.createCalls[0].SalvageValue.IsZero()).To(gomega.BeTrue())
		})

		ginkgo.It("rejects an unknown category without calling upstream", func() {
			// Given
			dto := validDTO()
			dto.AssetCategory = "VEHICLES"

			// When
			_, err := service.Create(ctx, dto)

			// Then
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeValidation))
			gomega.Expect(client.createCalls).To(gomega.BeEmpty())
		})

		ginkgo.It("rejects missing required fields", func() {
			// Given
			dto := validDTO()
			dto.DepreciationStartDate = ""

			// When
			_, err := service.Create(ctx, dto)

			// Then
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeValidation))
		})

		ginkgo.It("rejects a non-positive cost", func() {
			// Given
			dto := validDTO()
			dto.AssetCost = decimal.Zero

			// When
			_, err := service.Create(ctx, dto)

			// Then
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeValidation))
		})

		ginkgo.It("maps an upstream failure to a gateway error", func() {
			// Given
			client.createError = errors.New("zoho rejected the asset")

			// When
			_, err := service.Create(ctx, validDTO())

			// Then
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(502))
		})

		ginkgo.It("fails when upstream access is disabled", func() {
			// Given
			service = NewService(nil, nil, slog.New(slog.NewTextHandler(os.Stdout, nil)))

			// When
			_, err := service.Create(ctx, validDTO())

			// Then
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(502))
		})
	})

	ginkgo.Describe("List", func() {
		ginkgo.It("returns the upstream assets", func() {
			// Given
			client.assets = []zoho.FixedAsset{
				{FixedAssetID: "fa-1", AssetName: "ThinkPad T14"},
				{FixedAssetID: "fa-2", AssetName: "Standing desk"},
			}

			// When
			assets, err := service.List(ctx)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(assets).To(gomega.HaveLen(2))
		})

		ginkgo.It("returns an empty list when upstream access is disabled", func() {
			// Given
			service = NewService(nil, nil, slog.New(slog.NewTextHandler(os.Stdout, nil)))

			// When
			assets, err := service.List(ctx)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(assets).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("Get", func() {
		ginkgo.It("passes the raw upstream record through", func() {
			// Given
			client.raw = json.RawMessage(`{"code":0,"fixed_asset":{"fixed_asset_id":"fa-1"}}`)

			// When
			raw, err := service.Get(ctx, "fa-1")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(string(raw)).To(gomega.ContainSubstring(`"fixed_asset_id":"fa-1"`))
		})

		ginkgo.It("maps an upstream failure to a gateway error", func() {
			// Given
			client.getError = errors.New("asset not found")

			// When
			_, err := service.Get(ctx, "fa-missing")

			// Then
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(502))
		})
	})
})
