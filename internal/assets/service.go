package assets

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/zoho"
)

// FixedAssetsClient is the upstream surface the asset proxy needs.
type FixedAssetsClient interface {
	CreateFixedAsset(ctx context.Context, req zoho.FixedAssetRequest) (*zoho.FixedAsset, error)
	ListFixedAssets(ctx context.Context) ([]zoho.FixedAsset, error)
	GetFixedAsset(ctx context.Context, assetID string) (json.RawMessage, error)
}

// CategoryAccounts maps an asset category onto the fixed asset type and
// the three accounts Zoho needs to run depreciation.
type CategoryAccounts struct {
	FixedAssetTypeID      string
	AssetAccountID        string
	ExpenseAccountID      string
	DepreciationAccountID string
}

// DefaultCategories is the organization's category chart.
var DefaultCategories = map[string]CategoryAccounts{
	"COMPUTERS": {
		FixedAssetTypeID:      "5571826000000132005",
		AssetAccountID:        "5571826000000132052",
		ExpenseAccountID:      "5571826000000000451",
		DepreciationAccountID: "5571826000000567220",
	},
	"FURNITURE": {
		FixedAssetTypeID:      "5571826000000132005",
		AssetAccountID:        "5571826000000000367",
		ExpenseAccountID:      "5571826000000000451",
		DepreciationAccountID: "5571826000000905582",
	},
}

// CreateAssetDTO is the request body for registering a fixed asset.
type CreateAssetDTO struct {
	AssetName             string          `json:"asset_name"`
	AssetCategory         string          `json:"asset_category"`
	AssetCost             decimal.Decimal `json:"asset_cost"`
	PurchaseDate          string          `json:"purchase_date"`
	DepreciationStartDate string          `json:"depreciation_start_date"`
	UsefulLifeMonths      int             `json:"useful_life_months"`
	SalvageValue          decimal.Decimal `json:"salvage_value"`
}

func (d *CreateAssetDTO) Validate() error {
	if d.AssetName == "" {
		return internal.NewValidationFieldError("asset_name", "asset_name is required", internal.ErrCodeValidationFailed)
	}
	if d.AssetCategory == "" {
		return internal.NewValidationFieldError("asset_category", "asset_category is required", internal.ErrCodeInvalidCategory)
	}
	if d.AssetCost.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationFieldError("asset_cost", "asset_cost must be greater than 0", internal.ErrCodeInvalidAmount)
	}
	for field, value := range map[string]string{
		"purchase_date":           d.PurchaseDate,
		"depreciation_start_date": d.DepreciationStartDate,
	} {
		if value == "" {
			return internal.NewValidationFieldError(field, field+" is required", internal.ErrCodeInvalidDate)
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return internal.NewValidationFieldError(field, field+" must be in YYYY-MM-DD format", internal.ErrCodeInvalidDate)
		}
	}
	if d.UsefulLifeMonths <= 0 {
		return internal.NewValidationFieldError("useful_life_months", "useful_life_months must be greater than 0", internal.ErrCodeValidationFailed)
	}
	if d.SalvageValue.IsNegative() {
		return internal.NewValidationFieldError("salvage_value", "salvage_value cannot be negative", internal.ErrCodeInvalidAmount)
	}
	return nil
}

// Service proxies fixed asset operations to Zoho Books; assets are
// never staged locally.
type Service struct {
	client     FixedAssetsClient
	categories map[string]CategoryAccounts
	logger     *slog.Logger
}

func NewService(client FixedAssetsClient, categories map[string]CategoryAccounts, logger *slog.Logger) *Service {
	if categories == nil {
		categories = DefaultCategories
	}
	return &Service{
		client:     client,
		categories: categories,
		logger:     logger,
	}
}

// Create registers a fixed asset under the category's account mapping.
func (s *Service) Create(ctx context.Context, dto *CreateAssetDTO) (*zoho.FixedAsset, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	mapping, ok := s.categories[dto.AssetCategory]
	if !ok {
		return nil, internal.NewValidationFieldError("asset_category", "unknown asset category", internal.ErrCodeInvalidCategory)
	}
	if s.client == nil {
		return nil, internal.NewUpstreamError("fixed asset posting is disabled", nil)
	}

	asset, err := s.client.CreateFixedAsset(ctx, zoho.FixedAssetRequest{
		AssetName:             dto.AssetName,
		FixedAssetTypeID:      mapping.FixedAssetTypeID,
		AssetAccountID:        mapping.AssetAccountID,
		ExpenseAccountID:      mapping.ExpenseAccountID,
		DepreciationAccountID: mapping.DepreciationAccountID,
		AssetCost:             dto.AssetCost,
		PurchaseDate:          dto.PurchaseDate,
		DepreciationStartDate: dto.DepreciationStartDate,
		UsefulLifeMonths:      dto.UsefulLifeMonths,
		SalvageValue:          dto.SalvageValue,
	})
	if err != nil {
		s.logger.Error("failed to create fixed asset", "asset_name", dto.AssetName, "error", err)
		return nil, internal.NewUpstreamError("failed to create fixed asset", err)
	}

	s.logger.Info("fixed asset created",
		"fixed_asset_id", asset.FixedAssetID,
		"asset_number", asset.AssetNumber,
		"category", dto.AssetCategory)
	return asset, nil
}

// List returns every upstream fixed asset. A nil client yields an
// empty list, matching the other upstream-backed views.
func (s *Service) List(ctx context.Context) ([]zoho.FixedAsset, error) {
	if s.client == nil {
		return []zoho.FixedAsset{}, nil
	}
	assets, err := s.client.ListFixedAssets(ctx)
	if err != nil {
		s.logger.Error("failed to list fixed assets", "error", err)
		return nil, internal.NewUpstreamError("failed to list fixed assets", err)
	}
	return assets, nil
}

// Get returns the raw upstream record for one asset.
func (s *Service) Get(ctx context.Context, assetID string) (json.RawMessage, error) {
	if s.client == nil {
		return nil, internal.NewUpstreamError("fixed asset lookup is disabled", nil)
	}
	raw, err := s.client.GetFixedAsset(ctx, assetID)
	if err != nil {
		s.logger.Error("failed to fetch fixed asset", "asset_id", assetID, "error", err)
		return nil, internal.NewUpstreamError("failed to fetch fixed asset", err)
	}
	return raw, nil
}
