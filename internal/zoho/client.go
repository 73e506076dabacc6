package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/pending"
)

// accountsHosts maps a Zoho data center suffix to its OAuth host.
var accountsHosts = map[string]string{
	"com":    "https://accounts.zoho.com",
	"eu":     "https://accounts.zoho.eu",
	"in":     "https://accounts.zoho.in",
	"com.au": "https://accounts.zoho.com.au",
	"jp":     "https://accounts.zoho.jp",
}

// UpstreamError is returned for non-2xx or undecodable Zoho responses.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("zoho returned status %d: %s", e.StatusCode, body)
}

// Client talks to the Zoho Books API for one organization. The access
// token is instance-owned and refreshed under tokenMu; the refresh token
// itself never expires.
type Client struct {
	cfg        internal.ZohoConfig
	httpClient *http.Client
	logger     *slog.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg internal.ZohoConfig, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) accountsHost() string {
	if c.cfg.AccountsBaseURL != "" {
		return c.cfg.AccountsBaseURL
	}
	if host, ok := accountsHosts[c.cfg.DC]; ok {
		return host
	}
	return accountsHosts["com"]
}

// token returns a valid access token, refreshing when within 60 seconds
// of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Now().Add(60*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{
		"refresh_token": {c.cfg.RefreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsHost()+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.logger.Debug("zoho access token refreshed", "expires_in", tokenResp.ExpiresIn)

	return c.accessToken, nil
}

// do performs an authenticated Books API call. The organization id is
// appended to every request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("organization_id", c.cfg.OrgID)

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BooksBaseURL+path+"?"+query.Encode(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// Books wraps errors in 200 responses with a non-zero code.
	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if envelope.Code != 0 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(body), "application/json")
}

// CreateExpense posts an expense and returns the upstream expense id
// with the raw response for audit.
func (c *Client) CreateExpense(ctx context.Context, req pending.BooksExpense) (string, json.RawMessage, error) {
	payload := map[string]interface{}{
		"account_id":              req.AccountID,
		"date":                    req.Date,
		"amount":                  req.Amount.InexactFloat64(),
		"paid_through_account_id": req.PaidThroughAccountID,
		"reference_number":        req.ReferenceNumber,
		"description":             req.Description,
	}
	if req.VendorID != "" {
		payload["vendor_id"] = req.VendorID
	}

	raw, err := c.postJSON(ctx, "/expenses", payload)
	if err != nil {
		return "", nil, err
	}

	var resp struct {
		Expense struct {
			ExpenseID string `json:"expense_id"`
		} `json:"expense"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Expense.ExpenseID == "" {
		return "", nil, &UpstreamError{StatusCode: http.StatusOK, Body: string(raw)}
	}

	c.logger.Info("zoho expense created", "zoho_expense_id", resp.Expense.ExpenseID)
	return resp.Expense.ExpenseID, raw, nil
}

// CreateJournal posts a journal entry and returns the upstream journal id.
func (c *Client) CreateJournal(ctx context.Context, req pending.BooksJournal) (string, json.RawMessage, error) {
	lines := make([]map[string]interface{}, 0, len(req.Lines))
	for _, line := range req.Lines {
		entry := map[string]interface{}{
			"account_id":  line.AccountID,
			"description": line.Description,
		}
		if line.Debit.GreaterThan(decimal.Zero) {
			entry["debit_or_credit"] = "debit"
			entry["amount"] = line.Debit.InexactFloat64()
		} else {
			entry["debit_or_credit"] = "credit"
			entry["amount"] = line.Credit.InexactFloat64()
		}
		lines = append(lines, entry)
	}

	payload := map[string]interface{}{
		"journal_date":     req.Date,
		"reference_number": req.ReferenceNumber,
		"notes":            req.Notes,
		"line_items":       lines,
	}

	raw, err := c.postJSON(ctx, "/journals", payload)
	if err != nil {
		return "", nil, err
	}

	var resp struct {
		Journal struct {
			JournalID string `json:"journal_id"`
		} `json:"journal"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Journal.JournalID == "" {
		return "", nil, &UpstreamError{StatusCode: http.StatusOK, Body: string(raw)}
	}

	c.logger.Info("zoho journal created", "zoho_journal_id", resp.Journal.JournalID)
	return resp.Journal.JournalID, raw, nil
}

func (c *Client) uploadAttachment(ctx context.Context, path, filename string, content []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("attachment", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	_, err = c.do(ctx, http.MethodPost, path, nil, &buf, writer.FormDataContentType())
	return err
}

// UploadExpenseAttachment attaches a receipt to an existing expense.
func (c *Client) UploadExpenseAttachment(ctx context.Context, expenseID, filename string, content []byte) error {
	return c.uploadAttachment(ctx, "/expenses/"+expenseID+"/attachment", filename, content)
}

// UploadJournalAttachment attaches a receipt to an existing journal.
func (c *Client) UploadJournalAttachment(ctx context.Context, journalID, filename string, content []byte) error {
	return c.uploadAttachment(ctx, "/journals/"+journalID+"/attachment", filename, content)
}

// FixedAssetRequest is the payload for an upstream fixed asset creation.
type FixedAssetRequest struct {
	AssetName             string
	FixedAssetTypeID      string
	AssetAccountID        string
	ExpenseAccountID      string
	DepreciationAccountID string
	AssetCost             decimal.Decimal
	PurchaseDate          string
	DepreciationStartDate string
	UsefulLifeMonths      int
	SalvageValue          decimal.Decimal
}

// FixedAsset is the slice of the upstream fixed asset record the asset
// views expose.
type FixedAsset struct {
	FixedAssetID string          `json:"fixed_asset_id"`
	AssetName    string          `json:"asset_name"`
	AssetNumber  string          `json:"asset_number"`
	Status       string          `json:"status"`
	AssetCost    decimal.Decimal `json:"asset_cost"`
}

// CreateFixedAsset posts a fixed asset with monthly straight line
// depreciation computed pro rata from the full cost.
func (c *Client) CreateFixedAsset(ctx context.Context, req FixedAssetRequest) (*FixedAsset, error) {
	payload := map[string]interface{}{
		"asset_name":              req.AssetName,
		"fixed_asset_type_id":     req.FixedAssetTypeID,
		"asset_account_id":        req.AssetAccountID,
		"expense_account_id":      req.ExpenseAccountID,
		"depreciation_account_id": req.DepreciationAccountID,
		"asset_cost":              req.AssetCost.InexactFloat64(),
		"asset_purchase_date":     req.PurchaseDate,
		"depreciation_start_date": req.DepreciationStartDate,
		"total_life":              req.UsefulLifeMonths,
		"salvage_value":           req.SalvageValue.InexactFloat64(),
		"dep_start_value":         req.AssetCost.InexactFloat64(),
		"depreciation_method":     "straight_line",
		"depreciation_frequency":  "monthly",
		"computation_type":        "prorata_basis",
	}

	raw, err := c.postJSON(ctx, "/fixedassets", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		FixedAsset FixedAsset `json:"fixed_asset"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.FixedAsset.FixedAssetID == "" {
		return nil, &UpstreamError{StatusCode: http.StatusOK, Body: string(raw)}
	}

	c.logger.Info("zoho fixed asset created", "fixed_asset_id", resp.FixedAsset.FixedAssetID)
	return &resp.FixedAsset, nil
}

// ListFixedAssets pages through every fixed asset regardless of status.
func (c *Client) ListFixedAssets(ctx context.Context) ([]FixedAsset, error) {
	var assets []FixedAsset
	for page := 1; ; page++ {
		query := url.Values{
			"filter_by": {"Status.All"},
			"page":      {strconv.Itoa(page)},
			"per_page":  {"200"},
		}
		raw, err := c.do(ctx, http.MethodGet, "/fixedassets", query, nil, "")
		if err != nil {
			return nil, err
		}

		var resp struct {
			FixedAssets []FixedAsset `json:"fixed_assets"`
			PageContext struct {
				HasMorePage bool `json:"has_more_page"`
			} `json:"page_context"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, &UpstreamError{StatusCode: http.StatusOK, Body: string(raw)}
		}

		assets = append(assets, resp.FixedAssets...)
		if !resp.PageContext.HasMorePage {
			break
		}
	}
	return assets, nil
}

// GetFixedAsset returns the raw upstream record for one asset.
func (c *Client) GetFixedAsset(ctx context.Context, assetID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/fixedassets/"+assetID, nil, nil, "")
}

// BankAccount is a cash/bank account as reported by Zoho Books.
type BankAccount struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	AccountType string          `json:"account_type"`
	Balance     decimal.Decimal `json:"balance"`
}

// ListBankAccounts returns the organization's bank and cash accounts.
func (c *Client) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	raw, err := c.do(ctx, http.MethodGet, "/bankaccounts", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		BankAccounts []BankAccount `json:"bankaccounts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &UpstreamError{StatusCode: http.StatusOK, Body: string(raw)}
	}
	return resp.BankAccounts, nil
}

// Vendor is a contact of type vendor.
type Vendor struct {
	ContactID   string `json:"contact_id"`
	ContactName string `json:"contact_name"`
}

// ListVendors returns the organization's vendors.
func (c *Client) ListVendors(ctx context.Context) ([]Vendor, error) {
	query := url.Values{"contact_type": {"vendor"}}
	raw, err := c.do(ctx, http.MethodGet, "/contacts", query, nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Contacts []Vendor `json:"contacts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &UpstreamError{StatusCode: http.StatusOK, Body: string(raw)}
	}
	return resp.Contacts, nil
}
