package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/pending"
)

func TestZohoClient(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Zoho Client Suite")
}

var _ = ginkgo.Describe("Client", func() {
	var (
		tokenCalls int32
		accounts   *httptest.Server
		books      *httptest.Server
		mux        *http.ServeMux
		client     *Client
		ctx        context.Context
	)

	newTestClient := func() *Client {
		cfg := internal.ZohoConfig{
			ClientID:        "client-id",
			ClientSecret:    "client-secret",
			RefreshToken:    "refresh-token",
			OrgID:           "org-42",
			AccountsBaseURL: accounts.URL,
			BooksBaseURL:    books.URL,
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		return NewClient(cfg, logger)
	}

	ginkgo.BeforeEach(func() {
		atomic.StoreInt32(&tokenCalls, 0)
		accounts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gomega.Expect(r.URL.Path).To(gomega.Equal("/oauth/v2/token"))
			gomega.Expect(r.ParseForm()).To(gomega.Succeed())
			gomega.Expect(r.Form.Get("grant_type")).To(gomega.Equal("refresh_token"))
			gomega.Expect(r.Form.Get("refresh_token")).To(gomega.Equal("refresh-token"))
			atomic.AddInt32(&tokenCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token": "token-abc", "expires_in": 3600}`))
		}))
		mux = http.NewServeMux()
		books = httptest.NewServer(mux)
		client = newTestClient()
		ctx = context.Background()
	})

	ginkgo.AfterEach(func() {
		accounts.Close()
		books.Close()
	})

	ginkgo.Describe("token handling", func() {
		ginkgo.It("refreshes once and reuses the cached token", func() {
			mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.Header.Get("Authorization")).To(gomega.Equal("Zoho-oauthtoken token-abc"))
				_, _ = w.Write([]byte(`{"code": 0, "expense": {"expense_id": "ex-1"}}`))
			})

			req := pending.BooksExpense{Date: "2025-03-01", AccountID: "a1", Amount: decimal.NewFromInt(10)}
			_, _, err := client.CreateExpense(ctx, req)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, _, err = client.CreateExpense(ctx, req)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(atomic.LoadInt32(&tokenCalls)).To(gomega.Equal(int32(1)))
		})

		ginkgo.It("surfaces an upstream error when the refresh is rejected", func() {
			accounts.Close()
			accounts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": "invalid_client"}`))
			}))
			client = newTestClient()

			_, _, err := client.CreateExpense(ctx, pending.BooksExpense{Amount: decimal.NewFromInt(10)})

			gomega.Expect(err).To(gomega.HaveOccurred())
			var upstreamErr *UpstreamError
			gomega.Expect(errors.As(err, &upstreamErr)).To(gomega.BeTrue())
			gomega.Expect(upstreamErr.StatusCode).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("CreateExpense", func() {
		ginkgo.It("posts the payload with the organization id and parses the expense id", func() {
			var received map[string]interface{}
			mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.URL.Query().Get("organization_id")).To(gomega.Equal("org-42"))
				body, _ := io.ReadAll(r.Body)
				gomega.Expect(json.Unmarshal(body, &received)).To(gomega.Succeed())
				_, _ = w.Write([]byte(`{"code": 0, "expense": {"expense_id": "ex-99"}}`))
			})

			id, raw, err := client.CreateExpense(ctx, pending.BooksExpense{
				Date:                 "2025-03-01",
				AccountID:            "acct-expense",
				PaidThroughAccountID: "acct-bank",
				VendorID:             "vendor-1",
				Amount:               decimal.NewFromFloat(12.50),
				Description:          "paper",
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(id).To(gomega.Equal("ex-99"))
			gomega.Expect(raw).ToNot(gomega.BeEmpty())
			gomega.Expect(received["account_id"]).To(gomega.Equal("acct-expense"))
			gomega.Expect(received["paid_through_account_id"]).To(gomega.Equal("acct-bank"))
			gomega.Expect(received["vendor_id"]).To(gomega.Equal("vendor-1"))
			gomega.Expect(received["amount"]).To(gomega.BeNumerically("~", 12.50))
		})

		ginkgo.It("maps a non-2xx response to an upstream error", func() {
			mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code": 1001, "message": "account not found"}`))
			})

			_, _, err := client.CreateExpense(ctx, pending.BooksExpense{Amount: decimal.NewFromInt(10)})

			var upstreamErr *UpstreamError
			gomega.Expect(errors.As(err, &upstreamErr)).To(gomega.BeTrue())
			gomega.Expect(upstreamErr.StatusCode).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(upstreamErr.Error()).To(gomega.ContainSubstring("account not found"))
		})

		ginkgo.It("treats a 200 with a non-zero code as an error", func() {
			mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code": 57, "message": "not authorized"}`))
			})

			_, _, err := client.CreateExpense(ctx, pending.BooksExpense{Amount: decimal.NewFromInt(10)})

			var upstreamErr *UpstreamError
			gomega.Expect(errors.As(err, &upstreamErr)).To(gomega.BeTrue())
			gomega.Expect(upstreamErr.Error()).To(gomega.ContainSubstring("not authorized"))
		})
	})

	ginkgo.Describe("CreateJournal", func() {
		ginkgo.It("splits lines into debit and credit entries", func() {
			var received map[string]interface{}
			mux.HandleFunc("/journals", func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				gomega.Expect(json.Unmarshal(body, &received)).To(gomega.Succeed())
				_, _ = w.Write([]byte(`{"code": 0, "journal": {"journal_id": "jr-7"}}`))
			})

			id, _, err := client.CreateJournal(ctx, pending.BooksJournal{
				Date:  "2025-03-01",
				Notes: "clearing",
				Lines: []pending.JournalLine{
					{AccountID: "acct-liability", Debit: decimal.NewFromInt(400)},
					{AccountID: "acct-bank", Credit: decimal.NewFromInt(400)},
				},
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(id).To(gomega.Equal("jr-7"))
			gomega.Expect(received["journal_date"]).To(gomega.Equal("2025-03-01"))

			lines := received["line_items"].([]interface{})
			gomega.Expect(lines).To(gomega.HaveLen(2))
			debit := lines[0].(map[string]interface{})
			credit := lines[1].(map[string]interface{})
			gomega.Expect(debit["debit_or_credit"]).To(gomega.Equal("debit"))
			gomega.Expect(debit["amount"]).To(gomega.BeNumerically("~", 400))
			gomega.Expect(credit["debit_or_credit"]).To(gomega.Equal("credit"))
			gomega.Expect(credit["account_id"]).To(gomega.Equal("acct-bank"))
		})
	})

	ginkgo.Describe("UploadExpenseAttachment", func() {
		ginkgo.It("sends the file as a multipart attachment field", func() {
			mux.HandleFunc("/expenses/ex-1/attachment", func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.ParseMultipartForm(1 << 20)).To(gomega.Succeed())
				file, header, err := r.FormFile("attachment")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				defer file.Close()
				gomega.Expect(header.Filename).To(gomega.Equal("invoice.pdf"))
				content, _ := io.ReadAll(file)
				gomega.Expect(string(content)).To(gomega.Equal("pdf-bytes"))
				_, _ = w.Write([]byte(`{"code": 0, "message": "attached"}`))
			})

			err := client.UploadExpenseAttachment(ctx, "ex-1", "invoice.pdf", []byte("pdf-bytes"))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("CreateFixedAsset", func() {
		ginkgo.It("posts the depreciation schedule with the asset payload", func() {
			var received map[string]interface{}
			mux.HandleFunc("/fixedassets", func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				gomega.Expect(json.Unmarshal(body, &received)).To(gomega.Succeed())
				_, _ = w.Write([]byte(`{"code": 0, "fixed_asset": {"fixed_asset_id": "fa-9", "asset_number": "FA-0009", "status": "active"}}`))
			})

			asset, err := client.CreateFixedAsset(ctx, FixedAssetRequest{
				AssetName:             "ThinkPad T14",
				FixedAssetTypeID:      "type-1",
				AssetAccountID:        "acct-asset",
				ExpenseAccountID:      "acct-expense",
				DepreciationAccountID: "acct-dep",
				AssetCost:             decimal.NewFromInt(1500),
				PurchaseDate:          "2025-02-01",
				DepreciationStartDate: "2025-03-01",
				UsefulLifeMonths:      36,
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(asset.FixedAssetID).To(gomega.Equal("fa-9"))
			gomega.Expect(asset.AssetNumber).To(gomega.Equal("FA-0009"))
			gomega.Expect(received["depreciation_method"]).To(gomega.Equal("straight_line"))
			gomega.Expect(received["depreciation_frequency"]).To(gomega.Equal("monthly"))
			gomega.Expect(received["computation_type"]).To(gomega.Equal("prorata_basis"))
			gomega.Expect(received["dep_start_value"]).To(gomega.BeNumerically("~", 1500))
			gomega.Expect(received["total_life"]).To(gomega.BeNumerically("==", 36))
		})
	})

	ginkgo.Describe("ListFixedAssets", func() {
		ginkgo.It("follows pagination until has_more_page is false", func() {
			mux.HandleFunc("/fixedassets", func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.URL.Query().Get("filter_by")).To(gomega.Equal("Status.All"))
				if r.URL.Query().Get("page") == "1" {
					_, _ = w.Write([]byte(`{"code": 0, "fixed_assets": [{"fixed_asset_id": "fa-1"}],
						"page_context": {"has_more_page": true}}`))
					return
				}
				_, _ = w.Write([]byte(`{"code": 0, "fixed_assets": [{"fixed_asset_id": "fa-2"}],
					"page_context": {"has_more_page": false}}`))
			})

			result, err := client.ListFixedAssets(ctx)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result).To(gomega.HaveLen(2))
			gomega.Expect(result[0].FixedAssetID).To(gomega.Equal("fa-1"))
			gomega.Expect(result[1].FixedAssetID).To(gomega.Equal("fa-2"))
		})
	})

	ginkgo.Describe("GetFixedAsset", func() {
		ginkgo.It("returns the raw record for one asset", func() {
			mux.HandleFunc("/fixedassets/fa-1", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code": 0, "fixed_asset": {"fixed_asset_id": "fa-1", "asset_name": "ThinkPad T14"}}`))
			})

			raw, err := client.GetFixedAsset(ctx, "fa-1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(string(raw)).To(gomega.ContainSubstring(`"asset_name": "ThinkPad T14"`))
		})
	})

	ginkgo.Describe("ListBankAccounts", func() {
		ginkgo.It("parses the bankaccounts envelope", func() {
			mux.HandleFunc("/bankaccounts", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code": 0, "bankaccounts": [
					{"account_id": "b1", "account_name": "Main Bank", "account_type": "bank", "balance": 1500.25}
				]}`))
			})

			result, err := client.ListBankAccounts(ctx)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result).To(gomega.HaveLen(1))
			gomega.Expect(result[0].AccountName).To(gomega.Equal("Main Bank"))
			gomega.Expect(result[0].Balance.Equal(decimal.NewFromFloat(1500.25))).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("ListVendors", func() {
		ginkgo.It("queries contacts of type vendor", func() {
			mux.HandleFunc("/contacts", func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.URL.Query().Get("contact_type")).To(gomega.Equal("vendor"))
				_, _ = w.Write([]byte(`{"code": 0, "contacts": [{"contact_id": "v1", "contact_name": "Supplies Co"}]}`))
			})

			result, err := client.ListVendors(ctx)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result).To(gomega.HaveLen(1))
			gomega.Expect(result[0].ContactName).To(gomega.Equal("Supplies Co"))
		})
	})
})
