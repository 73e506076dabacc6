package pending_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal/pending"
)

var _ = Describe("PendingExpense", func() {
	newAccrued := func(amount int64) *pending.PendingExpense {
		record := &pending.PendingExpense{
			ID:          "exp-1",
			Status:      pending.StatusApproved,
			PendingKind: pending.KindExpense,
			ExpenseType: pending.TypeAccrued,
			Amount:      decimal.NewFromInt(amount),
		}
		record.RecomputeBalance()
		return record
	}

	entry := func(amount string) pending.ClearingEntry {
		value, err := decimal.NewFromString(amount)
		Expect(err).ToNot(HaveOccurred())
		return pending.ClearingEntry{ID: "clr", Amount: value, Date: "2025-03-01"}
	}

	Describe("RecomputeBalance", func() {
		It("starts at the full amount with no clearing", func() {
			record := newAccrued(1000)

			Expect(record.Balance.Equal(decimal.NewFromInt(1000))).To(BeTrue())
			Expect(record.ClearedAt).To(BeNil())
		})

		It("subtracts clearing entries and rounds to two places", func() {
			record := newAccrued(100)
			record.AddClearing(entry("33.333"))

			Expect(record.Balance.String()).To(Equal("66.67"))
		})

		It("clamps to zero when clearing exceeds the amount", func() {
			record := newAccrued(500)
			record.AddClearing(entry("600"))

			Expect(record.Balance.IsZero()).To(BeTrue())
			Expect(record.ClearedAt).ToNot(BeNil())
		})

		It("sets and unsets cleared_at as the balance crosses zero", func() {
			record := newAccrued(100)
			record.AddClearing(entry("100"))
			Expect(record.ClearedAt).ToNot(BeNil())

			record.Amount = decimal.NewFromInt(200)
			record.RecomputeBalance()
			Expect(record.ClearedAt).To(BeNil())
			Expect(record.Balance.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})
	})

	Describe("TotalCleared", func() {
		It("sums all clearing entries", func() {
			record := newAccrued(1000)
			record.AddClearing(entry("400"))
			record.AddClearing(entry("250.50"))

			Expect(record.TotalCleared().String()).To(Equal("650.5"))
		})
	})

	Describe("state predicates", func() {
		It("only approved accrued expense-kind records can be cleared", func() {
			record := newAccrued(1000)
			Expect(record.CanBeCleared()).To(BeTrue())

			record.Status = pending.StatusPending
			Expect(record.CanBeCleared()).To(BeFalse())

			record.Status = pending.StatusApproved
			record.ExpenseType = pending.TypeOrdinary
			Expect(record.CanBeCleared()).To(BeFalse())

			record.ExpenseType = pending.TypeAccrued
			record.PendingKind = pending.KindAccruedPayment
			Expect(record.CanBeCleared()).To(BeFalse())
		})

		It("only pending records can be approved or rejected", func() {
			record := newAccrued(1000)
			record.Status = pending.StatusPending
			Expect(record.CanBeApproved()).To(BeTrue())
			Expect(record.CanBeRejected()).To(BeTrue())

			record.Approve()
			Expect(record.Status).To(Equal(pending.StatusApproved))
			Expect(record.ApprovedAt).ToNot(BeNil())
			Expect(record.CanBeApproved()).To(BeFalse())
			Expect(record.CanBeRejected()).To(BeFalse())
		})
	})
})

var _ = Describe("MonthBounds", func() {
	It("returns the first of the month and the first of the next month", func() {
		ref := time.Date(2025, time.March, 17, 14, 30, 0, 0, time.UTC)

		from, to := pending.MonthBounds(ref)

		Expect(from).To(Equal("2025-03-01"))
		Expect(to).To(Equal("2025-04-01"))
	})

	It("rolls over at year end", func() {
		ref := time.Date(2025, time.December, 31, 23, 59, 0, 0, time.UTC)

		from, to := pending.MonthBounds(ref)

		Expect(from).To(Equal("2025-12-01"))
		Expect(to).To(Equal("2026-01-01"))
	})
})

var _ = Describe("UpdateExpenseDTO", func() {
	It("rejects unknown fields", func() {
		body := `{"amount": "10", "status": "approved"}`

		_, err := pending.DecodeUpdateExpenseDTO(strings.NewReader(body))

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("status"))
	})

	It("patches only the provided fields", func() {
		body := `{"description": "updated", "amount": "75"}`
		dto, err := pending.DecodeUpdateExpenseDTO(strings.NewReader(body))
		Expect(err).ToNot(HaveOccurred())
		Expect(dto.Validate()).To(Succeed())

		record := &pending.PendingExpense{
			Date:        "2025-03-01",
			Description: "original",
			VendorName:  "Vendor",
			Amount:      decimal.NewFromInt(50),
		}
		dto.ApplyTo(record)

		Expect(record.Description).To(Equal("updated"))
		Expect(record.Amount.Equal(decimal.NewFromInt(75))).To(BeTrue())
		Expect(record.Date).To(Equal("2025-03-01"))
		Expect(record.VendorName).To(Equal("Vendor"))
	})

	It("rejects a non-positive amount patch", func() {
		zero := decimal.Zero
		dto := &pending.UpdateExpenseDTO{Amount: &zero}

		Expect(dto.Validate()).To(HaveOccurred())
	})
})
