package pending

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/core/events"
)

// Repository is the persistence contract for the pending ledger.
// Implementations return internal.ErrExpenseNotFound for missing ids.
type Repository interface {
	Create(ctx context.Context, expense *PendingExpense) error
	GetByID(ctx context.Context, id string) (*PendingExpense, error)
	Update(ctx context.Context, expense *PendingExpense) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*PendingExpense, error)
	PendingTotalForAccount(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// BooksExpense is the payload for an upstream expense creation.
type BooksExpense struct {
	Date                 string
	AccountID            string
	PaidThroughAccountID string
	VendorID             string
	Amount               decimal.Decimal
	ReferenceNumber      string
	Description          string
}

// JournalLine is one leg of an upstream journal entry.
type JournalLine struct {
	AccountID   string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// BooksJournal is the payload for an upstream journal creation.
type BooksJournal struct {
	Date            string
	ReferenceNumber string
	Notes           string
	Lines           []JournalLine
}

// BooksClient posts approved records to the upstream accounting system.
type BooksClient interface {
	CreateExpense(ctx context.Context, req BooksExpense) (string, json.RawMessage, error)
	CreateJournal(ctx context.Context, req BooksJournal) (string, json.RawMessage, error)
	UploadExpenseAttachment(ctx context.Context, expenseID, filename string, content []byte) error
	UploadJournalAttachment(ctx context.Context, journalID, filename string, content []byte) error
}

// AccountResolver locates the accrued liability account in the chart of
// accounts. Returns internal.ErrCOANotConfigured when unresolvable.
type AccountResolver interface {
	AccruedLiabilityAccount() (id string, name string, err error)
}

// ReceiptStore persists attachment bytes; the ledger only keeps
// {filename, url} references.
type ReceiptStore interface {
	Save(expenseID, filename string, content io.Reader) (storedName string, url string, err error)
	Read(expenseID, filename string) ([]byte, error)
}

// EventPublisher decouples the workflow from audit subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service owns the pending ledger state machine and the approval
// workflow. All mutations serialize behind mu; the upstream network call
// during Approve happens between lock sections so a slow Zoho request
// never blocks unrelated ledger operations.
type Service struct {
	repo     Repository
	books    BooksClient // nil disables upstream posting
	coa      AccountResolver
	receipts ReceiptStore
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
	// ids with an upstream post currently in flight, guarded by mu.
	inFlight map[string]struct{}
}

// upstreamPostTimeout bounds the Zoho call made during Approve.
const upstreamPostTimeout = 60 * time.Second

func NewService(repo Repository, books BooksClient, coa AccountResolver, receipts ReceiptStore, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		books:    books,
		coa:      coa,
		receipts: receipts,
		events:   publisher,
		logger:   logger,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

// CreateExpense stages a new pending record. Balance starts at the full
// amount for every record so the balance invariant holds uniformly.
func (s *Service) CreateExpense(ctx context.Context, actor Actor, dto *CreateExpenseDTO) (*PendingExpense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	record := &PendingExpense{
		ID:                     uuid.New().String(),
		Status:                 StatusPending,
		PendingKind:            KindExpense,
		ExpenseType:            dto.NormalizedType(),
		Date:                   dto.Date,
		VendorID:               dto.VendorID,
		VendorName:             dto.VendorName,
		Amount:                 dto.Amount.Round(2),
		ReferenceNumber:        dto.ReferenceNumber,
		Description:            dto.Description,
		ExpenseAccountID:       dto.ExpenseAccountID,
		PaidThroughAccountID:   dto.PaidThroughAccountID,
		PaidThroughAccountName: dto.PaidThroughAccountName,
		CreatedBy:              actor.ID,
		Clearing:               ClearingEntries{},
		Receipts:               Receipts{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	record.RecomputeBalance()
	record.ClearedAt = nil

	s.mu.Lock()
	err := s.repo.Create(ctx, record)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("failed to create pending expense", "created_by", actor.ID, "error", err)
		return nil, internal.NewInternalError("failed to create expense", err)
	}

	s.logger.Info("pending expense created",
		"expense_id", record.ID,
		"expense_type", record.ExpenseType,
		"amount", record.Amount.String(),
		"created_by", actor.ID)
	s.publish(ctx, events.NewExpenseCreatedEvent(record.ID, actor.ID, record.ExpenseType, record.Amount.String()))

	return record, nil
}

// GetExpense returns a single record, enforcing visibility: admins see
// everything, others see records they created or records paid through an
// account on their allow-list.
func (s *Service) GetExpense(ctx context.Context, actor Actor, id string) (*PendingExpense, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, record) {
		return nil, internal.ErrUnauthorizedAccess
	}
	return record, nil
}

func (s *Service) canView(actor Actor, record *PendingExpense) bool {
	if actor.IsAdmin {
		return true
	}
	if record.CreatedBy == actor.ID {
		return true
	}
	return actor.CanSeeAccount(record.PaidThroughAccountID)
}

func (s *Service) canMutate(actor Actor, record *PendingExpense) error {
	if !actor.IsAdmin && record.CreatedBy != actor.ID {
		return internal.ErrUnauthorizedAccess
	}
	if !record.IsPending() {
		return internal.ErrCannotModify
	}
	return nil
}

// UpdateExpense applies a partial patch to a pending record. The balance
// is recomputed immediately so a subsequent view never reflects a stale
// value after an amount change.
func (s *Service) UpdateExpense(ctx context.Context, actor Actor, id string, dto *UpdateExpenseDTO) (*PendingExpense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canMutate(actor, record); err != nil {
		return nil, err
	}

	dto.ApplyTo(record)
	record.RecomputeBalance()
	if record.IsPending() {
		record.ClearedAt = nil
	}

	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Error("failed to update pending expense", "expense_id", id, "error", err)
		return nil, internal.NewInternalError("failed to update expense", err)
	}

	s.logger.Info("pending expense updated", "expense_id", id, "updated_by", actor.ID)
	return record, nil
}

// DeleteExpense permanently removes a pending record. Same ownership and
// status rules as update.
func (s *Service) DeleteExpense(ctx context.Context, actor Actor, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.canMutate(actor, record); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete pending expense", "expense_id", id, "error", err)
		return internal.NewInternalError("failed to delete expense", err)
	}

	s.logger.Info("pending expense deleted", "expense_id", id, "deleted_by", actor.ID)
	return nil
}

func visibilityFilter(actor Actor, filter ListFilter) ListFilter {
	if actor.IsAdmin {
		return filter
	}
	filter.IncludeOwnFor = actor.ID
	filter.AllowedIDs = actor.AllowedAccountIDs
	return filter
}

// ListPending returns pending records newest first, both kinds.
func (s *Service) ListPending(ctx context.Context, actor Actor) ([]*PendingExpense, error) {
	filter := visibilityFilter(actor, ListFilter{Status: StatusPending})
	return s.repo.List(ctx, filter)
}

// ListApproved returns approved expense-kind records. With no explicit
// range it defaults to the current calendar month, end exclusive.
func (s *Service) ListApproved(ctx context.Context, actor Actor, dateFrom, dateTo string) ([]*PendingExpense, error) {
	if dateFrom == "" && dateTo == "" {
		dateFrom, dateTo = MonthBounds(s.now())
	}
	filter := visibilityFilter(actor, ListFilter{
		Status:      StatusApproved,
		PendingKind: KindExpense,
		DateFrom:    dateFrom,
		DateToExcl:  dateTo,
	})
	return s.repo.List(ctx, filter)
}

// ListAccrued returns approved accrued expenses. Fully cleared records
// (balance <= 0) are excluded unless includeCleared is set.
func (s *Service) ListAccrued(ctx context.Context, actor Actor, includeCleared bool) ([]*PendingExpense, error) {
	filter := visibilityFilter(actor, ListFilter{
		Status:      StatusApproved,
		PendingKind: KindExpense,
		ExpenseType: TypeAccrued,
	})
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if includeCleared {
		return records, nil
	}

	open := make([]*PendingExpense, 0, len(records))
	for _, r := range records {
		if r.Balance.GreaterThan(decimal.Zero) {
			open = append(open, r)
		}
	}
	return open, nil
}

// ListPaymentsMade returns accrued_payment records, optionally filtered
// by status.
func (s *Service) ListPaymentsMade(ctx context.Context, actor Actor, status string) ([]*PendingExpense, error) {
	filter := visibilityFilter(actor, ListFilter{
		Status:      status,
		PendingKind: KindAccruedPayment,
	})
	return s.repo.List(ctx, filter)
}

// PendingTotalForAccount sums the amounts of pending records paid
// through the given account, used by the cash dashboard.
func (s *Service) PendingTotalForAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.repo.PendingTotalForAccount(ctx, accountID)
}

// ClearAccrued stages a clearing payment against an approved accrued
// expense as a new accrued_payment pending record. The source balance is
// only reduced later, when the payment itself is approved and the
// journal has been posted.
func (s *Service) ClearAccrued(ctx context.Context, actor Actor, sourceID string, dto *ClearingDTO) (*PendingExpense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	// The cash leg must be a real bank account, never the liability
	// account itself.
	if s.coa != nil {
		if liabilityID, _, err := s.coa.AccruedLiabilityAccount(); err == nil && dto.PaidThroughAccountID == liabilityID {
			return nil, internal.NewValidationFieldError("paid_through_account_id",
				"clearing payments cannot be paid through the accrued liability account", internal.ErrCodeInvalidAccount)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.repo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.CanBeCleared() {
		return nil, internal.ErrNotAccrued
	}
	if !s.canView(actor, source) {
		return nil, internal.ErrUnauthorizedAccess
	}

	now := s.now()
	payment := &PendingExpense{
		ID:                     uuid.New().String(),
		Status:                 StatusPending,
		PendingKind:            KindAccruedPayment,
		ExpenseType:            TypeOrdinary,
		Date:                   dto.Date,
		VendorID:               source.VendorID,
		VendorName:             source.VendorName,
		Amount:                 dto.Amount.Round(2),
		ReferenceNumber:        dto.ReferenceNumber,
		Description:            "Clearing payment for " + source.Description,
		ExpenseAccountID:       source.ExpenseAccountID,
		PaidThroughAccountID:   dto.PaidThroughAccountID,
		PaidThroughAccountName: dto.PaidThroughAccountName,
		CreatedBy:              actor.ID,
		SourceAccruedExpenseID: source.ID,
		Clearing:               ClearingEntries{},
		Receipts:               Receipts{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	payment.RecomputeBalance()
	payment.ClearedAt = nil

	if err := s.repo.Create(ctx, payment); err != nil {
		s.logger.Error("failed to create clearing payment", "source_id", sourceID, "error", err)
		return nil, internal.NewInternalError("failed to create clearing payment", err)
	}

	s.logger.Info("clearing payment staged",
		"payment_id", payment.ID,
		"source_id", sourceID,
		"amount", payment.Amount.String(),
		"created_by", actor.ID)
	s.publish(ctx, events.NewExpenseCreatedEvent(payment.ID, actor.ID, payment.ExpenseType, payment.Amount.String()))

	return payment, nil
}

// Approve runs the pending -> approved transition. The upstream call is
// made without holding the ledger lock; on upstream failure the record
// stays pending with zoho_error set so the operator can retry. Approving
// a non-pending record is an idempotent no-op returning the record.
func (s *Service) Approve(ctx context.Context, actor Actor, id string) (*PendingExpense, error) {
	if !actor.IsAdmin {
		return nil, internal.ErrUnauthorizedAccess
	}

	s.mu.Lock()
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !record.CanBeApproved() {
		s.mu.Unlock()
		s.logger.Debug("approve on non-pending record is a no-op", "expense_id", id, "status", record.Status)
		return record, nil
	}
	if _, busy := s.inFlight[id]; busy {
		s.mu.Unlock()
		return nil, internal.NewConflictError("approval already in progress", internal.ErrCodeApprovalInFlight)
	}
	s.inFlight[id] = struct{}{}
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}()

	// Payloads are always rebuilt from canonical fields so edits made
	// while pending are reflected upstream.
	var post func(context.Context) (string, json.RawMessage, error)
	var paidThroughID, paidThroughName string
	isJournal := record.PendingKind == KindAccruedPayment

	if isJournal {
		journal, buildErr := s.buildClearingJournal(ctx, record)
		if buildErr != nil {
			s.mu.Unlock()
			return nil, buildErr
		}
		post = func(ctx context.Context) (string, json.RawMessage, error) {
			return s.books.CreateJournal(ctx, *journal)
		}
	} else {
		payload := BooksExpense{
			Date:                 record.Date,
			AccountID:            record.ExpenseAccountID,
			PaidThroughAccountID: record.PaidThroughAccountID,
			VendorID:             record.VendorID,
			Amount:               record.Amount,
			ReferenceNumber:      record.ReferenceNumber,
			Description:          record.Description,
		}
		if record.IsAccrued() {
			liabilityID, liabilityName, coaErr := s.resolveAccruedAccount()
			if coaErr != nil {
				s.mu.Unlock()
				return nil, coaErr
			}
			payload.PaidThroughAccountID = liabilityID
			paidThroughID, paidThroughName = liabilityID, liabilityName
		}
		post = func(ctx context.Context) (string, json.RawMessage, error) {
			return s.books.CreateExpense(ctx, payload)
		}
	}
	s.mu.Unlock()

	var upstreamID string
	var raw json.RawMessage
	if s.books != nil {
		postCtx, cancel := internal.WithTimeout(ctx, upstreamPostTimeout)
		upstreamID, raw, err = post(postCtx)
		cancel()
		if err != nil {
			s.recordPostFailure(ctx, id, err)
			s.logger.Error("upstream posting failed", "expense_id", id, "error", err)
			return nil, internal.NewUpstreamError("failed to post to Zoho Books", err)
		}
	}

	s.mu.Lock()
	record, err = s.repo.GetByID(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !record.CanBeApproved() {
		// A reject landed while the post was in flight. The terminal
		// status stands; record the upstream linkage so the operator
		// can reconcile the posted document.
		if s.books != nil && !record.ZohoPosted {
			record.ZohoPosted = true
			record.ZohoResponse = RawJSON(raw)
			if isJournal {
				record.ZohoJournalID = upstreamID
			} else {
				record.ZohoExpenseID = upstreamID
			}
			record.UpdatedAt = s.now()
			if uerr := s.repo.Update(ctx, record); uerr != nil {
				s.logger.Error("failed to record upstream reference", "expense_id", id, "error", uerr)
			}
		}
		s.mu.Unlock()
		s.logger.Warn("expense left pending during upstream post",
			"expense_id", id,
			"status", record.Status,
			"upstream_id", upstreamID)
		return nil, internal.NewConflictError("expense is no longer pending", internal.ErrCodeStatusChanged)
	}
	record.Approve()
	record.ZohoError = ""
	if paidThroughID != "" {
		record.PaidThroughAccountID = paidThroughID
		record.PaidThroughAccountName = paidThroughName
	}
	if s.books != nil {
		record.ZohoPosted = true
		record.ZohoResponse = RawJSON(raw)
		if isJournal {
			record.ZohoJournalID = upstreamID
		} else {
			record.ZohoExpenseID = upstreamID
		}
	}
	if err := s.repo.Update(ctx, record); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to persist approval", "expense_id", id, "error", err)
		return nil, internal.NewInternalError("failed to persist approval", err)
	}

	if isJournal {
		// Two-record flow without cross-record atomicity: a failure
		// here leaves the payment approved and the source uncleared,
		// surfaced in the logs rather than reverting the approval.
		if err := s.applyClearingLocked(ctx, record); err != nil {
			s.logger.Error("failed to clear source accrued expense",
				"payment_id", record.ID,
				"source_id", record.SourceAccruedExpenseID,
				"error", err)
		}
	}
	s.mu.Unlock()

	s.pushReceipts(ctx, record)

	s.logger.Info("expense approved",
		"expense_id", record.ID,
		"pending_kind", record.PendingKind,
		"zoho_posted", record.ZohoPosted,
		"approved_by", actor.ID)
	s.publish(ctx, events.NewExpenseApprovedEvent(record.ID, record.PendingKind, upstreamID))

	return record, nil
}

func (s *Service) resolveAccruedAccount() (string, string, error) {
	if s.coa == nil {
		return "", "", internal.ErrCOANotConfigured
	}
	return s.coa.AccruedLiabilityAccount()
}

// buildClearingJournal validates the source record and assembles the
// balanced two-line journal: debit the accrued liability, credit the
// cash account. Caller holds the lock.
func (s *Service) buildClearingJournal(ctx context.Context, payment *PendingExpense) (*BooksJournal, error) {
	source, err := s.repo.GetByID(ctx, payment.SourceAccruedExpenseID)
	if err != nil {
		return nil, internal.ErrNotAccrued
	}
	if !source.CanBeCleared() {
		return nil, internal.ErrNotAccrued
	}

	liabilityID, _, err := s.resolveAccruedAccount()
	if err != nil {
		return nil, err
	}

	return &BooksJournal{
		Date:            payment.Date,
		ReferenceNumber: payment.ReferenceNumber,
		Notes:           payment.Description,
		Lines: []JournalLine{
			{AccountID: liabilityID, Description: payment.Description, Debit: payment.Amount},
			{AccountID: payment.PaidThroughAccountID, Description: payment.Description, Credit: payment.Amount},
		},
	}, nil
}

// applyClearingLocked appends the clearing entry to the source accrued
// record and recomputes its balance. Caller holds the lock.
func (s *Service) applyClearingLocked(ctx context.Context, payment *PendingExpense) error {
	source, err := s.repo.GetByID(ctx, payment.SourceAccruedExpenseID)
	if err != nil {
		return err
	}
	if !source.CanBeCleared() {
		return internal.ErrNotAccrued
	}

	source.AddClearing(ClearingEntry{
		ID:                     uuid.New().String(),
		Amount:                 payment.Amount,
		PaidThroughAccountID:   payment.PaidThroughAccountID,
		PaidThroughAccountName: payment.PaidThroughAccountName,
		Date:                   payment.Date,
		ReferenceNumber:        payment.ReferenceNumber,
		SourcePaymentID:        payment.ID,
		CreatedAt:              s.now(),
	})

	if err := s.repo.Update(ctx, source); err != nil {
		return err
	}

	s.publish(ctx, events.NewAccruedClearedEvent(source.ID, payment.ID, payment.Amount.String(), source.Balance.String()))
	return nil
}

func (s *Service) recordPostFailure(ctx context.Context, id string, postErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return
	}
	record.ZohoPosted = false
	record.ZohoError = postErr.Error()
	record.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Error("failed to record upstream failure", "expense_id", id, "error", err)
	}
}

// pushReceipts uploads receipts collected while pending to the upstream
// attachment endpoint. Best effort: failures are recorded on the record
// and never revert the approval.
func (s *Service) pushReceipts(ctx context.Context, record *PendingExpense) {
	if s.books == nil || s.receipts == nil || len(record.Receipts) == 0 || !record.ZohoPosted {
		return
	}

	var attachErr string
	for _, receipt := range record.Receipts {
		content, err := s.receipts.Read(record.ID, receipt.Filename)
		if err == nil {
			err = s.uploadAttachment(ctx, record, receipt.Filename, content)
		}
		if err != nil {
			attachErr = err.Error()
			s.logger.Warn("receipt upload failed",
				"expense_id", record.ID,
				"filename", receipt.Filename,
				"error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fresh, err := s.repo.GetByID(ctx, record.ID)
	if err != nil {
		return
	}
	fresh.ZohoAttachmentPosted = attachErr == ""
	fresh.ZohoAttachmentError = attachErr
	fresh.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, fresh); err != nil {
		s.logger.Error("failed to record attachment outcome", "expense_id", record.ID, "error", err)
	}
	record.ZohoAttachmentPosted = fresh.ZohoAttachmentPosted
	record.ZohoAttachmentError = fresh.ZohoAttachmentError
}

func (s *Service) uploadAttachment(ctx context.Context, record *PendingExpense, filename string, content []byte) error {
	if record.PendingKind == KindAccruedPayment {
		return s.books.UploadJournalAttachment(ctx, record.ZohoJournalID, filename, content)
	}
	return s.books.UploadExpenseAttachment(ctx, record.ZohoExpenseID, filename, content)
}

// Reject moves a pending record to the terminal rejected state. No
// upstream interaction.
func (s *Service) Reject(ctx context.Context, actor Actor, id string) (*PendingExpense, error) {
	if !actor.IsAdmin {
		return nil, internal.ErrUnauthorizedAccess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.CanBeRejected() {
		return nil, internal.ErrInvalidStatus
	}

	record.Reject()
	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Error("failed to persist rejection", "expense_id", id, "error", err)
		return nil, internal.NewInternalError("failed to reject expense", err)
	}

	s.logger.Info("expense rejected", "expense_id", id, "rejected_by", actor.ID)
	s.publish(ctx, events.NewExpenseRejectedEvent(id))

	return record, nil
}

// AddReceipt stores the attachment bytes locally and records the
// reference on the ledger record; allowed in any status. If the record
// is already posted upstream the file is pushed immediately, best
// effort.
func (s *Service) AddReceipt(ctx context.Context, actor Actor, id, filename string, content []byte) (*PendingExpense, error) {
	if s.receipts == nil {
		return nil, internal.NewInternalError("receipt storage is not configured", nil)
	}

	s.mu.Lock()
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.canView(actor, record) {
		s.mu.Unlock()
		return nil, internal.ErrUnauthorizedAccess
	}

	storedName, url, err := s.receipts.Save(id, filename, bytes.NewReader(content))
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to store receipt", "expense_id", id, "filename", filename, "error", err)
		return nil, internal.NewInternalError("failed to store receipt", err)
	}

	record.AddReceipt(storedName, url)
	if err := s.repo.Update(ctx, record); err != nil {
		s.mu.Unlock()
		return nil, internal.NewInternalError("failed to record receipt", err)
	}
	shouldPush := record.ZohoPosted && s.books != nil
	s.mu.Unlock()

	if shouldPush {
		uploadErr := s.uploadAttachment(ctx, record, storedName, content)

		s.mu.Lock()
		defer s.mu.Unlock()
		fresh, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return record, nil
		}
		if uploadErr != nil {
			fresh.ZohoAttachmentError = uploadErr.Error()
			s.logger.Warn("receipt upload failed", "expense_id", id, "filename", storedName, "error", uploadErr)
		} else {
			fresh.ZohoAttachmentPosted = true
			fresh.ZohoAttachmentError = ""
		}
		fresh.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, fresh); err != nil {
			s.logger.Error("failed to record attachment outcome", "expense_id", id, "error", err)
		}
		return fresh, nil
	}

	s.logger.Info("receipt added", "expense_id", id, "filename", storedName, "added_by", actor.ID)
	return record, nil
}
