package cash

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/pending"
	"github.com/wingscash/books-gateway/internal/zoho"
)

// AccountPosition is one dashboard row: the upstream balance, the total
// still staged against the account, and what remains after it clears.
type AccountPosition struct {
	AccountID    string          `json:"account_id"`
	AccountName  string          `json:"account_name"`
	Balance      decimal.Decimal `json:"balance"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	Available    decimal.Decimal `json:"available"`
}

// BankAccounts lists the organization's cash accounts.
type BankAccounts interface {
	ListBankAccounts(ctx context.Context) ([]zoho.BankAccount, error)
}

// PendingTotals reports staged amounts per paid-through account.
type PendingTotals interface {
	PendingTotalForAccount(ctx context.Context, accountID string) (decimal.Decimal, error)
}

type Service struct {
	banks   BankAccounts
	pending PendingTotals
	logger  *slog.Logger
}

func NewService(banks BankAccounts, pendingTotals PendingTotals, logger *slog.Logger) *Service {
	return &Service{
		banks:   banks,
		pending: pendingTotals,
		logger:  logger,
	}
}

// Dashboard returns positions for all accounts the actor may see.
func (s *Service) Dashboard(ctx context.Context, actor pending.Actor) ([]AccountPosition, error) {
	if s.banks == nil {
		return []AccountPosition{}, nil
	}
	accounts, err := s.banks.ListBankAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to list bank accounts", "error", err)
		return nil, internal.NewUpstreamError("failed to fetch bank accounts", err)
	}

	positions := make([]AccountPosition, 0, len(accounts))
	for _, account := range accounts {
		if !actor.CanSeeAccount(account.AccountID) {
			continue
		}
		position, err := s.position(ctx, account)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// AccountPosition returns one account's position. Accounts outside the
// actor's allow-list are forbidden, not hidden.
func (s *Service) AccountPosition(ctx context.Context, actor pending.Actor, accountID string) (*AccountPosition, error) {
	if !actor.CanSeeAccount(accountID) {
		return nil, internal.ErrUnauthorizedAccess
	}
	if s.banks == nil {
		return nil, internal.NewNotFoundError("Bank account not found", internal.ErrCodeInvalidAccount)
	}

	accounts, err := s.banks.ListBankAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to list bank accounts", "error", err)
		return nil, internal.NewUpstreamError("failed to fetch bank accounts", err)
	}

	for _, account := range accounts {
		if account.AccountID == accountID {
			position, err := s.position(ctx, account)
			if err != nil {
				return nil, err
			}
			return &position, nil
		}
	}
	return nil, internal.NewNotFoundError("Bank account not found", internal.ErrCodeInvalidAccount)
}

func (s *Service) position(ctx context.Context, account zoho.BankAccount) (AccountPosition, error) {
	pendingTotal, err := s.pending.PendingTotalForAccount(ctx, account.AccountID)
	if err != nil {
		s.logger.Error("failed to compute pending total", "account_id", account.AccountID, "error", err)
		return AccountPosition{}, internal.NewInternalError("failed to compute pending total", err)
	}
	return AccountPosition{
		AccountID:    account.AccountID,
		AccountName:  account.AccountName,
		Balance:      account.Balance,
		PendingTotal: pendingTotal,
		Available:    account.Balance.Sub(pendingTotal),
	}, nil
}
