package coa

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wingscash/books-gateway/internal"
)

// Account is one row of the exported chart of accounts.
type Account struct {
	ID   string `json:"account_id"`
	Name string `json:"account_name"`
	Type string `json:"account_type"`
}

// Store is a read-only chart-of-accounts lookup backed by the CSV export
// from Zoho Books. Loaded once at startup.
type Store struct {
	accounts []Account

	accruedID   string
	accruedName string
	logger      *slog.Logger
}

// NewStore reads the CSV and keeps the account list in memory. accruedID
// wins over accruedName when resolving the accrued liability account.
func NewStore(csvPath, accruedID, accruedName string, logger *slog.Logger) (*Store, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open chart of accounts %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse chart of accounts %s: %w", csvPath, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("chart of accounts %s is empty", csvPath)
	}

	header := rows[0]
	idCol, nameCol, typeCol := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "account id":
			idCol = i
		case "account name":
			nameCol = i
		case "account type":
			typeCol = i
		}
	}
	if idCol < 0 || nameCol < 0 || typeCol < 0 {
		return nil, fmt.Errorf("chart of accounts %s: missing Account ID/Name/Type columns", csvPath)
	}

	accounts := make([]Account, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) <= idCol || len(row) <= nameCol || len(row) <= typeCol {
			continue
		}
		account := Account{
			ID:   strings.TrimSpace(row[idCol]),
			Name: strings.TrimSpace(row[nameCol]),
			Type: strings.TrimSpace(row[typeCol]),
		}
		if account.ID == "" {
			continue
		}
		accounts = append(accounts, account)
	}

	logger.Info("chart of accounts loaded", "path", csvPath, "accounts", len(accounts))

	return &Store{
		accounts:    accounts,
		accruedID:   accruedID,
		accruedName: accruedName,
		logger:      logger,
	}, nil
}

// NewEmptyStore returns a store with no accounts, used when the CSV is
// missing so lookups degrade to NotConfigured instead of panics.
func NewEmptyStore(accruedID, accruedName string, logger *slog.Logger) *Store {
	return &Store{
		accruedID:   accruedID,
		accruedName: accruedName,
		logger:      logger,
	}
}

// ExpenseAccounts returns accounts usable as an expense line: expense
// and cost-of-goods-sold types.
func (s *Store) ExpenseAccounts() []Account {
	var result []Account
	for _, a := range s.accounts {
		t := strings.ToLower(a.Type)
		if strings.Contains(t, "expense") || strings.Contains(t, "cost of goods sold") {
			result = append(result, a)
		}
	}
	return result
}

// PaidThroughAccounts returns accounts cash can move through: bank, cash
// and credit card types.
func (s *Store) PaidThroughAccounts() []Account {
	var result []Account
	for _, a := range s.accounts {
		t := strings.ToLower(a.Type)
		if strings.Contains(t, "bank") || strings.Contains(t, "cash") || strings.Contains(t, "credit card") {
			result = append(result, a)
		}
	}
	return result
}

// AccruedLiabilityAccount resolves the configured accrued liability
// account: explicit id first, then case-insensitive name match.
func (s *Store) AccruedLiabilityAccount() (string, string, error) {
	if s.accruedID != "" {
		for _, a := range s.accounts {
			if a.ID == s.accruedID {
				return a.ID, a.Name, nil
			}
		}
	}
	if s.accruedName != "" {
		want := strings.ToLower(s.accruedName)
		for _, a := range s.accounts {
			if strings.ToLower(a.Name) == want {
				return a.ID, a.Name, nil
			}
		}
	}
	return "", "", internal.ErrCOANotConfigured
}
