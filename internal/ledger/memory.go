package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/ledgerline/deposit-core/internal/shared"
)

// Memory is an in-process ledger implementation. It backs tests and local
// development; the balance and entry semantics mirror the remote service:
// credits raise an account balance, debits lower it, and every applied leg
// records an entry whose Balance is the balance after the movement.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]Account
	entries  map[string][]Entry
	postings []JournalEntry
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]Account),
		entries:  make(map[string][]Entry),
	}
}

// AddAccount seeds or replaces an account.
func (m *Memory) AddAccount(account Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.State == "" {
		account.State = AccountStateOpen
	}
	m.accounts[account.Identifier] = account
}

// FindAccount implements Client.
func (m *Memory) FindAccount(ctx context.Context, identifier string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[identifier]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return account, nil
}

// FetchEntries implements Client.
func (m *Memory) FetchEntries(ctx context.Context, accountID string, dateRange DateRange, sort SortDirection) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, shared.ErrNotFound
	}
	var out []Entry
	for _, entry := range m.entries[accountID] {
		if dateRange.Contains(entry.TransactionDate) {
			out = append(out, entry)
		}
	}
	sortEntries(out, sort)
	return out, nil
}

// Post implements Client. Legs referencing unknown accounts are applied
// against an implicitly created internal account, as the remote service does
// for configured product accounts.
func (m *Memory) Post(ctx context.Context, entry JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range entry.Debtors {
		account := m.ensureAccount(d.AccountNumber)
		account.Balance = account.Balance.Sub(d.Amount)
		m.accounts[d.AccountNumber] = account
		m.entries[d.AccountNumber] = append(m.entries[d.AccountNumber], Entry{
			Type:            "DEBIT",
			TransactionDate: entry.TransactionDate,
			Amount:          d.Amount.Neg(),
			Balance:         account.Balance,
		})
	}
	for _, c := range entry.Creditors {
		account := m.ensureAccount(c.AccountNumber)
		account.Balance = account.Balance.Add(c.Amount)
		m.accounts[c.AccountNumber] = account
		m.entries[c.AccountNumber] = append(m.entries[c.AccountNumber], Entry{
			Type:            "CREDIT",
			TransactionDate: entry.TransactionDate,
			Amount:          c.Amount,
			Balance:         account.Balance,
		})
	}
	m.postings = append(m.postings, entry)
	return nil
}

// CreateAccount implements Client.
func (m *Memory) CreateAccount(ctx context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Identifier]; ok {
		return shared.E(shared.KindConflict, "ledger: account %s already exists", account.Identifier)
	}
	if account.State == "" {
		account.State = AccountStateOpen
	}
	m.accounts[account.Identifier] = account
	return nil
}

// Postings returns all journal entries posted so far, oldest first.
func (m *Memory) Postings() []JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JournalEntry(nil), m.postings...)
}

// SeedEntry appends a historical entry without moving balances, for tests
// reconstructing past activity.
func (m *Memory) SeedEntry(accountID string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[accountID] = append(m.entries[accountID], entry)
}

func (m *Memory) ensureAccount(identifier string) Account {
	account, ok := m.accounts[identifier]
	if !ok {
		account = Account{Identifier: identifier, State: AccountStateOpen}
	}
	return account
}

func sortEntries(entries []Entry, direction SortDirection) {
	sort.SliceStable(entries, func(i, j int) bool {
		if direction == SortDescending {
			return entries[i].TransactionDate.After(entries[j].TransactionDate)
		}
		return entries[i].TransactionDate.Before(entries[j].TransactionDate)
	})
}
