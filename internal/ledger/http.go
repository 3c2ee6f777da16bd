package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/shared"
)

// HTTPClient talks to the accounting service over its JSON API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient constructs a client against the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type accountDoc struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	State      string   `json:"state"`
	Balance    string   `json:"balance"`
	Holders    []string `json:"holders,omitempty"`
	Reference  string   `json:"referenceAccount,omitempty"`
}

type entryDoc struct {
	Type            string    `json:"type"`
	TransactionDate time.Time `json:"transactionDate"`
	Amount          string    `json:"amount"`
	Balance         string    `json:"balance"`
}

type legDoc struct {
	AccountNumber string `json:"accountNumber"`
	Amount        string `json:"amount"`
}

type journalDoc struct {
	TransactionIdentifier string    `json:"transactionIdentifier"`
	TransactionType       string    `json:"transactionType"`
	TransactionDate       time.Time `json:"transactionDate"`
	Debtors               []legDoc  `json:"debtors"`
	Creditors             []legDoc  `json:"creditors"`
	Note                  string    `json:"note,omitempty"`
	Message               string    `json:"message,omitempty"`
	Clerk                 string    `json:"clerk,omitempty"`
}

// FindAccount looks up a single account by identifier.
func (c *HTTPClient) FindAccount(ctx context.Context, identifier string) (Account, error) {
	var doc accountDoc
	path := fmt.Sprintf("%s/accounts/%s", c.baseURL, url.PathEscape(identifier))
	if err := c.getJSON(ctx, path, &doc); err != nil {
		return Account{}, err
	}
	balance, err := decimal.NewFromString(doc.Balance)
	if err != nil {
		return Account{}, fmt.Errorf("ledger: account %s balance: %w", identifier, err)
	}
	return Account{
		Identifier: doc.Identifier,
		Name:       doc.Name,
		Type:       doc.Type,
		State:      doc.State,
		Balance:    balance,
		Holders:    doc.Holders,
		Reference:  doc.Reference,
	}, nil
}

// FetchEntries returns dated entries for an account within the range.
func (c *HTTPClient) FetchEntries(ctx context.Context, accountID string, dateRange DateRange, sort SortDirection) ([]Entry, error) {
	query := url.Values{}
	query.Set("dateRange", dateRange.Start.Format("2006-01-02")+".."+dateRange.End.Format("2006-01-02"))
	query.Set("direction", string(sort))
	path := fmt.Sprintf("%s/accounts/%s/entries?%s", c.baseURL, url.PathEscape(accountID), query.Encode())

	var docs []entryDoc
	if err := c.getJSON(ctx, path, &docs); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		amount, err := decimal.NewFromString(doc.Amount)
		if err != nil {
			return nil, fmt.Errorf("ledger: entry amount: %w", err)
		}
		balance, err := decimal.NewFromString(doc.Balance)
		if err != nil {
			return nil, fmt.Errorf("ledger: entry balance: %w", err)
		}
		entries = append(entries, Entry{
			Type:            doc.Type,
			TransactionDate: doc.TransactionDate,
			Amount:          amount,
			Balance:         balance,
		})
	}
	return entries, nil
}

// Post submits a journal entry.
func (c *HTTPClient) Post(ctx context.Context, entry JournalEntry) error {
	doc := journalDoc{
		TransactionIdentifier: entry.TransactionIdentifier,
		TransactionType:       entry.TransactionType,
		TransactionDate:       entry.TransactionDate,
		Note:                  entry.Note,
		Message:               entry.Message,
		Clerk:                 entry.Clerk,
	}
	for _, d := range entry.Debtors {
		doc.Debtors = append(doc.Debtors, legDoc{AccountNumber: d.AccountNumber, Amount: d.Amount.String()})
	}
	for _, cr := range entry.Creditors {
		doc.Creditors = append(doc.Creditors, legDoc{AccountNumber: cr.AccountNumber, Amount: cr.Amount.String()})
	}
	return c.postJSON(ctx, c.baseURL+"/journal", doc)
}

// CreateAccount registers a new account with the ledger.
func (c *HTTPClient) CreateAccount(ctx context.Context, account Account) error {
	doc := accountDoc{
		Identifier: account.Identifier,
		Name:       account.Name,
		Type:       account.Type,
		State:      account.State,
		Balance:    account.Balance.String(),
		Holders:    account.Holders,
		Reference:  account.Reference,
	}
	return c.postJSON(ctx, c.baseURL+"/accounts", doc)
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.Wrap(shared.KindInternal, err, "ledger: request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case resp.StatusCode >= 400:
		return shared.E(shared.KindInternal, "ledger: status %d from %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *HTTPClient) postJSON(ctx context.Context, rawURL string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.Wrap(shared.KindInternal, err, "ledger: request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return shared.E(shared.KindInternal, "ledger: status %d from %s", resp.StatusCode, rawURL)
	}
	return nil
}
