package beat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/deposit-core/internal/accrual"
	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/payment"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
	_ "github.com/ledgerline/deposit-core/testing"
)

type fakeProducts struct {
	defs      []product.Definition
	instances []product.Instance
}

func (f *fakeProducts) FindDefinition(ctx context.Context, id string) (product.Definition, error) {
	for _, def := range f.defs {
		if def.Identifier == id {
			return def, nil
		}
	}
	return product.Definition{}, shared.ErrNotFound
}

func (f *fakeProducts) ListAccruable(ctx context.Context) ([]product.Definition, error) {
	var out []product.Definition
	for _, def := range f.defs {
		if def.Accruable() {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeProducts) ListActivePayable(ctx context.Context) ([]product.Definition, error) {
	return f.defs, nil
}

func (f *fakeProducts) ListActiveInstances(ctx context.Context, productID string) ([]product.Instance, error) {
	return f.instances, nil
}

func (f *fakeProducts) FindInstanceByAccount(ctx context.Context, accountID string) (product.Instance, error) {
	return product.Instance{}, shared.ErrNotFound
}

type memAccruals struct {
	entries map[string]accrual.Entry
}

func (m *memAccruals) Accumulate(ctx context.Context, entries ...accrual.Entry) error {
	if m.entries == nil {
		m.entries = make(map[string]accrual.Entry)
	}
	for _, entry := range entries {
		existing, ok := m.entries[entry.CustomerAccount]
		if ok {
			existing.Amount = existing.Amount.Add(entry.Amount)
			m.entries[entry.CustomerAccount] = existing
			continue
		}
		m.entries[entry.CustomerAccount] = entry
	}
	return nil
}

func (m *memAccruals) ListByAccrueAccount(ctx context.Context, accrueAccount string) ([]accrual.Entry, error) {
	var out []accrual.Entry
	for _, entry := range m.entries {
		if entry.AccrueAccount == accrueAccount {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memAccruals) Delete(ctx context.Context, customerAccount string) error {
	delete(m.entries, customerAccount)
	return nil
}

type memGuard struct {
	seen map[string]bool
}

func (g *memGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	g.seen[key] = true
	return nil
}

func (g *memGuard) Delete(ctx context.Context, key string) error {
	delete(g.seen, key)
	return nil
}

func newBeatRouter(t *testing.T) (chi.Router, *ledger.Memory) {
	t.Helper()
	rate := decimal.RequireFromString("2.5")
	products := &fakeProducts{
		defs: []product.Definition{{
			Identifier:     "SAV01",
			Type:           product.TypeSavings,
			Currency:       product.Currency{Code: "USD", Scale: 2},
			InterestRate:   &rate,
			Term:           product.Term{InterestPayable: product.PayableMonthly},
			AccrueAccount:  "8100",
			CashAccount:    "7300",
			ExpenseAccount: "3800",
			Active:         true,
		}},
		instances: []product.Instance{{
			CustomerID: "cust-1", AccountID: "9001", ProductID: "SAV01", State: product.StateActive,
		}},
	}
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: decimal.RequireFromString("1000.00"), Holders: []string{"cust-1"}})

	engine := accrual.NewEngine(accrual.EngineConfig{
		Products:    products,
		Ledger:      mem,
		Accruals:    &memAccruals{},
		Idempotency: &memGuard{},
	})
	scheduler := payment.NewScheduler(payment.SchedulerConfig{
		Products: products,
		Ledger:   mem,
		Accruals: &memAccruals{},
	})
	runner := NewRunner(nil, engine, scheduler)

	r := chi.NewRouter()
	NewHandler(runner.logger, runner).MountRoutes(r)
	return r, mem
}

func TestBeatTriggerRunsAccrual(t *testing.T) {
	router, mem := newBeatRouter(t)

	body := `{"identifier":"scheduler-1","for_time":"2021-06-15T00:05:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/beat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	postings := mem.Postings()
	require.Len(t, postings, 1, "one accrual journal for the product")
	assert.Equal(t, "ACCR", postings[0].TransactionType)
	assert.Equal(t, "7300", postings[0].Debtors[0].AccountNumber)
	assert.Equal(t, "8100", postings[0].Creditors[0].AccountNumber)
}

func TestBeatReplayConflicts(t *testing.T) {
	router, _ := newBeatRouter(t)

	body := `{"identifier":"scheduler-1","for_time":"2021-06-15T00:05:00Z"}`
	first := httptest.NewRequest(http.MethodPost, "/beat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	require.Equal(t, http.StatusAccepted, rr.Code)

	second := httptest.NewRequest(http.MethodPost, "/beat", strings.NewReader(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestBeatRejectsBadPayloads(t *testing.T) {
	router, _ := newBeatRouter(t)

	cases := map[string]string{
		"malformed json":     `{`,
		"missing identifier": `{"for_time":"2021-06-15T00:05:00Z"}`,
		"missing for_time":   `{"identifier":"scheduler-1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/beat", strings.NewReader(body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}
