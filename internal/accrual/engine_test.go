package accrual

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/money"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
	_ "github.com/ledgerline/deposit-core/testing"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeProducts struct {
	defs      []product.Definition
	instances map[string][]product.Instance
}

func (f *fakeProducts) FindDefinition(ctx context.Context, id string) (product.Definition, error) {
	for _, d := range f.defs {
		if d.Identifier == id {
			return d, nil
		}
	}
	return product.Definition{}, shared.ErrNotFound
}

func (f *fakeProducts) ListAccruable(ctx context.Context) ([]product.Definition, error) {
	var out []product.Definition
	for _, d := range f.defs {
		if d.Accruable() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeProducts) ListActivePayable(ctx context.Context) ([]product.Definition, error) {
	var out []product.Definition
	for _, d := range f.defs {
		if d.Active && d.Type != product.TypeShare {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeProducts) ListActiveInstances(ctx context.Context, productID string) ([]product.Instance, error) {
	return f.instances[productID], nil
}

func (f *fakeProducts) FindInstanceByAccount(ctx context.Context, accountID string) (product.Instance, error) {
	for _, list := range f.instances {
		for _, inst := range list {
			if inst.AccountID == accountID {
				return inst, nil
			}
		}
	}
	return product.Instance{}, shared.ErrNotFound
}

type memAccruals struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func newMemAccruals() *memAccruals {
	return &memAccruals{entries: make(map[string]Entry)}
}

func (m *memAccruals) Accumulate(ctx context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memAccruals) ListByAccrueAccount(ctx context.Context, accrueAccount string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.AccrueAccount == accrueAccount {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAccruals) Delete(ctx context.Context, customerAccount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, customerAccount)
	return nil
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemGuard() *memGuard { return &memGuard{seen: make(map[string]bool)} }

func (g *memGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	g.seen[key] = true
	return nil
}

func (g *memGuard) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

type flakyLedger struct {
	ledger.Client
	failFor map[string]bool
}

func (f *flakyLedger) FindAccount(ctx context.Context, id string) (ledger.Account, error) {
	if f.failFor[id] {
		return ledger.Account{}, errors.New("ledger unavailable")
	}
	return f.Client.FindAccount(ctx, id)
}

func savingsDefinition() product.Definition {
	rate := dec("2.5")
	return product.Definition{
		Identifier:     "SAV01",
		Type:           product.TypeSavings,
		Currency:       product.Currency{Code: "USD", Scale: 2},
		InterestRate:   &rate,
		Term:           product.Term{InterestPayable: product.PayableMonthly},
		AccrueAccount:  "8100",
		CashAccount:    "7300",
		ExpenseAccount: "3800",
		Active:         true,
	}
}

func newTestEngine(defs []product.Definition, instances map[string][]product.Instance, lc ledger.Client, accruals Repository) *Engine {
	return NewEngine(EngineConfig{
		Products:    &fakeProducts{defs: defs, instances: instances},
		Ledger:      lc,
		Accruals:    accruals,
		Idempotency: newMemGuard(),
		Concurrency: 2,
	})
}

func TestDailyYieldCompoundsMonthly(t *testing.T) {
	daily := DailyYield(dec("1000"), dec("2.5"), 12, 365)
	got := money.RoundHalfEven(daily, money.AccrualScale)
	if !got.Equal(dec("0.06928")) {
		t.Fatalf("daily yield = %s, want 0.06928", got)
	}
}

func TestDaysInYear(t *testing.T) {
	if got := DaysInYear(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)); got != 365 {
		t.Fatalf("2021 days = %d", got)
	}
	if got := DaysInYear(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)); got != 366 {
		t.Fatalf("2020 days = %d", got)
	}
}

func TestEngineAccruesAndPostsAggregate(t *testing.T) {
	def := savingsDefinition()
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00"), Holders: []string{"cust-1"}})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
		"SAV01": {{CustomerID: "cust-1", AccountID: "9001", ProductID: "SAV01", State: product.StateActive}},
	}, mem, accruals)

	date, err := engine.Run(context.Background(), time.Date(2021, 3, 15, 9, 30, 0, 0, time.UTC), "system")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if date != time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("returned date = %v", date)
	}

	entry := accruals.entries["9001"]
	if !entry.Amount.Equal(dec("0.06928")) {
		t.Fatalf("accrued = %s, want 0.06928", entry.Amount)
	}

	postings := mem.Postings()
	if len(postings) != 1 {
		t.Fatalf("expected one journal post, got %d", len(postings))
	}
	post := postings[0]
	if post.TransactionType != "ACCR" {
		t.Fatalf("transaction type = %s", post.TransactionType)
	}
	if len(post.Debtors) != 1 || post.Debtors[0].AccountNumber != "7300" || !post.Debtors[0].Amount.Equal(dec("0.07")) {
		t.Fatalf("unexpected debtors: %+v", post.Debtors)
	}
	if len(post.Creditors) != 1 || post.Creditors[0].AccountNumber != "8100" || !post.Creditors[0].Amount.Equal(dec("0.07")) {
		t.Fatalf("unexpected creditors: %+v", post.Creditors)
	}
}

func TestEngineZeroCases(t *testing.T) {
	zeroRate := dec("0")
	cases := []struct {
		name    string
		mutate  func(*product.Definition)
		balance string
	}{
		{"zero balance", func(*product.Definition) {}, "0"},
		{"negative balance", func(*product.Definition) {}, "-12.50"},
		{"inactive product", func(d *product.Definition) { d.Active = false }, "1000"},
		{"share product", func(d *product.Definition) { d.Type = product.TypeShare }, "1000"},
		{"nil rate", func(d *product.Definition) { d.InterestRate = nil }, "1000"},
		{"zero rate", func(d *product.Definition) { d.InterestRate = &zeroRate }, "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := savingsDefinition()
			tc.mutate(&def)
			mem := ledger.NewMemory()
			mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec(tc.balance)})
			accruals := newMemAccruals()
			engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
				"SAV01": {{AccountID: "9001", ProductID: "SAV01", State: product.StateActive}},
			}, mem, accruals)

			if _, err := engine.Run(context.Background(), time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC), "system"); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(accruals.entries) != 0 {
				t.Fatalf("expected no accrual rows, got %v", accruals.entries)
			}
			if len(mem.Postings()) != 0 {
				t.Fatalf("expected no journal posts")
			}
		})
	}
}

func TestEngineRejectsReplayedBeat(t *testing.T) {
	def := savingsDefinition()
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00")})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
		"SAV01": {{AccountID: "9001", ProductID: "SAV01", State: product.StateActive}},
	}, mem, accruals)

	day := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := engine.Run(context.Background(), day, "system"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := engine.Run(context.Background(), day, "system"); !errors.Is(err, shared.ErrBeatReplayed) {
		t.Fatalf("expected ErrBeatReplayed, got %v", err)
	}
	if got := accruals.entries["9001"].Amount; !got.Equal(dec("0.06928")) {
		t.Fatalf("replay must not change accrued amount, got %s", got)
	}

	// The next calendar day legitimately accrues again.
	if _, err := engine.Run(context.Background(), day.AddDate(0, 0, 1), "system"); err != nil {
		t.Fatalf("next day run: %v", err)
	}
	if got := accruals.entries["9001"].Amount; !got.Equal(dec("0.13856")) {
		t.Fatalf("two days accrued = %s, want 0.13856", got)
	}
}

func TestEngineSkipsFailingInstance(t *testing.T) {
	def := savingsDefinition()
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00")})
	mem.AddAccount(ledger.Account{Identifier: "9002", Balance: dec("500.00")})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
		"SAV01": {
			{AccountID: "9001", ProductID: "SAV01", State: product.StateActive},
			{AccountID: "9002", ProductID: "SAV01", State: product.StateActive},
		},
	}, &flakyLedger{Client: mem, failFor: map[string]bool{"9002": true}}, accruals)

	if _, err := engine.Run(context.Background(), time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC), "system"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := accruals.entries["9002"]; ok {
		t.Fatal("failed instance must be skipped for the day")
	}
	if got := accruals.entries["9001"].Amount; !got.Equal(dec("0.06928")) {
		t.Fatalf("healthy instance accrued = %s", got)
	}
}

func TestEngineIgnoresInactiveInstances(t *testing.T) {
	def := savingsDefinition()
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00")})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
		"SAV01": {{AccountID: "9001", ProductID: "SAV01", State: product.StatePending}},
	}, mem, accruals)

	if _, err := engine.Run(context.Background(), time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC), "system"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(accruals.entries) != 0 {
		t.Fatal("pending instance must not accrue")
	}
}

// Calibration: 1000.00 at 2.50% compounded monthly, accrued daily across a
// full non-leap year, accumulates 365 * 0.06928 = 25.2872, which pays out as
// 25.29 at the currency scale.
func TestEngineFullYearCalibration(t *testing.T) {
	def := savingsDefinition()
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00")})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
		"SAV01": {{AccountID: "9001", ProductID: "SAV01", State: product.StateActive}},
	}, mem, accruals)

	day := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 365; i++ {
		if _, err := engine.Run(context.Background(), day.AddDate(0, 0, i), "system"); err != nil {
			t.Fatalf("day %d: %v", i, err)
		}
	}

	total := accruals.entries["9001"].Amount
	if !total.Equal(dec("25.2872")) {
		t.Fatalf("year total accrued = %s, want 25.2872", total)
	}
	if paid := money.RoundHalfEven(total, 2); !paid.Equal(dec("25.29")) {
		t.Fatalf("payout rounding = %s, want 25.29", paid)
	}
}

type failingPostLedger struct {
	ledger.Client
	failures    int
	failProduct string
}

func (f *failingPostLedger) Post(ctx context.Context, entry ledger.JournalEntry) error {
	if f.failures > 0 && (f.failProduct == "" || entry.Message == f.failProduct) {
		f.failures--
		return errors.New("ledger unavailable")
	}
	return f.Client.Post(ctx, entry)
}

func TestEngineRetriesDateAfterPostFailure(t *testing.T) {
	def := savingsDefinition()
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00")})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{def}, map[string][]product.Instance{
		"SAV01": {{AccountID: "9001", ProductID: "SAV01", State: product.StateActive}},
	}, &failingPostLedger{Client: mem, failures: 1}, accruals)

	day := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := engine.Run(context.Background(), day, "system"); err == nil {
		t.Fatal("expected the first run to fail")
	}
	if got := accruals.entries["9001"].Amount; !got.IsZero() {
		t.Fatalf("failed run must back its accrual out, got %s", got)
	}
	if len(mem.Postings()) != 0 {
		t.Fatal("failed run must not leave a posting")
	}

	// The retry is a fresh run, not a replay.
	if _, err := engine.Run(context.Background(), day, "system"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := accruals.entries["9001"].Amount; !got.Equal(dec("0.06928")) {
		t.Fatalf("retried day accrued = %s, want 0.06928", got)
	}
	if len(mem.Postings()) != 1 {
		t.Fatalf("expected one posting after the retry, got %d", len(mem.Postings()))
	}
}

func TestEngineRerunSkipsCompletedProducts(t *testing.T) {
	first := savingsDefinition()
	second := savingsDefinition()
	second.Identifier = "SAV02"
	second.AccrueAccount = "8200"
	mem := ledger.NewMemory()
	mem.AddAccount(ledger.Account{Identifier: "9001", Balance: dec("1000.00")})
	mem.AddAccount(ledger.Account{Identifier: "9002", Balance: dec("1000.00")})
	accruals := newMemAccruals()
	engine := newTestEngine([]product.Definition{first, second}, map[string][]product.Instance{
		"SAV01": {{AccountID: "9001", ProductID: "SAV01", State: product.StateActive}},
		"SAV02": {{AccountID: "9002", ProductID: "SAV02", State: product.StateActive}},
	}, &failingPostLedger{Client: mem, failures: 1, failProduct: "SAV02"}, accruals)

	day := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := engine.Run(context.Background(), day, "system"); err == nil {
		t.Fatal("expected the first run to fail on the second product")
	}
	if len(mem.Postings()) != 1 {
		t.Fatalf("first product should have posted, got %d postings", len(mem.Postings()))
	}

	if _, err := engine.Run(context.Background(), day, "system"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	postings := mem.Postings()
	if len(postings) != 2 {
		t.Fatalf("expected two postings after the retry, got %d", len(postings))
	}
	if postings[1].Message != "SAV02" {
		t.Fatalf("retry reposted %s instead of the failed product", postings[1].Message)
	}
	if got := accruals.entries["9001"].Amount; !got.Equal(dec("0.06928")) {
		t.Fatalf("completed product accrued twice, got %s", got)
	}
	if got := accruals.entries["9002"].Amount; !got.Equal(dec("0.06928")) {
		t.Fatalf("failed product accrued = %s, want 0.06928", got)
	}
}
