package order

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/catalog"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
	"sagra-pos/internal/outbox"
	"sagra-pos/internal/repository"
)

var (
	errOffline = errors.New("connection refused")
	cest       = time.FixedZone("CEST", 2*60*60)
)

func testCatalog() models.Catalog {
	return models.Catalog{
		{Key: "pizza", DisplayName: []string{"Pizza"}, UnitPriceCents: 700, DailyPortionLimit: models.IntPtr(10), CriticalThreshold: models.IntPtr(3), DisplayOrder: 1},
		{Key: "testaroli al pesto", DisplayName: []string{"Testaroli", "al pesto"}, UnitPriceCents: 900, DisplayOrder: 2},
		{Key: "acqua", DisplayName: []string{"Acqua"}, UnitPriceCents: 100, DisplayOrder: 3},
	}
}

// fakeRemote stands in for the shared Postgres store.
type fakeRemote struct {
	mu       sync.Mutex
	offline  bool
	delay    time.Duration
	next     int
	history  []models.HistoryRecord
	portions map[string]models.DailyPortions
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{next: 42, portions: make(map[string]models.DailyPortions)}
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	return nil
}

func (f *fakeRemote) NextOrderNumber(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	time.Sleep(f.delay)
	if f.offline {
		return 0, errOffline
	}
	v := f.next
	f.next++
	return v, nil
}

func (f *fakeRemote) AppendHistory(ctx context.Context, rec models.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	f.history = append(f.history, rec)
	return nil
}

func (f *fakeRemote) LoadPortions(ctx context.Context, businessDay string) (*models.DailyPortions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, errOffline
	}
	p, ok := f.portions[businessDay]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

func (f *fakeRemote) SavePortions(ctx context.Context, portions models.DailyPortions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	if portions.BusinessDay == "" {
		return fmt.Errorf("%w: invalid business day", models.ErrRejected)
	}
	f.portions[portions.BusinessDay] = portions.Clone()
	return nil
}

func (f *fakeRemote) DecrementPortions(ctx context.Context, dec models.PortionDecrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	p, ok := f.portions[dec.BusinessDay]
	if !ok {
		return nil
	}
	repository.ApplyDecrement(p.Items, dec)
	return nil
}

func (f *fakeRemote) remaining(day, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portions[day].Items[key].Remaining
}

func (f *fakeRemote) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *fakeRemote) savedDays() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	days := make([]string, 0, len(f.portions))
	for day := range f.portions {
		days = append(days, day)
	}
	return days
}

func (f *fakeRemote) historyLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

type fakeMenu struct {
	catalog models.Catalog
}

func (f *fakeMenu) Load(ctx context.Context, requestID string) (catalog.Result, error) {
	return catalog.Result{Catalog: f.catalog, Source: catalog.SourceRemote}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	tickets  []*models.KitchenTicketMessage
	scarcity []*models.ScarcityMessage
	err      error
}

func (f *fakePublisher) PublishKitchenTicket(ctx context.Context, msg *models.KitchenTicketMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tickets = append(f.tickets, msg)
	return nil
}

func (f *fakePublisher) PublishScarcity(ctx context.Context, msg *models.ScarcityMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scarcity = append(f.scarcity, msg)
	return nil
}

type fakePrinter struct {
	mu      sync.Mutex
	printed []models.OrderTicket
	copies  int
}

func (f *fakePrinter) Print(ctx context.Context, t models.OrderTicket, copies int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.printed = append(f.printed, t)
	f.copies = copies
	return nil
}

type testEnv struct {
	svc       *Service
	remote    *fakeRemote
	cache     *cache.Store
	drainer   *outbox.Drainer
	publisher *fakePublisher
	printer   *fakePrinter
	now       time.Time
}

// newTestEnv returns a service with the menu loaded at 20:30 of 2026-08-14.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newBareTestEnv(t)
	_, err := env.svc.LoadMenu(context.Background(), "test")
	require.NoError(t, err)
	return env
}

// newBareTestEnv returns a service that has not loaded its menu yet.
func newBareTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		remote:    newFakeRemote(),
		cache:     store,
		publisher: &fakePublisher{},
		printer:   &fakePrinter{},
		now:       time.Date(2026, 8, 14, 20, 30, 0, 0, cest),
	}
	clock := func() time.Time { return env.now }

	env.drainer = outbox.NewDrainer(store, time.Hour, log)
	RegisterReplayHandlers(env.drainer, env.remote, env.remote)

	counter := NewCounterIssuer(env.remote, store, "X", log)
	counter.seed = func() int { return 41 }

	env.svc = NewService(Deps{
		Store:     startStore(t, ledger.New(clock)),
		Menu:      &fakeMenu{catalog: testCatalog()},
		Portions:  NewPortionSync(env.remote, store, env.drainer, ledger.Rollover{Location: cest, Hour: 16}, log),
		Counter:   counter,
		History:   env.remote,
		Outbox:    env.drainer,
		Pending:   env.drainer,
		Remote:    env.remote,
		Publisher: env.publisher,
		Printer:   env.printer,
		Clock:     clock,
	}, Options{EventID: "sagra-2026", KitchenCopies: 2, PrintLocally: true}, log)
	return env
}

func (e *testEnv) pending(t *testing.T) int {
	t.Helper()
	n, err := e.drainer.Pending(context.Background())
	require.NoError(t, err)
	return n
}
