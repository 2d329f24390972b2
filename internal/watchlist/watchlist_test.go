package watchlist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ksred/klear-brokerage/internal/catalog"
	"github.com/ksred/klear-brokerage/internal/database"
	"github.com/ksred/klear-brokerage/internal/directory"
	"github.com/ksred/klear-brokerage/internal/types"
)

type fixture struct {
	manager     *Service
	clients     *directory.Service
	instruments *catalog.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewInMemoryDatabase()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	clients := directory.NewService(db)
	instruments := catalog.NewService(db)
	return &fixture{
		manager:     NewService(NewDatabase(db), clients, instruments),
		clients:     clients,
		instruments: instruments,
	}
}

func (f *fixture) client(t *testing.T) string {
	t.Helper()
	client, err := f.clients.Register(context.Background(), directory.RegisterClientRequest{
		ClientCode: "CL001",
		Name:       "Asha Rao",
		Phone:      "9999999999",
	})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	return client.ClientID
}

func (f *fixture) instrument(t *testing.T, symbol string, price *decimal.Decimal) string {
	t.Helper()
	instrument, err := f.instruments.Register(context.Background(), catalog.RegisterInstrumentRequest{
		Symbol:       symbol,
		CurrentPrice: price,
	})
	if err != nil {
		t.Fatalf("register instrument: %v", err)
	}
	return instrument.InstrumentID
}

func (f *fixture) create(t *testing.T, clientID, name string, isDefault bool) *types.WatchList {
	t.Helper()
	list, err := f.manager.Create(context.Background(), CreateWatchListRequest{
		ClientID:  clientID,
		Name:      name,
		IsDefault: isDefault,
	})
	if err != nil {
		t.Fatalf("create watchlist %q: %v", name, err)
	}
	return list
}

func px(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateLimitAndDefaultScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := f.client(t)

	var first *types.WatchList
	for i := 0; i < MaxWatchListsPerClient; i++ {
		list := f.create(t, clientID, "Tech", true)
		if first == nil {
			first = list
		}
	}

	_, err := f.manager.Create(ctx, CreateWatchListRequest{ClientID: clientID, Name: "Tech", IsDefault: true})
	if !errors.Is(err, types.ErrLimitExceeded) {
		t.Fatalf("expected LIMIT_EXCEEDED on 6th create, got %v", err)
	}

	if err := f.manager.Delete(ctx, first.WatchListID); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("expected INVALID_STATE deleting default, got %v", err)
	}
	if _, err := f.manager.Get(ctx, first.WatchListID); err != nil {
		t.Fatalf("default watchlist must remain after failed delete: %v", err)
	}

	lists, err := f.manager.ListByClient(ctx, clientID)
	if err != nil || len(lists) != MaxWatchListsPerClient {
		t.Fatalf("expected %d watchlists, got %d (%v)", MaxWatchListsPerClient, len(lists), err)
	}
}

func TestFirstWatchListIsDefault(t *testing.T) {
	f := newFixture(t)
	clientID := f.client(t)

	first := f.create(t, clientID, "Main", false)
	if !first.IsDefault {
		t.Fatalf("expected first watchlist to be the default")
	}

	second := f.create(t, clientID, "Banks", false)
	if second.IsDefault {
		t.Fatalf("expected second watchlist to keep is_default=false")
	}
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Create(ctx, CreateWatchListRequest{ClientID: "missing", Name: "Tech"}); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := f.manager.Create(ctx, CreateWatchListRequest{ClientID: "missing", Name: ""}); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND before name validation, got %v", err)
	}
	if _, err := f.manager.Create(ctx, CreateWatchListRequest{ClientID: f.client(t), Name: "  "}); !errors.Is(err, types.ErrInvalidRequest) {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	if _, err := f.manager.ListByClient(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND listing unknown client, got %v", err)
	}
}

func TestRenameKeepsMembershipAndDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := f.client(t)
	list := f.create(t, clientID, "Main", true)
	instrumentID := f.instrument(t, "INFY", px("1500"))

	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, instrumentID, nil); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}

	renamed, err := f.manager.Rename(ctx, list.WatchListID, "Core")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != "Core" {
		t.Fatalf("expected name Core, got %q", renamed.Name)
	}

	stored, err := f.manager.GetWithItems(ctx, list.WatchListID)
	if err != nil {
		t.Fatalf("GetWithItems: %v", err)
	}
	if stored.Name != "Core" || !stored.IsDefault || len(stored.Items) != 1 {
		t.Fatalf("rename must only change the name: %+v", stored)
	}

	if _, err := f.manager.Rename(ctx, "missing", "X"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeleteRemovesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := f.client(t)
	f.create(t, clientID, "Main", true)
	secondary := f.create(t, clientID, "Scratch", false)
	instrumentID := f.instrument(t, "TCS", nil)

	if _, err := f.manager.AddInstrument(ctx, secondary.WatchListID, instrumentID, nil); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}

	if err := f.manager.Delete(ctx, secondary.WatchListID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.manager.Get(ctx, secondary.WatchListID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected deleted watchlist to be gone, got %v", err)
	}

	item, err := storeOf(t, f).GetItem(ctx, secondary.WatchListID, instrumentID)
	if err != nil || item != nil {
		t.Fatalf("items must not outlive their watchlist: %v %v", item, err)
	}

	if err := f.manager.Delete(ctx, secondary.WatchListID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND on second delete, got %v", err)
	}
}

func storeOf(t *testing.T, f *fixture) *Database {
	t.Helper()
	store, ok := f.manager.store.(*Database)
	if !ok {
		t.Fatalf("unexpected store type %T", f.manager.store)
	}
	return store
}

func TestAddInstrumentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := f.client(t)
	list := f.create(t, clientID, "Main", true)

	ids := make([]string, 0, MaxItemsPerWatchList+1)
	for i := 0; i <= MaxItemsPerWatchList; i++ {
		ids = append(ids, f.instrument(t, fmt.Sprintf("SYM%02d", i), nil))
	}

	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, ids[0], nil); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, ids[0], nil); !errors.Is(err, types.ErrAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS, got %v", err)
	}

	stored, err := f.manager.GetWithItems(ctx, list.WatchListID)
	if err != nil {
		t.Fatalf("GetWithItems: %v", err)
	}
	if len(stored.Items) != 1 {
		t.Fatalf("duplicate add must leave membership unchanged, got %d items", len(stored.Items))
	}

	for _, id := range ids[1:MaxItemsPerWatchList] {
		if _, err := f.manager.AddInstrument(ctx, list.WatchListID, id, nil); err != nil {
			t.Fatalf("AddInstrument: %v", err)
		}
	}
	_, err = f.manager.AddInstrument(ctx, list.WatchListID, ids[MaxItemsPerWatchList], nil)
	if !errors.Is(err, types.ErrLimitExceeded) {
		t.Fatalf("expected LIMIT_EXCEEDED on 21st add, got %v", err)
	}

	// A duplicate on a full list is reported as a duplicate.
	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, ids[0], nil); !errors.Is(err, types.ErrAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS on full list, got %v", err)
	}

	if _, err := f.manager.AddInstrument(ctx, "missing", ids[0], nil); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown watchlist, got %v", err)
	}
	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, "missing", nil); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown instrument, got %v", err)
	}
}

func TestAddInstrumentTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.create(t, f.client(t), "Main", true)
	first := f.instrument(t, "INFY", nil)
	second := f.instrument(t, "TCS", nil)

	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	f.manager.now = func() time.Time { return now }

	item, err := f.manager.AddInstrument(ctx, list.WatchListID, first, nil)
	if err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	if !item.AddedAt.Equal(now) {
		t.Fatalf("expected added at %s, got %s", now, item.AddedAt)
	}

	supplied := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	item, err = f.manager.AddInstrument(ctx, list.WatchListID, second, &supplied)
	if err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	if !item.AddedAt.Equal(supplied) {
		t.Fatalf("expected supplied timestamp %s, got %s", supplied, item.AddedAt)
	}
}

func TestRemoveInstrument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.create(t, f.client(t), "Main", true)
	instrumentID := f.instrument(t, "INFY", nil)

	if err := f.manager.RemoveInstrument(ctx, list.WatchListID, instrumentID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND before adding, got %v", err)
	}

	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, instrumentID, nil); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	if err := f.manager.RemoveInstrument(ctx, list.WatchListID, instrumentID); err != nil {
		t.Fatalf("RemoveInstrument: %v", err)
	}

	// Removed instruments can be added again.
	if _, err := f.manager.AddInstrument(ctx, list.WatchListID, instrumentID, nil); err != nil {
		t.Fatalf("re-adding removed instrument: %v", err)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.create(t, f.client(t), "Tech", true)

	for _, inst := range []struct {
		symbol string
		price  *decimal.Decimal
	}{
		{"INFY", px("1500.25")},
		{"TCS", px("3400.50")},
		{"WIPRO", nil},
	} {
		id := f.instrument(t, inst.symbol, inst.price)
		if _, err := f.manager.AddInstrument(ctx, list.WatchListID, id, nil); err != nil {
			t.Fatalf("AddInstrument: %v", err)
		}
	}

	summary, err := f.manager.Summary(ctx, list.WatchListID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.InstrumentCount != 3 {
		t.Fatalf("expected 3 instruments, got %d", summary.InstrumentCount)
	}
	if !summary.TotalMarketValue.Equal(decimal.RequireFromString("4900.75")) {
		t.Fatalf("expected total 4900.75, got %s", summary.TotalMarketValue)
	}
	want := "Watchlist 'Tech' contains 3 instruments. Total Market Value: ₹4900.75"
	if summary.Report != want {
		t.Fatalf("expected report %q, got %q", want, summary.Report)
	}

	empty := f.create(t, list.ClientID, "Empty", false)
	summary, err = f.manager.Summary(ctx, empty.WatchListID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Report != "Watchlist 'Empty' contains 0 instruments. Total Market Value: ₹0.00" {
		t.Fatalf("unexpected empty report %q", summary.Report)
	}

	if _, err := f.manager.Summary(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetWithItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.create(t, f.client(t), "Main", true)

	withItems, err := f.manager.GetWithItems(ctx, list.WatchListID)
	if err != nil {
		t.Fatalf("GetWithItems: %v", err)
	}
	if withItems.Items == nil || len(withItems.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %v", withItems.Items)
	}

	if _, err := f.manager.GetWithItems(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
