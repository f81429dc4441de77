package lending

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"librarylend/model"
)

// --- transaction stubs ---

type txStub struct {
	pgx.Tx
	commits   int
	rollbacks int
}

func (t *txStub) Commit(ctx context.Context) error   { t.commits++; return nil }
func (t *txStub) Rollback(ctx context.Context) error { t.rollbacks++; return nil }

type beginnerStub struct{ tx *txStub }

func (b *beginnerStub) Begin(ctx context.Context) (pgx.Tx, error) { return b.tx, nil }

// --- in-memory store for scenario tests ---

type fakeStore struct {
	books      map[int64]model.Book
	loans      []model.Loan
	nextLoanID int64
	fineWrites int
}

func newFakeStore(books ...model.Book) *fakeStore {
	f := &fakeStore{books: map[int64]model.Book{}, nextLoanID: 1}
	for _, b := range books {
		f.books[b.ID] = b
	}
	return f
}

func (f *fakeStore) FindForUpdate(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error) {
	b, ok := f.books[bookID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &b, nil
}

func (f *fakeStore) Insert(ctx context.Context, tx pgx.Tx, patronID, bookID int64, checkedOut time.Time) (*model.Loan, error) {
	l := model.Loan{ID: f.nextLoanID, PatronID: patronID, BookID: bookID, CheckoutDate: checkedOut}
	f.nextLoanID++
	f.loans = append(f.loans, l)
	return &l, nil
}

func (f *fakeStore) Close(ctx context.Context, tx pgx.Tx, loanID int64, returned time.Time, fine float64) error {
	for i := range f.loans {
		if f.loans[i].ID == loanID && f.loans[i].Open() {
			f.loans[i].ReturnDate = &returned
			f.loans[i].Fine = fine
		}
	}
	return nil
}

func (f *fakeStore) UpdateFine(ctx context.Context, tx pgx.Tx, loanID int64, fine float64) error {
	f.fineWrites++
	for i := range f.loans {
		if f.loans[i].ID == loanID && f.loans[i].Open() {
			f.loans[i].Fine = fine
		}
	}
	return nil
}

func (f *fakeStore) GetForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*model.Loan, error) {
	for i := range f.loans {
		if f.loans[i].ID == loanID {
			l := f.loans[i]
			return &l, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) CountOpenByBook(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error) {
	var n int64
	for i := range f.loans {
		if f.loans[i].BookID == bookID && f.loans[i].Open() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) OpenByPatronForUpdate(ctx context.Context, tx pgx.Tx, patronID int64) ([]model.Loan, error) {
	var out []model.Loan
	for i := range f.loans {
		if f.loans[i].PatronID == patronID && f.loans[i].Open() {
			out = append(out, f.loans[i])
		}
	}
	return out, nil
}

func (f *fakeStore) OpenForUpdate(ctx context.Context, tx pgx.Tx) ([]model.Loan, error) {
	var out []model.Loan
	for i := range f.loans {
		if f.loans[i].Open() {
			out = append(out, f.loans[i])
		}
	}
	return out, nil
}

func (f *fakeStore) Available(ctx context.Context, bookID int64) (int64, error) {
	b, ok := f.books[bookID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	n, _ := f.CountOpenByBook(ctx, nil, bookID)
	return b.TotalCopies - n, nil
}

func (f *fakeStore) Overdue(ctx context.Context) ([]OverdueRow, error) { return nil, nil }

// --- fn-field mocks for failure injection ---

type bookRepoMock struct {
	findForUpdateFn func(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error)
}

func (m *bookRepoMock) FindForUpdate(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error) {
	return m.findForUpdateFn(ctx, tx, bookID)
}

type loanRepoMock struct {
	fakeStore // fall through to in-memory behavior unless overridden

	countOpenFn func(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error)
}

func (m *loanRepoMock) CountOpenByBook(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error) {
	if m.countOpenFn != nil {
		return m.countOpenFn(ctx, tx, bookID)
	}
	return m.fakeStore.CountOpenByBook(ctx, tx, bookID)
}

// --- helpers ---

func newEngine(store *fakeStore, today time.Time) (Service, *txStub) {
	tx := &txStub{}
	svc := New(&beginnerStub{tx: tx}, store, store)
	svc.(*service).now = func() time.Time { return today }
	return svc, tx
}

func setEngineDay(svc Service, today time.Time) {
	svc.(*service).now = func() time.Time { return today }
}

// --- tests ---

func TestCheckout_Success(t *testing.T) {
	today := date(2024, time.May, 1)
	store := newFakeStore(model.Book{ID: 1, Title: "Dune", Author: "Herbert", TotalCopies: 2})
	svc, tx := newEngine(store, today)

	l, err := svc.Checkout(context.Background(), 7, 1)
	require.NoError(t, err)
	require.True(t, l.Open())
	require.Equal(t, today, l.CheckoutDate)
	require.Equal(t, 0.0, l.Fine)
	require.Equal(t, 1, tx.commits)
	require.Equal(t, 0, tx.rollbacks)

	avail, err := svc.AvailableCopies(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), avail)
}

func TestCheckout_BookNotFound(t *testing.T) {
	store := newFakeStore()
	svc, tx := newEngine(store, date(2024, time.May, 1))

	_, err := svc.Checkout(context.Background(), 7, 99)
	require.Error(t, err)
	require.Equal(t, ErrNotFound, Code(err))
	require.Equal(t, 0, tx.commits)
	require.Equal(t, 1, tx.rollbacks)
	require.Empty(t, store.loans)
}

func TestCheckout_NoCopiesLeavesNoTrace(t *testing.T) {
	today := date(2024, time.May, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 1})
	svc, _ := newEngine(store, today)

	_, err := svc.Checkout(context.Background(), 1, 1)
	require.NoError(t, err)

	before := len(store.loans)
	_, err = svc.Checkout(context.Background(), 2, 1)
	require.Equal(t, ErrNoCopies, Code(err))
	require.Equal(t, before, len(store.loans))
}

// Last copy: two patrons contend for a book with a single copy.
func TestLastCopyScenario(t *testing.T) {
	today := date(2024, time.May, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 1})
	svc, _ := newEngine(store, today)
	ctx := context.Background()

	loanA, err := svc.Checkout(ctx, 1, 1)
	require.NoError(t, err)

	avail, _ := svc.AvailableCopies(ctx, 1)
	require.Equal(t, int64(0), avail)

	_, err = svc.Checkout(ctx, 2, 1)
	require.Equal(t, ErrNoCopies, Code(err))

	returned, err := svc.Return(ctx, loanA.ID)
	require.NoError(t, err)
	require.False(t, returned.Open())
	require.Equal(t, 0.0, returned.Fine)

	avail, _ = svc.AvailableCopies(ctx, 1)
	require.Equal(t, int64(1), avail)

	_, err = svc.Checkout(ctx, 2, 1)
	require.NoError(t, err)
}

func TestAvailabilityConservation(t *testing.T) {
	today := date(2024, time.May, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 3})
	svc, _ := newEngine(store, today)
	ctx := context.Background()

	check := func() {
		t.Helper()
		open, _ := store.CountOpenByBook(ctx, nil, 1)
		avail, err := svc.AvailableCopies(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, int64(3)-open, avail)
		require.GreaterOrEqual(t, avail, int64(0))
	}

	var open []int64
	for p := int64(1); ; p++ {
		l, err := svc.Checkout(ctx, p, 1)
		if Code(err) == ErrNoCopies {
			break
		}
		require.NoError(t, err)
		open = append(open, l.ID)
		check()
	}
	require.Len(t, open, 3)

	for _, id := range open {
		_, err := svc.Return(ctx, id)
		require.NoError(t, err)
		check()
	}
}

func TestReturn_FreezesFine(t *testing.T) {
	checkoutDay := date(2024, time.March, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 1})
	svc, _ := newEngine(store, checkoutDay)
	ctx := context.Background()

	l, err := svc.Checkout(ctx, 1, 1)
	require.NoError(t, err)

	// Returned on day 20: fine = 10 + (20-14-1) = 15.
	setEngineDay(svc, checkoutDay.AddDate(0, 0, 20))
	returned, err := svc.Return(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, 15.0, returned.Fine)
	require.NotNil(t, returned.ReturnDate)

	// A much later refresh neither changes the stored fine nor writes.
	setEngineDay(svc, checkoutDay.AddDate(0, 0, 40))
	writes := store.fineWrites
	fine, err := svc.RefreshFine(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, 15.0, fine)
	require.Equal(t, writes, store.fineWrites)

	_, err = svc.Return(ctx, l.ID)
	require.Equal(t, ErrAlreadyReturned, Code(err))
}

func TestRefreshFine_Idempotent(t *testing.T) {
	checkoutDay := date(2024, time.March, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 1})
	svc, _ := newEngine(store, checkoutDay)
	ctx := context.Background()

	l, err := svc.Checkout(ctx, 1, 1)
	require.NoError(t, err)

	setEngineDay(svc, checkoutDay.AddDate(0, 0, 16))

	fine, err := svc.RefreshFine(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, 11.0, fine)
	require.Equal(t, 1, store.fineWrites)

	// Same day again: same value, zero additional writes.
	fine, err = svc.RefreshFine(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, 11.0, fine)
	require.Equal(t, 1, store.fineWrites)
}

func TestRefreshFine_NotFound(t *testing.T) {
	store := newFakeStore()
	svc, _ := newEngine(store, date(2024, time.March, 1))

	_, err := svc.RefreshFine(context.Background(), 42)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestReturn_NotFound(t *testing.T) {
	store := newFakeStore()
	svc, tx := newEngine(store, date(2024, time.March, 1))

	_, err := svc.Return(context.Background(), 42)
	require.Equal(t, ErrNotFound, Code(err))
	require.Equal(t, 1, tx.rollbacks)
}

func TestListOpenLoans_RefreshesFines(t *testing.T) {
	checkoutDay := date(2024, time.March, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 2}, model.Book{ID: 2, TotalCopies: 1})
	svc, _ := newEngine(store, checkoutDay)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, 1, 1)
	require.NoError(t, err)

	// Second book borrowed later, still in grace at query time.
	setEngineDay(svc, checkoutDay.AddDate(0, 0, 10))
	_, err = svc.Checkout(ctx, 1, 2)
	require.NoError(t, err)

	setEngineDay(svc, checkoutDay.AddDate(0, 0, 20))
	loans, err := svc.ListOpenLoans(ctx, 1)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	require.Equal(t, 15.0, loans[0].Fine)
	require.Equal(t, 0.0, loans[1].Fine)

	// The refreshed fine was persisted, not just reported.
	stored, err := store.GetForUpdate(ctx, nil, loans[0].ID)
	require.NoError(t, err)
	require.Equal(t, 15.0, stored.Fine)
}

func TestCheckout_ContentionSurfaced(t *testing.T) {
	tx := &txStub{}
	br := &bookRepoMock{
		findForUpdateFn: func(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error) {
			return &model.Book{ID: bookID, TotalCopies: 1}, nil
		},
	}
	lr := &loanRepoMock{
		countOpenFn: func(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error) {
			return 0, &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		},
	}
	svc := New(&beginnerStub{tx: tx}, br, lr)

	_, err := svc.Checkout(context.Background(), 1, 1)
	require.Equal(t, ErrContention, Code(err))
	require.Equal(t, 1, tx.rollbacks)
	require.Equal(t, 0, tx.commits)
}

func TestCheckout_StoreUnavailableSurfaced(t *testing.T) {
	tx := &txStub{}
	br := &bookRepoMock{
		findForUpdateFn: func(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error) {
			return nil, &pgconn.PgError{Code: pgerrcode.ConnectionFailure}
		},
	}
	svc := New(&beginnerStub{tx: tx}, br, &loanRepoMock{})

	_, err := svc.Checkout(context.Background(), 1, 1)
	require.Equal(t, ErrStoreUnavailable, Code(err))
	require.Equal(t, 1, tx.rollbacks)
}

func TestRefresher_SweepsOnlyStaleLoans(t *testing.T) {
	checkoutDay := date(2024, time.March, 1)
	store := newFakeStore(model.Book{ID: 1, TotalCopies: 3})
	svc, _ := newEngine(store, checkoutDay)
	ctx := context.Background()

	for p := int64(1); p <= 3; p++ {
		_, err := svc.Checkout(ctx, p, 1)
		require.NoError(t, err)
	}
	// Close one loan while still in grace; its fine stays frozen at 0.
	_, err := svc.Return(ctx, store.loans[2].ID)
	require.NoError(t, err)

	tx := &txStub{}
	ref := NewRefresher(&beginnerStub{tx: tx}, store)
	ref.(*refresher).now = func() time.Time { return checkoutDay.AddDate(0, 0, 20) }

	updated, err := ref.RefreshOpenFines(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)
	require.Equal(t, 1, tx.commits)

	// Second sweep the same day touches nothing.
	updated, err = ref.RefreshOpenFines(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), updated)
}
