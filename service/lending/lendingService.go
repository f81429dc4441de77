package lending

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"librarylend/model"
	loanrepo "librarylend/repository/loan"
	"librarylend/util/database"
)

// errors used by controllers

type ErrCode string

const (
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrNoCopies         ErrCode = "NO_COPIES_AVAILABLE"
	ErrAlreadyReturned  ErrCode = "ALREADY_RETURNED"
	ErrContention       ErrCode = "CONTENTION"
	ErrStoreUnavailable ErrCode = "STORE_UNAVAILABLE"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// OverdueRow = repository shape
type OverdueRow = loanrepo.OverdueRow

// TxBeginner starts one transaction per engine operation.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type BookRepo interface {
	FindForUpdate(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error)
}

type LoanRepo interface {
	Insert(ctx context.Context, tx pgx.Tx, patronID, bookID int64, checkedOut time.Time) (*model.Loan, error)
	Close(ctx context.Context, tx pgx.Tx, loanID int64, returned time.Time, fine float64) error
	UpdateFine(ctx context.Context, tx pgx.Tx, loanID int64, fine float64) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*model.Loan, error)
	CountOpenByBook(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error)
	OpenByPatronForUpdate(ctx context.Context, tx pgx.Tx, patronID int64) ([]model.Loan, error)
	OpenForUpdate(ctx context.Context, tx pgx.Tx) ([]model.Loan, error)
	Available(ctx context.Context, bookID int64) (int64, error)
	Overdue(ctx context.Context) ([]OverdueRow, error)
}

type Service interface {
	// Checkout creates an open loan, provided a copy is available. The
	// availability check and the insert happen under one book-row lock, so
	// two checkouts can never both take the last copy.
	Checkout(ctx context.Context, patronID, bookID int64) (*model.Loan, error)

	// Return closes an open loan and freezes its fine as of today.
	Return(ctx context.Context, loanID int64) (*model.Loan, error)

	// RefreshFine brings an open loan's stored fine up to date and returns
	// it. Closed loans are left untouched and report their frozen fine.
	RefreshFine(ctx context.Context, loanID int64) (float64, error)

	// ListOpenLoans returns a patron's open loans, each fine refreshed.
	ListOpenLoans(ctx context.Context, patronID int64) ([]model.Loan, error)

	// AvailableCopies reports how many copies of a book are loanable now,
	// derived from total copies minus open loans.
	AvailableCopies(ctx context.Context, bookID int64) (int64, error)

	// OverdueReport lists open loans carrying a fine, with patron and title.
	OverdueReport(ctx context.Context) ([]OverdueRow, error)
}

// ----- Service implementation -----

type service struct {
	db TxBeginner
	br BookRepo
	lr LoanRepo

	now func() time.Time
}

func New(db TxBeginner, br BookRepo, lr LoanRepo) Service {
	return &service{db: db, br: br, lr: lr, now: time.Now}
}

// mapStoreErr turns low-level store failures into coded errors the caller can
// act on; anything unrecognized passes through unchanged.
func mapStoreErr(err error) error {
	switch {
	case database.IsContention(err):
		return makeErr(ErrContention)
	case database.IsUnavailable(err):
		return makeErr(ErrStoreUnavailable)
	}
	return err
}

func (s *service) Checkout(ctx context.Context, patronID, bookID int64) (loan *model.Loan, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	book, err := s.br.FindForUpdate(ctx, tx, bookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, mapStoreErr(err)
	}

	open, err := s.lr.CountOpenByBook(ctx, tx, bookID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if book.TotalCopies-open <= 0 {
		return nil, makeErr(ErrNoCopies)
	}

	loan, err = s.lr.Insert(ctx, tx, patronID, bookID, DateOnly(s.now()))
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, mapStoreErr(err)
	}
	return loan, nil
}

func (s *service) Return(ctx context.Context, loanID int64) (loan *model.Loan, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	loan, err = s.lr.GetForUpdate(ctx, tx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, mapStoreErr(err)
	}
	if !loan.Open() {
		return nil, makeErr(ErrAlreadyReturned)
	}

	today := DateOnly(s.now())
	fine := ComputeFine(loan.CheckoutDate, today)
	if err = s.lr.Close(ctx, tx, loan.ID, today, fine); err != nil {
		return nil, mapStoreErr(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, mapStoreErr(err)
	}
	loan.ReturnDate = &today
	loan.Fine = fine
	return loan, nil
}

func (s *service) RefreshFine(ctx context.Context, loanID int64) (fine float64, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	loan, err := s.lr.GetForUpdate(ctx, tx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, makeErr(ErrNotFound)
		}
		return 0, mapStoreErr(err)
	}

	fine, err = s.refreshLocked(ctx, tx, loan)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, mapStoreErr(err)
	}
	return fine, nil
}

func (s *service) ListOpenLoans(ctx context.Context, patronID int64) (loans []model.Loan, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	loans, err = s.lr.OpenByPatronForUpdate(ctx, tx, patronID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	for i := range loans {
		if _, err = s.refreshLocked(ctx, tx, &loans[i]); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, mapStoreErr(err)
	}
	return loans, nil
}

func (s *service) AvailableCopies(ctx context.Context, bookID int64) (int64, error) {
	n, err := s.lr.Available(ctx, bookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, makeErr(ErrNotFound)
		}
		return 0, mapStoreErr(err)
	}
	return n, nil
}

func (s *service) OverdueReport(ctx context.Context) ([]OverdueRow, error) {
	rows, err := s.lr.Overdue(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return rows, nil
}

// refreshLocked recomputes the fine of a loan already locked in tx and writes
// it only when it changed. Closed loans keep their frozen fine. This is the
// single refresh path; ListOpenLoans composes it per loan.
func (s *service) refreshLocked(ctx context.Context, tx pgx.Tx, loan *model.Loan) (float64, error) {
	if !loan.Open() {
		return loan.Fine, nil
	}
	fine := ComputeFine(loan.CheckoutDate, s.now())
	if fine != loan.Fine {
		if err := s.lr.UpdateFine(ctx, tx, loan.ID, fine); err != nil {
			return 0, mapStoreErr(err)
		}
		loan.Fine = fine
	}
	return fine, nil
}
