// repository/loan/repo.go
package loanrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"librarylend/model"
	"librarylend/util/database"
)

// OverdueRow is one line of the administrator's overdue report.
type OverdueRow struct {
	Username string  `json:"username"`
	Title    string  `json:"title"`
	Fine     float64 `json:"fine"`
}

type Repo interface {
	// Ledger writes, tx-scoped. Loans are never deleted.
	Insert(ctx context.Context, tx pgx.Tx, patronID, bookID int64, checkedOut time.Time) (*model.Loan, error)
	Close(ctx context.Context, tx pgx.Tx, loanID int64, returned time.Time, fine float64) error
	UpdateFine(ctx context.Context, tx pgx.Tx, loanID int64, fine float64) error

	// Locked reads for the engine's transactions.
	GetForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*model.Loan, error)
	CountOpenByBook(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error)
	OpenByPatronForUpdate(ctx context.Context, tx pgx.Tx, patronID int64) ([]model.Loan, error)
	OpenForUpdate(ctx context.Context, tx pgx.Tx) ([]model.Loan, error)

	// Plain reads.
	Available(ctx context.Context, bookID int64) (int64, error)
	Overdue(ctx context.Context) ([]OverdueRow, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

func (r *repo) Insert(ctx context.Context, tx pgx.Tx, patronID, bookID int64, checkedOut time.Time) (*model.Loan, error) {
	const q = `
		INSERT INTO loans (patron_id, book_id, checkout_date, fine)
		VALUES ($1, $2, $3, 0)
		RETURNING id`
	l := &model.Loan{PatronID: patronID, BookID: bookID, CheckoutDate: checkedOut}
	if err := tx.QueryRow(ctx, q, patronID, bookID, checkedOut).Scan(&l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *repo) Close(ctx context.Context, tx pgx.Tx, loanID int64, returned time.Time, fine float64) error {
	const q = `
		UPDATE loans
		SET return_date = $2,
			fine = $3
		WHERE id = $1
		AND return_date IS NULL`
	_, err := tx.Exec(ctx, q, loanID, returned, fine)
	return err
}

func (r *repo) UpdateFine(ctx context.Context, tx pgx.Tx, loanID int64, fine float64) error {
	const q = `
		UPDATE loans
		SET fine = $2
		WHERE id = $1
		AND return_date IS NULL`
	_, err := tx.Exec(ctx, q, loanID, fine)
	return err
}

func (r *repo) GetForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*model.Loan, error) {
	const q = `
		SELECT id, patron_id, book_id, checkout_date, return_date, fine
		FROM loans
		WHERE id = $1
		FOR UPDATE`
	var l model.Loan
	err := tx.QueryRow(ctx, q, loanID).
		Scan(&l.ID, &l.PatronID, &l.BookID, &l.CheckoutDate, &l.ReturnDate, &l.Fine)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repo) CountOpenByBook(ctx context.Context, tx pgx.Tx, bookID int64) (int64, error) {
	const q = `
		SELECT COUNT(*)
		FROM loans
		WHERE book_id = $1
		AND return_date IS NULL`
	var n int64
	err := tx.QueryRow(ctx, q, bookID).Scan(&n)
	return n, err
}

func (r *repo) OpenByPatronForUpdate(ctx context.Context, tx pgx.Tx, patronID int64) ([]model.Loan, error) {
	const q = `
		SELECT id, patron_id, book_id, checkout_date, return_date, fine
		FROM loans
		WHERE patron_id = $1
		AND return_date IS NULL
		ORDER BY checkout_date, id
		FOR UPDATE`
	rows, err := tx.Query(ctx, q, patronID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoans(rows)
}

func (r *repo) OpenForUpdate(ctx context.Context, tx pgx.Tx) ([]model.Loan, error) {
	const q = `
		SELECT id, patron_id, book_id, checkout_date, return_date, fine
		FROM loans
		WHERE return_date IS NULL
		ORDER BY id
		FOR UPDATE`
	rows, err := tx.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoans(rows)
}

func (r *repo) Available(ctx context.Context, bookID int64) (int64, error) {
	const q = `
		SELECT b.total_copies - COUNT(l.id) FILTER (WHERE l.return_date IS NULL)
		FROM books b
		LEFT JOIN loans l ON l.book_id = b.id
		WHERE b.id = $1
		GROUP BY b.id`
	var n int64
	err := r.db.Pool.QueryRow(ctx, q, bookID).Scan(&n)
	return n, err
}

func (r *repo) Overdue(ctx context.Context) ([]OverdueRow, error) {
	const q = `
			SELECT p.username, b.title, l.fine
			FROM loans l
			JOIN patrons p ON p.id = l.patron_id
			JOIN books b ON b.id = l.book_id
			WHERE l.return_date IS NULL
			AND l.fine > 0
			ORDER BY l.fine DESC, l.id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueRow
	for rows.Next() {
		var o OverdueRow
		if err := rows.Scan(&o.Username, &o.Title, &o.Fine); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanLoans(rows pgx.Rows) ([]model.Loan, error) {
	var out []model.Loan
	for rows.Next() {
		var l model.Loan
		if err := rows.Scan(&l.ID, &l.PatronID, &l.BookID, &l.CheckoutDate, &l.ReturnDate, &l.Fine); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
