// repository/book/repo.go
package bookrepo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"librarylend/model"
	"librarylend/util/database"
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) (bool, error)
	Find(ctx context.Context, id int64) (*model.Book, error)
	List(ctx context.Context) ([]model.Book, error)
	Search(ctx context.Context, title string) ([]model.Book, error)

	// FindForUpdate locks the book row for the duration of tx. Checkout relies
	// on this lock to serialize availability checks per book.
	FindForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Book, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, b *model.Book) error {
	const q = `
INSERT INTO books (title, author, isbn, total_copies)
VALUES ($1,$2,$3,$4)
RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, q, b.Title, b.Author, b.ISBN, b.TotalCopies).Scan(&b.ID); err != nil {
		return err
	}
	b.AvailableCopies = b.TotalCopies
	return nil
}

func (r *repo) Delete(ctx context.Context, id int64) (bool, error) {
	const q = `DELETE FROM books WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repo) Find(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT b.id, b.title, b.author, b.isbn, b.total_copies,
       b.total_copies - COUNT(l.id) FILTER (WHERE l.return_date IS NULL) AS available
FROM books b
LEFT JOIN loans l ON l.book_id = b.id
WHERE b.id = $1
GROUP BY b.id`
	var b model.Book
	err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
	SELECT b.id, b.title, b.author, b.isbn, b.total_copies,
		b.total_copies - COUNT(l.id) FILTER (WHERE l.return_date IS NULL) AS available
	FROM books b
	LEFT JOIN loans l ON l.book_id = b.id
	GROUP BY b.id
	ORDER BY b.id DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBooks(rows)
}

func (r *repo) Search(ctx context.Context, title string) ([]model.Book, error) {
	const q = `
	SELECT b.id, b.title, b.author, b.isbn, b.total_copies,
		b.total_copies - COUNT(l.id) FILTER (WHERE l.return_date IS NULL) AS available
	FROM books b
	LEFT JOIN loans l ON l.book_id = b.id
	WHERE b.title ILIKE '%' || $1 || '%'
	GROUP BY b.id
	ORDER BY b.id`
	rows, err := r.db.Pool.Query(ctx, q, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBooks(rows)
}

func (r *repo) FindForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, isbn, total_copies
		FROM books
		WHERE id = $1
		FOR UPDATE`
	var b model.Book
	err := tx.QueryRow(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBooks(rows pgx.Rows) ([]model.Book, error) {
	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
