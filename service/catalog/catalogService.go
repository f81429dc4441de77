package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"librarylend/model"
	metadatarepo "librarylend/repository/metadata"
)

type ErrCode string

const (
	ErrBadInput ErrCode = "BAD_INPUT"
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrHasLoans ErrCode = "HAS_LOANS"
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

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) (bool, error)
	Find(ctx context.Context, id int64) (*model.Book, error)
	List(ctx context.Context) ([]model.Book, error)
	Search(ctx context.Context, title string) ([]model.Book, error)
}

type Service interface {
	// Add registers a new title with a positive copy count. A blank title is
	// filled in from the ISBN metadata lookup when one is configured.
	Add(ctx context.Context, title, author, isbn string, copies int64) (*model.Book, error)

	// Remove deletes a book that has never been lent.
	Remove(ctx context.Context, id int64) error

	List(ctx context.Context) ([]model.Book, error)
	Search(ctx context.Context, title string) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct {
	r  Repo
	md metadatarepo.Repo // optional
}

func New(r Repo, md metadatarepo.Repo) Service { return &service{r: r, md: md} }

func (s *service) Add(ctx context.Context, title, author, isbn string, copies int64) (*model.Book, error) {
	if isbn == "" || copies <= 0 {
		return nil, makeErr(ErrBadInput)
	}
	if title == "" && s.md != nil {
		if lu, err := s.md.ByISBN(ctx, isbn); err == nil {
			title = lu.Title
		}
	}
	if title == "" || author == "" {
		return nil, makeErr(ErrBadInput)
	}

	b := &model.Book{Title: title, Author: author, ISBN: isbn, TotalCopies: copies}
	if err := s.r.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Remove(ctx context.Context, id int64) error {
	ok, err := s.r.Delete(ctx, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return makeErr(ErrHasLoans)
		}
		return err
	}
	if !ok {
		return makeErr(ErrNotFound)
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]model.Book, error) { return s.r.List(ctx) }

func (s *service) Search(ctx context.Context, title string) ([]model.Book, error) {
	return s.r.Search(ctx, title)
}

func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.r.Find(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}
