package patronrepo

import (
	"context"

	"librarylend/model"
	"librarylend/util/database"
)

type Repo interface {
	Create(ctx context.Context, p *model.Patron) error
	ByUsername(ctx context.Context, username string) (*model.Patron, error)
	ByID(ctx context.Context, id int64) (*model.Patron, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, p *model.Patron) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO patrons(username, email, password_hash, role)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`,
		p.Username, p.Email, p.PasswordHash, p.Role,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *repo) ByUsername(ctx context.Context, username string) (*model.Patron, error) {
	p := &model.Patron{}
	err := r.db.Pool.QueryRow(ctx, `
        SELECT id, username, email, password_hash, role, created_at
        FROM patrons
        WHERE lower(username) = lower($1)`,
		username,
	).Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Role, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repo) ByID(ctx context.Context, id int64) (*model.Patron, error) {
	p := &model.Patron{}
	err := r.db.Pool.QueryRow(ctx, `
        SELECT id, username, email, password_hash, role, created_at
        FROM patrons
        WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Role, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}
