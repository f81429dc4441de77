package lending

import (
	"context"
	"time"
)

// Refresher sweeps all open loans and brings stored fines up to date, so
// reports stay accurate even for patrons who never list their loans.
type Refresher interface {
	RefreshOpenFines(ctx context.Context) (int64, error)
}

type refresher struct {
	db  TxBeginner
	lr  LoanRepo
	now func() time.Time
}

func NewRefresher(db TxBeginner, lr LoanRepo) Refresher {
	return &refresher{db: db, lr: lr, now: time.Now}
}

// RefreshOpenFines returns how many loans had their fine updated.
func (r *refresher) RefreshOpenFines(ctx context.Context) (updated int64, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	loans, err := r.lr.OpenForUpdate(ctx, tx)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	asOf := r.now()
	for i := range loans {
		fine := ComputeFine(loans[i].CheckoutDate, asOf)
		if fine == loans[i].Fine {
			continue
		}
		if err = r.lr.UpdateFine(ctx, tx, loans[i].ID, fine); err != nil {
			return 0, mapStoreErr(err)
		}
		updated++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, mapStoreErr(err)
	}
	return updated, nil
}
