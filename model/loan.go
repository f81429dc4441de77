// model/loan.go
package model

import "time"

// Loan is one ledger entry: a book borrowed by a patron. A loan with
// ReturnDate set is closed and never mutated again.
type Loan struct {
	ID           int64      `json:"id"`
	PatronID     int64      `json:"patron_id"`
	BookID       int64      `json:"book_id"`
	CheckoutDate time.Time  `json:"checkout_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Fine         float64    `json:"fine"`
}

func (l *Loan) Open() bool { return l.ReturnDate == nil }
