// model/book.go
package model

type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	TotalCopies int64  `json:"total_copies"`

	// Derived from open loans at query time, never stored.
	AvailableCopies int64 `json:"available_copies"`
}
