package models

import (
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// BookStatus is the loan status of a book
type BookStatus int

const (
	StatusAvailable BookStatus = 1
	StatusBorrowed  BookStatus = 2
)

// String returns the display label of the status
func (s BookStatus) String() string {
	switch s {
	case StatusAvailable:
		return "Available"
	case StatusBorrowed:
		return "Borrowed"
	default:
		return "Unknown"
	}
}

// Client represents a library client who can borrow books
type Client struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Book represents a book in the library together with its loan state.
// BorrowedDate and ClientID are set only while Status is StatusBorrowed.
type Book struct {
	ID           uuid.UUID   `json:"id"`
	Title        string      `json:"title"`
	Author       string      `json:"author"`
	Status       BookStatus  `json:"status"`
	ClientID     *uuid.UUID  `json:"client_id"`
	BorrowedDate *civil.Date `json:"borrowed_date"`
}

// NewBook creates an available book
func NewBook(title, author string) Book {
	return Book{
		ID:     uuid.New(),
		Title:  title,
		Author: author,
		Status: StatusAvailable,
	}
}

// BorrowedBook is a borrowed book enriched with its lateness and late-return fee
type BorrowedBook struct {
	ID                      uuid.UUID  `json:"id"`
	Title                   string     `json:"title"`
	Author                  string     `json:"author"`
	BorrowedDate            civil.Date `json:"borrowed_date"`
	DaysLate                int        `json:"days_late"`
	LateReturnFeePercentage float64    `json:"late_return_fee_percentage"`
}
