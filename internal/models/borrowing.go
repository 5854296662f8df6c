package models

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// ReservationPeriodDays is the grace window after borrowing during which no lateness accrues.
const ReservationPeriodDays = 3

// ErrNotBorrowed is returned when a loan computation is requested for a book that is not borrowed.
var ErrNotBorrowed = errors.New("book is not borrowed")

// AlreadyBorrowedError signals an attempt to borrow a book that is already borrowed.
type AlreadyBorrowedError struct {
	BookID uuid.UUID
}

func (e *AlreadyBorrowedError) Error() string {
	return fmt.Sprintf("Book (id: %s) is already borrowed.", e.BookID)
}

// IsBorrowed reports whether the book is currently lent out.
func (b *Book) IsBorrowed() bool {
	return b.Status == StatusBorrowed
}

// Borrow lends the book to the client starting on today.
// On failure the book is left untouched.
func (b *Book) Borrow(clientID uuid.UUID, today civil.Date) error {
	if b.IsBorrowed() {
		return &AlreadyBorrowedError{BookID: b.ID}
	}

	b.Status = StatusBorrowed
	b.BorrowedDate = &today
	b.ClientID = &clientID
	return nil
}

// DaysLate returns the whole days the loan runs past the reservation period, floored at zero.
func (b *Book) DaysLate(today civil.Date) (int, error) {
	if !b.IsBorrowed() || b.BorrowedDate == nil {
		return 0, fmt.Errorf("days late for book %s: %w", b.ID, ErrNotBorrowed)
	}

	elapsed := today.DaysSince(*b.BorrowedDate)
	if elapsed <= ReservationPeriodDays {
		return 0, nil
	}
	return elapsed - ReservationPeriodDays, nil
}
