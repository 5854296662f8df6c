package models

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = civil.Date{Year: 2024, Month: 3, Day: 15}

func borrowedBook(t *testing.T, daysAgo int) Book {
	t.Helper()
	book := NewBook("Dune", "Frank Herbert")
	require.NoError(t, book.Borrow(uuid.New(), today.AddDays(-daysAgo)))
	return book
}

func TestNewBook_IsAvailable(t *testing.T) {
	book := NewBook("Dune", "Frank Herbert")

	assert.False(t, book.IsBorrowed())
	assert.Equal(t, StatusAvailable, book.Status)
	assert.Nil(t, book.BorrowedDate)
	assert.Nil(t, book.ClientID)
}

func TestBook_Borrow(t *testing.T) {
	book := NewBook("Dune", "Frank Herbert")
	clientID := uuid.New()

	err := book.Borrow(clientID, today)
	require.NoError(t, err)

	assert.True(t, book.IsBorrowed())
	assert.Equal(t, StatusBorrowed, book.Status)
	require.NotNil(t, book.BorrowedDate)
	assert.Equal(t, today, *book.BorrowedDate)
	require.NotNil(t, book.ClientID)
	assert.Equal(t, clientID, *book.ClientID)
}

func TestBook_BorrowAlreadyBorrowed(t *testing.T) {
	book := borrowedBook(t, 2)
	before := book
	beforeDate := *book.BorrowedDate
	beforeClient := *book.ClientID

	err := book.Borrow(uuid.New(), today)

	var alreadyBorrowed *AlreadyBorrowedError
	require.True(t, errors.As(err, &alreadyBorrowed))
	assert.Equal(t, book.ID, alreadyBorrowed.BookID)
	assert.Equal(t, "Book (id: "+book.ID.String()+") is already borrowed.", err.Error())

	// no partial mutation
	assert.Equal(t, before.Status, book.Status)
	assert.Equal(t, beforeDate, *book.BorrowedDate)
	assert.Equal(t, beforeClient, *book.ClientID)
}

func TestBook_DaysLate(t *testing.T) {
	testCases := []struct {
		name     string
		daysAgo  int
		expected int
	}{
		{name: "borrowed today", daysAgo: 0, expected: 0},
		{name: "within reservation period", daysAgo: ReservationPeriodDays, expected: 0},
		{name: "one day after reservation period", daysAgo: ReservationPeriodDays + 1, expected: 1},
		{name: "ten days after reservation period", daysAgo: ReservationPeriodDays + 10, expected: 10},
		{name: "borrowed date in the future", daysAgo: -2, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			book := borrowedBook(t, tc.daysAgo)

			daysLate, err := book.DaysLate(today)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, daysLate)
		})
	}
}

func TestBook_DaysLateAcrossMonthBoundary(t *testing.T) {
	book := NewBook("Dune", "Frank Herbert")
	require.NoError(t, book.Borrow(uuid.New(), civil.Date{Year: 2024, Month: 2, Day: 27}))

	daysLate, err := book.DaysLate(civil.Date{Year: 2024, Month: 3, Day: 5})
	require.NoError(t, err)
	// 2024 is a leap year: 7 days elapsed
	assert.Equal(t, 4, daysLate)
}

func TestBook_DaysLateOnAvailableBook(t *testing.T) {
	book := NewBook("Dune", "Frank Herbert")

	_, err := book.DaysLate(today)
	assert.ErrorIs(t, err, ErrNotBorrowed)
}

func TestBookStatus_String(t *testing.T) {
	assert.Equal(t, "Available", StatusAvailable.String())
	assert.Equal(t, "Borrowed", StatusBorrowed.String())
	assert.Equal(t, "Unknown", BookStatus(0).String())
}
