package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"booklending/internal/models"
)

var (
	// ErrNotFound is returned when a requested book or client does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record whose id is taken
	ErrAlreadyExists = errors.New("already exists")
)

// Storage defines the interface for data storage operations
type Storage interface {
	// Book operations
	CreateBook(ctx context.Context, book models.Book) error
	GetBook(ctx context.Context, id uuid.UUID) (models.Book, error)
	// ListBooks returns all books ordered by title
	ListBooks(ctx context.Context) ([]models.Book, error)
	// ListBooksByClient returns the books currently borrowed by the client ordered by title
	ListBooksByClient(ctx context.Context, clientID uuid.UUID) ([]models.Book, error)
	// UpdateBookDetails changes title and author only; borrowing state is left as stored
	UpdateBookDetails(ctx context.Context, id uuid.UUID, title, author string) (models.Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error

	// BorrowBook persists a book that has just been transitioned to borrowed.
	// It must fail with *models.AlreadyBorrowedError when the stored book is no longer
	// available, so that two concurrent borrows of one book cannot both succeed.
	BorrowBook(ctx context.Context, book models.Book) error

	// Client operations
	CreateClient(ctx context.Context, client models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (models.Client, error)
	// ListClients returns all clients ordered by name
	ListClients(ctx context.Context) ([]models.Client, error)
	UpdateClient(ctx context.Context, client models.Client) error
	// DeleteClient removes the client together with the books lent to them
	DeleteClient(ctx context.Context, id uuid.UUID) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
