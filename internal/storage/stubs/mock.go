package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"booklending/internal/models"
	"booklending/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu      sync.RWMutex
	books   map[uuid.UUID]models.Book
	clients map[uuid.UUID]models.Client
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		books:   make(map[uuid.UUID]models.Book),
		clients: make(map[uuid.UUID]models.Client),
	}
}

// Initialize does nothing for mock DB; it starts empty
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook stores a new book
func (m *MockDB) CreateBook(ctx context.Context, book models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.books[book.ID]; exists {
		return fmt.Errorf("book %s: %w", book.ID, storage.ErrAlreadyExists)
	}
	m.books[book.ID] = cloneBook(book)
	return nil
}

// GetBook returns a book by id
func (m *MockDB) GetBook(ctx context.Context, id uuid.UUID) (models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return cloneBook(book), nil
}

// ListBooks returns all books sorted by title
func (m *MockDB) ListBooks(ctx context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, 0, len(m.books))
	for _, book := range m.books {
		books = append(books, cloneBook(book))
	}
	sortBooks(books)

	return books, nil
}

// ListBooksByClient returns the books borrowed by the client sorted by title
func (m *MockDB) ListBooksByClient(ctx context.Context, clientID uuid.UUID) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var books []models.Book
	for _, book := range m.books {
		if book.IsBorrowed() && book.ClientID != nil && *book.ClientID == clientID {
			books = append(books, cloneBook(book))
		}
	}
	sortBooks(books)

	return books, nil
}

// BorrowBook stores the borrowed state if the stored book is still available
func (m *MockDB) BorrowBook(ctx context.Context, book models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.books[book.ID]
	if !ok {
		return fmt.Errorf("book %s: %w", book.ID, storage.ErrNotFound)
	}
	if stored.IsBorrowed() {
		return &models.AlreadyBorrowedError{BookID: book.ID}
	}

	m.books[book.ID] = cloneBook(book)
	return nil
}

// UpdateBookDetails replaces title and author of a stored book
func (m *MockDB) UpdateBookDetails(ctx context.Context, id uuid.UUID, title, author string) (models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	book.Title = title
	book.Author = author
	m.books[id] = book
	return cloneBook(book), nil
}

// DeleteBook removes a book
func (m *MockDB) DeleteBook(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	delete(m.books, id)
	return nil
}

// CreateClient stores a new client
func (m *MockDB) CreateClient(ctx context.Context, client models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[client.ID]; exists {
		return fmt.Errorf("client %s: %w", client.ID, storage.ErrAlreadyExists)
	}
	m.clients[client.ID] = client
	return nil
}

// GetClient returns a client by id
func (m *MockDB) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[id]
	if !ok {
		return models.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return client, nil
}

// ListClients returns all clients sorted by name
func (m *MockDB) ListClients(ctx context.Context) ([]models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]models.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}

	sort.Slice(clients, func(i, j int) bool {
		if clients[i].Name != clients[j].Name {
			return clients[i].Name < clients[j].Name
		}
		return clients[i].ID.String() < clients[j].ID.String()
	})

	return clients, nil
}

// UpdateClient replaces the stored client
func (m *MockDB) UpdateClient(ctx context.Context, client models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client.ID]; !ok {
		return fmt.Errorf("client %s: %w", client.ID, storage.ErrNotFound)
	}
	m.clients[client.ID] = client
	return nil
}

// DeleteClient removes the client and the books lent to them
func (m *MockDB) DeleteClient(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[id]; !ok {
		return fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	delete(m.clients, id)
	for bookID, book := range m.books {
		if book.ClientID != nil && *book.ClientID == id {
			delete(m.books, bookID)
		}
	}
	return nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func sortBooks(books []models.Book) {
	sort.Slice(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID.String() < books[j].ID.String()
	})
}

// cloneBook detaches the pointer fields so callers cannot mutate stored state
func cloneBook(book models.Book) models.Book {
	if book.ClientID != nil {
		id := *book.ClientID
		book.ClientID = &id
	}
	if book.BorrowedDate != nil {
		date := *book.BorrowedDate
		book.BorrowedDate = &date
	}
	return book
}
