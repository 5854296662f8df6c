package ch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"booklending/internal/models"
	"booklending/internal/storage"
)

// Books are stored as versioned rows in a ReplacingMergeTree; reads use FINAL so only the
// latest version of each book is visible.
const bookColumns = `id, title, author, status, client_id, borrowed_date, version`

type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/clickhouse directory)
	return nil
}

// CreateBook inserts the first version of a book
func (db *ClickHouseDB) CreateBook(ctx context.Context, book models.Book) error {
	// no unique keys in ClickHouse
	if _, err := db.GetBook(ctx, book.ID); err == nil {
		return fmt.Errorf("book %s: %w", book.ID, storage.ErrAlreadyExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if err := db.insertBook(ctx, book, 1); err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// GetBook returns the latest version of a book
func (db *ClickHouseDB) GetBook(ctx context.Context, id uuid.UUID) (models.Book, error) {
	books, _, err := db.queryBooks(ctx, `SELECT `+bookColumns+` FROM books FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	if len(books) == 0 {
		return models.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return books[0], nil
}

// ListBooks returns all books ordered by title
func (db *ClickHouseDB) ListBooks(ctx context.Context) ([]models.Book, error) {
	books, _, err := db.queryBooks(ctx, `SELECT `+bookColumns+` FROM books FINAL ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// ListBooksByClient returns the books currently borrowed by the client ordered by title
func (db *ClickHouseDB) ListBooksByClient(ctx context.Context, clientID uuid.UUID) ([]models.Book, error) {
	books, _, err := db.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books FINAL WHERE status = ? AND client_id = ? ORDER BY title, id`,
		uint8(models.StatusBorrowed), clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list books by client: %w", err)
	}
	return books, nil
}

// BorrowBook writes a new version of the book if the latest stored version is still available.
// ClickHouse has no conditional update, so callers serialize borrows per book (see locker).
func (db *ClickHouseDB) BorrowBook(ctx context.Context, book models.Book) error {
	current, versions, err := db.queryBooks(ctx, `SELECT `+bookColumns+` FROM books FINAL WHERE id = ? LIMIT 1`, book.ID)
	if err != nil {
		return fmt.Errorf("failed to load book for borrowing: %w", err)
	}
	if len(current) == 0 {
		return fmt.Errorf("book %s: %w", book.ID, storage.ErrNotFound)
	}
	if current[0].IsBorrowed() {
		return &models.AlreadyBorrowedError{BookID: book.ID}
	}

	if err := db.insertBook(ctx, book, versions[0]+1); err != nil {
		return fmt.Errorf("failed to borrow book: %w", err)
	}
	return nil
}

// UpdateBookDetails writes a new version with the given title and author.
// Like BorrowBook it reads then inserts, so callers serialize changes per book.
func (db *ClickHouseDB) UpdateBookDetails(ctx context.Context, id uuid.UUID, title, author string) (models.Book, error) {
	current, versions, err := db.queryBooks(ctx, `SELECT `+bookColumns+` FROM books FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to load book for update: %w", err)
	}
	if len(current) == 0 {
		return models.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}

	book := current[0]
	book.Title = title
	book.Author = author
	if err := db.insertBook(ctx, book, versions[0]+1); err != nil {
		return models.Book{}, fmt.Errorf("failed to update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes every version of a book
func (db *ClickHouseDB) DeleteBook(ctx context.Context, id uuid.UUID) error {
	if _, err := db.GetBook(ctx, id); err != nil {
		return err
	}
	if err := db.conn.Exec(ctx, `DELETE FROM books WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

// CreateClient inserts a new client
func (db *ClickHouseDB) CreateClient(ctx context.Context, client models.Client) error {
	if _, err := db.GetClient(ctx, client.ID); err == nil {
		return fmt.Errorf("client %s: %w", client.ID, storage.ErrAlreadyExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	err := db.conn.Exec(ctx, `INSERT INTO clients (id, name) VALUES (?, ?)`, client.ID, client.Name)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient returns a client by id
func (db *ClickHouseDB) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	clients, err := db.queryClients(ctx, `SELECT id, name FROM clients FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client: %w", err)
	}
	if len(clients) == 0 {
		return models.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return clients[0], nil
}

// ListClients returns all clients ordered by name
func (db *ClickHouseDB) ListClients(ctx context.Context) ([]models.Client, error) {
	clients, err := db.queryClients(ctx, `SELECT id, name FROM clients FINAL ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// UpdateClient inserts a replacement row; FINAL returns the last inserted one
func (db *ClickHouseDB) UpdateClient(ctx context.Context, client models.Client) error {
	if _, err := db.GetClient(ctx, client.ID); err != nil {
		return err
	}
	err := db.conn.Exec(ctx, `INSERT INTO clients (id, name) VALUES (?, ?)`, client.ID, client.Name)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// DeleteClient removes the client and every version of the books lent to them
func (db *ClickHouseDB) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if _, err := db.GetClient(ctx, id); err != nil {
		return err
	}

	lent, err := db.ListBooksByClient(ctx, id)
	if err != nil {
		return err
	}
	for _, book := range lent {
		if err := db.conn.Exec(ctx, `DELETE FROM books WHERE id = ?`, book.ID); err != nil {
			return fmt.Errorf("failed to delete book lent to client: %w", err)
		}
	}

	if err := db.conn.Exec(ctx, `DELETE FROM clients WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *ClickHouseDB) insertBook(ctx context.Context, book models.Book, version uint64) error {
	var borrowedDate *time.Time
	if book.BorrowedDate != nil {
		d := book.BorrowedDate.In(time.UTC)
		borrowedDate = &d
	}

	return db.conn.Exec(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, uint8(book.Status), book.ClientID, borrowedDate, version)
}

func (db *ClickHouseDB) queryBooks(ctx context.Context, query string, args ...any) ([]models.Book, []uint64, error) {
	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	return scanBooks(rows)
}

func scanBooks(rows driver.Rows) ([]models.Book, []uint64, error) {
	var (
		books    []models.Book
		versions []uint64
	)
	for rows.Next() {
		var (
			book         models.Book
			status       uint8
			borrowedDate *time.Time
			version      uint64
		)
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &status, &book.ClientID, &borrowedDate, &version); err != nil {
			return nil, nil, fmt.Errorf("failed to scan book: %w", err)
		}
		book.Status = models.BookStatus(status)
		if borrowedDate != nil {
			d := civil.DateOf(*borrowedDate)
			book.BorrowedDate = &d
		}
		books = append(books, book)
		versions = append(versions, version)
	}
	return books, versions, rows.Err()
}

func (db *ClickHouseDB) queryClients(ctx context.Context, query string, args ...any) ([]models.Client, error) {
	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var client models.Client
		if err := rows.Scan(&client.ID, &client.Name); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}
