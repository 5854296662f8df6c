package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"booklending/internal/models"
	"booklending/internal/storage"
)

const (
	tableBooks      = "books"
	tableClients    = "clients"
	colID           = "id"
	colTitle        = "title"
	colAuthor       = "author"
	colStatus       = "status"
	colClientID     = "client_id"
	colBorrowedDate = "borrowed_date"
	colName         = "name"
	dialectPostgres = "postgres"

	defaultMaxConnections    = int32(8)
	defaultMinConnections    = int32(2)
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = time.Minute * 5
	defaultHealthCheckPeriod = time.Minute
	defaultConnectTimeout    = time.Second * 5
)

var bookColumns = []any{colID, colTitle, colAuthor, colStatus, colClientID, colBorrowedDate}

// PostgresDB implements storage.Storage on a pgx connection pool.
type PostgresDB struct {
	pool    *pgxpool.Pool
	dialect goqu.DialectWrapper
	logger  *zap.Logger
}

// Option configures a PostgresDB.
type Option func(*PostgresDB)

// WithLogger makes the store log executed SQL at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(db *PostgresDB) {
		db.logger = logger
	}
}

// PoolConfig parses the DSN and applies the pool defaults. maxConns <= 0 keeps the default.
func PoolConfig(dsn string, maxConns int32) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}

	cfg.MaxConns = defaultMaxConnections
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = min(defaultMinConnections, cfg.MaxConns)
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	cfg.HealthCheckPeriod = defaultHealthCheckPeriod
	cfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return cfg, nil
}

// NewPostgresDB connects to Postgres and verifies the connection.
func NewPostgresDB(ctx context.Context, cfg *pgxpool.Config, options ...Option) (*PostgresDB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return NewPostgresDBFromPool(pool, options...), nil
}

// NewPostgresDBFromPool wraps an existing pool.
func NewPostgresDBFromPool(pool *pgxpool.Pool, options ...Option) *PostgresDB {
	db := &PostgresDB{
		pool:    pool,
		dialect: goqu.Dialect(dialectPostgres),
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		option(db)
	}
	return db
}

// Initialize is a no-op - tables are managed via migrations
func (db *PostgresDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook inserts a new book
func (db *PostgresDB) CreateBook(ctx context.Context, book models.Book) error {
	query, args, err := db.dialect.Insert(tableBooks).
		Prepared(true).
		Rows(goqu.Record{
			colID:           book.ID,
			colTitle:        book.Title,
			colAuthor:       book.Author,
			colStatus:       int16(book.Status),
			colClientID:     book.ClientID,
			colBorrowedDate: dateValue(book.BorrowedDate),
		}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert book query: %w", err)
	}

	if _, err := db.exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("book %s: %w", book.ID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// GetBook returns a book by id
func (db *PostgresDB) GetBook(ctx context.Context, id uuid.UUID) (models.Book, error) {
	books, err := db.queryBooks(ctx, db.selectBooks().Where(goqu.C(colID).Eq(id)).Limit(1))
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	if len(books) == 0 {
		return models.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return books[0], nil
}

// ListBooks returns all books ordered by title
func (db *PostgresDB) ListBooks(ctx context.Context) ([]models.Book, error) {
	books, err := db.queryBooks(ctx, db.selectBooks().Order(goqu.C(colTitle).Asc(), goqu.C(colID).Asc()))
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// ListBooksByClient returns the books currently borrowed by the client ordered by title
func (db *PostgresDB) ListBooksByClient(ctx context.Context, clientID uuid.UUID) ([]models.Book, error) {
	books, err := db.queryBooks(ctx, db.selectBooks().
		Where(
			goqu.C(colStatus).Eq(int16(models.StatusBorrowed)),
			goqu.C(colClientID).Eq(clientID),
		).
		Order(goqu.C(colTitle).Asc(), goqu.C(colID).Asc()))
	if err != nil {
		return nil, fmt.Errorf("failed to list books by client: %w", err)
	}
	return books, nil
}

// BorrowBook updates the book only while its stored status is still available.
func (db *PostgresDB) BorrowBook(ctx context.Context, book models.Book) error {
	query, args, err := db.dialect.Update(tableBooks).
		Prepared(true).
		Set(goqu.Record{
			colStatus:       int16(book.Status),
			colClientID:     book.ClientID,
			colBorrowedDate: dateValue(book.BorrowedDate),
		}).
		Where(
			goqu.C(colID).Eq(book.ID),
			goqu.C(colStatus).Eq(int16(models.StatusAvailable)),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build borrow query: %w", err)
	}

	rowsAffected, err := db.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to borrow book: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// nothing updated: either the book does not exist or someone else borrowed it first
	if _, err := db.GetBook(ctx, book.ID); err != nil {
		return err
	}
	return &models.AlreadyBorrowedError{BookID: book.ID}
}

// UpdateBookDetails changes title and author; status and borrowing columns are not touched
func (db *PostgresDB) UpdateBookDetails(ctx context.Context, id uuid.UUID, title, author string) (models.Book, error) {
	query, args, err := db.dialect.Update(tableBooks).
		Prepared(true).
		Set(goqu.Record{colTitle: title, colAuthor: author}).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to build update book query: %w", err)
	}

	rowsAffected, err := db.exec(ctx, query, args...)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to update book: %w", err)
	}
	if rowsAffected == 0 {
		return models.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return db.GetBook(ctx, id)
}

// DeleteBook removes a book
func (db *PostgresDB) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return db.deleteByID(ctx, tableBooks, "book", id)
}

// CreateClient inserts a new client
func (db *PostgresDB) CreateClient(ctx context.Context, client models.Client) error {
	query, args, err := db.dialect.Insert(tableClients).
		Prepared(true).
		Rows(goqu.Record{colID: client.ID, colName: client.Name}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert client query: %w", err)
	}

	if _, err := db.exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("client %s: %w", client.ID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient returns a client by id
func (db *PostgresDB) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	clients, err := db.queryClients(ctx, db.selectClients().Where(goqu.C(colID).Eq(id)).Limit(1))
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get client: %w", err)
	}
	if len(clients) == 0 {
		return models.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return clients[0], nil
}

// ListClients returns all clients ordered by name
func (db *PostgresDB) ListClients(ctx context.Context) ([]models.Client, error) {
	clients, err := db.queryClients(ctx, db.selectClients().Order(goqu.C(colName).Asc(), goqu.C(colID).Asc()))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// UpdateClient renames a client
func (db *PostgresDB) UpdateClient(ctx context.Context, client models.Client) error {
	query, args, err := db.dialect.Update(tableClients).
		Prepared(true).
		Set(goqu.Record{colName: client.Name}).
		Where(goqu.C(colID).Eq(client.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update client query: %w", err)
	}

	rowsAffected, err := db.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("client %s: %w", client.ID, storage.ErrNotFound)
	}
	return nil
}

// DeleteClient removes a client; the books lent to them go with it (ON DELETE CASCADE)
func (db *PostgresDB) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return db.deleteByID(ctx, tableClients, "client", id)
}

// Close closes the connection pool
func (db *PostgresDB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

func (db *PostgresDB) deleteByID(ctx context.Context, table, kind string, id uuid.UUID) error {
	query, args, err := db.dialect.Delete(table).
		Prepared(true).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete %s query: %w", kind, err)
	}

	rowsAffected, err := db.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) selectBooks() *goqu.SelectDataset {
	return db.dialect.From(tableBooks).Prepared(true).Select(bookColumns...)
}

func (db *PostgresDB) selectClients() *goqu.SelectDataset {
	return db.dialect.From(tableClients).Prepared(true).Select(colID, colName)
}

func (db *PostgresDB) exec(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	tag, err := db.pool.Exec(ctx, query, args...)
	db.logger.Debug("executed sql", zap.String("query", query), zap.Duration("duration", time.Since(start)))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) query(ctx context.Context, ds *goqu.SelectDataset) (pgx.Rows, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	start := time.Now()
	rows, err := db.pool.Query(ctx, query, args...)
	db.logger.Debug("executed sql", zap.String("query", query), zap.Duration("duration", time.Since(start)))
	return rows, err
}

func (db *PostgresDB) queryBooks(ctx context.Context, ds *goqu.SelectDataset) ([]models.Book, error) {
	rows, err := db.query(ctx, ds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		var (
			book         models.Book
			status       int16
			borrowedDate *time.Time
		)
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &status, &book.ClientID, &borrowedDate); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		book.Status = models.BookStatus(status)
		if borrowedDate != nil {
			d := civil.DateOf(*borrowedDate)
			book.BorrowedDate = &d
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (db *PostgresDB) queryClients(ctx context.Context, ds *goqu.SelectDataset) ([]models.Client, error) {
	rows, err := db.query(ctx, ds)
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

func dateValue(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
