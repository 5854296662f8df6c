// Package lending coordinates the book catalogue, client registry, borrowing and late fees.
package lending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"booklending/internal/fees"
	"booklending/internal/locker"
	"booklending/internal/models"
	"booklending/internal/storage"
)

const DefaultLockTTL = 5 * time.Second

// Field limits, in characters
const (
	MaxTitleLength  = 100
	MaxAuthorLength = 80
	MaxNameLength   = 60
)

var (
	ErrBookNotFound   = errors.New("book does not exist")
	ErrClientNotFound = errors.New("client does not exist")
	ErrInvalidInput   = errors.New("invalid input")
)

// BookChanges lists the catalogue fields to change; nil fields keep their value.
// Borrowing state cannot be changed this way.
type BookChanges struct {
	Title  *string
	Author *string
}

// Quote is the late-return fee for a given number of days late
type Quote struct {
	DaysLate      int     `json:"days_late"`
	FeeRate       float64 `json:"fee_rate"`
	FeePercentage float64 `json:"fee_percentage"`
}

// Service is the lending backend shared by the HTTP API and the bot
type Service struct {
	db       storage.Storage
	schedule fees.Schedule
	locker   locker.Locker
	lockTTL  time.Duration
	today    func() civil.Date
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

func WithSchedule(schedule fees.Schedule) Option {
	return func(s *Service) { s.schedule = schedule }
}

func WithLocker(l locker.Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithClock overrides how the service determines today's date
func WithClock(today func() civil.Date) Option {
	return func(s *Service) { s.today = today }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a lending service with the standard fee schedule, a process-local
// borrow lock and the local calendar date unless overridden by options.
func NewService(db storage.Storage, options ...Option) *Service {
	s := &Service{
		db:       db,
		schedule: fees.DefaultSchedule(),
		locker:   locker.NewMemoryLocker(),
		lockTTL:  DefaultLockTTL,
		today:    func() civil.Date { return civil.DateOf(time.Now()) },
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Today returns the date the service currently uses as today
func (s *Service) Today() civil.Date {
	return s.today()
}

// RegisterBook adds an available book to the catalogue
func (s *Service) RegisterBook(ctx context.Context, title, author string) (models.Book, error) {
	title, author = strings.TrimSpace(title), strings.TrimSpace(author)
	if err := checkBookFields(title, author); err != nil {
		return models.Book{}, err
	}

	book := models.NewBook(title, author)
	if err := s.db.CreateBook(ctx, book); err != nil {
		s.logger.Error("Failed to register book", zap.String("title", title), zap.Error(err))
		return models.Book{}, err
	}

	s.logger.Info("Book registered", zap.String("book_id", book.ID.String()), zap.String("title", title))
	return book, nil
}

// RegisterClient adds a client who may borrow books
func (s *Service) RegisterClient(ctx context.Context, name string) (models.Client, error) {
	name = strings.TrimSpace(name)
	if err := checkField("name", name, MaxNameLength); err != nil {
		return models.Client{}, err
	}

	client := models.Client{ID: uuid.New(), Name: name}
	if err := s.db.CreateClient(ctx, client); err != nil {
		s.logger.Error("Failed to register client", zap.String("name", name), zap.Error(err))
		return models.Client{}, err
	}

	s.logger.Info("Client registered", zap.String("client_id", client.ID.String()), zap.String("name", name))
	return client, nil
}

// ListBooks returns the catalogue ordered by title
func (s *Service) ListBooks(ctx context.Context) ([]models.Book, error) {
	return s.db.ListBooks(ctx)
}

// ListClients returns all clients ordered by name
func (s *Service) ListClients(ctx context.Context) ([]models.Client, error) {
	return s.db.ListClients(ctx)
}

func (s *Service) GetBook(ctx context.Context, id uuid.UUID) (models.Book, error) {
	book, err := s.db.GetBook(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Book{}, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return book, err
}

func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	client, err := s.db.GetClient(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Client{}, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return client, err
}

// UpdateBook changes the title and/or author of a book
func (s *Service) UpdateBook(ctx context.Context, id uuid.UUID, changes BookChanges) (models.Book, error) {
	release, err := s.lockBook(ctx, id)
	if err != nil {
		return models.Book{}, err
	}
	defer release()

	book, err := s.GetBook(ctx, id)
	if err != nil {
		return models.Book{}, err
	}

	title, author := book.Title, book.Author
	if changes.Title != nil {
		title = strings.TrimSpace(*changes.Title)
	}
	if changes.Author != nil {
		author = strings.TrimSpace(*changes.Author)
	}
	if err := checkBookFields(title, author); err != nil {
		return models.Book{}, err
	}

	updated, err := s.db.UpdateBookDetails(ctx, id, title, author)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Book{}, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to update book", zap.String("book_id", id.String()), zap.Error(err))
		return models.Book{}, err
	}

	s.logger.Info("Book updated", zap.String("book_id", id.String()), zap.String("title", title))
	return updated, nil
}

// DeleteBook removes a book from the catalogue, borrowed or not
func (s *Service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	release, err := s.lockBook(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	err = s.db.DeleteBook(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to delete book", zap.String("book_id", id.String()), zap.Error(err))
		return err
	}

	s.logger.Info("Book deleted", zap.String("book_id", id.String()))
	return nil
}

// UpdateClient renames a client
func (s *Service) UpdateClient(ctx context.Context, id uuid.UUID, name string) (models.Client, error) {
	name = strings.TrimSpace(name)
	if err := checkField("name", name, MaxNameLength); err != nil {
		return models.Client{}, err
	}

	client := models.Client{ID: id, Name: name}
	err := s.db.UpdateClient(ctx, client)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Client{}, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to update client", zap.String("client_id", id.String()), zap.Error(err))
		return models.Client{}, err
	}

	s.logger.Info("Client updated", zap.String("client_id", id.String()), zap.String("name", name))
	return client, nil
}

// DeleteClient removes a client together with the books lent to them
func (s *Service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	err := s.db.DeleteClient(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to delete client", zap.String("client_id", id.String()), zap.Error(err))
		return err
	}

	s.logger.Info("Client deleted", zap.String("client_id", id.String()))
	return nil
}

// ReserveBook lends the book to the client as of today.
// It fails with *models.AlreadyBorrowedError if the book is not available.
func (s *Service) ReserveBook(ctx context.Context, bookID, clientID uuid.UUID) (models.Book, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return models.Book{}, err
	}
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return models.Book{}, err
	}

	release, err := s.lockBook(ctx, bookID)
	if err != nil {
		return models.Book{}, err
	}
	defer release()

	// reload under the lock so the availability check sees the latest state
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return models.Book{}, err
	}

	today := s.today()
	if err := book.Borrow(clientID, today); err != nil {
		s.logger.Info("Book already borrowed", zap.String("book_id", bookID.String()))
		return models.Book{}, err
	}

	if err := s.db.BorrowBook(ctx, book); err != nil {
		var alreadyBorrowed *models.AlreadyBorrowedError
		switch {
		case errors.As(err, &alreadyBorrowed):
			s.logger.Info("Book already borrowed", zap.String("book_id", bookID.String()))
		case errors.Is(err, storage.ErrNotFound):
			return models.Book{}, fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
		default:
			s.logger.Error("Failed to store borrowed book", zap.String("book_id", bookID.String()), zap.Error(err))
		}
		return models.Book{}, err
	}

	s.logger.Info("Book borrowed",
		zap.String("book_id", bookID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("borrowed_date", today.String()),
	)
	return book, nil
}

// BorrowedBooks returns the client's borrowed books with their lateness and late-return fee
func (s *Service) BorrowedBooks(ctx context.Context, clientID uuid.UUID) ([]models.BorrowedBook, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	books, err := s.db.ListBooksByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	borrowed := make([]models.BorrowedBook, 0, len(books))
	for _, book := range books {
		daysLate, err := book.DaysLate(today)
		if err != nil {
			return nil, fmt.Errorf("book %s: %w", book.ID, err)
		}
		borrowed = append(borrowed, models.BorrowedBook{
			ID:                      book.ID,
			Title:                   book.Title,
			Author:                  book.Author,
			BorrowedDate:            *book.BorrowedDate,
			DaysLate:                daysLate,
			LateReturnFeePercentage: s.schedule.PercentageFor(daysLate),
		})
	}
	return borrowed, nil
}

// QuoteFee returns the fee for a hypothetical number of days late
func (s *Service) QuoteFee(daysLate int) Quote {
	return Quote{
		DaysLate:      daysLate,
		FeeRate:       s.schedule.FeeFor(daysLate),
		FeePercentage: s.schedule.PercentageFor(daysLate),
	}
}

// lockBook serializes changes to one book; it waits at most one lock TTL
func (s *Service) lockBook(ctx context.Context, id uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	release, err := s.locker.Acquire(lockCtx, "book:"+id.String(), s.lockTTL)
	if err != nil {
		s.logger.Warn("Failed to lock book", zap.String("book_id", id.String()), zap.Error(err))
		return nil, err
	}
	return release, nil
}

func checkBookFields(title, author string) error {
	if err := checkField("title", title, MaxTitleLength); err != nil {
		return err
	}
	return checkField("author", author, MaxAuthorLength)
}

func checkField(field, value string, maxLength int) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(value) > maxLength {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, maxLength)
	}
	return nil
}
