package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"booklending/internal/lending"
	"booklending/internal/models"
)

type bookResponse struct {
	ID           uuid.UUID   `json:"id"`
	Title        string      `json:"title"`
	Author       string      `json:"author"`
	Status       string      `json:"status"`
	ClientID     *uuid.UUID  `json:"client_id"`
	BorrowedDate *civil.Date `json:"borrowed_date"`
}

func newBookResponse(book models.Book) bookResponse {
	return bookResponse{
		ID:           book.ID,
		Title:        book.Title,
		Author:       book.Author,
		Status:       book.Status.String(),
		ClientID:     book.ClientID,
		BorrowedDate: book.BorrowedDate,
	}
}

type createBookRequest struct {
	Title  string `json:"title" validate:"required,max=100"`
	Author string `json:"author" validate:"required,max=80"`
}

// PUT needs both fields, PATCH either
type updateBookRequest struct {
	Title  *string `json:"title" validate:"omitempty,max=100"`
	Author *string `json:"author" validate:"omitempty,max=80"`
}

type createClientRequest struct {
	Name string `json:"name" validate:"required,max=60"`
}

type reserveBookRequest struct {
	ClientID string `json:"client_id" validate:"required"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// GET /api/books
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.service.ListBooks(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to fetch books", err)
		return
	}

	resp := make([]bookResponse, 0, len(books))
	for _, book := range books {
		resp = append(resp, newBookResponse(book))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/books
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := s.service.RegisterBook(r.Context(), req.Title, req.Author)
	if errors.Is(err, lending.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to create book", err)
		return
	}

	writeJSON(w, http.StatusCreated, newBookResponse(book))
}

// GET /api/books/{id}
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, bookNotFoundMessage(rawID))
		return
	}

	book, err := s.service.GetBook(r.Context(), id)
	if errors.Is(err, lending.ErrBookNotFound) {
		writeError(w, http.StatusNotFound, bookNotFoundMessage(rawID))
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to fetch book", err)
		return
	}

	writeJSON(w, http.StatusOK, newBookResponse(book))
}

// PUT|PATCH /api/books/{id}
func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, bookNotFoundMessage(rawID))
		return
	}

	var req updateBookRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.Method == http.MethodPut && (req.Title == nil || req.Author == nil) {
		writeError(w, http.StatusBadRequest, "title and author are required")
		return
	}

	book, err := s.service.UpdateBook(r.Context(), id, lending.BookChanges{Title: req.Title, Author: req.Author})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newBookResponse(book))
	case errors.Is(err, lending.ErrBookNotFound):
		writeError(w, http.StatusNotFound, bookNotFoundMessage(rawID))
	case errors.Is(err, lending.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, "Failed to update book", err)
	}
}

// DELETE /api/books/{id}
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, bookNotFoundMessage(rawID))
		return
	}

	err = s.service.DeleteBook(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, lending.ErrBookNotFound):
		writeError(w, http.StatusNotFound, bookNotFoundMessage(rawID))
	default:
		s.internalError(w, r, "Failed to delete book", err)
	}
}

// PUT|PATCH /api/books/{id}/reserve
func (s *Server) handleReserveBook(w http.ResponseWriter, r *http.Request) {
	rawBookID := mux.Vars(r)["id"]
	bookID, err := uuid.Parse(rawBookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, bookNotFoundMessage(rawBookID))
		return
	}

	var req reserveBookRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, clientNotFoundMessage(req.ClientID))
		return
	}

	_, err = s.service.ReserveBook(r.Context(), bookID, clientID)
	var alreadyBorrowed *models.AlreadyBorrowedError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.As(err, &alreadyBorrowed):
		writeError(w, http.StatusBadRequest, alreadyBorrowed.Error())
	case errors.Is(err, lending.ErrBookNotFound):
		writeError(w, http.StatusBadRequest, bookNotFoundMessage(rawBookID))
	case errors.Is(err, lending.ErrClientNotFound):
		writeError(w, http.StatusBadRequest, clientNotFoundMessage(req.ClientID))
	default:
		s.internalError(w, r, "Failed to reserve book", err)
	}
}

// GET /api/client
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.service.ListClients(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to fetch clients", err)
		return
	}
	if clients == nil {
		clients = []models.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

// POST /api/client
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := s.service.RegisterClient(r.Context(), req.Name)
	if errors.Is(err, lending.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to create client", err)
		return
	}

	writeJSON(w, http.StatusCreated, client)
}

// GET /api/client/{id}
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, clientNotFoundMessage(rawID))
		return
	}

	client, err := s.service.GetClient(r.Context(), id)
	if errors.Is(err, lending.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, clientNotFoundMessage(rawID))
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to fetch client", err)
		return
	}

	writeJSON(w, http.StatusOK, client)
}

// PUT|PATCH /api/client/{id}
func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, clientNotFoundMessage(rawID))
		return
	}

	var req createClientRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := s.service.UpdateClient(r.Context(), id, req.Name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, client)
	case errors.Is(err, lending.ErrClientNotFound):
		writeError(w, http.StatusNotFound, clientNotFoundMessage(rawID))
	case errors.Is(err, lending.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, "Failed to update client", err)
	}
}

// DELETE /api/client/{id}
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, clientNotFoundMessage(rawID))
		return
	}

	err = s.service.DeleteClient(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, lending.ErrClientNotFound):
		writeError(w, http.StatusNotFound, clientNotFoundMessage(rawID))
	default:
		s.internalError(w, r, "Failed to delete client", err)
	}
}

// GET /api/client/{id}/books
func (s *Server) handleClientBooks(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, clientNotFoundMessage(rawID))
		return
	}

	books, err := s.service.BorrowedBooks(r.Context(), id)
	if errors.Is(err, lending.ErrClientNotFound) {
		writeError(w, http.StatusBadRequest, clientNotFoundMessage(rawID))
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to fetch borrowed books", err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// GET /api/fees/quote?days_late=N
func (s *Server) handleQuoteFee(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("days_late")
	if err := s.validate.Var(raw, "required,numeric"); err != nil {
		writeError(w, http.StatusBadRequest, "days_late must be an integer")
		return
	}
	daysLate, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days_late must be an integer")
		return
	}

	writeJSON(w, http.StatusOK, s.service.QuoteFee(daysLate))
}

func bookNotFoundMessage(id string) string {
	return fmt.Sprintf("Book ID #%s does not exist!", id)
}

func clientNotFoundMessage(id string) string {
	return fmt.Sprintf("Client ID #%s does not exist!", id)
}
