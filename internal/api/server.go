// Package api exposes the lending service as a JSON HTTP API.
package api

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"booklending/internal/lending"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server handles the HTTP API requests
type Server struct {
	service  *lending.Service
	validate *validator.Validate
	logger   *zap.Logger
	router   *mux.Router
}

// NewServer creates the API server and registers its routes
func NewServer(service *lending.Service, logger *zap.Logger) *Server {
	s := &Server{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Router exposes the router so that other components can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler. Trailing slashes are ignored so that "/api/books/" and
// "/api/books" reach the same route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
		r.URL.Path = strings.TrimRight(r.URL.Path, "/")
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.Use(s.requestID, s.accessLog, s.recoverPanic)

	// mux skips Use middleware for unmatched requests
	s.router.NotFoundHandler = s.requestID(s.accessLog(http.HandlerFunc(s.handleNotFound)))
	s.router.MethodNotAllowedHandler = s.requestID(s.accessLog(http.HandlerFunc(s.handleMethodNotAllowed)))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/books", s.handleListBooks).Methods(http.MethodGet)
	s.router.HandleFunc("/api/books", s.handleCreateBook).Methods(http.MethodPost)
	s.router.HandleFunc("/api/books/{id}", s.handleGetBook).Methods(http.MethodGet)
	s.router.HandleFunc("/api/books/{id}", s.handleUpdateBook).Methods(http.MethodPut, http.MethodPatch)
	s.router.HandleFunc("/api/books/{id}", s.handleDeleteBook).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/books/{id}/reserve", s.handleReserveBook).Methods(http.MethodPut, http.MethodPatch)

	s.router.HandleFunc("/api/client", s.handleListClients).Methods(http.MethodGet)
	s.router.HandleFunc("/api/client", s.handleCreateClient).Methods(http.MethodPost)
	s.router.HandleFunc("/api/client/{id}", s.handleGetClient).Methods(http.MethodGet)
	s.router.HandleFunc("/api/client/{id}", s.handleUpdateClient).Methods(http.MethodPut, http.MethodPatch)
	s.router.HandleFunc("/api/client/{id}", s.handleDeleteClient).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/client/{id}/books", s.handleClientBooks).Methods(http.MethodGet)

	s.router.HandleFunc("/api/fees/quote", s.handleQuoteFee).Methods(http.MethodGet)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed")
}
