// Package apiServer exposes the core over HTTP: wallet challenge-response
// login, vault bookkeeping and document upload/download. All owner-scoped
// routes authenticate through the bearer token minted at verify time.
package apiServer

import (
	"log/slog"
	"net/http"

	privaterag "github.com/privaterag/privaterag"
)

type Server struct {
	mux  *http.ServeMux
	core *privaterag.Core
	log  *slog.Logger
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

func New(core *privaterag.Core, opts ...Option) *Server {
	s := &Server{
		mux:  http.NewServeMux(),
		core: core,
		log:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /auth/nonce", s.handleNonce)
	s.mux.HandleFunc("POST /auth/verify", s.handleVerify)

	s.mux.HandleFunc("GET /api/users", s.handleListUsers)
	s.mux.HandleFunc("GET /api/users/me", s.handleCurrentUser)

	s.mux.HandleFunc("GET /api/vaults", s.handleListVaults)
	s.mux.HandleFunc("POST /api/vaults", s.handleUpsertVault)
	s.mux.HandleFunc("GET /api/vaults/{docHash}", s.handleGetVault)
	s.mux.HandleFunc("PATCH /api/vaults/{docHash}", s.handleUpsertVault)
	s.mux.HandleFunc("DELETE /api/vaults/{docHash}", s.handleDeleteVault)

	s.mux.HandleFunc("POST /api/documents", s.handleUploadDocument)
	s.mux.HandleFunc("GET /api/documents/{contentHash}", s.handleDownloadDocument)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(w, r)
}
