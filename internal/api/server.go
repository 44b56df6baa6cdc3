// Package api is the thin HTTP shell in front of the query engine: it
// binds URL templates to query.Facade operations, coerces query-string and
// path parameters, and renders the Facade's results as JSON or a streamed
// download. It owns no lookup logic of its own.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/query"
	"github.com/gorilla/mux"
)

// Config controls the listening address and CORS policy for one server.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	URLPrefix   string
}

// Server wraps an http.Server bound to a query.Facade through a mux.Router.
type Server struct {
	router *mux.Router
	server *http.Server
	facade *query.Facade
}

// NewServer builds the full route table around facade and wraps it with
// the standard middleware chain.
func NewServer(cfg Config, facade *query.Facade) *Server {
	s := &Server{
		router: mux.NewRouter(),
		facade: facade,
	}
	s.setupRoutes(cfg.URLPrefix)

	s.router.Use(corsMiddleware(cfg.CORSOrigins))
	s.router.Use(loggingMiddleware)
	s.router.Use(jsonMiddleware)

	port := cfg.Port
	if port <= 0 {
		port = 8000
	}
	addr := cfg.Host + ":" + strconv.Itoa(port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(prefix string) {
	api := s.router.PathPrefix(prefix + "/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/phenotypes", s.handleListPhenotypes).Methods("GET")
	api.HandleFunc("/phenotypes/{phenocode}", s.handleListPhenotypes).Methods("GET")
	api.HandleFunc("/top_hits", s.handleTopHits).Methods("GET")
	api.HandleFunc("/interactions", s.handleListInteractions).Methods("GET")
	api.HandleFunc("/interactions/{phenocode}", s.handleListInteractions).Methods("GET")

	api.HandleFunc("/pheno/{phenocode}/manhattan", s.handleManhattan).Methods("GET")
	api.HandleFunc("/pheno/{phenocode}/qq", s.handleQQ).Methods("GET")
	api.HandleFunc("/pheno/{phenocode}/region/{region}", s.handleRegion).Methods("GET")
	api.HandleFunc("/pheno/{phenocode}/download", s.handleDownload).Methods("GET")
	api.HandleFunc("/pheno/{phenocode}/filter", s.handleFilterVariants).Methods("GET")

	api.HandleFunc("/variant/{variant}/phewas", s.handleVariantPhewas).Methods("GET")
	api.HandleFunc("/variant/{variant}/rsid", s.handleVariantRsid).Methods("GET")
	api.HandleFunc("/variant/{variant}/nearest_genes", s.handleVariantNearestGenes).Methods("GET")

	api.HandleFunc("/gene/{gene}/associations", s.handleGeneAssociations).Methods("GET")
	api.HandleFunc("/gene/{gene}/position", s.handleGenePosition).Methods("GET")

	api.HandleFunc("/autocomplete", s.handleAutocomplete).Methods("GET")
	api.HandleFunc("/phenotypes/variants", s.handleGwasMissing).Methods("POST")

	s.router.HandleFunc(prefix+"/", s.handleRoot).Methods("GET")
}

// Start begins serving; it returns http.ErrServerClosed on a clean Shutdown.
func (s *Server) Start() error {
	log.Printf("listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight
// requests to finish or ctx to expire, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "pheweb-api",
		"description": "read-only PheWAS query API",
		"endpoints": []string{
			"/api/v1/phenotypes", "/api/v1/top_hits", "/api/v1/interactions",
			"/api/v1/pheno/{phenocode}/manhattan", "/api/v1/pheno/{phenocode}/qq",
			"/api/v1/pheno/{phenocode}/region/{region}", "/api/v1/pheno/{phenocode}/download",
			"/api/v1/pheno/{phenocode}/filter", "/api/v1/variant/{variant}/phewas",
			"/api/v1/variant/{variant}/rsid", "/api/v1/variant/{variant}/nearest_genes",
			"/api/v1/gene/{gene}/associations", "/api/v1/gene/{gene}/position",
			"/api/v1/autocomplete", "/api/v1/phenotypes/variants",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
