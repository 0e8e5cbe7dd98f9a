package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/storage"
)

type Server struct {
	DB       *storage.DB
	Username string
	Password string

	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Trigger, when set, receives a request for an extra pass on
	// POST /api/trigger.
	Trigger chan<- struct{}
}

func New(db *storage.DB, user, pass string) *Server {
	return &Server{
		DB:       db,
		Username: user,
		Password: pass,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/results", s.basicAuth(s.handleResults))
	mux.HandleFunc("GET /api/keys", s.basicAuth(s.handleKeys))
	mux.HandleFunc("GET /api/settings", s.basicAuth(s.handleSettings))
	mux.HandleFunc("POST /api/results/{id}/verdict", s.basicAuth(s.handleSetVerdict))
	mux.HandleFunc("POST /api/trigger", s.basicAuth(s.handleTrigger))

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", s.basicAuthMiddleware(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return s.basicAuthMiddleware(next).ServeHTTP
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
