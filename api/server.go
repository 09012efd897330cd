package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/sessionrelay/game/service"
	"github.com/wricardo/sessionrelay/game/state"
)

// Options wires the non-REST handlers mounted on the same router
type Options struct {
	WebSocket http.Handler // mounted at /ws
	MCP       http.Handler // mounted at /mcp
	StaticDir string       // served at /, skipped when empty
	Logger    *zap.Logger
}

// Server represents the REST API server
type Server struct {
	service service.RelayService
	opts    Options
	log     *zap.Logger
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(relay service.RelayService, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		service: relay,
		opts:    opts,
		log:     log,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes. The relay state is read-only over
// HTTP; mutations only arrive as WebSocket frames.
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/players", s.handleListPlayers).Methods("GET")
	api.HandleFunc("/players/{id}", s.handleGetPlayer).Methods("GET")
	api.HandleFunc("/entities", s.handleListEntities).Methods("GET")
	api.HandleFunc("/entities/{id}", s.handleGetEntity).Methods("GET")
	api.HandleFunc("/authority", s.handleAuthority).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	if s.opts.WebSocket != nil {
		s.router.Handle("/ws", s.opts.WebSocket)
	}
	if s.opts.MCP != nil {
		s.router.PathPrefix("/mcp").Handler(s.opts.MCP)
	}

	// Must stay last; it matches everything
	if s.opts.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrPlayerNotFound), errors.Is(err, service.ErrEntityNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Snapshot(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type playerEntry struct {
	ID string `json:"id"`
	state.PlayerState
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Snapshot(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	players := make([]playerEntry, 0, len(view.Players))
	for id, p := range view.Players {
		players = append(players, playerEntry{ID: id, PlayerState: p})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(players),
		"players": players,
	})
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	player, err := s.service.Player(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, playerEntry{ID: id, PlayerState: *player})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Snapshot(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	entities := make([]state.EntityState, 0, len(view.Entities))
	for _, e := range view.Entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(entities),
		"entities": entities,
	})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := s.service.Entity(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

func (s *Server) handleAuthority(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Authority(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
