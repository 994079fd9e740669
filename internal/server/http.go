package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status     string   `json:"status"`
	Server     string   `json:"server"`
	Uptime     string   `json:"uptime"`
	EventTypes []string `json:"event_types"`
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/votes", s.handleVotes)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	types := s.router.Types()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Server:     s.config.Server.Name,
		Uptime:     s.GetUptime().Round(time.Second).String(),
		EventTypes: names,
	})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.votes.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
