package scheduler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the HTTP surface: a health check, the last run status and a
// manual trigger.
func (s *Scheduler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthCheck)
	r.Get("/status", s.handleStatus)
	r.Post("/run", s.handleRun)

	return r
}

// NewServer wraps the routes in an http.Server listening on addr.
func (s *Scheduler) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Scheduler) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.Status())
}

// handleRun runs synchronously and returns the report. The run is detached
// from the request context so a client disconnect does not abort delivery.
func (s *Scheduler) handleRun(w http.ResponseWriter, r *http.Request) {
	log.Println("Run triggered via HTTP")

	report, err := s.RunOnce(s.ctx)
	switch {
	case errors.Is(err, ErrBusy):
		respondWithJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		respondWithJSON(w, http.StatusOK, report)
	}
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal JSON response: %v", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}
