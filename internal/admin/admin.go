// Package admin serves the operator HTTP surface: health probes,
// schedule toggles, and guild settings. It is meant to sit behind an
// internal load balancer, not on the public internet.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/health"
	"github.com/astralis-bot/astralis/pkg/schedule"
)

// Server holds the admin surface's collaborators.
type Server struct {
	schedules *schedule.Registry
	tenants   *tenant.Service
	checks    health.Checks
	log       *slog.Logger
}

// NewServer wires the admin HTTP surface.
func NewServer(schedules *schedule.Registry, tenants *tenant.Service, checks health.Checks, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{schedules: schedules, tenants: tenants, checks: checks, log: log}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer(s.log))

	r.Get("/healthz", health.Handler(s.checks, health.WithLogger(s.log)))

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", s.listSchedules)
		r.Post("/{name}/enable", s.setSchedule(true))
		r.Post("/{name}/disable", s.setSchedule(false))
	})

	r.Route("/guilds/{guildID}/settings", func(r chi.Router) {
		r.Get("/", s.getSettings)
		r.Put("/", s.putSettings)
	})

	return r
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.schedules.Statuses(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "list schedules failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": statuses})
}

func (s *Server) setSchedule(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		err := s.schedules.SetEnabled(r.Context(), name, enabled)
		if errors.Is(err, schedule.ErrUnknownSchedule) {
			writeError(w, http.StatusNotFound, "unknown schedule")
			return
		}
		if err != nil {
			s.log.ErrorContext(r.Context(), "schedule toggle failed",
				slog.String("name", name), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to update schedule")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
	}
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	settings, err := s.tenants.Settings(r.Context(), guildID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "load settings failed",
			slog.String("guild_id", guildID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var settings tenant.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "malformed settings body")
		return
	}
	settings.GuildID = guildID

	if err := s.tenants.Save(r.Context(), settings); err != nil {
		s.log.ErrorContext(r.Context(), "save settings failed",
			slog.String("guild_id", guildID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
