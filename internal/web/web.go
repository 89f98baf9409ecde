package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"termcal/internal/calendar"
	"termcal/internal/config"
	appLog "termcal/internal/log"
	"termcal/internal/model"
	"termcal/internal/resolver"
)

// EventResolver is the part of resolver.Resolver the server needs.
type EventResolver interface {
	EventsForDate(ctx context.Context, d calendar.Date) ([]model.Event, error)
	EventsForGrid(ctx context.Context, grid calendar.Grid) (map[calendar.Date][]model.Event, error)
}

// Server exposes the month grid and per-day events as a small JSON API.
type Server struct {
	cfg      *config.Config
	resolver EventResolver
	loc      *time.Location
	now      func() time.Time
	mux      *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, r EventResolver) *Server {
	s := &Server{
		cfg:      cfg,
		resolver: r,
		loc:      cfg.Location(),
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		appLog.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials are treated as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="termcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/grid", s.handleGrid)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of an event.
type eventDTO struct {
	// ID is unique per occurrence; recurring events share UID.
	ID          string     `json:"id"`
	UID         string     `json:"uid"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	URL         string     `json:"url,omitempty"`
	Status      string     `json:"status,omitempty"`
	AllDay      bool       `json:"all_day"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

type dayDTO struct {
	Date    calendar.Date `json:"date"`
	InMonth bool          `json:"in_month"`
	Events  []eventDTO    `json:"events"`
}

type gridResponse struct {
	Year     int        `json:"year"`
	Month    int        `json:"month"`
	Timezone string     `json:"timezone"`
	Weeks    [][]dayDTO `json:"weeks"`
}

type eventsResponse struct {
	Date   calendar.Date `json:"date"`
	Events []eventDTO    `json:"events"`
}

// handleGrid returns the month grid with the events of every day.
//
// GET /api/grid?year=2024&month=3
//   - year / month default to the current month in the configured timezone.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	today := calendar.DateOf(s.now().In(s.loc))
	q := r.URL.Query()

	year, err := parseIntDefault(q.Get("year"), today.Year)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	monthN, err := parseIntDefault(q.Get("month"), int(today.Month))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}
	month := time.Month(monthN)
	if err := calendar.ValidateMonth(year, month); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	grid := calendar.MonthGrid(year, month)
	byDate, err := s.resolver.EventsForGrid(r.Context(), grid)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	resp := gridResponse{
		Year:     year,
		Month:    int(month),
		Timezone: s.loc.String(),
	}
	for _, week := range grid.Weeks() {
		days := make([]dayDTO, 0, len(week))
		for _, d := range week {
			days = append(days, dayDTO{
				Date:    d,
				InMonth: d.Year == year && d.Month == month,
				Events:  toDTOs(byDate[d]),
			})
		}
		resp.Weeks = append(resp.Weeks, days)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents returns the events covering one date.
//
// GET /api/events?date=2024-03-10
//   - date defaults to today in the configured timezone.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	d := calendar.DateOf(s.now().In(s.loc))
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := calendar.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		d = parsed
	}

	events, err := s.resolver.EventsForDate(r.Context(), d)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Date: d, Events: toDTOs(events)})
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case resolver.IsFetchError(err):
		appLog.Error("api: event fetch failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch calendar feed")
	case errors.Is(err, calendar.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api: resolve failed", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve events")
	}
}

func toDTOs(events []model.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		dto := eventDTO{
			ID:          e.InstanceKey,
			UID:         e.UID,
			Summary:     e.ShortDescription(),
			Description: e.Description,
			Location:    e.Location,
			URL:         e.URL,
			Status:      e.Status.String(),
			AllDay:      e.AllDay,
		}
		if e.HasStart() {
			start := e.Start
			dto.Start = &start
		}
		if e.HasEnd() {
			end := e.End
			dto.End = &end
		}
		out = append(out, dto)
	}
	return out
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
