package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/portal"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/session"
)

// portalClient returns the portal client for a session, building and logging
// one in from the cached credentials on first use.
func (s *Server) portalClient(r *http.Request) (*portal.Client, string, error) {
	id := sessionID(r)
	if id == "" {
		return nil, "", session.ErrNoSession
	}

	rec, err := s.vault.Sessions().Get(id)
	if err != nil {
		return nil, id, err
	}

	// Lookup and create under one lock so two simultaneous dashboard calls
	// share a single client (and its cookie jar) instead of racing to insert.
	s.mu.Lock()
	client, ok := s.clients[id]
	if !ok {
		client, err = portal.NewClient(rec)
		if err != nil {
			s.mu.Unlock()
			return nil, id, err
		}
		s.clients[id] = client
	}
	s.mu.Unlock()

	// Login is idempotent and serializes concurrent attempts itself.
	if err := client.Login(r.Context()); err != nil {
		return nil, id, err
	}

	return client, id, nil
}

func (s *Server) dropClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *Server) dropAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = make(map[string]*portal.Client)
}

// handleLiveData returns the current portal snapshot for an unlocked session.
func (s *Server) handleLiveData(w http.ResponseWriter, r *http.Request) {
	client, _, err := s.portalClient(r)
	if err != nil {
		s.respondPortalError(w, err)
		return
	}

	live, err := client.FetchLive(r.Context())
	if err != nil {
		s.log.Error("fetch live data", "error", err)
		s.writeError(w, http.StatusBadGateway, "portal request failed")
		return
	}

	s.writeJSON(w, http.StatusOK, live)
}

// handleHistoryData returns aggregated history rows. Fresh rows are cached in
// the local readings store; when the portal is unreachable the cached range is
// served instead. `format=csv` streams the dashboard CSV layout.
func (s *Server) handleHistoryData(w http.ResponseWriter, r *http.Request) {
	client, _, err := s.portalClient(r)
	if err != nil {
		s.respondPortalError(w, err)
		return
	}

	q := r.URL.Query()
	res, err := portal.ParseResolution(q.Get("resolution"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var start, end time.Time
	if v := q.Get("start_date"); v != "" {
		if start, err = time.Parse("2006-01-02", v); err != nil {
			s.writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("end_date"); v != "" {
		if end, err = time.Parse("2006-01-02", v); err != nil {
			s.writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
	}

	rows, fetchErr := client.FetchHistory(r.Context(), start, end, res)
	if fetchErr == nil {
		if s.readings != nil {
			if err := s.readings.Upsert(r.Context(), res, rows); err != nil {
				s.log.Warn("cache readings", "error", err)
			}
		}
	} else {
		s.log.Warn("fetch history, falling back to cache", "error", fetchErr)
		if s.readings == nil {
			s.writeError(w, http.StatusBadGateway, "portal request failed")
			return
		}
		startKey, endKey := rangeKeys(start, end)
		rows, err = s.readings.Range(r.Context(), res, startKey, endKey)
		if err != nil || len(rows) == 0 {
			s.writeError(w, http.StatusBadGateway, "portal request failed and no cached data available")
			return
		}
	}

	switch q.Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := portal.ExportCSV(w, rows); err != nil {
			s.log.Error("export csv", "error", err)
		}
	case "json":
		// Download-style export: indented, unlike the compact dashboard payload.
		w.Header().Set("Content-Type", "application/json")
		if err := portal.ExportJSON(w, rows); err != nil {
			s.log.Error("export json", "error", err)
		}
	default:
		s.writeJSON(w, http.StatusOK, rows)
	}
}

// rangeKeys converts the request window to the cache's timestamp keys,
// defaulting to the last 30 days like the portal client does.
func rangeKeys(start, end time.Time) (string, string) {
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}
	return start.Format("2006-01-02"), end.Format("2006-01-02") + "\xff"
}

func (s *Server) respondPortalError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoSession) {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	s.log.Error("portal client", "error", err)
	s.writeError(w, http.StatusBadGateway, "portal connection failed")
}
