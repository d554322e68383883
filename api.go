package pricewatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pricewatch/internal/store"
)

// Routes returns the HTTP API.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/items", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			items, err := s.ListItems(r.Context())
			if err != nil {
				apiError(w, err)
				return
			}
			if items == nil {
				items = []*Item{}
			}
			writeJSON(w, 200, items)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var it Item
			if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
				writeError(w, 400, err)
				return
			}
			it.IsActive = true
			if err := s.AddItem(r.Context(), &it); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 201, &it)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			it, err := s.GetItem(r.Context(), id)
			if err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, it)
		})

		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			// Decode over the current record so omitted fields keep
			// their values.
			it, err := s.GetItem(r.Context(), id)
			if err != nil {
				apiError(w, err)
				return
			}
			if err := json.NewDecoder(r.Body).Decode(it); err != nil {
				writeError(w, 400, err)
				return
			}
			it.ID = id
			if err := s.UpdateItem(r.Context(), it); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, it)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			if err := s.DeleteItem(r.Context(), id); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})

		r.Post("/{id}/check", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			if err := s.TriggerCheck(r.Context(), id); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 202, map[string]string{"status": "queued"})
		})

		r.Get("/{id}/history", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			hist, err := s.History(r.Context(), id, queryInt(r, "limit", 100))
			if err != nil {
				apiError(w, err)
				return
			}
			if hist == nil {
				hist = []*HistoryEntry{}
			}
			writeJSON(w, 200, hist)
		})
	})

	r.Route("/api/notification-profiles", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			profiles, err := s.ListProfiles(r.Context())
			if err != nil {
				apiError(w, err)
				return
			}
			if profiles == nil {
				profiles = []*Profile{}
			}
			writeJSON(w, 200, profiles)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var p Profile
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := s.AddProfile(r.Context(), &p); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 201, &p)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			p, err := s.GetProfile(r.Context(), id)
			if err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, p)
		})

		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			var p Profile
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				writeError(w, 400, err)
				return
			}
			p.ID = id
			if err := s.UpdateProfile(r.Context(), &p); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, &p)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pathID(r)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			if err := s.DeleteProfile(r.Context(), id); err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
	})

	r.Get("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.Settings(r.Context())
		if err != nil {
			apiError(w, err)
			return
		}
		writeJSON(w, 200, settings)
	})

	r.Post("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		var values map[string]string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := s.UpdateSettings(r.Context(), values); err != nil {
			apiError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/refresh-all", func(w http.ResponseWriter, r *http.Request) {
			n, err := s.RefreshAll(r.Context())
			if err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 202, map[string]int{"queued": n})
		})

		r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
			settings, err := s.Settings(r.Context())
			if err != nil {
				apiError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{
				"tick_interval":            s.cfg.Heartbeat.TickInterval.String(),
				"max_concurrent":           s.cfg.Heartbeat.MaxConcurrent,
				"refresh_interval_minutes": store.SettingInt(settings, "refresh_interval_minutes", 60),
			})
		})
	})

	return r
}

func apiError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrProfileNotFound):
		writeError(w, 404, err)
	case errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrBlockedURL):
		writeError(w, 400, err)
	default:
		writeError(w, 500, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
