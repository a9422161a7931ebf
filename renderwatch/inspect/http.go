package inspect

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/renderwatch/kit"
	"github.com/hazyhaar/renderwatch/renderwatch/internal/store"
)

// RegisterHTTP mounts the read-only inspection routes under /renderwatch:
//
//	GET /renderwatch/sessions
//	GET /renderwatch/sessions/{session}/renders
//	GET /renderwatch/sessions/{session}/renders/{count}
//	GET /renderwatch/sessions/{session}/renders/{count}/markdown
//	GET /renderwatch/sessions/{session}/find?text=...&count=N
func (in *Inspector) RegisterHTTP(r chi.Router) {
	r.Route("/renderwatch", func(r chi.Router) {
		r.Use(in.requestID)

		r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
			sessions, err := in.Sessions(r.Context())
			if err != nil {
				in.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, sessions)
		})

		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Get("/renders", func(w http.ResponseWriter, r *http.Request) {
				renders, err := in.Renders(r.Context(), chi.URLParam(r, "session"))
				if err != nil {
					in.fail(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, renders)
			})

			r.Get("/renders/{count}", func(w http.ResponseWriter, r *http.Request) {
				count, ok := countParam(w, r)
				if !ok {
					return
				}
				ev, err := in.Render(r.Context(), chi.URLParam(r, "session"), count)
				if err != nil {
					in.fail(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, ev)
			})

			r.Get("/renders/{count}/markdown", func(w http.ResponseWriter, r *http.Request) {
				count, ok := countParam(w, r)
				if !ok {
					return
				}
				md, err := in.Markdown(r.Context(), chi.URLParam(r, "session"), count)
				if err != nil {
					in.fail(w, r, err)
					return
				}
				w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(md))
			})

			r.Get("/find", func(w http.ResponseWriter, r *http.Request) {
				text := r.URL.Query().Get("text")
				if text == "" {
					writeError(w, http.StatusBadRequest, errors.New("text is required"))
					return
				}
				count := queryInt(r, "count", 0)
				matches, err := in.FindText(r.Context(), chi.URLParam(r, "session"), text, count)
				if err != nil {
					in.fail(w, r, err)
					return
				}
				if matches == nil {
					matches = []TextMatch{}
				}
				writeJSON(w, http.StatusOK, matches)
			})
		})
	})
}

// requestID tags each request with an ID, echoed in X-Request-ID.
func (in *Inspector) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = in.ids()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (in *Inspector) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrNoDOM):
		writeError(w, http.StatusConflict, err)
	default:
		in.logger.Error("inspect: request failed",
			"path", r.URL.Path, "request_id", kit.GetRequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func countParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	count, err := strconv.Atoi(chi.URLParam(r, "count"))
	if err != nil || count < 1 {
		writeError(w, http.StatusBadRequest, errors.New("count must be a positive integer"))
		return 0, false
	}
	return count, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
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
