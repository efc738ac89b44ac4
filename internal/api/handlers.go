// Package api exposes the settings store to other execution contexts
// over HTTP (chi router plus an SSE change stream) and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkraev/prefsync/internal/broadcast"
	"github.com/mkraev/prefsync/internal/settings"
)

const maxSettingsBodySize = 1 << 20 // 1MB

// SettingsStore abstracts the unified accessor for the HTTP layer.
type SettingsStore interface {
	Get(ctx context.Context, key string, def any) (any, error)
	Set(ctx context.Context, items map[string]any) error
	Backend() settings.Backend
}

// DelayedWriter schedules a coalesced write instead of an immediate one.
type DelayedWriter interface {
	Set(items map[string]any)
}

// Subscriber delivers broadcast messages for the SSE stream.
type Subscriber interface {
	Subscribe() (<-chan broadcast.Message, func())
}

// Deps holds dependencies for the settings handler.
type Deps struct {
	Store     SettingsStore
	Debounced DelayedWriter
	Events    Subscriber
	Token     string
}

// NewHandler builds the settings router. Everything except /health sits
// behind bearer auth.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/backend", handleBackend(deps))
		r.Get("/settings/{key}", handleGetSetting(deps))
		r.Put("/settings", handlePutSettings(deps))
		r.Get("/events", handleEvents(deps))
	})

	return r
}

func handleBackend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"backend": deps.Store.Backend().String()})
	}
}

func handleGetSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		q := r.URL.Query()

		// The default arrives as text; the type parameter shapes it
		// before the lookup so type inference at read time still works.
		var def any = q.Get("default")
		if q.Get("type") == "number" {
			f, err := strconv.ParseFloat(q.Get("default"), 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"default %q is not a number", q.Get("default"))
				return
			}
			def = numberValue(f)
		}

		value, err := deps.Store.Get(r.Context(), key, def)
		if err != nil {
			httpError(w, http.StatusBadGateway, "backend_error", "reading %q: %v", key, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
	}
}

func handlePutSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBodySize))
		if err := dec.Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		items := make(map[string]any, len(body))
		for k, v := range body {
			switch val := v.(type) {
			case string:
				items[k] = val
			case float64:
				items[k] = numberValue(val)
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"value for %q must be a string or number", k)
				return
			}
		}

		if r.URL.Query().Get("debounce") == "true" {
			if deps.Debounced == nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"debounced writes are not enabled")
				return
			}
			deps.Debounced.Set(items)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		if err := deps.Store.Set(r.Context(), items); err != nil {
			httpError(w, http.StatusBadGateway, "backend_error", "writing settings: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "streaming_error",
				"response writer does not support streaming")
			return
		}

		msgs, cancel := deps.Events.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case msg, open := <-msgs:
				if !open {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: change\ndata: %s\n\n", msg.ID, data)
				flusher.Flush()
			}
		}
	}
}

// numberValue maps a JSON number onto the store's primitives: integral
// values become ints, everything else stays float64.
func numberValue(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		return int(f)
	}
	return f
}

// parseNumber parses text the way the HTTP and MCP surfaces accept
// numeric inputs.
func parseNumber(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return numberValue(f), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
