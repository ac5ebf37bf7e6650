package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keystone-labs/idemgw"
	"github.com/keystone-labs/idemgw/internal/logging"

	// Register gateway metrics before /metrics is mounted.
	_ "github.com/keystone-labs/idemgw/internal/metrics"
	"github.com/keystone-labs/idemgw/internal/requestlog"
	"github.com/keystone-labs/idemgw/store"
)

// newRouter builds the HTTP router.
func newRouter(coord *idemgw.Coordinator, st store.Store, cfg idemgw.Config, corsOrigins []string, audit requestlog.Writer) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/requests", requestsHandler(coord, cfg, audit))
	r.Get("/v1/records/{key}", getRecordHandler(st))
	r.Delete("/v1/records/{key}", deleteRecordHandler(st))

	return r
}

// requestsHandler runs the demo operation exactly once per idempotency
// key and replays the persisted response for duplicates.
func requestsHandler(coord *idemgw.Coordinator, cfg idemgw.Config, audit requestlog.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable request body")
			return
		}

		key, err := coord.Resolver().Resolve(r.Header, body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := coord.Execute(r.Context(), key, func(_ context.Context) ([]byte, error) {
			return processRequest(key)
		})
		writeAudit(r.Context(), audit, key, res, err)
		if err != nil {
			switch {
			case errors.Is(err, idemgw.ErrInProgress):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, idemgw.ErrStoreUnavailable):
				logging.FromContext(r.Context()).Error("record store failure", "key", key, "error", err)
				writeError(w, http.StatusInternalServerError, "record store unavailable")
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		idemgw.WriteConditional(w, r, withCachedFlag(res.Payload, res.Cached), cfg.TTLSeconds)
	}
}

// writeAudit records the execution outcome off the request path.
func writeAudit(ctx context.Context, audit requestlog.Writer, key string, res idemgw.Result, execErr error) {
	entry := requestlog.Entry{
		TraceID: logging.TraceIDFromContext(ctx),
		Key:     key,
		Cached:  res.Cached,
	}
	switch {
	case execErr == nil && res.Cached:
		entry.Outcome = "cached"
	case execErr == nil:
		entry.Outcome = "fresh"
	case errors.Is(execErr, idemgw.ErrInProgress):
		entry.Outcome = "conflict"
		entry.ErrorMessage = execErr.Error()
	default:
		entry.Outcome = "error"
		entry.ErrorMessage = execErr.Error()
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := audit.Write(writeCtx, entry); err != nil {
			logging.Logger.Warn("audit write failed", "key", key, "error", err)
		}
	}()
}

// processRequest is the wrapped business logic: a stand-in payment-style
// operation whose response is persisted per key.
func processRequest(key string) ([]byte, error) {
	return json.Marshal(map[string]string{
		"message":   "Processed",
		"requestId": key,
		"paymentId": idemgw.GenerateKey(),
	})
}

func getRecordHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		rec, err := st.Get(r.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no record for key")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "record store unavailable")
			return
		}

		// Introspection only: the stored payload is not exposed here.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":        rec.ID,
			"status":    rec.Status,
			"createdAt": rec.CreatedAt.UTC().Format(time.RFC3339),
			"expiresAt": rec.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}

// deleteRecordHandler force-releases a record, e.g. one stuck INPROGRESS
// after a crashed worker. The owner check is bypassed deliberately.
func deleteRecordHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		rec, err := st.Get(r.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no record for key")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "record store unavailable")
			return
		}
		if err := st.Delete(r.Context(), key, rec.Owner); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to release record")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// withCachedFlag injects the cached indicator into a JSON object
// envelope. Non-object payloads are returned as-is.
func withCachedFlag(payload []byte, cached bool) []byte {
	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return payload
	}
	body["cached"] = cached
	out, err := json.Marshal(body)
	if err != nil {
		return payload
	}
	return out
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
