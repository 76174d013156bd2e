package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

const maxBodyBytes = 10 << 20

// NewRouter exposes the handler over HTTP.
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/bulk_predict", bodyHandler(h.Batch))
	mux.HandleFunc("POST /v1/predict", bodyHandler(h.One))
	mux.HandleFunc("GET /v1/model", modelHandler(h))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

type scoreFunc func(ctx context.Context, body []byte) *Response

func bodyHandler(fn scoreFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			slog.Error("failed to read request body", "error", err)
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		resp := fn(r.Context(), body)
		slog.Debug("scoring request", "path", r.URL.Path, "status", resp.Status, "bytes", len(body))
		write(w, resp)
	}
}

func modelHandler(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		info, err := h.Model()
		if err != nil {
			slog.Error("failed to describe model", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func write(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	write(w, jsonResponse(status, v))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	write(w, errorResponse(status, msg))
}
