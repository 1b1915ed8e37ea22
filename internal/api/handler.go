package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NamiraNet/handoff/internal/app"
	"github.com/NamiraNet/handoff/internal/looper"
	"github.com/NamiraNet/handoff/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultCallTimeout = 2 * time.Second

// Handler serves HTTP on its own goroutines. Anything touching the board is
// posted to the foreground loop and awaited there.
type Handler struct {
	app         *app.App
	logger      *zap.Logger
	versionInfo VersionInfo
	callTimeout time.Duration
}

func NewHandler(a *app.App, logger *zap.Logger, versionInfo VersionInfo, callTimeout time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Handler{
		app:         a,
		logger:      logger,
		versionInfo: versionInfo,
		callTimeout: callTimeout,
	}
}

func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	var texts []string

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			h.logger.Error("Failed to read file", zap.Error(err))
			writeError(w, "Failed to read file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := scanner.Err(); err != nil {
			h.logger.Error("Failed to read file content", zap.Error(err))
			writeError(w, "Failed to read file content", http.StatusBadRequest)
			return
		}
		if len(texts) == 0 {
			writeError(w, "No messages in file", http.StatusBadRequest)
			return
		}
	} else {
		var req PushRequest
		// an empty body pushes a generated message
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.logger.Error("Invalid JSON", zap.Error(err))
			writeError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		texts = []string{req.Text}
	}

	keys := make([]string, 0, len(texts))
	var (
		pushErr  error
		claimed  atomic.Bool
		finished = make(chan struct{})
	)
	err := h.onLoop(r.Context(), func() {
		// whoever claims first decides: the foreground pushes or the
		// handler gives up, never both
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(finished)
		for _, text := range texts {
			var key string
			if text == "" {
				key, pushErr = h.app.Push()
			} else {
				key, pushErr = h.app.PushText(text)
			}
			if pushErr != nil {
				return
			}
			keys = append(keys, key)
		}
	})
	if err != nil {
		if claimed.CompareAndSwap(false, true) {
			h.writeLoopError(w, err)
			return
		}
		// the pushes already started on the foreground
		<-finished
	}
	if pushErr != nil {
		h.logger.Error("Failed to push message", zap.Error(pushErr))
		writeError(w, "Worker is stopped", http.StatusServiceUnavailable)
		return
	}

	resp := PushResponse{Keys: keys}
	if len(keys) == 1 {
		resp = PushResponse{Key: keys[0]}
	}
	writeJSONStatus(w, http.StatusAccepted, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var resp ListResponse
	err := h.onLoop(r.Context(), func() {
		b := h.app.Board()
		items := b.Items()
		resp.Messages = make([]MessageView, 0, len(items))
		for _, item := range items {
			resp.Messages = append(resp.Messages, newMessageView(item, "board"))
		}
		resp.Total = len(items)
		resp.Pending = b.Pending()
	})
	if err != nil {
		h.writeLoopError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var (
		view  MessageView
		found bool
	)
	err := h.onLoop(r.Context(), func() {
		if item, ok := h.app.Board().Get(key); ok {
			view, found = newMessageView(item, "board"), true
		}
	})
	if err != nil {
		h.writeLoopError(w, err)
		return
	}
	if found {
		writeJSON(w, view)
		return
	}

	rec, err := h.app.Store().Get(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "Message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to read store", zap.String("key", key), zap.Error(err))
		writeError(w, "Failed to read store", http.StatusInternalServerError)
		return
	}
	writeJSON(w, newMessageView(rec, "store"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{
		Status:  "ok",
		Version: h.versionInfo.Version,
		Build:   h.versionInfo,
		Worker:  newWorkerStatus(h.app.Worker().Stats()),
	})
}

func (h *Handler) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()
	return h.app.Loop().Call(ctx, fn)
}

func (h *Handler) writeLoopError(w http.ResponseWriter, err error) {
	h.logger.Error("Foreground call failed", zap.Error(err))
	switch {
	case errors.Is(err, looper.ErrClosed):
		writeError(w, "Shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, "Foreground is busy", http.StatusGatewayTimeout)
	default:
		writeError(w, "Request cancelled", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(MessageResponse{
		Status:  code,
		Message: message,
	}); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
