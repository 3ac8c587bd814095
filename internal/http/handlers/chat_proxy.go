package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// ChatProxyHandler forwards browser chat traffic to the agent's prediction
// endpoint. Browsers cannot call the endpoint directly because it carries no
// CORS headers; the proxy owns those instead.
type ChatProxyHandler struct {
	upstream string
	http     *http.Client
	logger   *logging.Logger
}

// NewChatProxyHandler builds a proxy for the given prediction endpoint.
func NewChatProxyHandler(upstream string, timeout time.Duration, logger *logging.Logger) *ChatProxyHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatProxyHandler{
		upstream: strings.TrimSpace(upstream),
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Handle proxies one chat request. Upstream HTTP errors pass through with
// their original status; an unreachable upstream reports 503.
func (h *ChatProxyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.upstream == "" {
		writeError(w, http.StatusServiceUnavailable, "chat upstream not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.upstream, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "proxy request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		h.logger.Warn("chat upstream unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "Service unavailable",
			"details": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("chat proxy response copy failed", "error", err)
	}
}
