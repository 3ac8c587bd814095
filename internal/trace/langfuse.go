package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// LangfuseConfig describes the observability store.
type LangfuseConfig struct {
	BaseURL    string
	PublicKey  string
	SecretKey  string
	Timeout    time.Duration
	RetryMax   int
	RetryDelay time.Duration
}

// LangfuseClient fetches a session's trace history from the observability
// store after the fact. All failures degrade to an unavailable bundle so
// callers are never aborted by a flaky store.
type LangfuseClient struct {
	baseURL   string
	publicKey string
	secretKey string
	retryMax  int
	retryWait time.Duration
	http      *http.Client
	logger    *logging.Logger
}

// NewLangfuseClient validates the configuration and returns a client.
func NewLangfuseClient(cfg LangfuseConfig, logger *logging.Logger) (*LangfuseClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("trace: langfuse base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = 2
	}
	retryWait := cfg.RetryDelay
	if retryWait <= 0 {
		retryWait = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LangfuseClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		publicKey: cfg.PublicKey,
		secretKey: cfg.SecretKey,
		retryMax:  retryMax,
		retryWait: retryWait,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}, nil
}

type storeTrace struct {
	ID string `json:"id"`
}

type storeObservation struct {
	ID            string          `json:"id"`
	TraceID       string          `json:"traceId"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	Input         json.RawMessage `json:"input"`
	Output        json.RawMessage `json:"output"`
	Level         string          `json:"level"`
	StatusMessage string          `json:"statusMessage"`
	Model         string          `json:"model"`
}

// FetchBundle assembles the tool-call and generation history for one
// session. A store failure returns an unavailable bundle, never an error.
// Records flow through a Collector so the bundle carries its timestamp
// invariant no matter what the store returned.
func (c *LangfuseClient) FetchBundle(ctx context.Context, sessionID string) Bundle {
	col := NewCollector(sessionID, c.logger)

	var traces []storeTrace
	if err := c.getJSON(ctx, "/traces?sessionId="+url.QueryEscape(sessionID), &traces); err != nil {
		c.logger.Warn("trace store unreachable, degrading to empty bundle",
			"session_id", sessionID,
			"error", err,
		)
		return Bundle{
			SessionID:         sessionID,
			Unavailable:       true,
			UnavailableReason: err.Error(),
		}
	}

	var observations []storeObservation
	for _, tr := range traces {
		col.AddTrace(tr.ID)
		var obs []storeObservation
		if err := c.getJSON(ctx, "/observations?traceId="+url.QueryEscape(tr.ID), &obs); err != nil {
			c.logger.Warn("observation fetch failed, degrading to empty bundle",
				"trace_id", tr.ID,
				"error", err,
			)
			return Bundle{
				SessionID:         sessionID,
				Unavailable:       true,
				UnavailableReason: err.Error(),
			}
		}
		observations = append(observations, obs...)
	}

	// The store does not guarantee order.
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].StartTime.Before(observations[j].StartTime)
	})

	for _, o := range observations {
		// Framework-internal chain spans carry no tool semantics.
		if strings.HasPrefix(o.Name, "Runnable") {
			continue
		}
		switch o.Type {
		case "GENERATION":
			col.AppendGeneration(GenerationRecord{
				ID:        o.ID,
				Model:     o.Model,
				StartTime: o.StartTime,
				EndTime:   o.EndTime,
			})
		case "TOOL", "SPAN":
			status := StatusSuccess
			if strings.EqualFold(o.Level, "ERROR") {
				status = StatusError
			}
			col.Append(ToolCallRecord{
				ID:        o.ID,
				Tool:      o.Name,
				Input:     rawToString(o.Input),
				Output:    rawToString(o.Output),
				Status:    status,
				Error:     o.StatusMessage,
				StartTime: o.StartTime,
				EndTime:   o.EndTime,
			})
		}
	}
	return col.Bundle()
}

func (c *LangfuseClient) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryWait):
			}
		}
		lastErr = c.doGetJSON(ctx, path, out)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *LangfuseClient) doGetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("trace: request build failed: %w", err)
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trace: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("trace: read response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trace: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("trace: decode response failed: %w", err)
	}
	return nil
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
