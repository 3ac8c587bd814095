package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport marks a network-level failure talking to the agent endpoint
// after retries were exhausted. Callers must surface it distinctly from goal
// failures so flaky infrastructure is never conflated with an agent defect.
var ErrTransport = errors.New("agent: transport failure")

// Config describes how to reach the agent under test.
type Config struct {
	Endpoint      string
	Timeout       time.Duration
	RetryMax      int
	RetryDelay    time.Duration
	PayloadMarker string
}

// Client talks to the Flowise prediction endpoint that hosts the booking agent.
type Client struct {
	endpoint      string
	retryMax      int
	retryDelay    time.Duration
	payloadMarker string
	http          *http.Client
}

// NewClient validates the configuration and returns a ready-to-use client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("agent: endpoint required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retryMax := cfg.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	marker := cfg.PayloadMarker
	if marker == "" {
		marker = "PAYLOAD:"
	}
	return &Client{
		endpoint:      strings.TrimSpace(cfg.Endpoint),
		retryMax:      retryMax,
		retryDelay:    retryDelay,
		payloadMarker: marker,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Reply is one agent response.
type Reply struct {
	// Text is the full agent utterance, payload block included.
	Text string
	// Spoken is the utterance with any structured payload block removed;
	// this is what the classifier should see.
	Spoken string
	// Payload is the decoded structured block, when present and valid.
	Payload json.RawMessage
	// PayloadAnomaly is set when the marker was present but the block did
	// not parse. A classification-input anomaly, not a fatal error.
	PayloadAnomaly string
	// Latency is the wall-clock duration of the successful request.
	Latency time.Duration
}

type predictionRequest struct {
	Question       string `json:"question"`
	OverrideConfig struct {
		SessionID string `json:"sessionId"`
	} `json:"overrideConfig"`
}

type predictionResponse struct {
	Text string `json:"text"`
}

// Ask sends one user utterance to the agent and returns its reply. Transport
// failures (connection errors, 5xx) are retried up to RetryMax times before
// the call fails with ErrTransport.
func (c *Client) Ask(ctx context.Context, sessionID, question string) (*Reply, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("agent: session id required")
	}

	reqBody := predictionRequest{Question: question}
	reqBody.OverrideConfig.SessionID = sessionID
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("agent: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		start := time.Now()
		reply, retryable, err := c.doAsk(ctx, payload)
		if err == nil {
			reply.Latency = time.Since(start)
			return reply, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTransport, lastErr)
}

func (c *Client) doAsk(ctx context.Context, payload []byte) (*Reply, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("agent: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("agent: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("agent: read response failed: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("agent: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("agent: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var decoded predictionResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false, fmt.Errorf("agent: decode response failed: %w", err)
	}

	reply := &Reply{Text: decoded.Text}
	reply.Spoken, reply.Payload, reply.PayloadAnomaly = extractPayload(decoded.Text, c.payloadMarker)
	return reply, false, nil
}

// extractPayload splits a structured block off the utterance. The block is
// everything after the marker, expected to be a single JSON value.
func extractPayload(text, marker string) (spoken string, payload json.RawMessage, anomaly string) {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return text, nil, ""
	}

	spoken = strings.TrimSpace(text[:idx])
	block := strings.TrimSpace(text[idx+len(marker):])
	if block == "" {
		return spoken, nil, "payload marker present but block is empty"
	}

	if json.Valid([]byte(block)) {
		return spoken, json.RawMessage(block), ""
	}

	// The agent sometimes appends prose after the block; salvage the widest
	// brace-delimited candidate before giving up.
	start := strings.Index(block, "{")
	end := strings.LastIndex(block, "}")
	if start >= 0 && end > start {
		candidate := block[start : end+1]
		if json.Valid([]byte(candidate)) {
			return spoken, json.RawMessage(candidate), ""
		}
	}
	return spoken, nil, "payload block is not valid JSON"
}
