package engine

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

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

const maxResponseBytes = 1 << 20

// HTTPClient calls a remote engine at POST {baseURL}/verify.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// NewHTTPClient creates a client for the engine at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verifyRequest struct {
	VerificationID string `json:"verification_id"`
}

func (c *HTTPClient) Evaluate(ctx context.Context, verificationID id.VerificationID) (*Result, error) {
	body, err := json.Marshal(verifyRequest{VerificationID: verificationID.String()})
	if err != nil {
		return nil, NewError(ErrorBadResponse, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrorUnavailable, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewError(ErrorTimeout, "engine did not respond in time", err)
		}
		return nil, NewError(ErrorUnavailable, "engine request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewError(ErrorTimeout, "engine response cut off", err)
		}
		return nil, NewError(ErrorUnavailable, "read engine response", err)
	}
	return parseVerifyResponse(resp.StatusCode, payload)
}

func parseVerifyResponse(statusCode int, body []byte) (*Result, error) {
	switch {
	case statusCode == http.StatusGatewayTimeout || statusCode == http.StatusRequestTimeout:
		return nil, NewError(ErrorTimeout, fmt.Sprintf("engine returned %d", statusCode), nil)
	case statusCode >= 500:
		return nil, NewError(ErrorUnavailable, fmt.Sprintf("engine returned %d", statusCode), nil)
	case statusCode != http.StatusOK:
		return nil, NewError(ErrorBadResponse, fmt.Sprintf("engine returned %d", statusCode), nil)
	}

	var raw struct {
		Status  string          `json:"status"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewError(ErrorBadResponse, "malformed engine response", err)
	}
	status, err := models.ParseRequestStatus(raw.Status)
	if err != nil {
		return nil, NewError(ErrorBadResponse, "unknown engine status "+raw.Status, nil)
	}
	details := raw.Details
	if len(details) == 0 || string(details) == "null" {
		details = json.RawMessage(`{}`)
	}
	return &Result{Status: status, Details: details}, nil
}
