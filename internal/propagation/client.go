package propagation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/thedevsaddam/gojsonq/v2"

	"infosync/internal/wire"
	"infosync/pkg/domain"
	"infosync/pkg/requestcontext"
)

const maxResponseBytes = 1 << 20

// FailureCategory normalizes why a remote call did not produce a result.
type FailureCategory string

const (
	FailureTimeout   FailureCategory = "timeout"
	FailureNetwork   FailureCategory = "network"
	FailureOutage    FailureCategory = "outage"
	FailureStatus    FailureCategory = "bad_status"
	FailureMalformed FailureCategory = "malformed_response"
	FailureRejected  FailureCategory = "rejected"
)

// CallError is a remote call that failed before a result could be read.
type CallError struct {
	Category   FailureCategory
	Message    string
	Underlying error
	Retryable  bool
}

func (e *CallError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Underlying
}

func newCallError(category FailureCategory, message string, underlying error) *CallError {
	return &CallError{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == FailureTimeout || category == FailureNetwork || category == FailureOutage,
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// TokenSigner issues the bearer token a peer expects.
type TokenSigner interface {
	Sign(audience domain.System) (string, error)
}

// Client posts mutations to peers' /graphql/ endpoint.
type Client struct {
	http   *http.Client
	signer TokenSigner
}

type ClientOption func(*Client)

func WithTokenSigner(s TokenSigner) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

// NewClient returns a client whose calls never outlive timeout.
func NewClient(timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint returns the mutation endpoint under a peer's base URL.
func endpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/graphql/"
}

// Call sends mutation with input and reads back its success and message.
// A readable result with success=false is returned without error.
func (c *Client) Call(ctx context.Context, baseURL string, audience domain.System, mutation string, input any) (wire.Result, error) {
	envelope, err := wire.NewRequest(mutation, input)
	if err != nil {
		return wire.Result{}, newCallError(FailureMalformed, "encode request", err)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return wire.Result{}, newCallError(FailureMalformed, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL), bytes.NewReader(body))
	if err != nil {
		return wire.Result{}, newCallError(FailureNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if c.signer != nil {
		token, err := c.signer.Sign(audience)
		if err != nil {
			return wire.Result{}, newCallError(FailureRejected, "sign service token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wire.Result{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return wire.Result{}, classifyTransportError(ctx, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return wire.Result{}, newCallError(FailureOutage, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return wire.Result{}, newCallError(FailureStatus, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return parseResult(string(raw), mutation)
}

// parseResult extracts data.<mutation>.success and message. Each lookup uses
// a fresh query because gojsonq keeps its cursor between calls.
func parseResult(body, mutation string) (wire.Result, error) {
	if err := gojsonq.New().JSONString(body).Error(); err != nil {
		return wire.Result{}, newCallError(FailureMalformed, "response is not JSON", err)
	}

	if errs, ok := gojsonq.New().JSONString(body).Find("errors").([]interface{}); ok && len(errs) > 0 {
		msg := "remote error"
		if first, ok := errs[0].(map[string]interface{}); ok {
			if m, ok := first["message"].(string); ok && m != "" {
				msg = m
			}
		}
		return wire.Result{}, newCallError(FailureRejected, msg, nil)
	}

	success, ok := gojsonq.New().JSONString(body).Find("data." + mutation + ".success").(bool)
	if !ok {
		return wire.Result{}, newCallError(FailureMalformed, "response has no data."+mutation+".success", nil)
	}
	message, _ := gojsonq.New().JSONString(body).Find("data." + mutation + ".message").(string)
	return wire.Result{Success: success, Message: message}, nil
}

func classifyTransportError(ctx context.Context, err error) *CallError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newCallError(FailureTimeout, "call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newCallError(FailureTimeout, "call timed out", err)
	}
	return newCallError(FailureNetwork, "call failed", err)
}
