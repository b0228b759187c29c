package sessioncache

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

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/session"
)

const maxResponseBytes = 1 << 20

// ResponseError is a failure response the client has no typed error for.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %s: %s", e.Code, e.Message)
}

// Client talks to the session endpoints of the server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Register(ctx context.Context, email, password string) (session.Payload, error) {
	return c.do(ctx, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": password})
}

func (c *Client) Login(ctx context.Context, email, password string) (session.Payload, error) {
	return c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
}

// WhoAmI fetches the current entitlement for token. The returned payload has
// an empty token.
func (c *Client) WhoAmI(ctx context.Context, token string) (session.Payload, error) {
	return c.do(ctx, http.MethodGet, "/auth/me", token, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (session.Payload, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return session.Payload{}, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return session.Payload{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return session.Payload{}, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return session.Payload{}, decodeError(resp.StatusCode, limited)
	}

	var payload session.Payload
	if err := json.NewDecoder(limited).Decode(&payload); err != nil {
		return session.Payload{}, fmt.Errorf("failed to decode session response: %w", err)
	}
	return payload, nil
}

// decodeError maps the error body back onto the typed errors callers branch on.
func decodeError(status int, r io.Reader) error {
	var body apierror.Body
	_ = json.NewDecoder(r).Decode(&body)

	respErr := &ResponseError{StatusCode: status, Code: body.Error, Message: body.Message}

	var sentinel error
	switch body.Error {
	case apierror.CodeUnauthorized:
		sentinel = model.ErrUnauthorized
	case apierror.CodeInvalidCredentials:
		sentinel = model.ErrInvalidCredentials
	case apierror.CodeDuplicateEmail:
		sentinel = model.ErrDuplicateEmail
	case apierror.CodePaymentDisabled:
		sentinel = model.ErrPaymentDisabled
	case apierror.CodeExchangeFailed:
		sentinel = model.ErrExchangeFailed
	}
	if sentinel == nil && status == http.StatusUnauthorized {
		sentinel = model.ErrUnauthorized
	}
	if sentinel == nil {
		return respErr
	}
	return fmt.Errorf("%w: %w", sentinel, respErr)
}

// IsAuthFailure reports whether err means the held token is no longer usable.
func IsAuthFailure(err error) bool {
	return errors.Is(err, model.ErrUnauthorized) || errors.Is(err, model.ErrTokenExpired)
}
