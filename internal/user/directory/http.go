package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"auth-session/backend/internal/user/domain"
)

// maxResponseBytes bounds how much of a directory response is read.
const maxResponseBytes = 1 << 20

// HTTPClient talks to the user directory over HTTP. Every call is bounded by timeout.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClient returns a directory client for baseURL (e.g. http://users:3000).
// timeout <= 0 defaults to 5s.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// CreateUser implements Directory. POST {base}/users.
func (c *HTTPClient) CreateUser(ctx context.Context, in domain.CreateUserInput) (*domain.User, error) {
	var u domain.User
	status, err := c.do(ctx, "create user", http.MethodPost, "/users", in, &u)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusConflict:
		return nil, ErrConflict
	case status < 200 || status >= 300:
		return nil, &StatusError{Op: "create user", StatusCode: status}
	}
	return &u, nil
}

// FindByEmail implements Directory. GET {base}/users/email/{email}.
func (c *HTTPClient) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return c.findUser(ctx, "find user by email", "/users/email/"+url.PathEscape(email))
}

// FindByID implements Directory. GET {base}/users/{id}.
func (c *HTTPClient) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return c.findUser(ctx, "find user by id", "/users/"+url.PathEscape(id))
}

func (c *HTTPClient) findUser(ctx context.Context, op, path string) (*domain.User, error) {
	var u domain.User
	status, err := c.do(ctx, op, http.MethodGet, path, nil, &u)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status < 200 || status >= 300:
		return nil, &StatusError{Op: op, StatusCode: status}
	}
	if u.ID == "" {
		// Some directory versions answer 200 with an empty body for unknown users.
		return nil, nil
	}
	return &u, nil
}

// ValidateCredentials implements Directory. POST {base}/users/validate-credentials.
// The directory may answer with a JSON boolean, {"valid": bool}, or the user id.
func (c *HTTPClient) ValidateCredentials(ctx context.Context, email, password string) (bool, error) {
	var raw json.RawMessage
	body := map[string]string{"email": email, "password": password}
	status, err := c.do(ctx, "validate credentials", http.MethodPost, "/users/validate-credentials", body, &raw)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized,
		status == http.StatusForbidden, status == http.StatusNotFound:
		return false, nil
	case status < 200 || status >= 300:
		return false, &StatusError{Op: "validate credentials", StatusCode: status}
	}
	return parseValidation(raw), nil
}

func parseValidation(raw json.RawMessage) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	var obj struct {
		Valid *bool `json:"valid"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Valid != nil {
		return *obj.Valid
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s != "" && s != "false"
	}
	return false
}

// do sends a JSON request and decodes a 2xx JSON response into out. It returns the HTTP status;
// a non-nil error means the call itself failed (transport, timeout, undecodable body).
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &upstreamError{op: op, err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, &upstreamError{op: op, err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return 0, &upstreamError{op: op, err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.StatusCode, nil
}
