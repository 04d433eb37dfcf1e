// Package remote is the HTTP client for the Edil-Check backup server.
//
// The client mirrors the local store's collections. Every authenticated
// request carries the account credentials in the X-User-Email and
// X-User-Password headers; there is no session state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
)

// Header names carrying the credentials on every request.
const (
	HeaderEmail    = "X-User-Email"
	HeaderPassword = "X-User-Password"
)

// ErrCredentialsNotSet is returned by every authenticated call made before
// SetCredentials.
var ErrCredentialsNotSet = errors.New("credentials not set")

// Error is a failed request. Message is meant for the user: the server's
// error text when it sent one, else the HTTP status text, else a
// connection failure notice.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// transport handles low-level HTTP and authentication
type transport struct {
	baseURL    string
	addr       string
	httpClient *http.Client

	mu       sync.RWMutex
	email    string
	password string
}

func newTransport(host string, port int) *transport {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return &transport{
		baseURL:    "http://" + addr,
		addr:       addr,
		httpClient: &http.Client{},
	}
}

func (t *transport) setCredentials(email, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.email = email
	t.password = password
}

func (t *transport) credentials() (string, string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.email, t.password, t.email != "" && t.password != ""
}

// do sends a JSON request and decodes a JSON response into out. When auth is
// set the call fails fast without credentials.
func (t *transport) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if auth {
		email, password, ok := t.credentials()
		if !ok {
			return ErrCredentialsNotSet
		}
		req.Header.Set(HeaderEmail, email)
		req.Header.Set(HeaderPassword, password)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &Error{
			Message: fmt.Sprintf("cannot connect to backup server at %s", t.addr),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage prefers the server's {"error": "..."} text over the status
// text.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}
