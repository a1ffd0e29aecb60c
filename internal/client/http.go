// Package client talks to a lessoncast server over HTTP: the remote session
// store, the lesson source and the hub's channel and receiver API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

const defaultTimeout = 10 * time.Second

// ErrForbidden is returned when a write is attempted without the session's
// writer key.
var ErrForbidden = errors.New("not the session writer")

// TransientError wraps failures that may succeed on retry: network errors,
// timeouts and server-side errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

// HTTPClient makes REST calls to a lessoncast server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) Token() string { return c.token }

// Info is the server's self description.
type Info struct {
	PublicURL string `json:"publicUrl"`
	Instance  string `json:"instance"`
}

// Info fetches /api/info.
func (c *HTTPClient) Info(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.get(ctx, "/api/info", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublicBase returns the base URL share links are built on, falling back to
// the server URL when the server does not advertise one.
func (c *HTTPClient) PublicBase(ctx context.Context) string {
	info, err := c.Info(ctx)
	if err != nil || info.PublicURL == "" {
		return c.baseURL
	}
	return info.PublicURL
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, header http.Header, out interface{}) error {
	op := method + " " + path
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding body: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &TransientError{Op: op, Err: serr}
		}
		return serr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set(protocol.TokenHeader, c.token)
	}
}

func statusCode(err error) int {
	var s *StatusError
	if errors.As(err, &s) {
		return s.Code
	}
	return 0
}

func escape(id string) string { return url.PathEscape(id) }
