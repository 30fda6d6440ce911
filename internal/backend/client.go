// Package backend builds requests against the remote dashboard API.
package backend

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

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/session"
	"mps-dashboard/internal/token"
)

const maxLoginBody = 1 << 20

var ErrInvalidCredentials = errors.New("invalid credentials")

// forwardedHeaders are copied from the incoming request onto backend calls.
var forwardedHeaders = []string{"Content-Type", "Accept", "Accept-Language", "X-Request-ID"}

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Request returns a CallFunc for one backend endpoint. body is kept as
// bytes so the call can be replayed after a token refresh.
func (c *Client) Request(method string, path string, query url.Values, body []byte, header http.Header) authcall.CallFunc {
	target := c.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return func(ctx context.Context, accessToken string) (*http.Response, error) {
		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("build backend request: %w", err)
		}

		for _, name := range forwardedHeaders {
			if v := header.Get(name); v != "" {
				req.Header.Set(name, v)
			}
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		return c.http.Do(req)
	}
}

// Login exchanges credentials for a token pair and the user's identity.
// An identifier containing "@" is sent as email.
func (c *Client) Login(ctx context.Context, identifier string, password string) (token.Pair, session.Record, error) {
	payload := map[string]string{"password": password}
	if strings.Contains(identifier, "@") {
		payload["email"] = identifier
	} else {
		payload["username"] = identifier
	}

	status, header, body, err := c.postJSON(ctx, "/auth/login", payload)
	if err != nil {
		return token.Pair{}, session.Record{}, err
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return token.Pair{}, session.Record{}, fmt.Errorf("%w: %w", ErrInvalidCredentials,
			&authcall.BackendError{StatusCode: status, Header: header, Body: body})
	case status < 200 || status > 299:
		return token.Pair{}, session.Record{}, &authcall.BackendError{StatusCode: status, Header: header, Body: body}
	}

	pair, ok := token.ExtractPair(body)
	if !ok {
		return token.Pair{}, session.Record{}, errors.New("login response carried no access token")
	}

	record, err := parseUser(body)
	if err != nil {
		return token.Pair{}, session.Record{}, err
	}
	if record.Username == "" && !strings.Contains(identifier, "@") {
		record.Username = identifier
	}
	if record.Email == "" && strings.Contains(identifier, "@") {
		record.Email = identifier
	}

	return pair, record, nil
}

// Logout returns a CallFunc revoking the session on the backend. Callers
// clear cookies regardless of its result.
func (c *Client) Logout(refreshToken string) authcall.CallFunc {
	body := []byte("{}")
	if refreshToken != "" {
		body, _ = json.Marshal(map[string]string{"refreshToken": refreshToken})
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return c.Request(http.MethodPost, "/auth/logout", nil, body, header)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (int, http.Header, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %w", authcall.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: read body: %w", authcall.ErrTransport, err)
	}

	return resp.StatusCode, resp.Header.Clone(), body, nil
}
