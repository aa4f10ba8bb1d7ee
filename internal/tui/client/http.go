package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient makes REST calls to the minebot control API.
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
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

// GetStatus fetches /api/status.
func (c *HTTPClient) GetStatus() (*Snapshot, error) {
	var s Snapshot
	if err := c.do(http.MethodGet, "/api/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Start sends POST /api/start.
func (c *HTTPClient) Start(req StartRequest) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(http.MethodPost, "/api/start", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Stop sends POST /api/stop.
func (c *HTTPClient) Stop() (*Snapshot, error) {
	var s Snapshot
	if err := c.do(http.MethodPost, "/api/stop", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Chat sends POST /api/chat. A rejected message is reported through the
// result rather than an error; err is set only when no result came back.
func (c *HTTPClient) Chat(message string) (ChatResult, error) {
	var res ChatResult
	err := c.do(http.MethodPost, "/api/chat", map[string]string{"message": message}, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if res.Error == "" {
			res.Error = apiErr.Message
		}
		if res.Error != "" {
			res.Success = false
			return res, nil
		}
	}
	return res, err
}

// GetEvents fetches the newest journal entries, newest first.
func (c *HTTPClient) GetEvents(limit int) ([]Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Entry
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats fetches /api/stats.
func (c *HTTPClient) GetStats() (*Stats, error) {
	var s Stats
	if err := c.do(http.MethodGet, "/api/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// do performs the request and decodes the JSON response into out. On a
// non-2xx response the body is still decoded into out when it parses, and an
// *APIError is returned.
func (c *HTTPClient) do(method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		if out != nil {
			json.Unmarshal(data, out)
		}
		return &APIError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// errorMessage extracts {"error": "..."} from a response body, falling back
// to the trimmed text.
func errorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
