package utils

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
)

const DefaultHerokuBaseURL = "https://api.heroku.com"

var ErrUnauthorized = errors.New("heroku: unauthorized")

// APIError is a non-2xx answer from the Platform API.
type APIError struct {
	Status  int    `json:"-"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("heroku: status %d", e.Status)
	}
	return fmt.Sprintf("heroku: status %d: %s (%s)", e.Status, e.Message, e.ID)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type HerokuApp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	WebURL    string    `json:"web_url"`
	CreatedAt time.Time `json:"created_at"`
}

type HerokuAccount struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// HerokuClient talks to the Platform API. The key is passed per call
// because callers rotate through a pool of keys.
type HerokuClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHerokuClient(baseURL string, timeout time.Duration) *HerokuClient {
	if baseURL == "" {
		baseURL = DefaultHerokuBaseURL
	}
	return &HerokuClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *HerokuClient) CreateApp(ctx context.Context, apiKey, name string) (*HerokuApp, error) {
	var app HerokuApp
	if err := c.do(ctx, apiKey, http.MethodPost, "/apps", map[string]string{"name": name}, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *HerokuClient) DeleteApp(ctx context.Context, apiKey, name string) error {
	return c.do(ctx, apiKey, http.MethodDelete, "/apps/"+url.PathEscape(name), nil, nil)
}

func (c *HerokuClient) GetApp(ctx context.Context, apiKey, name string) (*HerokuApp, error) {
	var app HerokuApp
	if err := c.do(ctx, apiKey, http.MethodGet, "/apps/"+url.PathEscape(name), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *HerokuClient) ListApps(ctx context.Context, apiKey string) ([]HerokuApp, error) {
	var apps []HerokuApp
	if err := c.do(ctx, apiKey, http.MethodGet, "/apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *HerokuClient) GetConfigVars(ctx context.Context, apiKey, app string) (map[string]string, error) {
	vars := map[string]string{}
	if err := c.do(ctx, apiKey, http.MethodGet, "/apps/"+url.PathEscape(app)+"/config-vars", nil, &vars); err != nil {
		return nil, err
	}
	return vars, nil
}

// PatchConfigVars merges vars into the app config. A nil value removes the key.
func (c *HerokuClient) PatchConfigVars(ctx context.Context, apiKey, app string, vars map[string]*string) (map[string]string, error) {
	out := map[string]string{}
	if err := c.do(ctx, apiKey, http.MethodPatch, "/apps/"+url.PathEscape(app)+"/config-vars", vars, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HerokuClient) GetAccount(ctx context.Context, apiKey string) (*HerokuAccount, error) {
	var acc HerokuAccount
	if err := c.do(ctx, apiKey, http.MethodGet, "/account", nil, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *HerokuClient) do(ctx context.Context, apiKey, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("heroku: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("heroku: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.heroku+json; version=3")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("heroku %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("heroku: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("heroku: parse response: %w", err)
	}
	return nil
}
