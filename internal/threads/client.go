// Package threads publishes text posts through the Threads Graph API.
package threads

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
)

const (
	DefaultBaseURL = "https://graph.threads.net/v1.0"
	defaultTimeout = 20 * time.Second
)

type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type idResponse struct {
	ID string `json:"id"`
}

// Client calls the Threads Graph API. Publishing is not idempotent on the
// remote side so requests are never retried.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

// Me returns the profile owning token.
func (c *Client) Me(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"fields": "id,username", "access_token": token}).
		SetResult(&out).
		SetError(&graphError{}).
		Get("/me")
	if err := check(resp, err, "me"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTextContainer stages a TEXT post and returns its creation id.
func (c *Client) CreateTextContainer(ctx context.Context, threadsUserID, token, text string) (string, error) {
	var out idResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"media_type": "TEXT", "text": text, "access_token": token}).
		SetResult(&out).
		SetError(&graphError{}).
		Post("/" + threadsUserID + "/threads")
	if err := check(resp, err, "create container"); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Publish publishes a staged container and returns the media id.
func (c *Client) Publish(ctx context.Context, threadsUserID, token, creationID string) (string, error) {
	var out idResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"creation_id": creationID, "access_token": token}).
		SetResult(&out).
		SetError(&graphError{}).
		Post("/" + threadsUserID + "/threads_publish")
	if err := check(resp, err, "publish"); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) Permalink(ctx context.Context, mediaID, token string) (string, error) {
	var out struct {
		Permalink string `json:"permalink"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"fields": "permalink", "access_token": token}).
		SetResult(&out).
		SetError(&graphError{}).
		Get("/" + mediaID)
	if err := check(resp, err, "permalink"); err != nil {
		return "", err
	}
	return out.Permalink, nil
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%w: threads %s: %v", domain.ErrProviderFailure, op, err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := resp.Status()
	if ge, ok := resp.Error().(*graphError); ok && ge != nil && ge.Error.Message != "" {
		msg = ge.Error.Message
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: threads rejected the access token: %s", domain.ErrInvalidInput, msg)
	}
	return fmt.Errorf("%w: threads %s: %d %s", domain.ErrProviderFailure, op, resp.StatusCode(), msg)
}
