// Package wordpress talks to the WordPress REST API (wp-json/wp/v2) using
// application passwords.
package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"blogpilot/internal/domain"
)

const (
	apiPath         = "/wp-json/wp/v2"
	defaultTimeout  = 15 * time.Second
	maxAttempts     = 3
	defaultBackoff  = 250 * time.Millisecond
	maxErrorBodyLen = 300
)

// ErrRemoteNotFound means the WordPress resource no longer exists.
var ErrRemoteNotFound = fmt.Errorf("%w: wordpress resource not found", domain.ErrProviderFailure)

// Credentials authenticate against one WordPress site.
type Credentials struct {
	SiteURL  string
	Username string
	Password string
}

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// PostPayload is the subset of the wp/v2/posts schema we write.
type PostPayload struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Status     string  `json:"status"`
	Slug       string  `json:"slug,omitempty"`
	DateGMT    string  `json:"date_gmt,omitempty"`
	Categories []int64 `json:"categories,omitempty"`
}

type RemotePost struct {
	ID     int64  `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is a retrying WordPress REST client. Network errors, 429 and 5xx
// responses are retried with exponential backoff.
type Client struct {
	http    *resty.Client
	backoff time.Duration
	logger  zerolog.Logger
}

func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "blogpilot/1.0"),
		backoff: defaultBackoff,
		logger:  logger,
	}
}

// Me verifies the credentials and returns the authenticated WordPress user.
func (c *Client) Me(ctx context.Context, creds Credentials) (*User, error) {
	var u User
	if err := c.do(ctx, creds, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Categories(ctx context.Context, creds Credentials) ([]Category, error) {
	var out []Category
	if err := c.do(ctx, creds, http.MethodGet, "/categories?per_page=100&hide_empty=false", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePost(ctx context.Context, creds Credentials, p PostPayload) (*RemotePost, error) {
	var out RemotePost
	if err := c.do(ctx, creds, http.MethodPost, "/posts", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePost(ctx context.Context, creds Credentials, id int64, p PostPayload) (*RemotePost, error) {
	var out RemotePost
	if err := c.do(ctx, creds, http.MethodPost, "/posts/"+strconv.FormatInt(id, 10), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body, result any) error {
	base, err := NormalizeSiteURL(creds.SiteURL)
	if err != nil {
		return err
	}
	endpoint := base + apiPath + path
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(c.backoff))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		req := c.http.R().
			SetContext(ctx).
			SetBasicAuth(creds.Username, creds.Password).
			SetError(&apiError{})
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}
		if result != nil {
			req.SetResult(result)
		}
		resp, err := req.Execute(method, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("wordpress request failed")
			return retry.RetryableError(fmt.Errorf("%w: wordpress %s %s: %v", domain.ErrProviderFailure, method, path, err))
		}
		code := resp.StatusCode()
		switch {
		case code < 300:
			return nil
		case code == http.StatusTooManyRequests || code >= 500:
			c.logger.Warn().Int("status", code).Int("attempt", attempt).Str("path", path).Msg("wordpress upstream error")
			return retry.RetryableError(statusError(resp))
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return fmt.Errorf("%w: wordpress rejected the credentials (%d)", domain.ErrInvalidInput, code)
		case code == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrRemoteNotFound, path)
		}
		return statusError(resp)
	})
}

func statusError(resp *resty.Response) error {
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil && apiErr.Message != "" {
		return fmt.Errorf("%w: wordpress %d %s: %s", domain.ErrProviderFailure, resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	body := resp.String()
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen]
	}
	return fmt.Errorf("%w: wordpress status %d: %s", domain.ErrProviderFailure, resp.StatusCode(), body)
}

// NormalizeSiteURL validates a site address and strips any trailing slash
// or wp-json suffix.
func NormalizeSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return "", fmt.Errorf("%w: invalid WordPress site url %q", domain.ErrInvalidInput, raw)
	}
	if u.User != nil {
		return "", errors.Join(domain.ErrInvalidInput, errors.New("site url must not embed credentials"))
	}
	path := strings.TrimRight(u.Path, "/")
	path = strings.TrimSuffix(path, "/wp-json")
	return u.Scheme + "://" + u.Host + path, nil
}
