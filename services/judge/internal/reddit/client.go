// Package reddit implements content.Provider against the Reddit HTTP API.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/twist-judge/services/judge/internal/content"
)

// ClientConfig holds configurable settings for the Reddit client.
type ClientConfig struct {
	UserAgent      string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Config     ClientConfig
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

// WithHTTPClient sets the transport, normally the OAuth2 client from NewHTTPClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func New(baseURL string, cfg ClientConfig, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://oauth.reddit.com"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "twist-judge/1.0"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Config:     cfg,
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewBreakerSettings returns breaker settings that ignore ErrNotFound.
func NewBreakerSettings(name string, maxRequests uint32, interval, timeout time.Duration, threshold uint32, log *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, content.ErrNotFound) || errors.Is(err, errRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
}

// errRejected marks a definitive 4xx answer that retrying cannot fix.
var errRejected = errors.New("reddit: request rejected")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit: status %d body=%q", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return content.ErrNotFound
	case e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests:
		return errRejected
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, content.ErrNotFound) || errors.Is(err, errRejected) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// request describes one API call. Only idempotent requests are retried.
type request struct {
	method     string
	path       string
	query      url.Values
	form       url.Values
	idempotent bool
}

func doWithBreaker[T any](ctx context.Context, c *Client, r request) (*T, error) {
	if c.CB == nil {
		return doJSONWithRetry[T](ctx, c, r)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		return doJSONWithRetry[T](ctx, c, r)
	})
	if err != nil {
		return nil, err
	}
	return result.(*T), nil
}

func doJSONWithRetry[T any](ctx context.Context, c *Client, r request) (*T, error) {
	attempts := 0
	if r.idempotent {
		attempts = c.Config.MaxRetries
	}
	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			delay := c.Config.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			c.Log.Debug("retrying request", zap.String("path", r.path), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := doJSON[T](ctx, c, r)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		c.Log.Warn("request failed", zap.String("path", r.path), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}

func doJSON[T any](ctx context.Context, c *Client, r request) (*T, error) {
	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.form != nil {
		body = strings.NewReader(r.form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.Config.UserAgent)
	if r.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(b[:min(len(b), 200)])}
	}
	var out T
	if len(b) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("reddit: decode error: %w body=%q", err, string(b[:min(len(b), 200)]))
	}
	return &out, nil
}

func (c *Client) info(ctx context.Context, id string) (thingData, error) {
	l, err := doWithBreaker[listing](ctx, c, request{
		method:     http.MethodGet,
		path:       "/api/info",
		query:      url.Values{"id": {id}, "raw_json": {"1"}},
		idempotent: true,
	})
	if err != nil {
		return thingData{}, err
	}
	for _, ch := range l.Data.Children {
		var d thingData
		if err := json.Unmarshal(ch.Data, &d); err != nil {
			return thingData{}, fmt.Errorf("reddit: decode %s: %w", id, err)
		}
		if d.Name == id {
			return d, nil
		}
	}
	return thingData{}, fmt.Errorf("%s: %w", id, content.ErrNotFound)
}

func (c *Client) Post(ctx context.Context, id string) (content.Post, error) {
	d, err := c.info(ctx, id)
	if err != nil {
		return content.Post{}, err
	}
	return d.post(), nil
}

func (c *Client) Comment(ctx context.Context, id string) (content.Comment, error) {
	d, err := c.info(ctx, id)
	if err != nil {
		return content.Comment{}, err
	}
	return d.comment(), nil
}

// write posts to a api_type=json endpoint and returns the first thing in the reply.
func (c *Client) write(ctx context.Context, path string, form url.Values, idempotent bool) (*thingData, error) {
	form.Set("api_type", "json")
	resp, err := doWithBreaker[apiResponse](ctx, c, request{method: http.MethodPost, path: path, form: form, idempotent: idempotent})
	if err != nil {
		return nil, err
	}
	if len(resp.JSON.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s: %v", errRejected, path, resp.JSON.Errors)
	}
	for _, th := range resp.JSON.Data.Things {
		var d thingData
		if err := json.Unmarshal(th.Data, &d); err != nil {
			return nil, fmt.Errorf("reddit: decode %s reply: %w", path, err)
		}
		return &d, nil
	}
	return nil, nil
}

func (c *Client) SubmitComment(ctx context.Context, postID, body string) (content.Comment, error) {
	d, err := c.write(ctx, "/api/comment", url.Values{"thing_id": {postID}, "text": {body}}, false)
	if err != nil {
		return content.Comment{}, err
	}
	if d == nil {
		return content.Comment{}, fmt.Errorf("reddit: comment on %s returned no thing", postID)
	}
	return d.comment(), nil
}

func (c *Client) EditComment(ctx context.Context, id, body string) (content.Comment, error) {
	d, err := c.write(ctx, "/api/editusertext", url.Values{"thing_id": {id}, "text": {body}}, true)
	if err != nil {
		return content.Comment{}, err
	}
	if d == nil {
		return c.Comment(ctx, id)
	}
	return d.comment(), nil
}

func (c *Client) DistinguishComment(ctx context.Context, id string, sticky bool) error {
	_, err := c.write(ctx, "/api/distinguish", url.Values{
		"id":     {id},
		"how":    {"yes"},
		"sticky": {fmt.Sprint(sticky)},
	}, true)
	return err
}

// action posts a form to an endpoint whose reply body carries nothing useful.
func (c *Client) action(ctx context.Context, path string, form url.Values) error {
	_, err := doWithBreaker[json.RawMessage](ctx, c, request{method: http.MethodPost, path: path, form: form, idempotent: true})
	return err
}

func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.action(ctx, "/api/del", url.Values{"id": {id}})
}

func (c *Client) ApproveComment(ctx context.Context, id string) error {
	return c.action(ctx, "/api/approve", url.Values{"id": {id}})
}

func (c *Client) RemoveComment(ctx context.Context, id string, spam bool) error {
	return c.action(ctx, "/api/remove", url.Values{"id": {id}, "spam": {fmt.Sprint(spam)}})
}

func (c *Client) LockComment(ctx context.Context, id string) error {
	return c.action(ctx, "/api/lock", url.Values{"id": {id}})
}

func (c *Client) StickyComment(ctx context.Context, postID string) (content.Comment, error) {
	if !content.IsPostID(postID) {
		return content.Comment{}, fmt.Errorf("reddit: not a post id %q", postID)
	}
	pages, err := doWithBreaker[[]listing](ctx, c, request{
		method:     http.MethodGet,
		path:       "/comments/" + strings.TrimPrefix(postID, content.PrefixPost) + ".json",
		query:      url.Values{"limit": {"5"}, "depth": {"1"}, "raw_json": {"1"}},
		idempotent: true,
	})
	if err != nil {
		return content.Comment{}, err
	}
	if len(*pages) > 1 {
		for _, ch := range (*pages)[1].Data.Children {
			if ch.Kind != "t1" {
				continue
			}
			var d thingData
			if err := json.Unmarshal(ch.Data, &d); err != nil {
				continue
			}
			if d.Stickied {
				return d.comment(), nil
			}
		}
	}
	return content.Comment{}, fmt.Errorf("sticky on %s: %w", postID, content.ErrNotFound)
}

func (c *Client) Me(ctx context.Context) (content.User, error) {
	me, err := doWithBreaker[meResponse](ctx, c, request{method: http.MethodGet, path: "/api/v1/me", idempotent: true})
	if err != nil {
		return content.User{}, err
	}
	id := me.ID
	if id != "" && !strings.HasPrefix(id, content.PrefixUser) {
		id = content.PrefixUser + id
	}
	if !content.IsUserID(id) {
		return content.User{}, fmt.Errorf("reddit: malformed account id %q", me.ID)
	}
	return content.User{ID: id, Name: me.Name}, nil
}

var _ content.Provider = (*Client)(nil)
