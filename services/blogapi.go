package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blogview/models"
)

var (
	// ErrNetworkUnavailable wraps transport failures: refused connections, DNS, timeouts.
	ErrNetworkUnavailable = errors.New("blog api unreachable")
	// ErrValidation is returned before any request when a draft is blank.
	ErrValidation = errors.New("title and content are required")
	// ErrNotConfirmed is returned when a delete was not confirmed by the user.
	ErrNotConfirmed = errors.New("delete not confirmed")
)

// ServerError - the API answered with a non-2xx status
type ServerError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: blog api status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: blog api status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// BlogAPI is the REST contract of the external blog server.
type BlogAPI interface {
	Health(ctx context.Context) (*models.ApiStatus, error)
	ListPosts(ctx context.Context) ([]models.Post, error)
	CreatePost(ctx context.Context, req models.CreatePostRequest) (*models.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// APIClient talks to the blog API. It never retries: every failure is final for
// the call that produced it.
type APIClient struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

func NewAPIClient(opts ClientOptions) (*APIClient, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s): %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "blogview/1.0"
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConnsPerHost:   10,
	}
	return &APIClient{
		baseURL:   base,
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
	}, nil
}

// BaseURL returns the API root, without trailing slash.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

func (c *APIClient) Health(ctx context.Context) (*models.ApiStatus, error) {
	var status models.ApiStatus
	if err := c.do(ctx, "health", http.MethodGet, "/posts/health", nil, &status); err != nil {
		return nil, err
	}
	if status.Status == "" {
		return nil, fmt.Errorf("health: response without status")
	}
	return &status, nil
}

func (c *APIClient) ListPosts(ctx context.Context) ([]models.Post, error) {
	posts := make([]models.Post, 0)
	if err := c.do(ctx, "list_posts", http.MethodGet, "/posts", nil, &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

func (c *APIClient) CreatePost(ctx context.Context, req models.CreatePostRequest) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, "create_post", http.MethodPost, "/posts", req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *APIClient) DeletePost(ctx context.Context, id int64) error {
	return c.do(ctx, "delete_post", http.MethodDelete, "/posts/"+strconv.FormatInt(id, 10), nil, nil)
}

// do runs one request. out may be nil when the body is not needed.
func (c *APIClient) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() { recordUpstreamCall(op, time.Since(start), err) }()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return fmt.Errorf("%s: %w: %v", op, ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ServerError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
