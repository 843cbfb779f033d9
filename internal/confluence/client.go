// Package confluence implements the HTTP adapter for the Confluence REST API.
// Only the interface in types.go is visible to the export pipeline.
package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "confluence-space-export/dev"
	maxErrorBodyBytes  = 1 << 20 // 1 MiB
	defaultPageLimit   = 50
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("confluence resource not found")

// APIError is returned for non-2xx responses. RetryAfter carries the parsed
// Retry-After header for 429 responses.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// StatusOf extracts the HTTP status from an error chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// RetryAfterOf extracts a Retry-After hint from an error chain, or 0.
func RetryAfterOf(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// ClientConfig configures the Confluence HTTP client.
type ClientConfig struct {
	BaseURL        string
	Username       string
	Password       string
	HTTPClient     *http.Client
	UserAgent      string
	RequestsPerSec float64 // client-side rate limit; 0 disables
}

// Client is an HTTP-backed Confluence API adapter.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

var _ API = (*Client)(nil)

// NewClient creates a Confluence HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	username := strings.TrimSpace(cfg.Username)
	password := strings.TrimSpace(cfg.Password)

	if baseURL == "" {
		return nil, errors.New("confluence base URL is required")
	}
	if username == "" {
		return nil, errors.New("confluence username is required")
	}
	if password == "" {
		return nil, errors.New("confluence password is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid confluence base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: httpClient,
		userAgent:  userAgent,
		limiter:    limiter,
	}, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetPageWithBody fetches a page including its storage-format body, version,
// and ancestor chain.
func (c *Client) GetPageWithBody(ctx context.Context, pageID string) (Page, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return Page{}, errors.New("page ID is required")
	}

	query := url.Values{}
	query.Set("expand", "body.storage,version,ancestors,space,history.lastUpdated")

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(id), query)
	if err != nil {
		return Page{}, err
	}

	var payload contentDTO
	if err := c.do(req, &payload); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return Page{}, fmt.Errorf("page %s: %w", id, ErrNotFound)
		}
		return Page{}, err
	}
	return payload.toPage(), nil
}

// GetChildPages lists the direct child pages of a page.
func (c *Client) GetChildPages(ctx context.Context, pageID string, cursor string) (PageList, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return PageList{}, errors.New("page ID is required")
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(defaultPageLimit))
	query.Set("expand", "space")
	if cursor != "" {
		query.Set("start", cursor)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(id)+"/child/page", query)
	if err != nil {
		return PageList{}, err
	}

	var payload listResponse[contentDTO]
	if err := c.do(req, &payload); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return PageList{}, fmt.Errorf("page %s children: %w", id, ErrNotFound)
		}
		return PageList{}, err
	}

	out := PageList{
		Pages:      make([]PageRef, 0, len(payload.Results)),
		NextCursor: payload.nextStart(),
	}
	for _, item := range payload.Results {
		out.Pages = append(out.Pages, PageRef{
			ID:       item.ID,
			Title:    item.Title,
			SpaceKey: item.Space.Key,
		})
	}
	return out, nil
}

// ListAttachments lists attachments of a page.
func (c *Client) ListAttachments(ctx context.Context, pageID string, cursor string) (AttachmentList, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return AttachmentList{}, errors.New("page ID is required")
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(defaultPageLimit))
	if cursor != "" {
		query.Set("start", cursor)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(id)+"/child/attachment", query)
	if err != nil {
		return AttachmentList{}, err
	}

	var payload listResponse[attachmentDTO]
	if err := c.do(req, &payload); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return AttachmentList{}, fmt.Errorf("page %s attachments: %w", id, ErrNotFound)
		}
		return AttachmentList{}, err
	}

	out := AttachmentList{
		Attachments: make([]Attachment, 0, len(payload.Results)),
		NextCursor:  payload.nextStart(),
	}
	for _, item := range payload.Results {
		out.Attachments = append(out.Attachments, item.toAttachment(c.baseURL, id))
	}
	return out, nil
}

// DownloadAttachment fetches raw attachment bytes from a download URL, which
// may be relative to the base URL.
func (c *Client) DownloadAttachment(ctx context.Context, downloadURL string) ([]byte, error) {
	resolved := resolveURL(c.baseURL, strings.TrimSpace(downloadURL))
	if resolved == "" {
		return nil, errors.New("attachment download URL is required")
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("attachment %s: %w", resolved, ErrNotFound)
		}
		return nil, newAPIError(req, resp, bodyBytes)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}
	return data, nil
}

// GetUser looks up a user by key.
func (c *Client) GetUser(ctx context.Context, userKey string) (User, error) {
	key := strings.TrimSpace(userKey)
	if key == "" {
		return User{}, errors.New("user key is required")
	}
	return c.getUser(ctx, url.Values{"key": []string{key}})
}

// GetUserByUsername looks up a user by username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (User, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return User{}, errors.New("username is required")
	}
	return c.getUser(ctx, url.Values{"username": []string{name}})
}

func (c *Client) getUser(ctx context.Context, query url.Values) (User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/user", query)
	if err != nil {
		return User{}, err
	}

	var payload userDTO
	if err := c.do(req, &payload); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return payload.toUser(), nil
}

// SearchPages runs a CQL query and returns matching page references.
func (c *Client) SearchPages(ctx context.Context, cql string, pageSize int) ([]PageRef, error) {
	if strings.TrimSpace(cql) == "" {
		return nil, errors.New("cql is required")
	}
	if pageSize <= 0 {
		pageSize = defaultPageLimit
	}

	query := url.Values{}
	query.Set("cql", cql)
	query.Set("limit", strconv.Itoa(pageSize))

	out := []PageRef{}
	start := 0
	for {
		query.Set("start", strconv.Itoa(start))
		req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/search", query)
		if err != nil {
			return nil, err
		}

		var payload listResponse[contentDTO]
		if err := c.do(req, &payload); err != nil {
			return nil, err
		}
		for _, item := range payload.Results {
			out = append(out, PageRef{
				ID:       item.ID,
				Title:    item.Title,
				SpaceKey: item.Space.Key,
			})
		}
		if payload.Size < payload.Limit || payload.Size == 0 {
			break
		}
		start += payload.Size
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, pathSuffix string, query url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, pathSuffix)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.wait(req.Context()); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newAPIError(req, resp, bodyBytes)
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func newAPIError(req *http.Request, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		URL:        req.URL.String(),
		Message:    decodeAPIErrorMessage(body),
		Body:       string(body),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return apiErr
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func decodeAPIErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "reason"} {
		if v, ok := payload[key].(string); ok {
			return v
		}
	}
	return ""
}

func resolveURL(baseURL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err == nil && u.IsAbs() {
		return ref
	}
	root, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return root.ResolveReference(parsed).String()
}

type listResponse[T any] struct {
	Results []T `json:"results"`
	Start   int `json:"start"`
	Limit   int `json:"limit"`
	Size    int `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// nextStart returns the next paging cursor, or "" when the listing is done.
func (r listResponse[T]) nextStart() string {
	if r.Links.Next == "" && (r.Size < r.Limit || r.Size == 0) {
		return ""
	}
	if r.Size == 0 {
		return ""
	}
	return strconv.Itoa(r.Start + r.Size)
}

type contentDTO struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
	} `json:"version"`
	History struct {
		LastUpdated struct {
			When string `json:"when"`
		} `json:"lastUpdated"`
	} `json:"history"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Ancestors []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"ancestors"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func (p contentDTO) toPage() Page {
	page := Page{
		ID:           p.ID,
		SpaceKey:     p.Space.Key,
		Title:        p.Title,
		BodyStorage:  p.Body.Storage.Value,
		Version:      p.Version.Number,
		ModifiedDate: parseRemoteTime(p.Version.When, p.History.LastUpdated.When),
		WebURL:       p.Links.WebUI,
	}
	for _, ancestor := range p.Ancestors {
		page.Ancestors = append(page.Ancestors, Ancestor{ID: ancestor.ID, Title: ancestor.Title})
	}
	if n := len(page.Ancestors); n > 0 {
		page.ParentID = page.Ancestors[n-1].ID
	}
	return page
}

type attachmentDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Metadata struct {
		MediaType string `json:"mediaType"`
	} `json:"metadata"`
	Extensions struct {
		FileSize int64 `json:"fileSize"`
	} `json:"extensions"`
	Links struct {
		Download string `json:"download"`
	} `json:"_links"`
}

func (a attachmentDTO) toAttachment(baseURL, pageID string) Attachment {
	return Attachment{
		ID:          a.ID,
		PageID:      pageID,
		Filename:    a.Title,
		MediaType:   a.Metadata.MediaType,
		FileSize:    a.Extensions.FileSize,
		DownloadURL: resolveURL(baseURL, a.Links.Download),
	}
}

type userDTO struct {
	UserKey     string `json:"userKey"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

func (u userDTO) toUser() User {
	return User{
		UserKey:     u.UserKey,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
}

func parseRemoteTime(candidates ...string) time.Time {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, layout := range []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02T15:04:05.000Z0700",
			"2006-01-02T15:04:05.000Z07:00",
		} {
			t, err := time.Parse(layout, candidate)
			if err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
