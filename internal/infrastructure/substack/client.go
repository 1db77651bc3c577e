// Package substack reads the reader inbox and subscriptions of a Substack account.
package substack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

const (
	// DefaultBaseURL is the public Substack host.
	DefaultBaseURL = "https://substack.com"
	// CursorLayout is the timestamp format the inbox accepts for after.
	CursorLayout = "2006-01-02T15:04:05.000Z"

	maxErrorBody = 256
)

// Config wires a Client.
type Config struct {
	BaseURL    string
	InboxType  string
	CookieFile string
	Timeout    time.Duration
}

// Client is the FeedSource backed by the Substack reader API.
type Client struct {
	baseURL    *url.URL
	inbox      string
	cookieFile string
	jar        *Jar
	http       *http.Client
	logger     *slog.Logger
}

var _ ports.FeedSource = (*Client)(nil)

// NewClient restores the persisted session, if any, and returns a ready client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.InboxType == "" {
		cfg.InboxType = "inbox"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar := NewJar()
	if cfg.CookieFile != "" {
		if err := jar.Load(cfg.CookieFile); err != nil {
			return nil, err
		}
		logger.Debug("session restored", "cookies", jar.Len(), "file", cfg.CookieFile)
	}

	return &Client{
		baseURL:    base,
		inbox:      cfg.InboxType,
		cookieFile: cfg.CookieFile,
		jar:        jar,
		http:       &http.Client{Timeout: cfg.Timeout, Jar: jar},
		logger:     logger,
	}, nil
}

// Jar exposes the session cookies, e.g. for the renderer.
func (c *Client) Jar() *Jar {
	return c.jar
}

// Login follows a magic sign-in link and persists the cookies it sets.
func (c *Client) Login(ctx context.Context, loginURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("follow login link: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("login: unexpected status %s", resp.Status)
	}
	if c.jar.Len() == 0 {
		return fmt.Errorf("login: %w: no session cookies received", domain.ErrAuthRequired)
	}
	c.logger.Info("logged in", "cookies", c.jar.Len())

	if c.cookieFile == "" {
		return nil
	}
	return c.jar.Save(c.cookieFile)
}

type subscriptionsResponse struct {
	Publications []struct {
		ID   flexID `json:"id"`
		Name string `json:"name"`
	} `json:"publications"`
}

// Subscriptions lists the publications the account follows.
func (c *Client) Subscriptions(ctx context.Context) ([]domain.Publication, error) {
	var body subscriptionsResponse
	if err := c.getJSON(ctx, "/api/v1/subscriptions", nil, &body); err != nil {
		return nil, err
	}
	out := make([]domain.Publication, 0, len(body.Publications))
	for _, p := range body.Publications {
		out = append(out, domain.Publication{ID: string(p.ID), Name: p.Name})
	}
	return out, nil
}

type postsResponse struct {
	Posts []struct {
		ID            flexID `json:"id"`
		PublicationID flexID `json:"publication_id"`
		Title         string `json:"title"`
		CanonicalURL  string `json:"canonical_url"`
		PostDate      string `json:"post_date"`
	} `json:"posts"`
	More bool `json:"more"`
}

// Posts returns one inbox page, newest first.
func (c *Client) Posts(ctx context.Context, limit int, after time.Time) (domain.PostPage, error) {
	q := url.Values{}
	q.Set("inboxType", c.inbox)
	q.Set("limit", strconv.Itoa(limit))
	if !after.IsZero() {
		q.Set("after", after.UTC().Format(CursorLayout))
	}

	var body postsResponse
	if err := c.getJSON(ctx, "/api/v1/reader/posts", q, &body); err != nil {
		return domain.PostPage{}, err
	}

	page := domain.PostPage{More: body.More, Posts: make([]domain.Post, 0, len(body.Posts))}
	for _, p := range body.Posts {
		if p.ID == "" {
			c.logger.Warn("skipping post without id", "title", p.Title)
			continue
		}
		posted, err := time.Parse(time.RFC3339Nano, p.PostDate)
		if err != nil {
			return domain.PostPage{}, fmt.Errorf("post %s: parse post_date %q: %w", p.ID, p.PostDate, err)
		}
		page.Posts = append(page.Posts, domain.Post{
			ID:            domain.ArticleID(p.ID),
			PublicationID: string(p.PublicationID),
			Title:         p.Title,
			CanonicalURL:  p.CanonicalURL,
			PostDate:      posted.UTC(),
		})
	}
	return page, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("get %s: %w: %s", path, domain.ErrRateLimited, resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("get %s: %w: %s", path, domain.ErrAuthRequired, resp.Status)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("get %s: %s: %s", path, resp.Status, truncate(raw))
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func truncate(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

// flexID accepts ids encoded either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
