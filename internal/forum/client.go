// Package forum talks to the 1point3acres API: listing the grad-application
// board newest-first and pulling per-thread detail fields.
package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gradwatch/pkg/logx"
	"gradwatch/pkg/pace"
)

const (
	defaultBaseURL   = "https://api.1point3acres.com/api"
	defaultLegacyURL = "https://www.1point3acres.com/bbs"
	defaultForumID   = 82
	defaultPageSize  = 20
	defaultMaxDepth  = 5
)

// The API only answers to its mobile app's user agent (percent-encoded
// app name, as the app itself sends it).
var userAgent = url.QueryEscape("一亩三分地") + "/0 CFNetwork/1404.0.5 Darwin/22.3.0"

// ErrEmptyPage reports a listing page with zero threads. The board is never
// actually empty, so this always means the upstream is misbehaving and the
// run must not be allowed to conclude "no new threads".
var ErrEmptyPage = errors.New("forum: listing page is empty")

type Config struct {
	BaseURL   string
	LegacyURL string

	Token    string
	DeviceID string

	ForumID  int
	PageSize int
	// MaxDepth bounds the watermark lookback in pages. Threads older than
	// MaxDepth*PageSize but newer than a very stale watermark are skipped
	// for good; that loss is accepted.
	MaxDepth int

	// Courtesy delays before listing and detail requests.
	ListPaceMin, ListPaceMax     time.Duration
	DetailPaceMin, DetailPaceMax time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger

	listPace   *pace.Sleeper
	detailPace *pace.Sleeper

	// option tables from /types/164/options, fetched once per process.
	tables       []OptionTable
	tablesLoaded bool
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.LegacyURL == "" {
		cfg.LegacyURL = defaultLegacyURL
	}
	if cfg.ForumID <= 0 {
		cfg.ForumID = defaultForumID
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log,
		listPace:   pace.New(cfg.ListPaceMin, cfg.ListPaceMax),
		detailPace: pace.New(cfg.DetailPaceMin, cfg.DetailPaceMax),
	}
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("accept", "application/json, text/plain, */*")
	h.Set("accept-language", "en-US,en;q=0.9")
	h.Set("content-type", "application/json")
	h.Set("device-id", c.cfg.DeviceID)
	h.Set("user-agent", userAgent)
	h.Set("authorization", c.cfg.Token)
	return h
}

// getJSON performs an authorized API GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header = c.headers()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("forum: GET %s: http %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("forum: GET %s: decode: %w", req.URL.Path, err)
	}
	return nil
}

type listResponse struct {
	Errno   int      `json:"errno"`
	Threads []Thread `json:"threads"`
}

// ListThreads fetches one listing page, newest-first.
// Page numbers start at 1.
func (c *Client) ListThreads(ctx context.Context, page int) ([]Thread, error) {
	if err := c.listPace.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ps", strconv.Itoa(c.cfg.PageSize))
	q.Set("order", "time_desc")
	q.Set("includes", "images,topic_tag")
	q.Set("pg", strconv.Itoa(page))
	u := fmt.Sprintf("%s/forums/%d/threads?%s", c.cfg.BaseURL, c.cfg.ForumID, q.Encode())

	var out listResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	if out.Errno != 0 {
		return nil, fmt.Errorf("forum: listing page %d: errno %d", page, out.Errno)
	}
	if len(out.Threads) == 0 {
		return nil, fmt.Errorf("forum: listing page %d: %w", page, ErrEmptyPage)
	}

	c.log.Debug("listing page fetched", logx.Int("page", page), logx.Int("threads", len(out.Threads)))
	return out.Threads, nil
}
